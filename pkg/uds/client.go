// Package uds builds and transacts the UDS service requests (0x14, 0x19,
// 0x22, 0x27, 0x2E, 0x3E) this toolkit supports, through a pkg/isotp.Engine.
package uds

import (
	"time"

	"github.com/flapvw/vlinker-go/pkg/coding"
	"github.com/flapvw/vlinker-go/pkg/isotp"
	"github.com/flapvw/vlinker-go/pkg/protocol"
)

// Client issues UDS service requests over an ISO-TP engine and adds service
// context to any transport failure.
type Client struct {
	Engine  *isotp.Engine
	Timeout time.Duration
}

func NewClient(engine *isotp.Engine) *Client {
	return &Client{Engine: engine}
}

func (c *Client) transact(service string, payload []byte) ([]byte, error) {
	resp, err := c.Engine.Transact(payload, c.Timeout)
	if err != nil {
		return nil, &ServiceError{Service: service, Err: err}
	}
	if nerr := checkNegative(resp); nerr != nil {
		return nil, &ServiceError{Service: service, Err: nerr}
	}
	return resp, nil
}

// TesterPresent sends 0x3E 0x00 with no suppression of the positive reply.
func (c *Client) TesterPresent() ([]byte, error) {
	return c.transact("TesterPresent", []byte{0x3E, 0x00})
}

// ReadDTC sends ReadDTCInformation sub-function 0x02 with no status mask
// byte. The primary attempt
// carries payload 02 19 02 (a leading length byte baked into the request,
// historically how this service was encoded); if that comes back empty or
// fails, it retries with the clean payload 19 02.
func (c *Client) ReadDTC() ([]byte, error) {
	resp, err := c.transact("ReadDTC", []byte{0x02, 0x19, 0x02})
	if err == nil && len(resp) > 0 {
		return resp, nil
	}
	return c.transact("ReadDTC", []byte{0x19, 0x02})
}

// ClearDTC clears all DTCs. Same leading-length-byte-then-clean fallback
// shape as ReadDTC.
func (c *Client) ClearDTC() ([]byte, error) {
	resp, err := c.transact("ClearDTC", []byte{0x02, 0x14, 0x00})
	if err == nil && len(resp) > 0 {
		return resp, nil
	}
	return c.transact("ClearDTC", []byte{0x14, 0x00})
}

// ReadDID requests ReadDataByIdentifier for did and decodes the payload that
// follows the 0x62 + DID echo in the positive response.
func (c *Client) ReadDID(did uint16) (protocol.DIDValue, error) {
	resp, err := c.transact("ReadDID", []byte{0x22, byte(did >> 8), byte(did)})
	if err != nil {
		return protocol.DIDValue{}, err
	}
	if len(resp) >= 3 && resp[0] == 0x62 {
		return protocol.DecodeDID(did, resp[3:]), nil
	}
	return protocol.DecodeDID(did, resp), nil
}

// SecurityAccessRequestSeed sends 0x27 <subFunction> directly over the
// stream, bypassing the engine's binary frame reassembly, and strips any ELM
// adapter echo from the response. The returned bytes are the whole decoded
// response (0x67, the sub-function, then the seed). This
// mirrors security access historically being issued over a raw ASCII-hex
// adapter link rather than through the ISO-TP engine.
func (c *Client) SecurityAccessRequestSeed(subFunction byte) ([]byte, error) {
	return c.securityAccessRaw([]byte{0x27, subFunction})
}

// SecurityAccessSendKey sends 0x27 <subFunction> <key…>; the sub-function is
// caller-supplied since some ECUs use non-adjacent request/send pairs.
func (c *Client) SecurityAccessSendKey(subFunction byte, key []byte) ([]byte, error) {
	payload := make([]byte, 0, 2+len(key))
	payload = append(payload, 0x27, subFunction)
	payload = append(payload, key...)
	return c.securityAccessRaw(payload)
}

func (c *Client) securityAccessRaw(payload []byte) ([]byte, error) {
	resp, err := c.Engine.Stream.SendBytes(payload)
	if err != nil {
		return nil, &ServiceError{Service: "SecurityAccess", Err: err}
	}
	raw := protocol.StripELMEcho(resp)
	if nerr := checkNegative(raw); nerr != nil {
		return nil, &ServiceError{Service: "SecurityAccess", Err: nerr}
	}
	return raw, nil
}

// WriteDataByIdentifier builds the 0x2E <DID> <data…> request. When dryRun
// is true, the prepared hex payload is returned and nothing is transmitted.
func (c *Client) WriteDataByIdentifier(did uint16, data []byte, dryRun bool) (string, []byte, error) {
	if dryRun {
		return coding.PrepareWrite(formatDID(did), data), nil, nil
	}
	payload := make([]byte, 0, 2+len(data))
	payload = append(payload, 0x2E, byte(did>>8), byte(did))
	payload = append(payload, data...)
	resp, err := c.transact("WriteDataByIdentifier", payload)
	return "", resp, err
}

func formatDID(did uint16) string {
	const hexDigits = "0123456789ABCDEF"
	return string([]byte{
		hexDigits[(did>>12)&0xF],
		hexDigits[(did>>8)&0xF],
		hexDigits[(did>>4)&0xF],
		hexDigits[did&0xF],
	})
}

// SecurityAccessResult is the outcome of SecurityAccessWithProfile: either a
// seed awaiting a manually supplied key ("manual"), or a computed key that
// was already sent ("auto").
type SecurityAccessResult struct {
	Seed     []byte
	Key      []byte
	Response []byte
	Mode     string
}

// SecurityAccessWithProfile requests a seed with requestSub; if transform is
// non-nil it derives a key from the seed, sends it with sendSub, and returns
// mode "auto" with the response attached. A nil transform returns mode
// "manual" so the operator can compute the key out of band.
func (c *Client) SecurityAccessWithProfile(requestSub, sendSub byte, transform func(seed []byte) []byte) (SecurityAccessResult, error) {
	seed, err := c.SecurityAccessRequestSeed(requestSub)
	if err != nil {
		return SecurityAccessResult{}, err
	}
	if transform == nil {
		return SecurityAccessResult{Seed: seed, Mode: "manual"}, nil
	}
	key := transform(seed)
	resp, err := c.SecurityAccessSendKey(sendSub, key)
	if err != nil {
		return SecurityAccessResult{Seed: seed, Key: key, Mode: "auto"}, err
	}
	return SecurityAccessResult{Seed: seed, Key: key, Response: resp, Mode: "auto"}, nil
}
