package uds

import "fmt"

// ServiceError wraps a transport-layer failure with the UDS service that
// triggered it, per the propagation policy: C1/C2 surface transport failures
// unwrapped, C5 adds service context on top.
type ServiceError struct {
	Service string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("uds: %s: %v", e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// nrcNames covers the negative response codes this toolkit's services are
// likely to see; anything else is reported numerically.
var nrcNames = map[byte]string{
	0x11: "serviceNotSupported",
	0x12: "subFunctionNotSupported",
	0x13: "incorrectMessageLengthOrInvalidFormat",
	0x22: "conditionsNotCorrect",
	0x24: "requestSequenceError",
	0x31: "requestOutOfRange",
	0x33: "securityAccessDenied",
	0x35: "invalidKey",
	0x36: "exceedNumberOfAttempts",
	0x37: "requiredTimeDelayNotExpired",
	0x78: "requestCorrectlyReceivedResponsePending",
}

// NegativeResponseError reports a UDS negative response: 0x7F, the echoed
// service ID, and a negative response code.
type NegativeResponseError struct {
	SID byte
	NRC byte
}

func (e *NegativeResponseError) Error() string {
	name, ok := nrcNames[e.NRC]
	if !ok {
		name = fmt.Sprintf("0x%02X", e.NRC)
	}
	return fmt.Sprintf("uds: negative response to service 0x%02X: %s", e.SID, name)
}

// checkNegative reports a *NegativeResponseError if resp is a well-formed
// 0x7F negative response frame; otherwise it returns nil.
func checkNegative(resp []byte) error {
	if len(resp) >= 3 && resp[0] == 0x7F {
		return &NegativeResponseError{SID: resp[1], NRC: resp[2]}
	}
	return nil
}
