package uds_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flapvw/vlinker-go/internal/iotest"
	"github.com/flapvw/vlinker-go/pkg/isotp"
	"github.com/flapvw/vlinker-go/pkg/uds"
)

func newClient(mock *iotest.MockStream) *uds.Client {
	eng := isotp.NewEngine(mock, isotp.Options{MTU: 8, Timeout: time.Second, WaitRetries: 5})
	return uds.NewClient(eng)
}

func TestTesterPresent(t *testing.T) {
	mock := iotest.NewMockStream()
	mock.Enqueue([]byte{0x02, 0x7E, 0x00})

	c := newClient(mock)
	resp, err := c.TesterPresent()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7E, 0x00}, resp)

	writes := mock.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, []byte{0x02, 0x3E, 0x00, 0, 0, 0, 0, 0}, writes[0])
}

func TestTesterPresentNegativeResponse(t *testing.T) {
	mock := iotest.NewMockStream()
	mock.Enqueue([]byte{0x03, 0x7F, 0x3E, 0x11})

	c := newClient(mock)
	_, err := c.TesterPresent()
	require.Error(t, err)
	var nerr *uds.NegativeResponseError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, byte(0x3E), nerr.SID)
	assert.Equal(t, byte(0x11), nerr.NRC)
}

func TestReadDTCUsesLeadingLengthByteAttemptWhenNonEmpty(t *testing.T) {
	mock := iotest.NewMockStream()
	// SF frame (PCI len=5) carrying payload 59 02 01 33 08.
	mock.Enqueue([]byte{0x05, 0x59, 0x02, 0x01, 0x33, 0x08})

	c := newClient(mock)
	resp, err := c.ReadDTC()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x59, 0x02, 0x01, 0x33, 0x08}, resp)

	writes := mock.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, []byte{0x03, 0x02, 0x19, 0x02, 0, 0, 0, 0}, writes[0])
}

func TestReadDTCFallsBackWhenFirstAttemptReturnsNothing(t *testing.T) {
	mock := iotest.NewMockStream()
	// The peer stays silent on the first attempt; only the clean 19 02
	// retry gets an answer.
	calls := 0
	mock.OnWrite = func(written []byte, m *iotest.MockStream) {
		calls++
		if calls == 2 {
			m.Enqueue([]byte{0x05, 0x59, 0x02, 0x01, 0x33, 0x08})
		}
	}

	eng := isotp.NewEngine(mock, isotp.Options{MTU: 8, Timeout: 20 * time.Millisecond, WaitRetries: 5})
	c := uds.NewClient(eng)
	resp, err := c.ReadDTC()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x59, 0x02, 0x01, 0x33, 0x08}, resp)

	writes := mock.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, []byte{0x03, 0x02, 0x19, 0x02, 0, 0, 0, 0}, writes[0])
	assert.Equal(t, []byte{0x02, 0x19, 0x02, 0, 0, 0, 0, 0}, writes[1])
}

func TestClearDTC(t *testing.T) {
	mock := iotest.NewMockStream()
	mock.Enqueue([]byte{0x02, 0x54, 0x00})

	c := newClient(mock)
	resp, err := c.ClearDTC()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x54, 0x00}, resp)
}

func TestReadDID(t *testing.T) {
	mock := iotest.NewMockStream()
	// SF frame: PCI 0x0F (len=15), payload 0x62 0xF1 0x90 "VEHICLEVIN12".
	payload := append([]byte{0x62, 0xF1, 0x90}, []byte("VEHICLEVIN12")...)
	mock.Enqueue(append([]byte{byte(len(payload))}, payload...))

	c := newClient(mock)
	v, err := c.ReadDID(0xF190)
	require.NoError(t, err)
	assert.Equal(t, "0xF190", v.DIDHex)
	require.NotNil(t, v.ASCII)
	assert.Equal(t, "VEHICLEVIN12", *v.ASCII)

	writes := mock.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, []byte{0x02, 0x22, 0xF1, 0x90, 0, 0, 0, 0}, writes[0])
}

func TestSecurityAccessRequestSeedStripsELMEcho(t *testing.T) {
	mock := iotest.NewMockStream()
	mock.Enqueue([]byte("6701AABBCCDD\r>"))

	c := newClient(mock)
	seed, err := c.SecurityAccessRequestSeed(0x01)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x67, 0x01, 0xAA, 0xBB, 0xCC, 0xDD}, seed)

	writes := mock.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, []byte{0x27, 0x01}, writes[0])
}

func TestSecurityAccessSendKey(t *testing.T) {
	mock := iotest.NewMockStream()
	mock.Enqueue([]byte("6702\r>"))

	c := newClient(mock)
	resp, err := c.SecurityAccessSendKey(0x02, []byte{0x11, 0x22})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x67, 0x02}, resp)

	writes := mock.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, []byte{0x27, 0x02, 0x11, 0x22}, writes[0])
}

func TestWriteDataByIdentifierDryRun(t *testing.T) {
	c := newClient(iotest.NewMockStream())
	hexStr, resp, err := c.WriteDataByIdentifier(0xF190, []byte{0x01, 0x23}, true)
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, "2EF1900123", hexStr)
}

func TestWriteDataByIdentifierSends(t *testing.T) {
	mock := iotest.NewMockStream()
	mock.Enqueue([]byte{0x03, 0x6E, 0xF1, 0x90})

	c := newClient(mock)
	hexStr, resp, err := c.WriteDataByIdentifier(0xF190, []byte{0x01, 0x23}, false)
	require.NoError(t, err)
	assert.Equal(t, "", hexStr)
	assert.Equal(t, []byte{0x6E, 0xF1, 0x90}, resp)
}

func TestSecurityAccessWithProfileManualMode(t *testing.T) {
	mock := iotest.NewMockStream()
	mock.Enqueue([]byte("6701AB\r>"))

	c := newClient(mock)
	result, err := c.SecurityAccessWithProfile(0x01, 0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, "manual", result.Mode)
	assert.Equal(t, []byte{0x67, 0x01, 0xAB}, result.Seed)
	assert.Nil(t, result.Response)
}

func TestSecurityAccessWithProfileAutoMode(t *testing.T) {
	mock := iotest.NewMockStream()
	mock.Enqueue([]byte("6701AA\r>"))
	mock.Enqueue([]byte("6702\r>"))

	c := newClient(mock)
	xorFF := func(seed []byte) []byte {
		out := make([]byte, len(seed))
		for i, b := range seed {
			out[i] = b ^ 0xFF
		}
		return out
	}
	result, err := c.SecurityAccessWithProfile(0x01, 0x02, xorFF)
	require.NoError(t, err)
	assert.Equal(t, "auto", result.Mode)
	assert.Equal(t, []byte{0x67, 0x02}, result.Response)
	assert.Equal(t, []byte{0x98, 0xFE, 0x55}, result.Key)
}
