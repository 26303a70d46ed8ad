package connmgr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flapvw/vlinker-go/internal/iotest"
	"github.com/flapvw/vlinker-go/pkg/connmgr"
	"github.com/flapvw/vlinker-go/pkg/serial"
)

func newTestManager(mock *iotest.MockStream) *connmgr.Manager {
	return connmgr.NewWithFactory(func(device string, opts serial.Options) serial.Stream {
		return mock
	})
}

func TestConnectDisconnectLifecycle(t *testing.T) {
	mock := iotest.NewMockStream()
	mgr := newTestManager(mock)

	status := mgr.Status()
	assert.False(t, status.Connected)

	err := mgr.Connect("/dev/ttyUSB0", 0)
	require.NoError(t, err)

	status = mgr.Status()
	assert.True(t, status.Connected)
	assert.Equal(t, "/dev/ttyUSB0", status.Device)
	assert.NotEmpty(t, status.SessionID)

	err = mgr.Connect("/dev/ttyUSB0", 0)
	require.Error(t, err)
	var alreadyErr *connmgr.AlreadyConnectedError
	assert.ErrorAs(t, err, &alreadyErr)

	err = mgr.Disconnect()
	require.NoError(t, err)
	assert.False(t, mgr.Status().Connected)

	err = mgr.Disconnect()
	require.NoError(t, err)
}

func TestDispatchWithoutConnectionFails(t *testing.T) {
	mgr := newTestManager(iotest.NewMockStream())

	_, err := mgr.ReadDTC()
	var notConnected *connmgr.NotConnectedError
	assert.ErrorAs(t, err, &notConnected)

	_, err = mgr.ClearDTC()
	assert.ErrorAs(t, err, &notConnected)

	_, err = mgr.Scan()
	assert.ErrorAs(t, err, &notConnected)

	_, err = mgr.ReadMeasures([]string{"F190"})
	assert.ErrorAs(t, err, &notConnected)
}

func TestScanIssuesFiveProbesInOrder(t *testing.T) {
	mock := iotest.NewMockStream()
	mock.Enqueue([]byte("OK\r>"))
	mock.Enqueue([]byte("ELM327 v1.5\r>"))
	mock.Enqueue([]byte("OK\r>"))
	mock.Enqueue([]byte("41 00 BE 3F B8 11\r>"))
	mock.Enqueue([]byte{0x5E, 0x00})

	mgr := newTestManager(mock)
	require.NoError(t, mgr.Connect("/dev/ttyUSB0", 0))

	results, err := mgr.Scan()
	require.NoError(t, err)
	require.Len(t, results, 5)

	wantProbes := []string{"", "ATI", "AT Z", "0100", "02 3E 00"}
	for i, want := range wantProbes {
		assert.Equal(t, want, results[i].Probe)
	}
	assert.Equal(t, "5E00", results[4].RespHex)

	writes := mock.Writes()
	require.Len(t, writes, 5)
	assert.Equal(t, []byte("\r"), writes[0])
	assert.Equal(t, []byte("ATI\r"), writes[1])
	assert.Equal(t, []byte("AT Z\r"), writes[2])
	assert.Equal(t, []byte("0100\r"), writes[3])
	assert.Equal(t, []byte{0x02, 0x3E, 0x00}, writes[4])
}

func TestReadMeasuresDecodesEachPID(t *testing.T) {
	mock := iotest.NewMockStream()
	mock.Enqueue([]byte{0x62, 0xF1, 0x90, 'V', 'I', 'N', '1'})

	mgr := newTestManager(mock)
	require.NoError(t, mgr.Connect("/dev/ttyUSB0", 0))

	measures, err := mgr.ReadMeasures([]string{"F190"})
	require.NoError(t, err)
	require.Len(t, measures, 1)
	require.NoError(t, measures[0].Err)
	require.NotNil(t, measures[0].Value)
	assert.Equal(t, "0xF190", measures[0].Value.DIDHex)
}

func TestReadMeasuresRejectsInvalidPID(t *testing.T) {
	mock := iotest.NewMockStream()
	mgr := newTestManager(mock)
	require.NoError(t, mgr.Connect("/dev/ttyUSB0", 0))

	measures, err := mgr.ReadMeasures([]string{"ZZ"})
	require.NoError(t, err)
	require.Len(t, measures, 1)
	assert.Error(t, measures[0].Err)
}

func TestTransactFallsBackToRawSendOnTransportError(t *testing.T) {
	mock := iotest.NewMockStream()
	// Force the ISO-TP path to fail: the peer aborts the 12-byte transfer
	// with an overflow FC, so the manager re-sends the payload as a plain
	// write.
	mock.OnWrite = func(written []byte, m *iotest.MockStream) {
		if written[0]>>4 == 0x1 {
			m.Enqueue([]byte{0x32, 0x00, 0x00})
			return
		}
		m.Enqueue([]byte("NO DATA\r>"))
	}

	mgr := newTestManager(mock)
	require.NoError(t, mgr.Connect("/dev/ttyUSB0", 0))

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	resp, err := mgr.Transact(payload)
	require.NoError(t, err)
	assert.Equal(t, []byte("NO DATA\r>"), resp)

	writes := mock.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, byte(0x1), writes[0][0]>>4)
	assert.Equal(t, payload, writes[1])
}

func TestTransactWithoutConnectionFails(t *testing.T) {
	mgr := newTestManager(iotest.NewMockStream())
	_, err := mgr.Transact([]byte{0x3E, 0x00})
	var notConnected *connmgr.NotConnectedError
	assert.ErrorAs(t, err, &notConnected)
}
