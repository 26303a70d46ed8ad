package serial

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeReader yields chunks then EOF-free trickles (0, nil) to simulate idle.
type fakeReader struct {
	chunks [][]byte
	i      int
}

func (f *fakeReader) Read(p []byte) (int, error) {
	if f.i < len(f.chunks) {
		n := copy(p, f.chunks[f.i])
		f.i++
		return n, nil
	}
	return 0, nil
}

func TestDrainUntilIdleCollectsUntilQuiet(t *testing.T) {
	r := &fakeReader{chunks: [][]byte{[]byte("AB"), []byte("CD")}}
	out := drainUntilIdle(r, 60*time.Millisecond, 64)
	assert.Equal(t, []byte("ABCD"), out)
}

type errReader struct{ err error }

func (e *errReader) Read(p []byte) (int, error) { return 0, e.err }

func TestDrainUntilIdleStopsOnError(t *testing.T) {
	out := drainUntilIdle(&errReader{err: io.ErrClosedPipe}, 100*time.Millisecond, 64)
	assert.Empty(t, out)
}

func TestSendASCIILineAppendsCR(t *testing.T) {
	s := &recordingStream{}
	_, err := SendASCIILine(s, "ATI")
	assert.NoError(t, err)
	assert.Equal(t, "ATI\r", string(s.lastSend))
}

func TestSendASCIILineLeavesExistingCR(t *testing.T) {
	s := &recordingStream{}
	_, err := SendASCIILine(s, "ATI\r")
	assert.NoError(t, err)
	assert.Equal(t, "ATI\r", string(s.lastSend))
}

func TestSendHexDecodesAndStripsWhitespace(t *testing.T) {
	s := &recordingStream{}
	_, err := SendHex(s, "01 02\r\n0A")
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x0A}, s.lastSend)
}

func TestSendHexRejectsOddLength(t *testing.T) {
	s := &recordingStream{}
	_, err := SendHex(s, "010")
	assert.Error(t, err)
}

type recordingStream struct{ lastSend []byte }

func (r *recordingStream) Open() error  { return nil }
func (r *recordingStream) Close() error { return nil }
func (r *recordingStream) SendBytes(data []byte) ([]byte, error) {
	r.lastSend = data
	return nil, nil
}
func (r *recordingStream) ReadAll() ([]byte, error) { return nil, nil }
