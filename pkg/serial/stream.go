package serial

import (
	"encoding/hex"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Stream is the minimal capability set the rest of this module needs from a
// byte-oriented link: open it, close it, write a block and drain whatever
// comes back, or just drain without writing. The ISO-TP engine (pkg/isotp)
// is built against this interface rather than a concrete serial port so
// that tests can substitute an in-memory fake.
type Stream interface {
	Open() error
	Close() error
	// SendBytes writes data then performs a bounded read-drain, returning
	// everything read before the link went idle.
	SendBytes(data []byte) ([]byte, error)
	// ReadAll performs the same bounded read-drain without writing first.
	ReadAll() ([]byte, error)
}

// SendASCIILine appends a trailing '\r' if absent and sends it as bytes.
// Mirrors ELM-327 adapters, which terminate commands on carriage return.
func SendASCIILine(s Stream, line string) ([]byte, error) {
	if !strings.HasSuffix(line, "\r") {
		line += "\r"
	}
	return s.SendBytes([]byte(line))
}

// SendHex strips whitespace from hexStr, decodes it as hex pairs, and sends
// the resulting bytes.
func SendHex(s Stream, hexStr string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, hexStr)
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, &DeviceError{Err: err}
	}
	return s.SendBytes(data)
}

// drainReader is the subset of io needed to perform a bounded read-drain.
// A single Read call is expected to return promptly (bounded by the
// underlying port's configured read timeout) with whatever bytes are
// currently available, including zero bytes when idle.
type drainReader interface {
	Read(p []byte) (int, error)
}

// drainUntilIdle repeatedly reads from r, resetting an idle timer each time
// data arrives, until idle for timeout or the read errors out. Mid-drain
// read errors break the loop and return what was buffered so far, per the
// documented failure mode.
func drainUntilIdle(r drainReader, timeout time.Duration, chunkSize int) []byte {
	var out []byte
	buf := make([]byte, chunkSize)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		n, err := r.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
			deadline = time.Now().Add(timeout)
			continue
		}
		if err != nil {
			log.WithError(err).Debug("serial: read-drain stopped early")
			break
		}
	}
	return out
}
