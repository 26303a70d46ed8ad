// Package isotp implements an ISO 15765-2 (ISO-TP) transport endpoint over
// an abstract byte stream (pkg/serial.Stream): segmentation/reassembly of
// payloads into Single/First/Consecutive frames, Flow Control handling
// (CTS/WAIT/OVERFLOW, block size, separation time), and a pure frame
// simulator used by tests and the sim API.
package isotp

import "time"

// PCI nibble values, the upper 4 bits of an ISO-TP frame's first byte.
const (
	pciSF byte = 0x0 // Single Frame
	pciFF byte = 0x1 // First Frame
	pciCF byte = 0x2 // Consecutive Frame
	pciFC byte = 0x3 // Flow Control
)

// Flow Control status values, the lower nibble of an FC frame's first byte.
const (
	FlowCTS      byte = 0x0 // Clear To Send
	FlowWait     byte = 0x1 // pause, retry
	FlowOverflow byte = 0x2 // abort, buffer overflow
)

// DefaultMTU is the canonical CAN-sized frame used when none is specified.
const DefaultMTU = 8

// MaxPayload is the largest payload a 12-bit FF length field can declare.
const MaxPayload = 4095

// decodeSTmin converts the wire encoding of a minimum separation time into
// a duration, per ISO 15765-2: 0x00-0x7F are milliseconds, 0xF1-0xF9 are
// tenths of a millisecond (100us steps); anything else is treated as 0.
func decodeSTmin(v byte) time.Duration {
	switch {
	case v <= 0x7F:
		return time.Duration(v) * time.Millisecond
	case v >= 0xF1 && v <= 0xF9:
		return time.Duration(int(v)-0xF0) * 100 * time.Microsecond
	default:
		return 0
	}
}

// flowControlFrame builds a 3-byte FC frame: [0x30|fs, bs, stMin].
func flowControlFrame(fs, bs, stMin byte) []byte {
	return []byte{pciFC<<4 | fs, bs, stMin}
}

// parseFlowControl decodes a 3-byte FC frame into (status, blockSize, STmin).
// The caller must have already verified the PCI nibble is pciFC.
func parseFlowControl(b []byte) (fs, bs, stMinRaw byte) {
	return b[0] & 0x0F, b[1], b[2]
}
