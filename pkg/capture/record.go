// Package capture implements the traffic journal: a text-format recorder
// driven off a pkg/serial.Stream, a tolerant parser for that format, and a
// CBOR sidecar snapshot so a long capture can be reloaded without
// re-parsing text.
package capture

import "time"

// journalTimeLayout is the exact timestamp format of the text journal:
// UTC, second resolution, no zone suffix.
const journalTimeLayout = "2006-01-02T15:04:05"

// Record is one journal entry: a UTC timestamp, a single-character
// direction ("R" for everything this toolkit currently records), and the
// raw bytes observed on the wire.
type Record struct {
	Timestamp time.Time
	Direction string
	Data      []byte
}

// HexData renders Data as uppercase hex, the form written to the journal.
func (r Record) HexData() string {
	const hexDigits = "0123456789ABCDEF"
	out := make([]byte, len(r.Data)*2)
	for i, b := range r.Data {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0F]
	}
	return string(out)
}
