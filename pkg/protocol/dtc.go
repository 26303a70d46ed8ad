// Package protocol decodes OBD-II and UDS response payloads: mode 03 DTC
// lists, UDS ReadDTCInformation records, Data Identifier values, and the
// ELM-327 ASCII-hex echo normalisation they all build on.
package protocol

import (
	"bytes"
	"fmt"
)

// DTC is a decoded OBD-II diagnostic trouble code, e.g. "P0133".
type DTC struct {
	Code string
}

var dtcLetters = [4]byte{'P', 'C', 'B', 'U'}

func decodeDTCPair(b1, b2 byte) DTC {
	letter := dtcLetters[b1>>6]
	body := (uint16(b1&0x3F) << 8) | uint16(b2)
	return DTC{Code: fmt.Sprintf("%c%04X", letter, body)}
}

// ParseMode03 decodes an OBD-II mode 03 response into its DTC list. If resp
// looks like ELM-327 ASCII text it is normalised with StripELMEcho first.
// Scanning starts just after the first 0x43 service-echo byte, or at
// offset 0 if none is present, and stops at the first (0,0) pair.
func ParseMode03(resp []byte) []DTC {
	data := resp
	if isAllPrintableASCII(resp) {
		data = StripELMEcho(resp)
	}

	start := 0
	if idx := bytes.IndexByte(data, 0x43); idx >= 0 {
		start = idx + 1
	}

	var dtcs []DTC
	for i := start; i+1 < len(data); i += 2 {
		b1, b2 := data[i], data[i+1]
		if b1 == 0 && b2 == 0 {
			break
		}
		dtcs = append(dtcs, decodeDTCPair(b1, b2))
	}
	return dtcs
}

// UDSDTCRecord is one entry from a ReadDTCInformation (0x19 sub-function
// 0x02) positive response: the 3 raw DTC bytes plus an optional status
// byte, when one followed it in the response.
type UDSDTCRecord struct {
	Raw    []byte
	Status *byte
}

// ParseUDSReadDTC scans resp for the 0x59 positive-response byte and reads
// 3-byte DTC records after it. Whenever at least one byte remains after a
// record, it is consumed as that record's status byte before the next
// record is read.
func ParseUDSReadDTC(resp []byte) []UDSDTCRecord {
	idx := bytes.IndexByte(resp, 0x59)
	if idx < 0 {
		return nil
	}
	i := idx + 1
	var records []UDSDTCRecord
	for i+3 <= len(resp) {
		raw := append([]byte(nil), resp[i:i+3]...)
		i += 3
		rec := UDSDTCRecord{Raw: raw}
		if i < len(resp) {
			status := resp[i]
			rec.Status = &status
			i++
		}
		records = append(records, rec)
	}
	return records
}
