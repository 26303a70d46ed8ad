package capture

import (
	"os"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

func unixNanoUTC(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

// snapshotRecord is the CBOR wire shape for a Record: Data is kept as raw
// bytes (not hex) since CBOR has no need for the journal's text encoding.
type snapshotRecord struct {
	TimestampUnixNano int64  `cbor:"ts"`
	Direction         string `cbor:"dir"`
	Data              []byte `cbor:"data"`
}

// EncodeSnapshot renders records as a CBOR byte string, the companion
// sidecar format for the text journal.
func EncodeSnapshot(records []Record) ([]byte, error) {
	snap := make([]snapshotRecord, len(records))
	for i, r := range records {
		snap[i] = snapshotRecord{
			TimestampUnixNano: r.Timestamp.UnixNano(),
			Direction:         r.Direction,
			Data:              r.Data,
		}
	}
	return cbor.Marshal(snap)
}

// DecodeSnapshot parses a CBOR sidecar back into Records.
func DecodeSnapshot(data []byte) ([]Record, error) {
	var snap []snapshotRecord
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	records := make([]Record, len(snap))
	for i, s := range snap {
		records[i] = Record{
			Timestamp: unixNanoUTC(s.TimestampUnixNano),
			Direction: s.Direction,
			Data:      s.Data,
		}
	}
	return records, nil
}

// sidecarPath derives the CBOR sidecar path from a journal path by
// appending ".cbor"; a path already ending in ".cbor" is returned as is.
func sidecarPath(journalPath string) string {
	if strings.HasSuffix(journalPath, ".cbor") {
		return journalPath
	}
	return journalPath + ".cbor"
}

// Load reads records for journalPath, preferring its CBOR sidecar when
// present and falling back to parsing the text journal.
func Load(journalPath string) ([]Record, error) {
	if data, err := os.ReadFile(sidecarPath(journalPath)); err == nil {
		if records, derr := DecodeSnapshot(data); derr == nil {
			return records, nil
		}
	}

	f, err := os.Open(journalPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseJournal(f), nil
}

// Save writes both the text journal and its CBOR sidecar for records.
func Save(journalPath string, records []Record) error {
	f, err := os.Create(journalPath)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, r := range records {
		line := r.Timestamp.Format(journalTimeLayout) + "\t" + r.Direction + "\t" + r.HexData() + "\n"
		if _, err := f.WriteString(line); err != nil {
			return err
		}
	}

	snapshot, err := EncodeSnapshot(records)
	if err != nil {
		return err
	}
	return os.WriteFile(sidecarPath(journalPath), snapshot, 0o644)
}
