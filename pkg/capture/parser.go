package capture

import (
	"bufio"
	"encoding/hex"
	"io"
	"strings"
	"time"
)

// ParseJournal reads the tab-separated text journal format (UTC ISO8601,
// direction, uppercase hex) from r. Lines that don't split into exactly
// three fields, or whose timestamp or hex payload fails to parse, are
// silently skipped rather than aborting the whole read.
func ParseJournal(r io.Reader) []Record {
	var records []Record
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			continue
		}
		ts, err := time.Parse(journalTimeLayout, fields[0])
		if err != nil {
			// Zone-suffixed timestamps from other tooling are accepted too.
			ts, err = time.Parse(time.RFC3339Nano, fields[0])
			if err != nil {
				continue
			}
		}
		ts = ts.UTC()
		data, err := hex.DecodeString(fields[2])
		if err != nil {
			continue
		}
		records = append(records, Record{Timestamp: ts, Direction: fields[1], Data: data})
	}
	return records
}
