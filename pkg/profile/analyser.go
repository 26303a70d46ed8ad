package profile

import (
	"time"

	"github.com/flapvw/vlinker-go/pkg/capture"
)

// SeedCandidate is one seed-request/response pair the analyser found in a
// capture, together with the transforms proposed for it.
type SeedCandidate struct {
	Timestamp  time.Time
	Seed       []byte
	Transforms []Transform
}

// lookahead bounds how many records after a seed request the analyser will
// scan for the first non-empty response.
const lookahead = 5

// Analyse walks records looking for SecurityAccess (0x27) seed requests and
// proposes candidate key-derivation transforms for each seed found.
//
// A record whose first byte is 0x27 marks a seed request (an ELM-style
// adapter echoes the outbound command back on the same read stream this
// toolkit journals). The next non-empty record within the following five is
// taken as the response; seed bytes are response[2:] when it starts with
// 0x67 (the positive SecurityAccess response SID), otherwise response[1:].
// A response whose seed comes out empty is passed over and the window scan
// continues, since there is nothing to derive a key from.
func Analyse(records []capture.Record) []SeedCandidate {
	var out []SeedCandidate

	for i, rec := range records {
		if len(rec.Data) == 0 || rec.Data[0] != 0x27 {
			continue
		}

		end := i + 1 + lookahead
		if end > len(records) {
			end = len(records)
		}
		for j := i + 1; j < end; j++ {
			resp := records[j].Data
			if len(resp) == 0 {
				continue
			}

			var seed []byte
			switch {
			case resp[0] == 0x67 && len(resp) >= 2:
				seed = resp[2:]
			case len(resp) > 1:
				seed = resp[1:]
			default:
				continue
			}
			if len(seed) == 0 {
				continue
			}

			out = append(out, SeedCandidate{
				Timestamp:  rec.Timestamp,
				Seed:       append([]byte(nil), seed...),
				Transforms: CandidateTransforms(seed),
			})
			break
		}
	}

	return out
}
