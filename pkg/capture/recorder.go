package capture

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/flapvw/vlinker-go/pkg/serial"
)

// pollInterval bounds how often Run re-polls an idle stream between drains.
const pollInterval = 50 * time.Millisecond

// Recorder drains a pkg/serial.Stream and journals every non-empty read.
// Journal writes are best-effort: a write failure is logged and the loop
// continues rather than aborting the capture, matching the audit-logging
// propagation policy for this toolkit.
type Recorder struct {
	Stream serial.Stream
	Writer io.Writer

	mu      sync.Mutex
	records []Record
}

func NewRecorder(stream serial.Stream, w io.Writer) *Recorder {
	return &Recorder{Stream: stream, Writer: w}
}

// Run loops reading from Stream until ctx is done, appending a Record and a
// journal line for every non-empty drain.
func (r *Recorder) Run(ctx context.Context) error {
	log.Info("capture: recorder started")
	defer log.Info("capture: recorder stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		data, err := r.Stream.ReadAll()
		if err != nil {
			return fmt.Errorf("capture: read failed: %w", err)
		}
		if len(data) == 0 {
			time.Sleep(pollInterval)
			continue
		}

		rec := Record{Timestamp: time.Now().UTC(), Direction: "R", Data: data}
		r.mu.Lock()
		r.records = append(r.records, rec)
		r.mu.Unlock()

		line := fmt.Sprintf("%s\t%s\t%s\n", rec.Timestamp.Format(journalTimeLayout), rec.Direction, rec.HexData())
		if _, werr := io.WriteString(r.Writer, line); werr != nil {
			log.WithError(werr).Warn("capture: failed to write journal line")
		}
	}
}

// Records returns every record captured so far, in order.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}
