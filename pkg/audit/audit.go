// Package audit is the fire-and-forget journal for destructive operations:
// entries go over a buffered channel to a dedicated writer goroutine, and a
// full channel or failed write drops the entry rather than blocking or
// failing the operation being audited.
package audit

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Entry is one audit record, written as a JSON line.
type Entry struct {
	TS      int64          `json:"ts"`
	Action  string         `json:"action"`
	Details map[string]any `json:"details,omitempty"`
}

// Writer owns the channel and the goroutine draining it. Close writes out
// entries already queued, then stops the goroutine; entries recorded after
// Close are dropped.
type Writer struct {
	ch       chan Entry
	done     chan struct{}
	closeOne sync.Once
}

// NewWriter starts a writer draining into w. The channel holds up to 64
// pending entries; beyond that, Record drops.
func NewWriter(w io.Writer) *Writer {
	a := &Writer{
		ch:   make(chan Entry, 64),
		done: make(chan struct{}),
	}
	go a.run(w)
	return a
}

func (a *Writer) run(w io.Writer) {
	defer close(a.done)
	enc := json.NewEncoder(w)
	for entry := range a.ch {
		if err := enc.Encode(entry); err != nil {
			log.WithError(err).Debug("audit: dropped entry")
		}
	}
}

// Record enqueues an entry. It never blocks and never fails: a full queue
// or closed writer drops the entry.
func (a *Writer) Record(action string, details map[string]any) {
	entry := Entry{TS: time.Now().Unix(), Action: action, Details: details}
	defer func() { recover() }() // send on closed channel after Close
	select {
	case a.ch <- entry:
	default:
	}
}

// Close stops the writer goroutine after draining what is already queued.
func (a *Writer) Close() {
	a.closeOne.Do(func() {
		close(a.ch)
		<-a.done
	})
}
