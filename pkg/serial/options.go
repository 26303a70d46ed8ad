package serial

import "time"

// Options configures a Stream's timing and retry behaviour. Field names and
// defaults follow the enumerated options structure from the design notes:
// baud, timeout, retries, backoff.
type Options struct {
	Baud     uint32        // baud rate, default 115200
	Timeout  time.Duration // read-drain idle timeout, default 1-3s
	Retries  uint8         // write retries after a failed first attempt, default 1
	Backoff  time.Duration // linear backoff unit between retries, default 100ms
	ReadSize int           // chunk size per drain read, default 4096
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Baud:     115200,
		Timeout:  2 * time.Second,
		Retries:  1,
		Backoff:  100 * time.Millisecond,
		ReadSize: 4096,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Baud == 0 {
		o.Baud = d.Baud
	}
	if o.Timeout == 0 {
		o.Timeout = d.Timeout
	}
	if o.Retries == 0 {
		o.Retries = d.Retries
	}
	if o.Backoff == 0 {
		o.Backoff = d.Backoff
	}
	if o.ReadSize == 0 {
		o.ReadSize = d.ReadSize
	}
	return o
}
