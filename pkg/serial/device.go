package serial

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// pollInterval bounds a single underlying Read call so drainUntilIdle can
// poll cooperatively instead of blocking past the idle timeout.
const pollInterval = 50 * time.Millisecond

// DeviceStream is the real Stream backend: a serial device node opened via
// github.com/tarm/serial. Open/Close are idempotent.
type DeviceStream struct {
	Device string
	Opts   Options

	mu   sync.Mutex
	port *serial.Port
}

func NewDeviceStream(device string, opts Options) *DeviceStream {
	return &DeviceStream{Device: device, Opts: opts.withDefaults()}
}

func (d *DeviceStream) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port != nil {
		return nil
	}
	cfg := &serial.Config{
		Name:        d.Device,
		Baud:        int(d.Opts.Baud),
		ReadTimeout: pollInterval,
	}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return &DeviceError{Device: d.Device, Err: err}
	}
	d.port = port
	log.WithFields(log.Fields{"device": d.Device, "baud": d.Opts.Baud}).Info("serial: opened")
	return nil
}

func (d *DeviceStream) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	return err
}

func (d *DeviceStream) SendBytes(data []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil {
		return nil, &DeviceError{Device: d.Device, Err: fmt.Errorf("not open")}
	}
	var lastErr error
	attempts := int(d.Opts.Retries) + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		_, err := d.port.Write(data)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		log.WithError(err).Warnf("serial: write attempt %d/%d failed", attempt, attempts)
		if attempt < attempts {
			time.Sleep(d.Opts.Backoff * time.Duration(attempt))
		}
	}
	if lastErr != nil {
		return nil, &DeviceError{Device: d.Device, Err: lastErr}
	}
	return drainUntilIdle(d.port, d.Opts.Timeout, d.Opts.ReadSize), nil
}

func (d *DeviceStream) ReadAll() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil {
		return nil, &DeviceError{Device: d.Device, Err: fmt.Errorf("not open")}
	}
	return drainUntilIdle(d.port, d.Opts.Timeout, d.Opts.ReadSize), nil
}
