package isotp

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/flapvw/vlinker-go/pkg/metrics"
	"github.com/flapvw/vlinker-go/pkg/serial"
)

// pollInterval bounds how often the engine re-polls an idle stream while
// waiting for more bytes within a transaction's overall deadline.
const pollInterval = 5 * time.Millisecond

// Options configures an Engine. Matches the enumerated options structure
// from the design notes: mtu and wait_retries live here, baud/retries/
// backoff belong to the underlying pkg/serial.Options.
type Options struct {
	MTU         int           // frame size, default 8
	Timeout     time.Duration // overall per-transaction deadline, default 1-3s
	WaitRetries uint8         // consecutive WAIT frames tolerated, default 5
}

func DefaultOptions() Options {
	return Options{MTU: DefaultMTU, Timeout: 2 * time.Second, WaitRetries: 5}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MTU == 0 {
		o.MTU = d.MTU
	}
	if o.Timeout == 0 {
		o.Timeout = d.Timeout
	}
	if o.WaitRetries == 0 {
		o.WaitRetries = d.WaitRetries
	}
	return o
}

// Engine drives a single ISO-TP transaction at a time over a Stream. It
// holds no session state between calls: each Transact is self-contained,
// consistent with the single-connection, serialized concurrency model of
// the wider module (the caller, typically pkg/connmgr, is responsible for
// not overlapping calls on the same Stream).
type Engine struct {
	Stream serial.Stream
	Opts   Options
}

func NewEngine(s serial.Stream, opts Options) *Engine {
	return &Engine{Stream: s, Opts: opts.withDefaults()}
}

// Transact segments payload, drives the sender state machine (IDLE ->
// AWAIT_FC -> TX_BLOCK/WAIT -> RX) to completion, and returns the
// reassembled response. timeout, if non-zero, overrides e.Opts.Timeout for
// this call only.
func (e *Engine) Transact(payload []byte, timeout time.Duration) (resp []byte, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			if terr, ok := err.(*TransportError); ok {
				outcome = terr.Kind.String()
			}
		}
		metrics.ObserveTransaction(outcome, time.Since(start))
	}()

	mtu := e.Opts.MTU
	if timeout == 0 {
		timeout = e.Opts.Timeout
	}
	deadline := time.Now().Add(timeout)

	if len(payload) <= mtu-1 {
		sf := make([]byte, mtu)
		sf[0] = pciSF<<4 | byte(len(payload))
		copy(sf[1:], payload)
		resp, err := e.Stream.SendBytes(sf)
		if err != nil {
			return nil, newTransportError(IOError, err.Error())
		}
		return e.receive(resp, deadline)
	}

	n := len(payload)
	if n > MaxPayload {
		return nil, newTransportError(IOError, fmt.Sprintf("payload too long: %d > %d", n, MaxPayload))
	}

	ff := make([]byte, mtu)
	ff[0] = pciFF<<4 | byte(n>>8)
	ff[1] = byte(n & 0xFF)
	firstChunk := mtu - 2
	copy(ff[2:], payload[:firstChunk])
	remaining := payload[firstChunk:]

	resp, err = e.Stream.SendBytes(ff)
	if err != nil {
		return nil, newTransportError(IOError, err.Error())
	}
	buf := append([]byte(nil), resp...)

	seq := byte(1)
	waitCount := 0
	for len(remaining) > 0 {
		fs, bs, stMinRaw, rest, ferr := e.awaitFlowControl(buf, deadline)
		if ferr != nil {
			return nil, ferr
		}
		buf = rest

		switch fs {
		case FlowOverflow:
			return nil, newTransportError(Overflow, "responder overflow / abort")

		case FlowWait:
			waitCount++
			if waitCount > int(e.Opts.WaitRetries) {
				return nil, newTransportError(WaitExhausted, "WAIT exceeded retries")
			}
			wait := decodeSTmin(stMinRaw)
			if wait == 0 {
				wait = 50 * time.Millisecond
			}
			time.Sleep(wait)
			more, rerr := e.Stream.ReadAll()
			if rerr != nil {
				return nil, newTransportError(IOError, rerr.Error())
			}
			buf = append(buf, more...)
			continue

		case FlowCTS:
			waitCount = 0
			stMin := decodeSTmin(stMinRaw)
			var sentInBlock byte
			for len(remaining) > 0 && (bs == 0 || sentInBlock < bs) {
				cf := make([]byte, mtu)
				cf[0] = pciCF<<4 | (seq & 0x0F)
				chunkLen := mtu - 1
				if chunkLen > len(remaining) {
					chunkLen = len(remaining)
				}
				copy(cf[1:], remaining[:chunkLen])
				remaining = remaining[chunkLen:]
				seq = (seq + 1) % 16
				sentInBlock++

				r, serr := e.Stream.SendBytes(cf)
				if serr != nil {
					return nil, newTransportError(IOError, serr.Error())
				}
				buf = append(buf, r...)
				if len(remaining) > 0 && stMin > 0 {
					time.Sleep(stMin)
				}
			}

		default:
			log.Warnf("isotp: unexpected flow status 0x%x, ignoring it and awaiting the next flow control", fs)
		}
	}

	return e.receive(buf, deadline)
}

// fill grows buf until it holds at least need bytes, the deadline passes
// (returning a TransportError of kind), or the stream errors.
func (e *Engine) fill(buf []byte, need int, deadline time.Time, kind TransportErrorKind, msg string) ([]byte, error) {
	for len(buf) < need {
		if time.Now().After(deadline) {
			return nil, newTransportError(kind, msg)
		}
		more, err := e.Stream.ReadAll()
		if err != nil {
			return nil, newTransportError(IOError, err.Error())
		}
		if len(more) == 0 {
			time.Sleep(pollInterval)
			continue
		}
		buf = append(buf, more...)
	}
	return buf, nil
}

// awaitFlowControl scans buf for a complete 3-byte FC frame (skipping
// leading garbage, if any), growing buf from the stream as needed. A
// dangling 1-2 byte prefix of a 3x PCI byte is treated as an incomplete FC
// and waited out rather than misread as something else.
func (e *Engine) awaitFlowControl(buf []byte, deadline time.Time) (fs, bs, stMin byte, rest []byte, err error) {
	for {
		idx := -1
		for i, b := range buf {
			if b>>4 == pciFC {
				idx = i
				break
			}
		}
		if idx >= 0 && len(buf)-idx >= 3 {
			fs, bs, stMin = parseFlowControl(buf[idx : idx+3])
			return fs, bs, stMin, buf[idx+3:], nil
		}
		if time.Now().After(deadline) {
			return 0, 0, 0, buf, newTransportError(NoFlowControl, "no flow control response")
		}
		more, rerr := e.Stream.ReadAll()
		if rerr != nil {
			return 0, 0, 0, buf, newTransportError(IOError, rerr.Error())
		}
		if len(more) == 0 {
			time.Sleep(pollInterval)
			continue
		}
		buf = append(buf, more...)
	}
}

// receive implements the receiver procedure: skip any trailing FC frames
// the peer left on the wire, then dispatch on the first real PCI nibble.
func (e *Engine) receive(buf []byte, deadline time.Time) ([]byte, error) {
	mtu := e.Opts.MTU

	for {
		idx := 0
		for idx < len(buf) && buf[idx]>>4 == pciFC && len(buf)-idx >= 3 {
			idx += 3
		}
		if idx < len(buf) && buf[idx]>>4 == pciFC {
			// Dangling 1-2 byte prefix of an FC: wait for the rest
			// rather than misreading the truncated byte.
			var err error
			buf, err = e.fill(buf, idx+3, deadline, IncompleteFirstFrame, "truncated flow control in response")
			if err != nil {
				return nil, err
			}
			continue
		}
		if idx < len(buf) {
			buf = buf[idx:]
			break
		}
		var err error
		buf, err = e.fill(buf, len(buf)+1, deadline, IncompleteFirstFrame, "timed out waiting for response")
		if err != nil {
			return nil, err
		}
	}

	switch buf[0] >> 4 {
	case pciSF:
		length := int(buf[0] & 0x0F)
		var err error
		buf, err = e.fill(buf, 1+length, deadline, IncompleteFirstFrame, "SF response truncated")
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), buf[1:1+length]...), nil

	case pciFF:
		var err error
		buf, err = e.fill(buf, 2, deadline, IncompleteFirstFrame, "FF response truncated")
		if err != nil {
			return nil, err
		}
		length := (int(buf[0]&0x0F) << 8) | int(buf[1])
		firstChunk := mtu - 2

		buf, err = e.fill(buf, 2+firstChunk, deadline, IncompleteFirstFrame, "FF initial payload truncated")
		if err != nil {
			return nil, err
		}
		assembled := make([]byte, 0, length)
		assembled = append(assembled, buf[2:2+firstChunk]...)
		pos := 2 + firstChunk

		for len(assembled) < length {
			buf, err = e.fill(buf, pos+1, deadline, IncompleteFirstFrame, "incomplete multi-frame response")
			if err != nil {
				return nil, err
			}
			switch buf[pos] >> 4 {
			case pciCF:
				chunkLen := mtu - 1
				buf, err = e.fill(buf, pos+1+chunkLen, deadline, IncompleteFirstFrame, "incomplete CF in response")
				if err != nil {
					return nil, err
				}
				assembled = append(assembled, buf[pos+1:pos+1+chunkLen]...)
				pos += 1 + chunkLen
			case pciFC:
				buf, err = e.fill(buf, pos+3, deadline, IncompleteFirstFrame, "incomplete trailing FC in response")
				if err != nil {
					return nil, err
				}
				pos += 3
			default:
				assembled = append(assembled, buf[pos:]...)
				if len(assembled) > length {
					assembled = assembled[:length]
				}
				return assembled, nil
			}
		}
		if len(assembled) > length {
			assembled = assembled[:length]
		}
		return assembled, nil

	default:
		return buf, nil
	}
}
