package connmgr

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/xid"

	"github.com/flapvw/vlinker-go/pkg/isotp"
	"github.com/flapvw/vlinker-go/pkg/protocol"
	"github.com/flapvw/vlinker-go/pkg/serial"
	"github.com/flapvw/vlinker-go/pkg/uds"
)

// streamFactory builds the Stream a Connect call opens. Tests override it to
// inject an in-memory fake instead of a real device node.
type streamFactory func(device string, opts serial.Options) serial.Stream

func defaultStreamFactory(device string, opts serial.Options) serial.Stream {
	return serial.NewDeviceStream(device, opts)
}

// Status is the shape connmgr reports for the live connection.
type Status struct {
	Connected bool
	Device    string
	SessionID string
}

// ProbeResult is one scan probe's outcome: the probe sent, and the response
// rendered both ways. A failed probe carries an empty RespHex and an
// error message in RespASCII rather than aborting the scan.
type ProbeResult struct {
	Probe     string
	RespHex   string
	RespASCII string
}

// Manager is the mutex-guarded singleton protecting a single optional live
// connection: at most one serial.Stream, and the isotp.Engine/uds.Client
// built on top of it, open at any time.
type Manager struct {
	mu            sync.Mutex
	streamFactory streamFactory

	stream    serial.Stream
	device    string
	sessionID string
	engine    *isotp.Engine
	client    *uds.Client
}

// New returns a Manager that opens real device streams. Use NewWithFactory
// in tests to substitute an in-memory Stream.
func New() *Manager {
	return &Manager{streamFactory: defaultStreamFactory}
}

// NewWithFactory returns a Manager that opens streams via factory, for
// tests that need to observe or script the underlying link.
func NewWithFactory(factory streamFactory) *Manager {
	return &Manager{streamFactory: factory}
}

// Connect opens device at baud (0 uses serial.DefaultOptions' baud) and
// builds the isotp/uds stack on top of it. It fails if a connection is
// already open.
func (m *Manager) Connect(device string, baud uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		return &AlreadyConnectedError{Device: m.device}
	}

	opts := serial.DefaultOptions()
	if baud != 0 {
		opts.Baud = baud
	}

	stream := m.streamFactory(device, opts)
	if err := stream.Open(); err != nil {
		return err
	}

	engine := isotp.NewEngine(stream, isotp.DefaultOptions())
	m.stream = stream
	m.device = device
	m.sessionID = xid.New().String()
	m.engine = engine
	m.client = uds.NewClient(engine)
	return nil
}

// Disconnect closes the live connection and clears all held state. It is a
// no-op if nothing is connected.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return nil
	}
	err := m.stream.Close()
	m.stream = nil
	m.device = ""
	m.sessionID = ""
	m.engine = nil
	m.client = nil
	return err
}

// Status reports whether a connection is held, and its device/session id.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{Connected: m.stream != nil, Device: m.device, SessionID: m.sessionID}
}

// requireClient returns the held uds.Client, or NotConnectedError if none is held.
// Callers must hold m.mu.
func (m *Manager) requireClient() (*uds.Client, error) {
	if m.client == nil {
		return nil, &NotConnectedError{}
	}
	return m.client, nil
}

var scanProbes = []string{"", "ATI", "AT Z", "0100", "02 3E 00"}

// Scan issues the five fixed probes in order over the held stream and
// collects a ProbeResult for each. A probe that errors is recorded with an
// empty RespHex and the error in RespASCII; Scan itself never returns an
// error for an individual probe failure. The lock is held for the whole
// probe sequence so concurrent callers cannot interleave on the wire.
func (m *Manager) Scan() ([]ProbeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil, &NotConnectedError{}
	}

	results := make([]ProbeResult, 0, len(scanProbes))
	for _, probe := range scanProbes {
		results = append(results, runProbe(m.stream, probe))
	}
	return results, nil
}

func runProbe(stream serial.Stream, probe string) ProbeResult {
	resp, err := sendProbe(stream, probe)
	if err != nil {
		return ProbeResult{Probe: probe, RespASCII: fmt.Sprintf("error: %v", err)}
	}
	return ProbeResult{
		Probe:     probe,
		RespHex:   strings.ToUpper(hex.EncodeToString(resp)),
		RespASCII: string(resp),
	}
}

// sendProbe dispatches a probe string. "02 3E 00" is the one raw-byte probe
// (a bare TesterPresent frame); everything else is an ASCII adapter command
// terminated on carriage return, including the empty-newline probe.
func sendProbe(stream serial.Stream, probe string) ([]byte, error) {
	if probe == "02 3E 00" {
		return stream.SendBytes([]byte{0x02, 0x3E, 0x00})
	}
	return serial.SendASCIILine(stream, probe)
}

// Transact runs one raw ISO-TP transaction through the held engine. If the
// ISO-TP path fails, the payload is re-sent once as a plain write over the
// stream, since some ASCII-mode adapters answer a bare service request where the
// framed one stalls.
func (m *Manager) Transact(payload []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine == nil {
		return nil, &NotConnectedError{}
	}
	resp, err := m.engine.Transact(payload, 0)
	if err == nil {
		return resp, nil
	}
	return m.stream.SendBytes(payload)
}

// ReadDTC dispatches to the held uds.Client.
func (m *Manager) ReadDTC() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	client, err := m.requireClient()
	if err != nil {
		return nil, err
	}
	return client.ReadDTC()
}

// ClearDTC dispatches to the held uds.Client.
func (m *Manager) ClearDTC() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	client, err := m.requireClient()
	if err != nil {
		return nil, err
	}
	return client.ClearDTC()
}

// Measure is one ReadMeasures result: the PID requested and its decoded
// DID value, or an error if that one PID's read failed.
type Measure struct {
	PID   string
	Value *protocol.DIDValue
	Err   error
}

// ReadMeasures reads each pid as a ReadDataByIdentifier DID (pid is a hex
// string like "F190" or "010C"), mirroring read-measure being a thin
// ReadDataByIdentifier wrapper. A single PID's failure doesn't abort the
// rest; it is recorded on that Measure's Err. The lock is held across the
// whole loop so each per-PID transaction runs serialized end-to-end.
func (m *Manager) ReadMeasures(pids []string) ([]Measure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	client, err := m.requireClient()
	if err != nil {
		return nil, err
	}

	out := make([]Measure, 0, len(pids))
	for _, pid := range pids {
		did, derr := hex.DecodeString(normalizePID(pid))
		if derr != nil || len(did) != 2 {
			out = append(out, Measure{PID: pid, Err: fmt.Errorf("connmgr: invalid pid %q", pid)})
			continue
		}
		value, rerr := client.ReadDID(uint16(did[0])<<8 | uint16(did[1]))
		out = append(out, Measure{PID: pid, Value: &value, Err: rerr})
	}
	return out, nil
}

// normalizePID left-pads an odd-length hex PID string with a leading zero
// so it decodes to exactly 2 bytes.
func normalizePID(pid string) string {
	if len(pid)%2 != 0 {
		return "0" + pid
	}
	return pid
}
