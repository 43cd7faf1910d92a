// Package s4 implements the WaterRower S4 serial driver: the frame
// codec's caller, the register-poll scheduler, and the decoded-sample
// stream. It exclusively owns the serial handle and the register table
// (§9 design note: driver-owned, not module-level mutable state).
package s4

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/argus-cyclist/waterrower-gateway/internal/broadcast"
	"github.com/argus-cyclist/waterrower-gateway/internal/frame"
	"github.com/argus-cyclist/waterrower-gateway/internal/wrerr"
)

// State is the driver's connection state machine (§4.B).
type State int

const (
	StateDisconnected State = iota
	StateOpening
	StateInitialising
	StateReady
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateInitialising:
		return "initialising"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	default:
		return "disconnected"
	}
}

// DefaultPollInterval is used when Config.PollInterval is zero.
const DefaultPollInterval = 200 * time.Millisecond

// requestSpacing is the mandatory 50ms gap between successive IR
// requests in one batch (§4.B, §5 Timeouts).
const requestSpacing = 50 * time.Millisecond

// Config configures a Driver instance.
type Config struct {
	// PortName, if non-empty, skips auto-discovery.
	PortName string
	// PollInterval arms the repeating poll timer. Zero (the unset value)
	// picks DefaultPollInterval; a negative value disables polling
	// entirely, which tests use to drive the driver without a timer
	// racing their assertions.
	PollInterval time.Duration
	// ActiveSubset is the set of register names polled each tick. Falls
	// back to DefaultPollSubset() when empty.
	ActiveSubset []string
	// DataDir is where recordings are written/read.
	DataDir string
}

// Driver owns the S4 serial connection end to end.
type Driver struct {
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	port     Port
	portName string

	tableMu sync.RWMutex
	table   *registerTable

	reads      *broadcast.Topic[RawRead]
	datapoints *broadcast.Topic[Sample]

	pollInterval time.Duration
	activeSubset []string
	dataDir      string

	pollCancel context.CancelFunc
	pollDone   chan struct{}

	writeMu sync.Mutex

	recMu   sync.Mutex
	recFile *recWriter
}

// NewDriver constructs a Driver in the disconnected state.
func NewDriver(cfg Config, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	subset := cfg.ActiveSubset
	if len(subset) == 0 {
		subset = DefaultPollSubset()
	}
	interval := cfg.PollInterval
	if interval == 0 {
		interval = DefaultPollInterval
	}
	return &Driver{
		logger:       logger,
		state:        StateDisconnected,
		portName:     cfg.PortName,
		table:        newRegisterTable(defaultRegisterTable()),
		reads:        broadcast.NewTopic[RawRead](),
		datapoints:   broadcast.NewTopic[Sample](),
		pollInterval: interval,
		activeSubset: subset,
		dataDir:      cfg.DataDir,
	}
}

// State returns the driver's current connection state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// IsConnected reports whether the driver is in the ready state.
func (d *Driver) IsConnected() bool { return d.State() == StateReady }

// PortName returns the currently open (or last configured) port name.
func (d *Driver) PortName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.portName
}

// Reads returns the hot stream of every classified frame.
func (d *Driver) Reads() *broadcast.Topic[RawRead] { return d.reads }

// Datapoints returns the hot stream of decoded samples.
func (d *Driver) Datapoints() *broadcast.Topic[Sample] { return d.datapoints }

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Connect opens the serial port (auto-discovering it by USB vendor ID
// if none is configured), issues the USB handshake, and
// starts the poll timer. Repeated Connect is a no-op while ready.
func (d *Driver) Connect() error {
	d.mu.Lock()
	if d.state == StateReady {
		d.mu.Unlock()
		return nil
	}
	d.state = StateOpening
	name := d.portName
	d.mu.Unlock()

	if name == "" {
		found, ok := findS4Port()
		if !ok {
			d.setState(StateDisconnected)
			return wrerr.New(wrerr.KindNoDeviceFound, "s4.Connect", nil)
		}
		name = found
	}

	port, err := openPort(name)
	if err != nil {
		d.setState(StateDisconnected)
		return wrerr.New(wrerr.KindSerialIO, "s4.Connect", err)
	}

	d.mu.Lock()
	d.port = port
	d.portName = name
	d.state = StateInitialising
	d.mu.Unlock()

	if err := d.writeLine("USB"); err != nil {
		d.fail(err)
		return err
	}

	d.startReader(port)
	d.setState(StateReady)
	d.startPolling()
	d.logger.Info("s4: connected", zap.String("port", name))
	return nil
}

// ConnectWithPort skips discovery and open, driving the state machine
// directly off an already-open Port. Tests use this to substitute an
// in-memory pipe for the serial line; it is otherwise equivalent to
// Connect.
func (d *Driver) ConnectWithPort(name string, port Port) error {
	d.mu.Lock()
	if d.state == StateReady {
		d.mu.Unlock()
		return nil
	}
	d.state = StateOpening
	d.port = port
	d.portName = name
	d.state = StateInitialising
	d.mu.Unlock()

	if err := d.writeLine("USB"); err != nil {
		d.fail(err)
		return err
	}
	d.startReader(port)
	d.setState(StateReady)
	d.startPolling()
	return nil
}

// Reset sends RESET then re-issues the USB handshake.
func (d *Driver) Reset() error {
	if err := d.writeLine("RESET"); err != nil {
		return err
	}
	return d.writeLine("USB")
}

// Close sends EXIT, cancels polling, stops any recording, completes the
// output streams, and releases the handle. An in-flight replay is not
// cancelled (see PlayRecording). Idempotent.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.state == StateDisconnected || d.state == StateClosing {
		d.mu.Unlock()
		return nil
	}
	d.state = StateClosing
	port := d.port
	d.mu.Unlock()

	d.stopPolling()
	d.StopRecording()

	if port != nil {
		_ = d.writeLine("EXIT")
		_ = port.Close()
	}

	d.reads.Close()
	d.datapoints.Close()

	d.mu.Lock()
	d.port = nil
	d.state = StateDisconnected
	d.mu.Unlock()
	return nil
}

// fail transitions the driver to closing/disconnected on a serial error:
// it logs the error as a warning, then closes the driver. The driver has
// no error stream of its own; subscribers see the failure only as their
// reads/datapoints channels closing.
func (d *Driver) fail(err error) {
	d.logger.Warn("s4: serial error, closing", zap.Error(err))
	_ = d.Close()
}

// writeLine writes s + CRLF to the port. Write-after-close is a no-op.
func (d *Driver) writeLine(s string) error {
	d.mu.Lock()
	port := d.port
	state := d.state
	d.mu.Unlock()

	if port == nil || state == StateDisconnected {
		return nil
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_, err := port.Write([]byte(s + "\r\n"))
	if err != nil {
		return wrerr.New(wrerr.KindSerialIO, "s4.writeLine", err)
	}
	return nil
}

func (d *Driver) startReader(port Port) {
	go func() {
		scanner := bufio.NewScanner(port)
		scanner.Split(scanLinesCRLF)
		for scanner.Scan() {
			line := scanner.Text()
			d.handleLine(line)
		}
		if err := scanner.Err(); err != nil {
			d.fail(wrerr.New(wrerr.KindSerialIO, "s4.reader", err))
		}
	}()
}

func (d *Driver) handleLine(line string) {
	kind, dp := frame.Classify(line)
	now := time.Now()
	d.reads.Publish(RawRead{Time: now, Kind: kind, Line: line})

	if kind != frame.KindDatapoint {
		return
	}

	d.tableMu.Lock()
	reg, ok := d.table.byAddressLookup(dp.Address)
	if !ok {
		d.tableMu.Unlock()
		d.logger.Warn("s4: datapoint for unknown address", zap.String("address", dp.Address))
		return
	}
	value, err := strconv.ParseInt(dp.ValueDigits, int(reg.Radix), 64)
	if err != nil {
		d.tableMu.Unlock()
		d.logger.Warn("s4: malformed datapoint value", zap.String("address", dp.Address), zap.Error(err))
		return
	}
	reg.CurrentValue = int(value)
	name := reg.Name
	width := reg.Width
	d.tableMu.Unlock()

	d.datapoints.Publish(Sample{
		Time:         now,
		RegisterName: name,
		Address:      dp.Address,
		Width:        width,
		Value:        int(value),
	})
}

// RequestDatapoints schedules IR requests, one per register in subset
// (or the active configured subset when nil), spaced 50ms apart.
func (d *Driver) RequestDatapoints(subset []string) error {
	names := subset
	if len(names) == 0 {
		names = d.activeSubset
	}
	for i, name := range names {
		d.tableMu.RLock()
		reg, ok := d.table.byNameLookup(name)
		d.tableMu.RUnlock()
		if !ok {
			continue
		}
		cmd := fmt.Sprintf("IR%c%s", reg.Width.Tag(), reg.Address)
		if err := d.writeLine(cmd); err != nil {
			return err
		}
		if i != len(names)-1 {
			time.Sleep(requestSpacing)
		}
	}
	return nil
}

// ReadDatapoints synchronously returns the register table's current
// values for subset (or every configured register when nil). No I/O.
func (d *Driver) ReadDatapoints(subset []string) map[string]int {
	names := subset
	if len(names) == 0 {
		names = d.table.names()
	}
	out := make(map[string]int, len(names))
	d.tableMu.RLock()
	defer d.tableMu.RUnlock()
	for _, name := range names {
		if reg, ok := d.table.byNameLookup(name); ok {
			out[name] = reg.CurrentValue
		}
	}
	return out
}

func (d *Driver) startPolling() {
	if d.pollInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.pollCancel = cancel
	d.pollDone = make(chan struct{})
	go func() {
		defer close(d.pollDone)
		ticker := time.NewTicker(d.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = d.RequestDatapoints(nil)
			}
		}
	}()
}

func (d *Driver) stopPolling() {
	if d.pollCancel != nil {
		d.pollCancel()
		<-d.pollDone
		d.pollCancel = nil
	}
}

// DistanceUnit selects the unit code sent with WSI (§4.B, §6.1).
type DistanceUnit byte

const (
	UnitMeters DistanceUnit = 'M'
	UnitMiles  DistanceUnit = 'I'
)

// DefineDistanceWorkout sends WSI{units}{hex4}.
func (d *Driver) DefineDistanceWorkout(meters int, units DistanceUnit) error {
	return d.writeLine(fmt.Sprintf("WSI%c%04X", byte(units), meters&0xFFFF))
}

// DefineDurationWorkout sends WSU{hex4}.
func (d *Driver) DefineDurationWorkout(seconds int) error {
	return d.writeLine(fmt.Sprintf("WSU%04X", seconds&0xFFFF))
}

// DisplayCode is the wire code table from §6.3.
type DisplayCode string

const (
	DisplayMeters  DisplayCode = "ME"
	DisplayMiles   DisplayCode = "MI"
	DisplayKm      DisplayCode = "KM"
	DisplayStrokes DisplayCode = "ST"
	DisplayMS      DisplayCode = "MS"
	DisplayMph     DisplayCode = "MPH"
	Display500m    DisplayCode = "500"
	Display2km     DisplayCode = "2KM"
	DisplayWatts   DisplayCode = "WA"
	DisplayCalHr   DisplayCode = "CH"
)

func (d *Driver) DisplaySetDistance(code DisplayCode) error {
	return d.writeLine("DD" + string(code))
}

func (d *Driver) DisplaySetIntensity(code DisplayCode) error {
	return d.writeLine("DD" + string(code))
}

func (d *Driver) DisplaySetAverageIntensity(code DisplayCode) error {
	return d.writeLine("DD" + string(code))
}

// scanLinesCRLF is a bufio.SplitFunc like bufio.ScanLines but strips a
// trailing \r as well as \n, matching the S4's CR/LF line terminator.
func scanLinesCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := indexByte(data, '\n'); i >= 0 {
		line := data[:i]
		line = bytes.TrimSuffix(line, []byte("\r"))
		return i + 1, []byte(line), nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
