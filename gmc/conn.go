package gmc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-gmc/frame"
	"github.com/arloliu/go-gmc/internal/pool"
	"github.com/arloliu/go-gmc/logger"
)

// Connection is an open, exclusively owned serial connection to a GMC device.
//
// All commands are serialized on an internal mutex, so a Connection can be
// shared between the foreground caller and a counting session worker; the
// heartbeat discipline (see package doc) decides which commands are legal at
// any moment.
type Connection struct {
	cfg    *ConnectionConfig
	logger logger.Logger

	opState atomicOpState

	// mu serializes frame writes and reply reads on port.
	mu      sync.Mutex
	port    Port
	version DeviceVersion

	heartbeat atomic.Bool

	metrics ConnectionMetrics
}

// Open opens the serial port described by cfg and verifies the attached device.
//
// It disables heartbeat mode, waits cfg.SettleTime() for the device to settle
// and reads the 15 byte version string. The port is closed again before Open
// returns an error, so a failed Open never leaves an open port behind:
//
//   - *ConnectionError when the port cannot be opened or configured, or ctx
//     is cancelled during the settle wait.
//   - *IOError when the version query times out.
//   - *UnsupportedDeviceError when the version has no accepted prefix.
func Open(ctx context.Context, cfg *ConnectionConfig) (*Connection, error) {
	if cfg == nil {
		return nil, errors.New("gmc: connection config is nil")
	}

	c := &Connection{
		cfg:    cfg,
		logger: cfg.logger.With("port", cfg.path),
	}
	c.opState.ToOpening()

	port, err := cfg.opener(cfg.path, cfg.baudRate)
	if err != nil {
		c.opState.ToClosed()
		return nil, &ConnectionError{Op: "open", Path: cfg.path, Err: err}
	}
	c.port = port

	if err := c.handshake(ctx); err != nil {
		c.logger.Debug("gmc: open failed, closing port", "error", err)
		_ = port.Close()
		c.opState.ToClosed()

		return nil, err
	}

	c.opState.ToOpened()
	c.logger.Info("gmc: connection opened", "version", c.version.String(), "baudRate", cfg.baudRate)

	return c, nil
}

func (c *Connection) handshake(ctx context.Context) error {
	if err := c.port.SetReadTimeout(c.cfg.readTimeout); err != nil {
		return &ConnectionError{Op: "configure", Path: c.cfg.path, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A previous session may have left heartbeat on; its pushes would be
	// taken for the version reply.
	if err := c.writeFrame("disable heartbeat", frame.Heartbeat(false)); err != nil {
		return err
	}

	if err := pool.Sleep(ctx, c.cfg.settleTime); err != nil {
		return &ConnectionError{Op: "open", Path: c.cfg.path, Err: err}
	}

	raw, err := c.command("get version", frame.GetVersion(), frame.VersionSize)
	if err != nil {
		return err
	}

	c.version = DecodeVersion(raw)
	if !c.version.HasPrefix(c.cfg.devicePrefixes...) {
		c.logger.Warn("gmc: unsupported device", "version", c.version.String(), "accepted", c.cfg.devicePrefixes)
		return &UnsupportedDeviceError{Version: c.version}
	}

	return nil
}

// Close disables heartbeat mode (best-effort) and releases the port.
// It is safe to call Close multiple times; only the first call does any work.
func (c *Connection) Close() error {
	if !c.opState.ToClosing() {
		return nil
	}

	// Waits for an in-flight command, e.g. a heartbeat read, to finish.
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writeFrame("disable heartbeat", frame.Heartbeat(false)); err != nil {
		c.logger.Debug("gmc: failed to disable heartbeat on close", "error", err)
	}
	c.heartbeat.Store(false)
	c.metrics.setHeartbeat(false)

	err := c.port.Close()
	c.opState.ToClosed()

	if err != nil {
		c.logger.Error("gmc: failed to close port", "error", err)
		return &ConnectionError{Op: "close", Path: c.cfg.path, Err: err}
	}

	c.logger.Info("gmc: connection closed")

	return nil
}

// Version returns the version string read when the connection was opened.
func (c *Connection) Version() DeviceVersion { return c.version }

// Path returns the serial port path.
func (c *Connection) Path() string { return c.cfg.path }

// IsOpen reports whether the connection is open.
func (c *Connection) IsOpen() bool { return c.opState.IsOpened() }

// State returns the lifecycle state of the connection.
func (c *Connection) State() OpState { return c.opState.Get() }

// HeartbeatEnabled reports whether heartbeat mode is currently on.
func (c *Connection) HeartbeatEnabled() bool { return c.heartbeat.Load() }

// GetLogger returns the logger associated with the connection.
func (c *Connection) GetLogger() logger.Logger { return c.logger }

// GetMetrics returns the metrics associated with the connection.
func (c *Connection) GetMetrics() *ConnectionMetrics { return &c.metrics }

// --- Commands ---

// ReadConfig reads the 512 byte configuration block.
// A reply shorter than 512 bytes is an *IOError, never a partial buffer.
func (c *Connection) ReadConfig(ctx context.Context) (*ConfigBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkCommand(); err != nil {
		return nil, err
	}

	return c.readConfigLocked()
}

func (c *Connection) readConfigLocked() (*ConfigBuffer, error) {
	raw, err := c.command("read config", frame.GetConfig(), frame.ConfigSize)
	if err != nil {
		return nil, err
	}

	var buf ConfigBuffer
	copy(buf[:], raw)

	return &buf, nil
}

// WriteConfig writes buf back to the device.
//
// The rewrite has three phases: erase, one acknowledged write per address
// and commit. A rejected or missing acknowledgement is recorded and the
// sequence continues, so all 512 addresses are always written and the commit
// is always sent. The returned *WriteConfigError lists every failed step;
// the caller decides whether that is acceptable.
//
// ctx is only consulted before the erase. Once the device is erased the full
// rewrite runs to completion. A failure to write to the port aborts with *IOError.
func (c *Connection) WriteConfig(ctx context.Context, buf *ConfigBuffer) error {
	if buf == nil {
		return errors.New("gmc: config buffer is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkCommand(); err != nil {
		return err
	}

	return c.writeConfigLocked(buf)
}

func (c *Connection) writeConfigLocked(buf *ConfigBuffer) error {
	var failures []ProtocolError

	if err := c.writeFrame("erase config", frame.EraseConfig()); err != nil {
		return err
	}
	if pe := c.readAck(StepErase, 0); pe != nil {
		failures = append(failures, *pe)
	}

	for addr := 0; addr < ConfigSize; addr++ {
		if err := c.writeFrame("write config", frame.WriteConfig(uint16(addr), buf[addr])); err != nil {
			return err
		}
		if pe := c.readAck(StepWrite, uint16(addr)); pe != nil {
			failures = append(failures, *pe)
		}
	}

	if err := c.writeFrame("update config", frame.UpdateConfig()); err != nil {
		return err
	}
	if pe := c.readAck(StepCommit, 0); pe != nil {
		failures = append(failures, *pe)
	}

	c.metrics.incConfigWriteCount()

	if len(failures) > 0 {
		werr := &WriteConfigError{Failures: failures}
		c.logger.Warn("gmc: config write incomplete", "failedSteps", len(failures), "failedAddresses", len(werr.Addresses()))

		return werr
	}

	c.logger.Info("gmc: config written")

	return nil
}

// SetHeartbeat enables or disables the per-second count push mode.
//
// Enabling fails with ErrHeartbeatActive when heartbeat mode is already on;
// only one count stream can be consumed at a time. Disabling always clears
// the local heartbeat state, even if the frame could not be written.
func (c *Connection) SetHeartbeat(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opState.IsOpened() {
		return ErrConnClosed
	}

	if enabled && c.heartbeat.Load() {
		return ErrHeartbeatActive
	}

	op := "disable heartbeat"
	if enabled {
		op = "enable heartbeat"
	}

	err := c.writeFrame(op, frame.Heartbeat(enabled))
	if err != nil && enabled {
		return err
	}

	c.heartbeat.Store(enabled)
	c.metrics.setHeartbeat(enabled)
	c.logger.Debug("gmc: heartbeat mode changed", "enabled", enabled)

	return err
}

// ReadCount reads one 4 byte big-endian heartbeat push.
// It blocks for at most the configured read timeout.
func (c *Connection) ReadCount() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opState.IsOpened() {
		return 0, ErrConnClosed
	}
	if !c.heartbeat.Load() {
		return 0, ErrHeartbeatInactive
	}

	raw, err := c.readReply("read count", frame.CountSize)
	if err != nil {
		return 0, err
	}
	c.metrics.incHeartbeatCount()

	return frame.DecodeCount(raw)
}

// FactoryReset resets the device to factory defaults and checks the acknowledgement.
func (c *Connection) FactoryReset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkCommand(); err != nil {
		return err
	}

	if err := c.writeFrame("factory reset", frame.FactoryReset()); err != nil {
		return err
	}
	if pe := c.readAck(StepReset, 0); pe != nil {
		return pe
	}

	c.logger.Info("gmc: factory reset done")

	return nil
}

// ReadTubeVoltage returns the tube 1 voltage in percent of the reference voltage.
func (c *Connection) ReadTubeVoltage(ctx context.Context) (float64, error) {
	if !c.version.SupportsTubeVoltage() {
		return 0, fmt.Errorf("%w: %s", ErrVoltageUnsupported, c.version.Model())
	}

	buf, err := c.ReadConfig(ctx)
	if err != nil {
		return 0, err
	}

	return buf.TubeVoltagePercent(), nil
}

// WriteTubeVoltage stores percent as the tube 1 voltage by rewriting the whole
// configuration block, then reads the value back.
//
// It returns the read-back percentage. A *WriteConfigError from the rewrite is
// returned together with the read-back value so the caller can see what the
// device actually holds.
func (c *Connection) WriteTubeVoltage(ctx context.Context, percent float64) (float64, error) {
	if !c.version.SupportsTubeVoltage() {
		return 0, fmt.Errorf("%w: %s", ErrVoltageUnsupported, c.version.Model())
	}
	stored, err := PercentToStored(percent)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkCommand(); err != nil {
		return 0, err
	}

	buf, err := c.readConfigLocked()
	if err != nil {
		return 0, err
	}
	buf[TubeVoltageOffset] = stored

	writeErr := c.writeConfigLocked(buf)
	if writeErr != nil && !errors.Is(writeErr, ErrProtocol) {
		return 0, writeErr
	}

	readBack, err := c.readConfigLocked()
	if err != nil {
		return 0, errors.Join(writeErr, err)
	}

	c.logger.Info("gmc: tube voltage written", "requested", percent, "stored", readBack.TubeVoltagePercent())

	return readBack.TubeVoltagePercent(), writeErr
}

// --- Low-level I/O helpers, callers must hold c.mu ---

// checkCommand rejects commands on a closed connection or while heartbeat pushes are flowing.
func (c *Connection) checkCommand() error {
	if !c.opState.IsOpened() {
		return ErrConnClosed
	}
	if c.heartbeat.Load() {
		return ErrHeartbeatActive
	}

	return nil
}

// writeFrame writes all bytes of f to the port.
func (c *Connection) writeFrame(op string, f []byte) error {
	c.logger.Debug("gmc: send command", "op", op, "frame", fmt.Sprintf("%q", f))

	for written := 0; written < len(f); {
		n, err := c.port.Write(f[written:])
		written += n

		if err != nil {
			return &IOError{Op: op, Err: err}
		}
	}
	c.metrics.incCommandCount(len(f))

	return nil
}

// readReply reads a reply of exactly n bytes.
func (c *Connection) readReply(op string, n int) ([]byte, error) {
	b, err := frame.ReadExact(c.port, n)
	c.metrics.addBytesRead(len(b))

	if err != nil {
		if errors.Is(err, frame.ErrTimeout) {
			c.metrics.incReadTimeoutCount()
		}

		return nil, &IOError{Op: op, Err: err}
	}

	return b, nil
}

// command writes f and reads a reply of n bytes.
func (c *Connection) command(op string, f []byte, n int) ([]byte, error) {
	if err := c.writeFrame(op, f); err != nil {
		return nil, err
	}

	return c.readReply(op, n)
}

// readAck reads one acknowledgement byte and returns a *ProtocolError unless it is 0xAA.
func (c *Connection) readAck(step string, addr uint16) *ProtocolError {
	b, err := c.readReply(step+" ack", frame.AckSize)
	if err != nil {
		c.metrics.incAckFailCount()
		c.logger.Warn("gmc: missing ack", "step", step, "address", addr, "error", err)

		return &ProtocolError{Step: step, Address: addr, Err: err}
	}

	if !frame.IsAck(b[0]) {
		c.metrics.incAckFailCount()
		c.logger.Warn("gmc: rejected ack", "step", step, "address", addr, "ack", fmt.Sprintf("0x%02X", b[0]))

		return &ProtocolError{Step: step, Address: addr, Got: b[0], HasAck: true}
	}

	return nil
}
