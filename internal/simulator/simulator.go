// Package simulator provides an in-memory GQ GMC device that speaks the serial
// command protocol. It satisfies the gmc.Port interface and is used by tests
// and by the example program when no hardware is attached.
package simulator

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/arloliu/go-gmc/frame"
)

// DefaultVersion is the version string reported by a new Device.
const DefaultVersion = "GMC-500+Re 2.42"

// ErrPortClosed is returned by Read and Write after Close.
var ErrPortClosed = errors.New("simulator: port closed")

// writeFrameLen is the length of a "<WCFG" + addr(2) + val(1) + ">>" frame.
const writeFrameLen = 1 + len(frame.CmdWriteConfig) + 3 + 2

type ackKey struct {
	step string
	addr int
}

// ackRule overrides the acknowledgement of one step; drop suppresses the reply entirely.
type ackRule struct {
	value byte
	drop  bool
}

// Device is a simulated GMC counter.
type Device struct {
	mu sync.Mutex

	version string
	config  [frame.ConfigSize]byte
	staged  [frame.ConfigSize]byte

	heartbeat bool
	pushes    int
	nextPush  time.Time

	// pending holds reply bytes not yet read by the host.
	pending []byte
	// inbuf holds written bytes not yet parsed into a command.
	inbuf []byte

	readTimeout  time.Duration
	pushInterval time.Duration
	closed       bool

	countFunc func(second int) uint32
	onPush    func(second int)
	readErrs  []error
	acks      map[ackKey]ackRule
	cfgLimit  int

	commands []string
	written  []uint16
}

// Option configures a Device.
type Option func(*Device)

// WithVersion sets the version string; it is padded or cut to 15 bytes.
func WithVersion(v string) Option {
	return func(d *Device) { d.version = v }
}

// WithCounts makes heartbeat push n (1-based) report counts[n-1], and 0 after the slice is exhausted.
func WithCounts(counts ...uint32) Option {
	return func(d *Device) {
		cs := append([]uint32(nil), counts...)
		d.countFunc = func(second int) uint32 {
			if second <= len(cs) {
				return cs[second-1]
			}
			return 0
		}
	}
}

// WithCountFunc sets the function producing the count of heartbeat push n (1-based).
func WithCountFunc(fn func(second int) uint32) Option {
	return func(d *Device) { d.countFunc = fn }
}

// WithPushInterval makes heartbeat pushes arrive at the given interval instead of on demand.
func WithPushInterval(interval time.Duration) Option {
	return func(d *Device) { d.pushInterval = interval }
}

// WithOnPush registers a hook called after push n has been queued, before the host reads it.
// The hook runs with the device locked and must not call back into the Device.
func WithOnPush(fn func(second int)) Option {
	return func(d *Device) { d.onPush = fn }
}

// WithConfig sets the initial configuration block.
func WithConfig(cfg [frame.ConfigSize]byte) Option {
	return func(d *Device) { d.config = cfg }
}

// New creates a simulated device.
func New(opts ...Option) *Device {
	d := &Device{
		version:     DefaultVersion,
		acks:        make(map[ackKey]ackRule),
		cfgLimit:    frame.ConfigSize,
		readTimeout: time.Second,
		countFunc:   func(int) uint32 { return 0 },
	}
	d.config[330] = 75

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// --- Fault injection ---

// RejectAck makes the given step answer with ack instead of 0xAA.
// step is one of frame.CmdEraseConfig, frame.CmdWriteConfig, frame.CmdUpdateConfig or frame.CmdFactoryReset;
// addr is only used for frame.CmdWriteConfig.
func (d *Device) RejectAck(step string, addr int, ack byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.acks[ackKey{step, addr}] = ackRule{value: ack}
}

// DropAck makes the given step send no acknowledgement at all.
func (d *Device) DropAck(step string, addr int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.acks[ackKey{step, addr}] = ackRule{drop: true}
}

// TruncateConfigReply limits the <GETCFG>> reply to n bytes.
func (d *Device) TruncateConfigReply(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cfgLimit = n
}

// FailReads makes the next reads return the given errors, one per read.
func (d *Device) FailReads(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.readErrs = append(d.readErrs, errs...)
}

// --- Inspection ---

// Commands returns the names of the commands received so far, in order.
func (d *Device) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.commands...)
}

// WrittenAddresses returns the addresses of every <WCFG>> frame received, in order.
func (d *Device) WrittenAddresses() []uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]uint16(nil), d.written...)
}

// Config returns the committed configuration block.
func (d *Device) Config() [frame.ConfigSize]byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.config
}

// Heartbeat reports whether heartbeat mode is on.
func (d *Device) Heartbeat() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.heartbeat
}

// Closed reports whether the port was closed.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.closed
}

// --- Port implementation ---

// SetReadTimeout sets the longest time Read waits for a heartbeat push.
func (d *Device) SetReadTimeout(timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.readTimeout = timeout

	return nil
}

// Close closes the port. Further reads and writes fail.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	d.heartbeat = false
	d.pending = nil

	return nil
}

// Write feeds command bytes to the device. Replies become readable immediately.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrPortClosed
	}

	d.inbuf = append(d.inbuf, p...)
	d.parseCommands()

	return len(p), nil
}

// Read returns pending reply bytes. With nothing pending it waits for the next
// heartbeat push, at most the read timeout, and returns (0, nil) on timeout
// like a go.bug.st/serial port.
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()

	if d.closed {
		d.mu.Unlock()
		return 0, ErrPortClosed
	}

	if len(d.readErrs) > 0 {
		err := d.readErrs[0]
		d.readErrs = d.readErrs[1:]
		d.mu.Unlock()

		return 0, err
	}

	if len(d.pending) == 0 && d.heartbeat {
		if wait := d.pushWait(); wait > 0 {
			d.mu.Unlock()
			time.Sleep(wait)
			d.mu.Lock()
		}
		if d.heartbeat && !d.closed && len(d.pending) == 0 && !time.Now().Before(d.nextPush) {
			d.push()
		}
	}

	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	d.mu.Unlock()

	return n, nil
}

// pushWait returns how long Read has to wait for the next push, capped by the read timeout.
func (d *Device) pushWait() time.Duration {
	if d.pushInterval <= 0 {
		return 0
	}

	wait := time.Until(d.nextPush)
	if wait > d.readTimeout {
		wait = d.readTimeout
	}

	return wait
}

// push queues the next heartbeat count; callers hold d.mu.
func (d *Device) push() {
	d.pushes++
	second := d.pushes

	var b [frame.CountSize]byte
	binary.BigEndian.PutUint32(b[:], d.countFunc(second))
	d.pending = append(d.pending, b[:]...)

	if d.pushInterval > 0 {
		d.nextPush = time.Now().Add(d.pushInterval)
	}

	if d.onPush != nil {
		d.onPush(second)
	}
}

var fixedCommands = []string{
	frame.CmdHeartbeatOn,
	frame.CmdHeartbeatOff,
	frame.CmdGetVersion,
	frame.CmdGetConfig,
	frame.CmdEraseConfig,
	frame.CmdUpdateConfig,
	frame.CmdFactoryReset,
}

// parseCommands consumes every complete command in inbuf; callers hold d.mu.
func (d *Device) parseCommands() {
	for len(d.inbuf) > 0 {
		if d.inbuf[0] != '<' {
			d.inbuf = d.inbuf[1:]
			continue
		}

		writePrefix := []byte("<" + frame.CmdWriteConfig)
		if len(d.inbuf) < len(writePrefix) && bytes.HasPrefix(writePrefix, d.inbuf) {
			return
		}
		if bytes.HasPrefix(d.inbuf, writePrefix) {
			if len(d.inbuf) < writeFrameLen {
				return
			}
			f := d.inbuf[:writeFrameLen]
			d.inbuf = d.inbuf[writeFrameLen:]
			if !bytes.HasSuffix(f, []byte(">>")) {
				continue
			}
			addr := binary.BigEndian.Uint16(f[5:7])
			d.handleWrite(addr, f[7])

			continue
		}

		matched, partial := false, false
		for _, name := range fixedCommands {
			full := frame.Encode(name)
			if bytes.HasPrefix(d.inbuf, full) {
				d.inbuf = d.inbuf[len(full):]
				d.handle(name)
				matched = true

				break
			}
			if bytes.HasPrefix(full, d.inbuf) {
				partial = true
			}
		}

		if matched {
			continue
		}
		if partial {
			return
		}
		d.inbuf = d.inbuf[1:]
	}
}

func (d *Device) handle(name string) {
	d.commands = append(d.commands, name)

	switch name {
	case frame.CmdHeartbeatOn:
		d.heartbeat = true
		d.nextPush = time.Now().Add(d.pushInterval)

	case frame.CmdHeartbeatOff:
		d.heartbeat = false
		d.pending = nil

	case frame.CmdGetVersion:
		v := make([]byte, frame.VersionSize)
		copy(v, d.version)
		d.pending = append(d.pending, v...)

	case frame.CmdGetConfig:
		limit := d.cfgLimit
		if limit > frame.ConfigSize {
			limit = frame.ConfigSize
		}
		d.pending = append(d.pending, d.config[:limit]...)

	case frame.CmdEraseConfig:
		for i := range d.staged {
			d.staged[i] = 0xFF
		}
		d.ack(name, 0)

	case frame.CmdUpdateConfig:
		d.config = d.staged
		d.ack(name, 0)

	case frame.CmdFactoryReset:
		d.config = [frame.ConfigSize]byte{}
		d.staged = d.config
		d.ack(name, 0)
	}
}

func (d *Device) handleWrite(addr uint16, val byte) {
	d.commands = append(d.commands, frame.CmdWriteConfig)
	d.written = append(d.written, addr)

	if int(addr) < frame.ConfigSize {
		d.staged[addr] = val
	}
	d.ack(frame.CmdWriteConfig, int(addr))
}

func (d *Device) ack(step string, addr int) {
	rule, ok := d.acks[ackKey{step, addr}]
	switch {
	case !ok:
		d.pending = append(d.pending, frame.AckOK)
	case rule.drop:
	default:
		d.pending = append(d.pending, rule.value)
	}
}
