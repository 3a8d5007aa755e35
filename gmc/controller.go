package gmc

import (
	"context"
	"sync"

	"github.com/arloliu/go-gmc/logger"
)

// ConnState is the device connection state tracked by a Controller.
type ConnState uint32

const (
	// Disconnected indicates that no device connection is open.
	Disconnected ConnState = iota
	// Connected indicates that a device connection is open and its version verified.
	Connected
)

// String returns string representation of the state.
func (cs ConnState) String() string {
	switch cs {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// ConnStateChangeHandler is invoked when the Controller changes state.
//
// version is the version of the newly connected device, or of the device
// that was just disconnected.
//
// Note: the handler is invoked synchronously while the Controller is locked;
// it must not call back into the Controller.
type ConnStateChangeHandler func(prev ConnState, next ConnState, version DeviceVersion)

// Controller owns at most one Connection at a time.
//
// State changes only through Open and Close, which makes the controller the
// single place a presentation layer needs to watch for the current device.
type Controller struct {
	mu       sync.Mutex
	conn     *Connection
	state    ConnState
	logger   logger.Logger
	handlers []ConnStateChangeHandler
}

// NewController creates a disconnected Controller.
func NewController(l logger.Logger, handlers ...ConnStateChangeHandler) *Controller {
	if l == nil {
		l = logger.GetLogger()
	}

	return &Controller{
		state:    Disconnected,
		logger:   l,
		handlers: append([]ConnStateChangeHandler(nil), handlers...),
	}
}

// AddHandler adds one or more handlers to be invoked on state changes.
func (ctl *Controller) AddHandler(handlers ...ConnStateChangeHandler) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()

	ctl.handlers = append(ctl.handlers, handlers...)
}

// State returns the current state.
func (ctl *Controller) State() ConnState {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()

	return ctl.state
}

// Conn returns the open connection, if any.
func (ctl *Controller) Conn() (*Connection, bool) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()

	return ctl.conn, ctl.conn != nil
}

// Version returns the version of the connected device, or "" when disconnected.
func (ctl *Controller) Version() DeviceVersion {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()

	if ctl.conn == nil {
		return ""
	}

	return ctl.conn.Version()
}

// Open closes the current connection, if any, and opens a new one with cfg.
func (ctl *Controller) Open(ctx context.Context, cfg *ConnectionConfig) (*Connection, error) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()

	if err := ctl.closeLocked(); err != nil {
		ctl.logger.Warn("gmc: failed to close previous connection", "error", err)
	}

	conn, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ctl.conn = conn
	ctl.setState(Connected, conn.Version())

	return conn, nil
}

// Close closes the current connection, if any.
func (ctl *Controller) Close() error {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()

	return ctl.closeLocked()
}

func (ctl *Controller) closeLocked() error {
	if ctl.conn == nil {
		return nil
	}

	conn := ctl.conn
	ctl.conn = nil
	err := conn.Close()
	ctl.setState(Disconnected, conn.Version())

	return err
}

func (ctl *Controller) setState(next ConnState, version DeviceVersion) {
	prev := ctl.state
	if prev == next {
		return
	}
	ctl.state = next

	ctl.logger.Debug("gmc: connection state changed", "prev", prev.String(), "next", next.String(), "version", version.String())

	for _, h := range ctl.handlers {
		h(prev, next, version)
	}
}

// RequireConn returns the open connection or ErrNotConnected.
func (ctl *Controller) RequireConn() (*Connection, error) {
	conn, ok := ctl.Conn()
	if !ok {
		return nil, ErrNotConnected
	}

	return conn, nil
}
