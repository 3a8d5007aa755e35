package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-gmc/event"
	"github.com/arloliu/go-gmc/internal/task"
	"github.com/arloliu/go-gmc/logger"
)

// Errors returned by Engine.Start.
var (
	ErrInvalidDuration = errors.New("counter: duration must be at least 1 second")
	ErrSessionActive   = errors.New("counter: a session is already running")
	ErrEngineClosed    = errors.New("counter: engine closed")
)

// CountSource delivers one count per second while heartbeat mode is enabled.
// *gmc.Connection implements it.
type CountSource interface {
	SetHeartbeat(enabled bool) error
	ReadCount() (uint32, error)
}

// State is the state of an Engine.
type State uint32

const (
	// Idle indicates that no session is running.
	Idle State = iota
	// Running indicates that a session is running.
	Running
)

// String returns string representation of the state.
func (s State) String() string {
	if s == Running {
		return "running"
	}

	return "idle"
}

// Engine runs timed counting sessions against a CountSource.
type Engine struct {
	src    CountSource
	bus    *event.Bus
	cfg    engineConfig
	logger logger.Logger
	tasks  *task.Manager

	// mu serializes Start and Close.
	mu     sync.Mutex
	active atomic.Pointer[Session]
	closed atomic.Bool
	nextID atomic.Uint64

	metrics EngineMetrics
}

// NewEngine creates an Engine reading from src and publishing to bus.
// bus may be nil when nobody listens.
func NewEngine(src CountSource, bus *event.Bus, opts ...EngineOption) (*Engine, error) {
	if src == nil {
		return nil, errors.New("counter: count source is nil")
	}

	cfg := engineConfig{
		interval: DefaultInterval,
		logger:   logger.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt.apply(&cfg); err != nil {
			return nil, err
		}
	}

	return &Engine{
		src:    src,
		bus:    bus,
		cfg:    cfg,
		logger: cfg.logger,
		tasks:  task.NewManager(context.Background(), cfg.logger),
	}, nil
}

// Start enables heartbeat mode and starts a session of durationSeconds on a
// worker goroutine. It returns as soon as the session is running.
//
// Cancelling ctx interrupts the session like Session.Interrupt.
func (e *Engine) Start(ctx context.Context, durationSeconds int) (*Session, error) {
	if durationSeconds < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDuration, durationSeconds)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if e.active.Load() != nil {
		return nil, ErrSessionActive
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := e.src.SetHeartbeat(true); err != nil {
		return nil, fmt.Errorf("counter: enable heartbeat: %w", err)
	}

	s := newSession(ctx, e, e.nextID.Add(1), durationSeconds)
	e.active.Store(s)
	e.metrics.SessionsStarted.Add(1)
	e.metrics.ActiveSession.Store(1)

	e.logger.Info("counter: session started", "session", s.id, "duration", durationSeconds)
	e.publish(event.Event{Kind: event.SessionStarted, SessionID: s.id, Requested: durationSeconds})

	name := "session-" + strconv.FormatUint(s.id, 10)
	if err := e.tasks.StartWithCancel(name, s.step, s.finish); err != nil {
		s.finish()
		return nil, err
	}

	return s, nil
}

// Active returns the running session, or nil.
func (e *Engine) Active() *Session {
	return e.active.Load()
}

// State returns Running while a session is active.
func (e *Engine) State() State {
	if e.active.Load() != nil {
		return Running
	}

	return Idle
}

// GetMetrics returns the metrics of the engine.
func (e *Engine) GetMetrics() *EngineMetrics {
	return &e.metrics
}

// Close interrupts the running session, if any, waits for it to end and
// rejects further sessions.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	if s := e.active.Load(); s != nil {
		s.Interrupt()
		s.cancel()
	}

	e.tasks.Stop()
	e.tasks.Wait()

	return nil
}

func (e *Engine) publish(ev event.Event) {
	if e.bus == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	e.bus.Publish(ev)
}
