package counter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-gmc/event"
	"github.com/arloliu/go-gmc/gmc"
	"github.com/arloliu/go-gmc/internal/pool"
)

// SessionState is the state of a Session.
type SessionState uint32

const (
	// SessionRunning indicates that the worker is still counting.
	SessionRunning SessionState = iota
	// SessionCompleted indicates that the requested duration elapsed.
	SessionCompleted
	// SessionInterrupted indicates that the session ended early.
	SessionInterrupted
)

// String returns string representation of the state.
func (s SessionState) String() string {
	switch s {
	case SessionRunning:
		return "running"
	case SessionCompleted:
		return "completed"
	case SessionInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Session is one run of the engine, from Start to completion or interruption.
type Session struct {
	id        uint64
	requested int
	startedAt time.Time
	engine    *Engine

	ctx    context.Context
	cancel context.CancelFunc

	interrupt atomic.Bool
	state     atomic.Uint32

	// owned by the worker
	elapsed int
	total   uint64

	endOnce sync.Once
	done    chan struct{}
	record  event.SessionRecord
}

func newSession(ctx context.Context, e *Engine, id uint64, requested int) *Session {
	s := &Session{
		id:        id,
		requested: requested,
		startedAt: time.Now(),
		engine:    e,
		done:      make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	return s
}

// ID returns the session identifier carried by its events.
func (s *Session) ID() uint64 { return s.id }

// Requested returns the requested duration in seconds.
func (s *Session) Requested() int { return s.requested }

// State returns the session state.
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Interrupt asks the worker to stop before the next second. It returns false
// when the session has already finished, in which case it has no effect.
// An interrupt accepted while the final second is being read cannot shorten
// the session: it still ends completed with the full duration.
func (s *Session) Interrupt() bool {
	if s.State() != SessionRunning {
		return false
	}
	s.interrupt.Store(true)

	return true
}

// Done returns a channel that is closed once the record is available.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session ended and returns its record.
func (s *Session) Wait(ctx context.Context) (event.SessionRecord, error) {
	select {
	case <-s.done:
		return s.record, nil
	case <-ctx.Done():
		return event.SessionRecord{}, ctx.Err()
	}
}

// Record returns the final record; ok is false while the session is running.
func (s *Session) Record() (rec event.SessionRecord, ok bool) {
	select {
	case <-s.done:
		return s.record, true
	default:
		return rec, false
	}
}

// step runs one iteration of the counting loop.
func (s *Session) step() bool {
	e := s.engine

	if s.elapsed >= s.requested {
		s.end(SessionCompleted)
		return false
	}

	if s.interrupt.CompareAndSwap(true, false) || s.ctx.Err() != nil {
		s.end(SessionInterrupted)
		return false
	}

	iterStart := time.Now()
	count, err := e.src.ReadCount()

	if errors.Is(err, gmc.ErrConnClosed) {
		e.metrics.DeviceErrors.Add(1)
		e.logger.Warn("counter: connection closed during session", "session", s.id, "elapsed", s.elapsed)
		e.publish(event.Event{Kind: event.DeviceError, SessionID: s.id, Elapsed: s.elapsed, Total: s.total, Err: err})
		s.end(SessionInterrupted)

		return false
	}

	s.elapsed++

	if err != nil {
		e.metrics.DeviceErrors.Add(1)
		e.logger.Warn("counter: failed to read count", "session", s.id, "elapsed", s.elapsed, "error", err)
		e.publish(event.Event{Kind: event.DeviceError, SessionID: s.id, Elapsed: s.elapsed, Total: s.total, Err: err})

		// a failing port may return at once; keep one iteration per interval
		_ = pool.Sleep(s.ctx, e.cfg.interval-time.Since(iterStart))
	} else {
		s.total += uint64(count)
		e.metrics.CountsTotal.Add(uint64(count))

		if count > 0 {
			e.publish(event.Event{Kind: event.CountUpdated, SessionID: s.id, Elapsed: s.elapsed, Total: s.total, Count: count})
		}
	}

	e.publish(event.Event{Kind: event.Tick, SessionID: s.id, Elapsed: s.elapsed, Total: s.total})

	return true
}

// finish runs when the worker exits; it ends a session stopped from outside.
func (s *Session) finish() {
	s.end(SessionInterrupted)
}

func (s *Session) end(state SessionState) {
	s.endOnce.Do(func() {
		e := s.engine

		if err := e.src.SetHeartbeat(false); err != nil {
			e.logger.Warn("counter: failed to disable heartbeat", "session", s.id, "error", err)
		}

		s.record = event.SessionRecord{
			TotalCount:      s.total,
			DurationSeconds: s.elapsed,
			Interrupted:     state == SessionInterrupted,
			StartedAt:       s.startedAt,
		}
		s.state.Store(uint32(state))

		if state == SessionCompleted {
			e.metrics.SessionsCompleted.Add(1)
		} else {
			e.metrics.SessionsInterrupted.Add(1)
		}

		e.logger.Info("counter: session ended", "session", s.id, "state", state.String(),
			"total", s.total, "duration", s.elapsed)

		rec := s.record
		e.publish(event.Event{Kind: event.SessionEnded, SessionID: s.id, Elapsed: s.elapsed, Total: s.total, Record: &rec})

		e.active.CompareAndSwap(s, nil)
		e.metrics.ActiveSession.Store(0)
		s.cancel()
		close(s.done)
	})
}
