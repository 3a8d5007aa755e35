// Package event carries typed notifications from a counting session to any
// number of listeners.
//
// A Bus has a single producer, the session worker, and many consumers. Every
// subscriber gets its own unbounded FIFO drained by a pump goroutine, so
// Publish never blocks the worker and events of one session are delivered
// to each live subscriber exactly in publish order.
package event

import (
	"fmt"
	"time"
)

// Kind identifies the type of an Event.
type Kind uint8

const (
	// SessionStarted is published once when a session begins.
	SessionStarted Kind = iota + 1
	// CountUpdated is published when a second reported a non-zero count.
	CountUpdated
	// Tick is published once per elapsed second.
	Tick
	// DeviceError is published when reading a second's count failed.
	DeviceError
	// SessionEnded is published once when a session completes or is interrupted.
	SessionEnded
)

// String returns the event kind name.
func (k Kind) String() string {
	switch k {
	case SessionStarted:
		return "session_started"
	case CountUpdated:
		return "count_updated"
	case Tick:
		return "tick"
	case DeviceError:
		return "device_error"
	case SessionEnded:
		return "session_ended"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// SessionRecord is the immutable result of a finished session.
type SessionRecord struct {
	// TotalCount is the sum of all counts read during the session.
	TotalCount uint64
	// DurationSeconds is the number of elapsed seconds; lower than the
	// requested duration when the session was interrupted.
	DurationSeconds int
	// Interrupted reports whether the session ended before its requested duration.
	Interrupted bool
	// StartedAt is the wall clock time the session started.
	StartedAt time.Time
}

// Event is a notification about a counting session.
type Event struct {
	Kind      Kind
	SessionID uint64
	Time      time.Time

	// Elapsed is the elapsed second the event belongs to, 0 for SessionStarted.
	Elapsed int
	// Requested is the requested duration in seconds, set on SessionStarted.
	Requested int
	// Total is the running total count.
	Total uint64
	// Count is the count of this second, set on CountUpdated.
	Count uint32
	// Err is the read failure, set on DeviceError.
	Err error
	// Record is the final record, set on SessionEnded.
	Record *SessionRecord
}

func (e Event) String() string {
	switch e.Kind {
	case SessionStarted:
		return fmt.Sprintf("%s session=%d requested=%ds", e.Kind, e.SessionID, e.Requested)
	case DeviceError:
		return fmt.Sprintf("%s session=%d elapsed=%d err=%v", e.Kind, e.SessionID, e.Elapsed, e.Err)
	case SessionEnded:
		if e.Record != nil {
			return fmt.Sprintf("%s session=%d total=%d duration=%ds", e.Kind, e.SessionID, e.Record.TotalCount, e.Record.DurationSeconds)
		}
	}

	return fmt.Sprintf("%s session=%d elapsed=%d total=%d", e.Kind, e.SessionID, e.Elapsed, e.Total)
}
