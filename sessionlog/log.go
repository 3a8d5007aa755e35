// Package sessionlog keeps the ordered record of finished counting sessions.
//
// The counting engine never writes the log. A Recorder listens on the event
// bus and appends the record carried by each session_ended notification.
package sessionlog

import (
	"sync"

	"github.com/arloliu/go-gmc/event"
)

// Log is an append-only, ordered sequence of session records.
// It is safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	records []event.SessionRecord
}

// New creates an empty Log.
func New() *Log {
	return &Log{}
}

// Append adds rec at the end of the log.
func (l *Log) Append(rec event.SessionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, rec)
}

// Clear removes every record.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = nil
}

// RemoveLast removes and returns the newest record; ok is false when the log is empty.
func (l *Log) RemoveLast() (rec event.SessionRecord, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.records) == 0 {
		return rec, false
	}

	last := len(l.records) - 1
	rec = l.records[last]
	l.records = l.records[:last]

	return rec, true
}

// Records returns a copy of the records, oldest first.
func (l *Log) Records() []event.SessionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return append([]event.SessionRecord(nil), l.records...)
}

// Len returns the number of records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.records)
}
