package counter

import "sync/atomic"

// EngineMetrics contains atomic metrics of an Engine.
type EngineMetrics struct {
	// SessionsStarted indicates the number of sessions started.
	SessionsStarted atomic.Uint64
	// SessionsCompleted indicates the number of sessions that ran their full duration.
	SessionsCompleted atomic.Uint64
	// SessionsInterrupted indicates the number of sessions ended early.
	SessionsInterrupted atomic.Uint64
	// DeviceErrors indicates the number of failed count reads.
	DeviceErrors atomic.Uint64
	// CountsTotal indicates the sum of all counts read.
	CountsTotal atomic.Uint64
	// ActiveSession is 1 while a session is running.
	ActiveSession atomic.Uint32
}
