// Package counter implements the timed counting engine.
//
// An Engine runs at most one Session at a time against a CountSource,
// normally a *gmc.Connection. Starting a session enables heartbeat mode on
// the source; a worker goroutine then reads one count per second until the
// requested duration elapsed or the session is interrupted, publishing
// notifications on an event.Bus:
//
//	session_started, {count_updated?, tick} per second, session_ended
//
// Interruption is cooperative: Session.Interrupt sets a flag that the worker
// observes once per iteration, before reading the next second. A failed read
// is published as a device_error and the session continues; only an interrupt,
// context cancellation, a closed connection or the end of the requested
// duration stops it. On exit heartbeat mode is disabled, session_ended is
// published and only then the SessionRecord is delivered to Wait.
//
// Closing the Connection while a session runs is treated as an implicit
// interrupt: the read fails with gmc.ErrConnClosed, a device_error is
// published and the session ends interrupted without counting that second.
package counter
