package sessionlog

import (
	"sync/atomic"

	"github.com/arloliu/go-gmc/event"
	"github.com/arloliu/go-gmc/logger"
)

// Recorder appends the record of every session_ended notification to a Log
// while logging is enabled.
type Recorder struct {
	log     *Log
	sub     *event.Subscription
	logger  logger.Logger
	enabled atomic.Bool

	// recorded counts records appended so far.
	recorded atomic.Uint64
	done     chan struct{}
}

// NewRecorder subscribes to bus and starts recording into log.
// Logging starts disabled; call SetEnabled to record sessions.
func NewRecorder(bus *event.Bus, log *Log, l logger.Logger) (*Recorder, error) {
	if l == nil {
		l = logger.GetLogger()
	}

	sub, err := bus.Subscribe()
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		log:    log,
		sub:    sub,
		logger: l,
		done:   make(chan struct{}),
	}
	go r.run()

	return r, nil
}

// SetEnabled switches recording on or off. Sessions ending while it is off are not logged.
func (r *Recorder) SetEnabled(enabled bool) {
	r.enabled.Store(enabled)
}

// Enabled reports whether recording is on.
func (r *Recorder) Enabled() bool {
	return r.enabled.Load()
}

// Recorded returns the number of records appended by this Recorder.
func (r *Recorder) Recorded() uint64 {
	return r.recorded.Load()
}

// Log returns the log the Recorder appends to.
func (r *Recorder) Log() *Log {
	return r.log
}

// Close unsubscribes and waits for the Recorder to stop.
func (r *Recorder) Close() {
	r.sub.Close()
	<-r.done
}

// Done is closed when the Recorder stopped, either by Close or because the bus was closed.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

func (r *Recorder) run() {
	defer close(r.done)

	for ev := range r.sub.C() {
		if ev.Kind != event.SessionEnded || ev.Record == nil {
			continue
		}

		if !r.enabled.Load() {
			r.logger.Debug("sessionlog: logging disabled, record skipped", "session", ev.SessionID)
			continue
		}

		r.log.Append(*ev.Record)
		r.recorded.Add(1)
		r.logger.Debug("sessionlog: record appended", "session", ev.SessionID,
			"total", ev.Record.TotalCount, "duration", ev.Record.DurationSeconds)
	}
}
