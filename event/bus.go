package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-gmc/internal/queue"
	"github.com/arloliu/go-gmc/internal/task"
	"github.com/arloliu/go-gmc/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrBusClosed is returned by Subscribe after the bus was closed.
var ErrBusClosed = errors.New("event: bus closed")

// DefaultSubscriberBuffer is the default capacity of a subscription channel.
const DefaultSubscriberBuffer = 16

// BusOption is a functional option for configuring a Bus.
type BusOption func(*Bus) error

// WithSubscriberBuffer sets the capacity of every subscription channel.
// Events beyond it wait in the subscriber's queue.
func WithSubscriberBuffer(n int) BusOption {
	return func(b *Bus) error {
		if n < 0 {
			return errors.New("event: subscriber buffer must not be negative")
		}
		b.bufferSize = n

		return nil
	}
}

// WithLogger sets the logger of the bus.
func WithLogger(l logger.Logger) BusOption {
	return func(b *Bus) error {
		if l == nil {
			return errors.New("event: logger must not be nil")
		}
		b.logger = l

		return nil
	}
}

// Bus fans events out to subscribers.
type Bus struct {
	subs   *xsync.MapOf[uint64, *Subscription]
	nextID atomic.Uint64
	tasks  *task.Manager
	logger logger.Logger

	bufferSize int

	closeMu sync.Mutex
	closed  atomic.Bool

	published atomic.Uint64
}

// NewBus creates a Bus.
func NewBus(opts ...BusOption) (*Bus, error) {
	b := &Bus{
		subs:       xsync.NewMapOf[uint64, *Subscription](),
		logger:     logger.GetLogger(),
		bufferSize: DefaultSubscriberBuffer,
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	b.tasks = task.NewManager(context.Background(), b.logger)

	return b, nil
}

// Subscribe registers a new subscriber. It receives every event published
// after Subscribe returns.
func (b *Bus) Subscribe() (*Subscription, error) {
	b.closeMu.Lock()
	defer b.closeMu.Unlock()

	if b.closed.Load() {
		return nil, ErrBusClosed
	}

	s := &Subscription{
		id:     b.nextID.Add(1),
		bus:    b,
		queue:  queue.NewLockFree[Event](),
		notify: make(chan struct{}, 1),
		out:    make(chan Event, b.bufferSize),
		done:   make(chan struct{}),
	}
	b.subs.Store(s.id, s)

	if err := b.tasks.StartWithCancel("subscriber", s.pump, s.exit); err != nil {
		b.subs.Delete(s.id)
		return nil, err
	}

	b.logger.Debug("event: subscriber added", "id", s.id)

	return s, nil
}

// Publish hands ev to every subscriber. It never blocks.
// Events published after Close are dropped.
func (b *Bus) Publish(ev Event) {
	if b.closed.Load() {
		b.logger.Debug("event: publish on closed bus", "kind", ev.Kind.String())
		return
	}

	b.published.Add(1)

	b.subs.Range(func(_ uint64, s *Subscription) bool {
		s.push(ev)
		return true
	})
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	return b.subs.Size()
}

// Published returns the number of events published so far.
func (b *Bus) Published() uint64 {
	return b.published.Load()
}

// Close stops accepting events and lets every subscriber drain its queue.
//
// It waits until all pending events have been delivered and every
// subscription channel is closed, or until ctx is done, in which case the
// remaining events are dropped and ctx.Err() is returned.
func (b *Bus) Close(ctx context.Context) error {
	b.closeMu.Lock()
	if !b.closed.CompareAndSwap(false, true) {
		b.closeMu.Unlock()
		return nil
	}
	b.closeMu.Unlock()

	b.subs.Range(func(_ uint64, s *Subscription) bool {
		s.draining.Store(true)
		s.wake()

		return true
	})

	drained := make(chan struct{})
	go func() {
		b.tasks.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		b.tasks.Stop()
		<-drained

		return ctx.Err()
	}
}

// Subscription is one listener of a Bus.
type Subscription struct {
	id     uint64
	bus    *Bus
	queue  *queue.LockFree[Event]
	notify chan struct{}
	out    chan Event

	done      chan struct{}
	closeOnce sync.Once
	// draining makes the pump exit once the queue is empty.
	draining atomic.Bool
}

// C returns the channel delivering events. It is closed when the
// subscription or the bus is closed.
func (s *Subscription) C() <-chan Event {
	return s.out
}

// Close unsubscribes. Pending events are dropped.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.subs.Delete(s.id)
		close(s.done)
	})
}

// Pending returns the number of events queued but not yet handed to C.
func (s *Subscription) Pending() int {
	return s.queue.Length()
}

func (s *Subscription) push(ev Event) {
	s.queue.Enqueue(ev)
	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pump forwards queued events to out, one wakeup per call.
func (s *Subscription) pump() bool {
	ctx := s.bus.tasks.Context()

	for {
		ev, ok := s.queue.Dequeue()
		if !ok {
			break
		}

		select {
		case s.out <- ev:
		case <-s.done:
			return false
		case <-ctx.Done():
			return false
		}
	}

	if s.draining.Load() && s.queue.IsEmpty() {
		return false
	}

	select {
	case <-s.notify:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Subscription) exit() {
	s.bus.subs.Delete(s.id)
	close(s.out)
	s.bus.logger.Debug("event: subscriber removed", "id", s.id)
}
