package counter

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-gmc/event"
	"github.com/arloliu/go-gmc/gmc"
	"github.com/arloliu/go-gmc/internal/simulator"
	"github.com/stretchr/testify/require"
)

func TestEngine_FullDuration(t *testing.T) {
	require := require.New(t)

	dev := simulator.New(simulator.WithCounts(1, 0, 3, 0, 2))
	conn := openSimConn(t, dev)
	bus := newTestBus(t)
	sub, err := bus.Subscribe()
	require.NoError(err)

	eng := newTestEngine(t, conn, bus)
	s, err := eng.Start(context.Background(), 5)
	require.NoError(err)

	rec := waitRecord(t, s)
	require.Equal(5, rec.DurationSeconds)
	require.Equal(uint64(6), rec.TotalCount)
	require.False(rec.Interrupted)
	require.Equal(SessionCompleted, s.State())
	require.False(s.Interrupt())

	// heartbeat is off again and the connection is usable
	require.False(conn.HeartbeatEnabled())
	require.False(dev.Heartbeat())
	require.Equal(Idle, eng.State())
	require.Nil(eng.Active())

	events := drain(t, sub)
	require.Equal([]event.Kind{
		event.SessionStarted,
		event.CountUpdated, event.Tick,
		event.Tick,
		event.CountUpdated, event.Tick,
		event.Tick,
		event.CountUpdated, event.Tick,
		event.SessionEnded,
	}, kinds(events))

	for _, ev := range events {
		require.Equal(s.ID(), ev.SessionID)
	}
	require.Equal(5, events[0].Requested)
	require.Equal(uint32(3), events[4].Count)
	require.Equal(uint64(4), events[4].Total)
	require.Equal(rec, *events[len(events)-1].Record)

	m := eng.GetMetrics()
	require.Equal(uint64(1), m.SessionsStarted.Load())
	require.Equal(uint64(1), m.SessionsCompleted.Load())
	require.Equal(uint64(6), m.CountsTotal.Load())
	require.Zero(m.ActiveSession.Load())
}

func TestEngine_InterruptAtThirdSecond(t *testing.T) {
	require := require.New(t)

	var eng *Engine
	dev := simulator.New(
		simulator.WithCounts(4, 5, 6, 7, 8, 9, 10, 11, 12, 13),
		simulator.WithOnPush(func(n int) {
			if n == 3 {
				eng.Active().Interrupt()
			}
		}),
	)
	conn := openSimConn(t, dev)
	bus := newTestBus(t)
	sub, err := bus.Subscribe()
	require.NoError(err)

	eng = newTestEngine(t, conn, bus)
	s, err := eng.Start(context.Background(), 10)
	require.NoError(err)

	rec := waitRecord(t, s)
	require.Equal(3, rec.DurationSeconds)
	require.Equal(uint64(4+5+6), rec.TotalCount)
	require.True(rec.Interrupted)
	require.Equal(SessionInterrupted, s.State())
	require.False(conn.HeartbeatEnabled())

	// no effect once finished
	require.False(s.Interrupt())

	events := drain(t, sub)
	require.Equal(event.SessionStarted, events[0].Kind)
	require.Equal(event.SessionEnded, events[len(events)-1].Kind)
	require.Equal(3, events[len(events)-2].Elapsed)
	require.Equal(uint64(1), eng.GetMetrics().SessionsInterrupted.Load())
}

func TestEngine_StopDuringFinalSecond(t *testing.T) {
	tests := []struct {
		name string
		stop func(eng *Engine, cancel context.CancelFunc, accepted *atomic.Bool)
	}{
		{
			name: "Interrupt",
			stop: func(eng *Engine, _ context.CancelFunc, accepted *atomic.Bool) {
				accepted.Store(eng.Active().Interrupt())
			},
		},
		{
			name: "Context Cancel",
			stop: func(_ *Engine, cancel context.CancelFunc, accepted *atomic.Bool) {
				cancel()
				accepted.Store(true)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var eng *Engine
			var accepted atomic.Bool
			src := &fakeSource{script: []readResult{{count: 1}, {count: 2}, {count: 3}}}
			src.onRead = func(n int) {
				if n == 3 {
					tt.stop(eng, cancel, &accepted)
				}
			}
			bus := newTestBus(t)
			sub, err := bus.Subscribe()
			require.NoError(err)

			eng = newTestEngine(t, src, bus)
			s, err := eng.Start(ctx, 3)
			require.NoError(err)

			rec := waitRecord(t, s)
			require.True(accepted.Load())
			require.Equal(3, rec.DurationSeconds)
			require.Equal(uint64(6), rec.TotalCount)
			require.False(rec.Interrupted)
			require.Equal(SessionCompleted, s.State())

			events := drain(t, sub)
			ended := 0
			for _, ev := range events {
				if ev.Kind == event.SessionEnded {
					ended++
				}
			}
			require.Equal(1, ended)
			require.Equal(rec, *events[len(events)-1].Record)
			require.Never(func() bool {
				select {
				case <-sub.C():
					return true
				default:
					return false
				}
			}, 50*time.Millisecond, 5*time.Millisecond)
			require.Equal(uint64(1), eng.GetMetrics().SessionsCompleted.Load())
			require.Zero(eng.GetMetrics().SessionsInterrupted.Load())
		})
	}
}

func TestEngine_EventOrdering(t *testing.T) {
	require := require.New(t)

	src := &fakeSource{script: []readResult{
		{count: 1}, {err: errors.New("glitch")}, {count: 0}, {count: 9}, {count: 2}, {count: 0}, {count: 1},
	}}
	bus := newTestBus(t)
	sub, err := bus.Subscribe()
	require.NoError(err)

	eng := newTestEngine(t, src, bus)
	s, err := eng.Start(context.Background(), 7)
	require.NoError(err)
	waitRecord(t, s)

	events := drain(t, sub)

	started, ended := 0, 0
	lastElapsed := 0
	for _, ev := range events {
		switch ev.Kind {
		case event.SessionStarted:
			started++
		case event.SessionEnded:
			ended++
		}
		require.GreaterOrEqual(ev.Elapsed, lastElapsed)
		lastElapsed = ev.Elapsed
	}
	require.Equal(1, started)
	require.Equal(1, ended)

	// exactly one tick per second
	ticks := 0
	for _, ev := range events {
		if ev.Kind == event.Tick {
			ticks++
			require.Equal(ticks, ev.Elapsed)
		}
	}
	require.Equal(7, ticks)
}

func TestEngine_DeviceErrorContinues(t *testing.T) {
	require := require.New(t)

	errGlitch := errors.New("device glitch")
	src := &fakeSource{script: []readResult{{count: 2}, {err: errGlitch}, {count: 3}}}
	bus := newTestBus(t)
	sub, err := bus.Subscribe()
	require.NoError(err)

	eng := newTestEngine(t, src, bus, WithInterval(20*time.Millisecond))
	begin := time.Now()
	s, err := eng.Start(context.Background(), 3)
	require.NoError(err)

	rec := waitRecord(t, s)
	require.Equal(3, rec.DurationSeconds)
	require.Equal(uint64(5), rec.TotalCount)
	require.False(rec.Interrupted)
	// the failed iteration is paced to the interval
	require.GreaterOrEqual(time.Since(begin), 15*time.Millisecond)

	events := drain(t, sub)
	require.Equal([]event.Kind{
		event.SessionStarted,
		event.CountUpdated, event.Tick,
		event.DeviceError, event.Tick,
		event.CountUpdated, event.Tick,
		event.SessionEnded,
	}, kinds(events))
	require.ErrorIs(events[3].Err, errGlitch)
	require.Equal(2, events[3].Elapsed)

	require.Equal(uint64(1), eng.GetMetrics().DeviceErrors.Load())
	require.Equal([]bool{true, false}, src.Toggles())
}

func TestEngine_ConnectionClosedEndsSession(t *testing.T) {
	require := require.New(t)

	src := &fakeSource{script: []readResult{{count: 1}, {count: 1}, {err: gmc.ErrConnClosed}}}
	bus := newTestBus(t)
	sub, err := bus.Subscribe()
	require.NoError(err)

	eng := newTestEngine(t, src, bus)
	s, err := eng.Start(context.Background(), 10)
	require.NoError(err)

	rec := waitRecord(t, s)
	require.Equal(2, rec.DurationSeconds)
	require.Equal(uint64(2), rec.TotalCount)
	require.True(rec.Interrupted)

	events := drain(t, sub)
	require.Equal(event.DeviceError, events[len(events)-2].Kind)
	require.ErrorIs(events[len(events)-2].Err, gmc.ErrConnClosed)
}

func TestEngine_ContextCancel(t *testing.T) {
	require := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{}
	src.onRead = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	eng := newTestEngine(t, src, nil)
	s, err := eng.Start(ctx, 100)
	require.NoError(err)

	rec := waitRecord(t, s)
	require.Equal(2, rec.DurationSeconds)
	require.True(rec.Interrupted)
}

func TestEngine_StartErrors(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	t.Run("Invalid Duration", func(t *testing.T) {
		eng := newTestEngine(t, &fakeSource{}, nil)
		_, err := eng.Start(ctx, 0)
		require.ErrorIs(err, ErrInvalidDuration)
	})

	t.Run("Heartbeat Failure", func(t *testing.T) {
		errDown := errors.New("port down")
		eng := newTestEngine(t, &fakeSource{enableErr: errDown}, nil)

		_, err := eng.Start(ctx, 3)
		require.ErrorIs(err, errDown)
		require.Equal(Idle, eng.State())
	})

	t.Run("Session Active", func(t *testing.T) {
		block := make(chan struct{})
		src := &fakeSource{onRead: func(int) { <-block }}
		eng := newTestEngine(t, src, nil)

		s, err := eng.Start(ctx, 3)
		require.NoError(err)
		require.Equal(Running, eng.State())

		_, err = eng.Start(ctx, 3)
		require.ErrorIs(err, ErrSessionActive)

		close(block)
		waitRecord(t, s)

		s2, err := eng.Start(ctx, 1)
		require.NoError(err)
		waitRecord(t, s2)
	})

	t.Run("One Session Per Connection", func(t *testing.T) {
		conn := openSimConn(t, simulator.New(simulator.WithPushInterval(20*time.Millisecond)))

		eng1 := newTestEngine(t, conn, nil)
		eng2 := newTestEngine(t, conn, nil)

		s, err := eng1.Start(ctx, 2)
		require.NoError(err)

		_, err = eng2.Start(ctx, 2)
		require.ErrorIs(err, gmc.ErrHeartbeatActive)

		// config access is rejected while counting
		_, err = conn.ReadConfig(ctx)
		require.ErrorIs(err, gmc.ErrHeartbeatActive)

		waitRecord(t, s)
		_, err = conn.ReadConfig(ctx)
		require.NoError(err)
	})

	t.Run("Closed Engine", func(t *testing.T) {
		eng := newTestEngine(t, &fakeSource{}, nil)
		require.NoError(eng.Close())
		require.NoError(eng.Close())

		_, err := eng.Start(ctx, 1)
		require.ErrorIs(err, ErrEngineClosed)
	})
}

func TestEngine_CloseInterruptsSession(t *testing.T) {
	require := require.New(t)

	src := &fakeSource{}
	src.onRead = func(int) { time.Sleep(5 * time.Millisecond) }
	bus := newTestBus(t)
	sub, err := bus.Subscribe()
	require.NoError(err)

	eng := newTestEngine(t, src, bus)
	s, err := eng.Start(context.Background(), 1000)
	require.NoError(err)

	require.NoError(eng.Close())

	rec, ok := s.Record()
	require.True(ok)
	require.True(rec.Interrupted)
	require.Less(rec.DurationSeconds, 1000)
	events := drain(t, sub)
	require.Equal(event.SessionStarted, events[0].Kind)
	require.Equal(event.SessionEnded, events[len(events)-1].Kind)
}

func TestNewEngine_Options(t *testing.T) {
	_, err := NewEngine(nil, nil)
	require.Error(t, err)

	_, err = NewEngine(&fakeSource{}, nil, WithInterval(0))
	require.Error(t, err)

	_, err = NewEngine(&fakeSource{}, nil, WithLogger(nil))
	require.Error(t, err)
}
