package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-gmc/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newMockLogger() *logger.MockLogger {
	mockLogger := logger.NewMockLogger()
	mockLogger.On("Debug", mock.Anything, mock.Anything).Return()
	mockLogger.On("Error", mock.Anything, mock.Anything).Return()

	return mockLogger
}

func TestManager_Start(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := NewManager(ctx, newMockLogger())

	require.NoError(t, mgr.Start("testTask", func() bool {
		time.Sleep(time.Millisecond)
		return true
	}))

	assert.Equal(t, 1, mgr.TaskCount())

	// parent cancellation stops the task
	cancel()
	assert.Eventually(t, func() bool { return mgr.TaskCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestManager_StartWithCancel(t *testing.T) {
	mgr := NewManager(context.Background(), newMockLogger())

	var iterations atomic.Int32
	cancelled := make(chan struct{})

	require.NoError(t, mgr.StartWithCancel("finite", func() bool {
		return iterations.Add(1) < 3
	}, func() { close(cancelled) }))

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("cancel func not called")
	}

	mgr.Wait()
	assert.Equal(t, int32(3), iterations.Load())
	assert.Zero(t, mgr.TaskCount())
}

func TestManager_PanicStopsTask(t *testing.T) {
	mockLogger := newMockLogger()
	mgr := NewManager(context.Background(), mockLogger)

	require.NoError(t, mgr.Start("panicky", func() bool {
		panic("boom")
	}))

	mgr.Wait()
	assert.Zero(t, mgr.TaskCount())
	mockLogger.AssertCalled(t, "Error", "panic in task", mock.Anything)
}

func TestManager_StopAndWait(t *testing.T) {
	mgr := NewManager(context.Background(), newMockLogger())

	for range 3 {
		require.NoError(t, mgr.Start("blocking", func() bool {
			<-mgr.Context().Done()
			return false
		}))
	}
	assert.Equal(t, 3, mgr.TaskCount())

	mgr.Stop()
	require.ErrorIs(t, mgr.Start("late", func() bool { return false }), ErrStopped)

	mgr.Wait()
	assert.Zero(t, mgr.TaskCount())

	// re-armed after Wait
	require.NoError(t, mgr.Start("again", func() bool { return false }))
	mgr.Wait()
}
