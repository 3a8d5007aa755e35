// Package task manages the goroutines of the counting engine and the event bus.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-gmc/logger"
)

// ErrStopped is returned when a task is started on a stopped Manager.
var ErrStopped = errors.New("task: manager already stopped")

// Func performs one iteration of a task.
// It should return true to continue running the task, or false to stop the goroutine.
type Func func() bool

// CancelFunc is called when a goroutine managed by the Manager exits, whatever the reason.
type CancelFunc func()

// Manager manages the lifecycle of goroutines (tasks).
//
// The Manager derives a cancellable context from its parent. Stop cancels
// it, signalling every task to return; Wait blocks until all of them did and
// re-arms the Manager so new tasks can be started.
//
// Example Usage:
//
//	mgr := task.NewManager(ctx, logger)
//
//	_ = mgr.Start("worker", func() bool {
//	    // ... one iteration ...
//	    return true // false stops the worker
//	})
//
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	pctx   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.RWMutex // protect ctx and cancel
	taskMu sync.RWMutex // protect task creation during Wait()
}

// NewManager creates a new Manager with the given context as the parent context and logger.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	if l == nil {
		l = logger.GetLogger()
	}

	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context that is cancelled by Stop.
// Tasks that block must select on its Done channel.
func (mgr *Manager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start starts a new goroutine running taskFunc in a loop until it returns
// false or the Manager is stopped.
func (mgr *Manager) Start(name string, taskFunc Func) error {
	return mgr.StartWithCancel(name, taskFunc, nil)
}

// StartWithCancel is like Start; cancelFunc is called when the goroutine exits.
func (mgr *Manager) StartWithCancel(name string, taskFunc Func, cancelFunc CancelFunc) error {
	mgr.logger.Debug("start task", "name", name)

	ctx := mgr.Context()
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s", ErrStopped, name)
	}

	mgr.spawn(name, func() {
		if cancelFunc != nil {
			defer mgr.callWithRecover(name, cancelFunc)
		}

		mgr.runTaskLoop(ctx, name, taskFunc)
	})

	return nil
}

// Stop signals all running goroutines.
func (mgr *Manager) Stop() {
	mgr.mu.Lock()
	mgr.cancel()
	mgr.mu.Unlock()
}

// Wait waits for all goroutines to terminate, then re-arms the Manager.
func (mgr *Manager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	if mgr.ctx.Err() != nil {
		mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	}
	mgr.mu.Unlock()
}

// TaskCount returns the number of currently running goroutines.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) spawn(name string, body func()) {
	mgr.taskMu.RLock()
	defer mgr.taskMu.RUnlock()

	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer mgr.wg.Done()
		defer func() {
			mgr.count.Add(-1)
			mgr.logger.Debug("task terminated", "name", name, "taskCount", mgr.TaskCount())
		}()

		body()
	}()
}

// runTaskLoop runs taskFunc until it returns false or ctx is cancelled.
// A panic in taskFunc stops the task.
func (mgr *Manager) runTaskLoop(ctx context.Context, name string, taskFunc Func) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if !mgr.callWithRecoverBool(name, taskFunc) {
				return
			}
		}
	}
}

// callWithRecover calls a function with panic protection
func (mgr *Manager) callWithRecover(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
		}
	}()

	fn()
}

// callWithRecoverBool calls a function that returns bool with panic protection; a panic counts as false.
func (mgr *Manager) callWithRecoverBool(name string, fn func() bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			ok = false
		}
	}()

	return fn()
}
