// Package task manages the fixed set of goroutines a seamctl process runs: the cyclic control
// task, the sensor sampler, the LWM send/receive tasks and the archive writer.
package task

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-seamctl/logger"
)

// Func performs one iteration of a task.
// It should return true to continue running the task, or false to stop the goroutine.
type Func func() bool

// CancelFunc is called when a goroutine managed by the Manager exits or is canceled.
type CancelFunc func()

// Manager manages the lifecycle of goroutines (tasks).
//
// Tasks are bound to the manager context: Stop cancels it and stops all interval tickers, Wait
// blocks until every task returned and then re-arms the manager so it can be started again.
// Termination is cooperative; a task blocked outside its Func is not interrupted.
//
//	mgr := task.NewManager(ctx, log)
//	_, _ = mgr.StartInterval("cyclic", core.Tick, time.Millisecond, false)
//	...
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	pctx    context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  logger.Logger
	count   atomic.Int32
	tickers sync.Map     // map[string]*time.Ticker
	mu      sync.RWMutex // protect ctx and cancel
	taskMu  sync.RWMutex // protect task creation during Wait()
}

// NewManager creates a new Manager with the given context as the parent context and logger.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context of the currently running task generation.
func (mgr *Manager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start starts a new goroutine that calls taskFunc in a loop until it returns false or the
// manager is stopped. cancelFunc, if not nil, runs when the goroutine exits.
func (mgr *Manager) Start(name string, taskFunc Func, cancelFunc CancelFunc) error {
	mgr.logger.Debug("start task", "name", name)

	starter, err := mgr.newStarter(name)
	if err != nil {
		return err
	}

	starter.startTask(func() {
		if cancelFunc != nil {
			defer cancelFunc()
		}
		mgr.runLoop(name, taskFunc)
	})

	return starter.waitForStart()
}

// StartInterval starts a new goroutine that executes taskFunc at the specified interval.
// If runNow is true, taskFunc is executed once on the caller goroutine before the interval starts.
// The returned ticker may be used to reset the interval.
func (mgr *Manager) StartInterval(name string, taskFunc Func, interval time.Duration, runNow bool) (*time.Ticker, error) {
	return mgr.startInterval(name, nil, taskFunc, interval, runNow)
}

// StartPinnedInterval works like StartInterval but locks the task goroutine to its OS thread and
// runs setup on that thread first, so thread attributes such as scheduling priority stick.
func (mgr *Manager) StartPinnedInterval(name string, setup func(), taskFunc Func, interval time.Duration) (*time.Ticker, error) {
	return mgr.startInterval(name, func() {
		runtime.LockOSThread()
		if setup != nil {
			setup()
		}
	}, taskFunc, interval, false)
}

func (mgr *Manager) startInterval(name string, setup func(), taskFunc Func, interval time.Duration, runNow bool) (*time.Ticker, error) {
	mgr.logger.Debug("start interval task", "name", name, "interval", interval, "runNow", runNow)

	if interval <= 0 {
		return nil, fmt.Errorf("invalid interval: %v", interval)
	}

	ticker := time.NewTicker(interval)

	// store ticker before starting goroutine
	if _, loaded := mgr.tickers.LoadOrStore(name, ticker); loaded {
		ticker.Stop()
		return nil, fmt.Errorf("interval task %s already exists", name)
	}

	cleanup := func() {
		ticker.Stop()
		mgr.tickers.Delete(name)
	}

	if runNow && !mgr.callWithRecover(name, taskFunc) {
		cleanup()
		mgr.logger.Debug("interval task terminated by runNow", "name", name)

		return ticker, nil
	}

	starter, err := mgr.newStarter(name)
	if err != nil {
		cleanup()
		return nil, err
	}

	starter.startTask(func() {
		defer cleanup()
		if setup != nil {
			setup()
		}

		ctx := mgr.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !mgr.callWithRecover(name, taskFunc) {
					return
				}
			}
		}
	})

	if err := starter.waitForStart(); err != nil {
		cleanup()
		return nil, err
	}

	return ticker, nil
}

// StartConsumer starts a goroutine that passes every value received from ch to fn until fn
// returns false, ch is closed or the manager is stopped.
func StartConsumer[T any](mgr *Manager, name string, fn func(T) bool, ch <-chan T) error {
	mgr.logger.Debug("start consumer task", "name", name)

	if ch == nil {
		return fmt.Errorf("input channel of %s is nil", name)
	}

	starter, err := mgr.newStarter(name)
	if err != nil {
		return err
	}

	starter.startTask(func() {
		ctx := mgr.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-ch:
				if !ok {
					mgr.logger.Debug("input channel closed", "name", name)
					return
				}
				if !mgr.callWithRecover(name, func() bool { return fn(v) }) {
					return
				}
			}
		}
	})

	return starter.waitForStart()
}

// callWithRecover calls a task function with panic protection. A panic stops the task.
func (mgr *Manager) callWithRecover(name string, fn Func) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			cont = false
		}
	}()

	return fn()
}

// Stop signals all running goroutines.
func (mgr *Manager) Stop() {
	mgr.tickers.Range(func(_, value any) bool {
		if ticker, ok := value.(*time.Ticker); ok {
			ticker.Stop()
		}

		return true
	})

	mgr.mu.Lock()
	if mgr.cancel != nil {
		mgr.cancel()
	}
	mgr.mu.Unlock()
}

// Wait waits for all goroutines to terminate, then prepares a fresh context so tasks can be
// started again.
func (mgr *Manager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// TaskCount returns the number of currently running goroutines.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

type starter struct {
	mgr     *Manager
	name    string
	started chan error
}

func (mgr *Manager) newStarter(name string) (*starter, error) {
	select {
	case <-mgr.Context().Done():
		return nil, fmt.Errorf("task manager already stopped, can't start %s", name)
	default:
	}

	return &starter{mgr: mgr, name: name, started: make(chan error, 1)}, nil
}

func (s *starter) startTask(body func()) {
	s.mgr.taskMu.RLock()
	defer s.mgr.taskMu.RUnlock()

	s.mgr.wg.Add(1)

	go func() {
		defer s.mgr.wg.Done()

		s.mgr.count.Add(1)
		s.started <- nil

		defer func() {
			s.mgr.count.Add(-1)
			s.mgr.logger.Debug("task terminated", "name", s.name, "task_count", s.mgr.TaskCount())
		}()

		body()
	}()
}

func (s *starter) waitForStart() error {
	select {
	case err := <-s.started:
		if err != nil {
			return fmt.Errorf("failed to start %s: %w", s.name, err)
		}

		return nil

	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for %s to start", s.name)
	}
}

// runLoop runs a task function in a loop with context cancellation.
func (mgr *Manager) runLoop(name string, taskFunc Func) {
	ctx := mgr.Context()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if !mgr.callWithRecover(name, taskFunc) {
				return
			}
		}
	}
}
