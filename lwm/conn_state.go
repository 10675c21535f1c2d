package lwm

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-seamctl/logger"
)

// ConnState is the state of the device connection.
type ConnState uint32

const (
	// ClosedState indicates that no TCP connection exists.
	ClosedState ConnState = iota
	// ConnectingState indicates that a connection attempt is in progress.
	ConnectingState
	// ConnectedState indicates that the TCP connection is established and telegrams flow.
	ConnectedState
)

func (cs ConnState) String() string {
	switch cs {
	case ClosedState:
		return "closed"
	case ConnectingState:
		return "connecting"
	case ConnectedState:
		return "connected"
	default:
		return "unknown"
	}
}

// ConnStateChangeHandler is invoked on every state change, in registration order.
//
// Handlers run while the state manager is locked; they must not call the synchronous transition
// methods. Use the Async variants instead.
type ConnStateChangeHandler func(prevState ConnState, newState ConnState)

// ConnStateMgr serializes connection state transitions and notifies handlers.
type ConnStateMgr struct {
	mu               sync.Mutex
	ctx              context.Context
	cond             *sync.Cond
	state            atomic.Uint32
	logger           logger.Logger
	asyncStateChange chan ConnState
	handlers         []ConnStateChangeHandler
	done             chan struct{}
}

// NewConnStateMgr creates a state manager in ClosedState. Asynchronous transitions are processed
// until ctx is done.
func NewConnStateMgr(ctx context.Context, l logger.Logger, handlers ...ConnStateChangeHandler) *ConnStateMgr {
	cs := &ConnStateMgr{
		ctx:              ctx,
		logger:           l,
		asyncStateChange: make(chan ConnState, 16),
		handlers:         append([]ConnStateChangeHandler(nil), handlers...),
		done:             make(chan struct{}),
	}
	cs.state.Store(uint32(ClosedState))
	cs.cond = sync.NewCond(&cs.mu)

	go cs.asyncStateChangeTask()

	return cs
}

// State returns the current state.
func (cs *ConnStateMgr) State() ConnState {
	return ConnState(cs.state.Load())
}

// WaitState blocks until the state equals state or ctx is done.
func (cs *ConnStateMgr) WaitState(ctx context.Context, state ConnState) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		cs.mu.Lock()
		cs.cond.Broadcast()
		cs.mu.Unlock()
	})
	defer stop()

	for cs.State() != state {
		if err := ctx.Err(); err != nil {
			return err
		}
		cs.cond.Wait()
	}

	return nil
}

// ToClosed moves to ClosedState. It is allowed from every state.
func (cs *ConnStateMgr) ToClosed() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.transition(ClosedState)
}

// ToConnecting moves from ClosedState to ConnectingState.
func (cs *ConnStateMgr) ToConnecting() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cur := cs.State()
	if cur == ConnectingState {
		return nil
	}
	if cur != ClosedState {
		return ErrInvalidTransition
	}
	cs.transition(ConnectingState)

	return nil
}

// ToConnected moves from ConnectingState to ConnectedState.
func (cs *ConnStateMgr) ToConnected() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cur := cs.State()
	if cur == ConnectedState {
		return nil
	}
	if cur != ConnectingState {
		return ErrInvalidTransition
	}
	cs.transition(ConnectedState)

	return nil
}

// ToClosedAsync requests ClosedState without waiting for the handlers.
func (cs *ConnStateMgr) ToClosedAsync() { cs.changeStateAsync(ClosedState) }

// ToConnectingAsync requests ConnectingState without waiting for the handlers.
func (cs *ConnStateMgr) ToConnectingAsync() { cs.changeStateAsync(ConnectingState) }

// ToConnectedAsync requests ConnectedState without waiting for the handlers.
func (cs *ConnStateMgr) ToConnectedAsync() { cs.changeStateAsync(ConnectedState) }

// IsConnected reports whether the state is ConnectedState.
func (cs *ConnStateMgr) IsConnected() bool {
	return cs.State() == ConnectedState
}

// Done is closed when the asynchronous transition goroutine has exited.
func (cs *ConnStateMgr) Done() <-chan struct{} {
	return cs.done
}

// transition stores the new state before the handlers run so they observe it. Caller holds mu.
func (cs *ConnStateMgr) transition(newState ConnState) {
	prev := cs.State()
	if prev == newState {
		return
	}

	cs.state.Store(uint32(newState))
	cs.cond.Broadcast()

	for _, handler := range cs.handlers {
		if handler != nil {
			handler(prev, newState)
		}
	}
}

func (cs *ConnStateMgr) changeStateAsync(state ConnState) {
	select {
	case cs.asyncStateChange <- state:
	case <-cs.ctx.Done():
	}
}

func (cs *ConnStateMgr) asyncStateChangeTask() {
	defer close(cs.done)

	for {
		select {
		case <-cs.ctx.Done():
			return

		case desired := <-cs.asyncStateChange:
			prev := cs.State()
			if desired == prev {
				continue
			}

			var err error
			switch desired {
			case ClosedState:
				cs.ToClosed()
			case ConnectingState:
				err = cs.ToConnecting()
			case ConnectedState:
				err = cs.ToConnected()
			}

			if err != nil {
				cs.logger.Debug("async connection state change rejected",
					"method", "asyncStateChangeTask", "prevState", prev, "curState", cs.State(), "desiredState", desired, "error", err)
			}
		}
	}
}
