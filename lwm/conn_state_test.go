package lwm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-seamctl/logger"
)

func TestConnStateMgr_Transitions(t *testing.T) {
	require := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu      sync.Mutex
		changes [][2]ConnState
	)
	mgr := NewConnStateMgr(ctx, logger.GetLogger(), func(prev, cur ConnState) {
		mu.Lock()
		changes = append(changes, [2]ConnState{prev, cur})
		mu.Unlock()
	})

	require.Equal(ClosedState, mgr.State())
	require.ErrorIs(mgr.ToConnected(), ErrInvalidTransition)

	require.NoError(mgr.ToConnecting())
	require.NoError(mgr.ToConnecting())
	require.NoError(mgr.ToConnected())
	require.True(mgr.IsConnected())
	require.ErrorIs(mgr.ToConnecting(), ErrInvalidTransition)

	mgr.ToClosed()
	mgr.ToClosed()

	mu.Lock()
	require.Equal([][2]ConnState{
		{ClosedState, ConnectingState},
		{ConnectingState, ConnectedState},
		{ConnectedState, ClosedState},
	}, changes)
	mu.Unlock()
}

func TestConnStateMgr_Async(t *testing.T) {
	require := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())

	mgr := NewConnStateMgr(ctx, logger.GetLogger())
	mgr.ToConnectingAsync()
	mgr.ToConnectedAsync()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(mgr.WaitState(waitCtx, ConnectedState))

	mgr.ToClosedAsync()
	require.NoError(mgr.WaitState(waitCtx, ClosedState))

	// rejected transitions leave the state alone
	mgr.ToConnectedAsync()
	mgr.ToConnectingAsync()
	require.NoError(mgr.WaitState(waitCtx, ConnectingState))

	cancel()
	select {
	case <-mgr.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("async task did not stop")
	}
}

func TestConnStateMgr_WaitStateCanceled(t *testing.T) {
	mgr := NewConnStateMgr(context.Background(), logger.GetLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, mgr.WaitState(ctx, ConnectedState), context.DeadlineExceeded)
}
