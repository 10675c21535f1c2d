package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-seamctl/logger"
	"github.com/stretchr/testify/require"
)

func TestManager_StartAndStop(t *testing.T) {
	require := require.New(t)

	mgr := NewManager(context.Background(), logger.GetLogger())

	var iterations atomic.Int32
	var canceled atomic.Bool
	err := mgr.Start("loop", func() bool {
		iterations.Add(1)
		time.Sleep(time.Millisecond)
		return true
	}, func() { canceled.Store(true) })
	require.NoError(err)

	require.Eventually(func() bool { return iterations.Load() > 3 }, time.Second, time.Millisecond)
	require.Equal(1, mgr.TaskCount())

	mgr.Stop()
	mgr.Wait()

	require.True(canceled.Load())
	require.Equal(0, mgr.TaskCount())

	// the manager can be reused after Wait
	require.NoError(mgr.Start("again", func() bool { return false }, nil))
	mgr.Wait()
}

func TestManager_StartInterval(t *testing.T) {
	require := require.New(t)

	mgr := NewManager(context.Background(), logger.GetLogger())

	var ticks atomic.Int32
	ticker, err := mgr.StartInterval("cyclic", func() bool {
		return ticks.Add(1) < 5
	}, time.Millisecond, true)
	require.NoError(err)
	require.NotNil(ticker)

	require.Eventually(func() bool { return ticks.Load() == 5 }, time.Second, time.Millisecond)

	// the interval task stopped itself, the name can be reused
	require.Eventually(func() bool { return mgr.TaskCount() == 0 }, time.Second, time.Millisecond)
	_, err = mgr.StartInterval("cyclic", func() bool { return true }, time.Millisecond, false)
	require.NoError(err)

	_, err = mgr.StartInterval("cyclic", func() bool { return true }, time.Millisecond, false)
	require.Error(err)

	_, err = mgr.StartInterval("bad", func() bool { return true }, 0, false)
	require.Error(err)

	mgr.Stop()
	mgr.Wait()
}

func TestManager_PanicStopsTask(t *testing.T) {
	require := require.New(t)

	mgr := NewManager(context.Background(), logger.GetLogger())
	require.NoError(mgr.Start("panicky", func() bool { panic("boom") }, nil))

	require.Eventually(func() bool { return mgr.TaskCount() == 0 }, time.Second, time.Millisecond)
	mgr.Stop()
	mgr.Wait()
}

func TestStartConsumer(t *testing.T) {
	require := require.New(t)

	mgr := NewManager(context.Background(), logger.GetLogger())

	ch := make(chan int, 4)
	var sum atomic.Int32
	require.NoError(StartConsumer(mgr, "sum", func(v int) bool {
		sum.Add(int32(v))
		return true
	}, ch))

	ch <- 1
	ch <- 2
	ch <- 3
	require.Eventually(func() bool { return sum.Load() == 6 }, time.Second, time.Millisecond)

	close(ch)
	mgr.Wait()

	require.Error(StartConsumer[int](mgr, "nil", func(int) bool { return true }, nil))
}

func TestManager_StartAfterStop(t *testing.T) {
	mgr := NewManager(context.Background(), logger.GetLogger())
	mgr.Stop()

	require.Error(t, mgr.Start("late", func() bool { return true }, nil))
}
