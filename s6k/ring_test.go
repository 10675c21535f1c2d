package s6k

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRing_FIFO(t *testing.T) {
	require := require.New(t)

	r := NewRing[int](3)
	require.Equal(3, r.Cap())
	require.True(r.Push(1))
	require.True(r.Push(2))
	require.True(r.Push(3))
	require.True(r.Full())
	require.False(r.Push(4))

	v, ok := r.Pop()
	require.True(ok)
	require.Equal(1, v)

	// wraps around
	require.True(r.Push(4))
	require.Equal(3, r.Len())
	require.Equal([]int{2, 3, 4}, []int{r.At(0), r.At(1), r.At(2)})

	v, ok = r.Peek()
	require.True(ok)
	require.Equal(2, v)
	require.Equal(3, r.Len())

	r.Reset()
	require.Zero(r.Len())
	_, ok = r.Pop()
	require.False(ok)
	_, ok = r.Peek()
	require.False(ok)
}

func TestRing_MinimumCapacity(t *testing.T) {
	r := NewRing[string](0)

	require.Equal(t, 1, r.Cap())
	require.True(t, r.Push("a"))
	require.False(t, r.Push("b"))
}

func TestRing_AtOutOfRange(t *testing.T) {
	r := NewRing[int](2)
	r.Push(1)

	require.Panics(t, func() { r.At(1) })
	require.Panics(t, func() { r.At(-1) })
}
