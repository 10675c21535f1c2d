package cycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectEdge(t *testing.T) {
	tests := []struct {
		prev, cur bool
		want      EdgeKind
	}{
		{false, false, NoEdge},
		{false, true, RisingEdge},
		{true, true, NoEdge},
		{true, false, FallingEdge},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, DetectEdge(tt.prev, tt.cur), "prev=%v cur=%v", tt.prev, tt.cur)
	}
}

func TestEdge_OneStartOneStopPerPulse(t *testing.T) {
	traces := [][]bool{
		{true, false},
		{false, false, true, true, true, true, true, false, false},
		{true, true, true, true, true, true, true, true, true, true, false, false, false},
	}

	for _, trace := range traces {
		var (
			e            Edge
			starts, stop int
		)
		for _, v := range trace {
			switch e.Update(v) {
			case RisingEdge:
				starts++
			case FallingEdge:
				stop++
			}
		}
		require.Equal(t, 1, starts, "trace %v", trace)
		require.Equal(t, 1, stop, "trace %v", trace)
		require.False(t, e.Level())
	}
}
