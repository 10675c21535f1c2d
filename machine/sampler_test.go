package machine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-seamctl/config"
	"github.com/arloliu/go-seamctl/cycle"
	"github.com/arloliu/go-seamctl/fieldbus"
	"github.com/arloliu/go-seamctl/logger"
)

type fieldMap map[fieldbus.Signal]uint32

func (f fieldMap) Field(sig fieldbus.Signal) uint32 { return f[sig] }

func newTestSampler(t *testing.T, threshold string, fields fieldMap, sink SensorSink) *Sampler {
	t.Helper()

	store, err := config.Parse([]byte("[sampler]\nenabled = true\nanalog_threshold = "+threshold+"\n"),
		logger.NewMockLogger().AllowAll())
	require.NoError(t, err)

	s := NewSampler(fields, store, sink)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	return s
}

func TestSampler_ReadsInputs(t *testing.T) {
	require := require.New(t)

	var got []Sample
	fields := fieldMap{fieldbus.SigGenericDigitalIn: 0x81, fieldbus.SigAnalogIn1: 512, fieldbus.SigAnalogIn2: 7}
	s := newTestSampler(t, "0", fields, SensorSinkFunc(func(smp Sample) { got = append(got, smp) }))

	require.True(s.Sample())
	require.Equal([]Sample{{
		Time:    time.Unix(1700000000, 0),
		Digital: 0x81,
		Analog:  [2]uint32{512, 7},
	}}, got)
}

func TestSampler_ThresholdCrossings(t *testing.T) {
	tests := []struct {
		name      string
		threshold string
		values    []uint32
		expected  []cycle.EdgeKind
	}{
		{
			name:      "disabled",
			threshold: "0",
			values:    []uint32{0, 100, 0},
			expected:  []cycle.EdgeKind{cycle.NoEdge, cycle.NoEdge, cycle.NoEdge},
		},
		{
			name:      "starts above",
			threshold: "10",
			values:    []uint32{50, 60, 5, 10},
			expected:  []cycle.EdgeKind{cycle.NoEdge, cycle.NoEdge, cycle.FallingEdge, cycle.RisingEdge},
		},
		{
			name:      "hovering at the threshold",
			threshold: "32",
			values:    []uint32{31, 32, 32, 31},
			expected:  []cycle.EdgeKind{cycle.NoEdge, cycle.RisingEdge, cycle.NoEdge, cycle.FallingEdge},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			fields := fieldMap{}
			var got []cycle.EdgeKind
			s := newTestSampler(t, tt.threshold, fields, SensorSinkFunc(func(smp Sample) { got = append(got, smp.Crossing) }))
			for _, v := range tt.values {
				fields[fieldbus.SigAnalogIn1] = v
				s.Sample()
			}
			require.Equal(tt.expected, got)
		})
	}
}

func TestSampler_NilSink(t *testing.T) {
	s := newTestSampler(t, "1", fieldMap{}, nil)
	require.True(t, s.Sample())
}
