package machine

import (
	"time"

	"github.com/arloliu/go-seamctl/config"
	"github.com/arloliu/go-seamctl/cycle"
	"github.com/arloliu/go-seamctl/fieldbus"
)

// Sample is one reading of the generic sensor inputs.
type Sample struct {
	Time    time.Time
	Digital uint32
	Analog  [2]uint32
	// Crossing is the edge of analog input 1 against the analog trigger threshold, NoEdge when
	// the threshold was not crossed or is zero.
	Crossing cycle.EdgeKind
}

// SensorSink receives the samples. Sample is called on the sampler task and must not block.
type SensorSink interface {
	Sample(s Sample)
}

// SensorSinkFunc adapts a function to SensorSink.
type SensorSinkFunc func(s Sample)

func (f SensorSinkFunc) Sample(s Sample) { f(s) }

// FieldReader is the fieldbus view of the sampler. *fieldbus.Bus implements it.
type FieldReader interface {
	Field(sig fieldbus.Signal) uint32
}

// Sampler reads the generic digital input field and the analog inputs once per period.
// The analog trigger threshold is read from the configuration on every sample, so a changed
// tunable takes effect at once.
type Sampler struct {
	signals FieldReader
	store   *config.Store
	sink    SensorSink
	now     func() time.Time

	above  cycle.Edge
	primed bool
}

// NewSampler creates a sampler that forwards to sink. A nil sink drops the samples.
func NewSampler(signals FieldReader, store *config.Store, sink SensorSink) *Sampler {
	return &Sampler{
		signals: signals,
		store:   store,
		sink:    sink,
		now:     time.Now,
	}
}

// Sample takes one sample. It always returns true so it can run as a task.Func.
func (s *Sampler) Sample() bool {
	smp := Sample{
		Time:    s.now(),
		Digital: s.signals.Field(fieldbus.SigGenericDigitalIn),
		Analog: [2]uint32{
			s.signals.Field(fieldbus.SigAnalogIn1),
			s.signals.Field(fieldbus.SigAnalogIn2),
		},
	}

	threshold := s.store.Snapshot().Sampler.AnalogThreshold
	if threshold == 0 {
		s.primed = false
	} else {
		edge := s.above.Update(smp.Analog[0] >= threshold)
		// the first sample after (re)arming only records the level
		if s.primed {
			smp.Crossing = edge
		}
		s.primed = true
	}

	if s.sink != nil {
		s.sink.Sample(smp)
	}

	return true
}
