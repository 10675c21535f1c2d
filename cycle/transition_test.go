package cycle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-seamctl/config"
	"github.com/arloliu/go-seamctl/fieldbus"
)

func started(t *testing.T, p Params) Context {
	t.Helper()

	c, _ := Transition(Context{}, CycleStartEvent{ProductType: 4, ProductNumber: 10}, p)
	require.True(t, c.CycleActive)

	return c
}

func findEffect[T Effect](fx []Effect) (T, bool) {
	for _, f := range fx {
		if v, ok := f.(T); ok {
			return v, true
		}
	}

	var zero T

	return zero, false
}

func TestTransition_ProductTypeZeroResolvesToLive(t *testing.T) {
	require := require.New(t)

	c, fx := Transition(Context{}, CycleStartEvent{ProductType: 0, ProductNumber: 77}, Params{})
	require.Equal(uint32(LiveProductType), c.Product.Type)
	require.Equal(uint32(77), c.Product.Number)

	start, ok := findEffect[StartCycle](fx)
	require.True(ok)
	require.Equal(uint32(1), start.Product.Type)

	load, ok := findEffect[LoadSelections](fx)
	require.True(ok)
	require.Equal(uint32(1), load.ProductType)
}

func TestTransition_ProductNumberPolicy(t *testing.T) {
	ev := CycleStartEvent{ProductType: 2, ProductNumber: 1, External: 2, Serial: 3}

	tests := []struct {
		policy config.ProductNumberPolicy
		want   uint32
	}{
		{config.ProductNumberFromFieldbus, 1},
		{config.ProductNumberExternal, 2},
		{config.ProductNumberFromClock, 3},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			c, _ := Transition(Context{}, ev, Params{ProductNumber: tt.policy})
			require.Equal(t, tt.want, c.Product.Number)
		})
	}
}

func TestTransition_SequencingViolationsLeaveStateUnchanged(t *testing.T) {
	active := started(t, Params{})
	faulted := Context{Fault: true}

	tests := []struct {
		name string
		ctx  Context
		ev   Event
	}{
		{"seam start without cycle", Context{}, SeamStartEvent{Number: 1}},
		{"seam stop without seam", active, SeamStopEvent{}},
		{"series start without cycle", Context{}, SeamSeriesStartEvent{Number: 1}},
		{"series stop without series", active, SeamSeriesStopEvent{}},
		{"cycle stop without cycle", Context{}, CycleStopEvent{}},
		{"second cycle start", active, CycleStartEvent{ProductType: 9}},
		{"cycle start while faulted", faulted, CycleStartEvent{ProductType: 9}},
		{"result outside seam", active, ResultEvent{Mask: 1}},
		{"calibration during cycle", active, CalibrationStartEvent{Type: 1}},
		{"homing during cycle", active, HomeAxisEvent{}},
		{"calibration result without calibration", Context{}, CalibrationDoneEvent{Result: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, fx := Transition(tt.ctx, tt.ev, Params{})
			require.Equal(t, tt.ctx, next)
			require.Len(t, fx, 1)
			require.IsType(t, Violation{}, fx[0])
		})
	}
}

func TestTransition_NestedLifecycle(t *testing.T) {
	require := require.New(t)
	p := Params{}

	c := started(t, p)
	c, _ = Transition(c, SeamSeriesStartEvent{Number: 2}, p)
	require.Equal(SeamSeriesActive, c.State())

	c, fx := Transition(c, SeamStartEvent{Number: 1}, p)
	require.Equal(SeamActive, c.State())
	require.Contains(fx, Effect(StartSeam{SeamSeries: 2, Number: 1}))

	c, fx = Transition(c, ResultEvent{Mask: 0b100}, p)
	require.Equal(uint32(0b100), c.CycleErrors)
	require.Contains(fx, Effect(SetField{fieldbus.SigQualityError, 0b100}))
	require.Contains(fx, Effect(SetBool{fieldbus.SigSumErrorLatched, true}))

	c, _ = Transition(c, SeamStopEvent{}, p)
	require.Equal(SeamSeriesActive, c.State())

	// a new seam resets only the seam accumulator
	c, _ = Transition(c, SeamStartEvent{Number: 2}, p)
	require.Zero(c.SeamErrors)
	require.Equal(uint32(0b100), c.SeriesErrors)
	c, _ = Transition(c, ResultEvent{}, p)
	c, _ = Transition(c, SeamStopEvent{}, p)
	c, _ = Transition(c, SeamSeriesStopEvent{}, p)
	require.Equal(CycleActive, c.State())

	c, fx = Transition(c, CycleStopEvent{}, p)
	require.Equal(Context{}, c)

	stop, ok := findEffect[StopCycle](fx)
	require.True(ok)
	require.False(stop.InspectionOK)
	require.Equal(1, stop.FailedSeams)
	require.Contains(fx, Effect(SetBool{fieldbus.SigInspectionOK, false}))
}

func TestTransition_CleanCycleIsInspectionOK(t *testing.T) {
	require := require.New(t)
	p := Params{}

	c := started(t, p)
	c, _ = Transition(c, SeamStartEvent{Number: 1}, p)
	c, _ = Transition(c, ResultEvent{Mask: 0}, p)
	c, _ = Transition(c, SeamStopEvent{}, p)

	_, fx := Transition(c, CycleStopEvent{}, p)
	require.Contains(fx, Effect(SetBool{fieldbus.SigInspectionOK, true}))
}

func TestTransition_CycleWithoutSeamsIsInspectionOK(t *testing.T) {
	require := require.New(t)
	p := Params{}

	_, fx := Transition(started(t, p), CycleStopEvent{}, p)
	stop, ok := findEffect[StopCycle](fx)
	require.True(ok)
	require.True(stop.InspectionOK)
	require.Zero(stop.FailedSeams)
}

func TestTransition_SeamWithoutResults(t *testing.T) {
	require := require.New(t)

	p := Params{}
	c := started(t, p)
	c, _ = Transition(c, SeamStartEvent{Number: 1}, p)
	c, fx := Transition(c, SeamStopEvent{}, p)
	require.True(c.SumError)
	require.Contains(fx, Effect(SetBool{fieldbus.SigSumErrorLatched, true}))
	require.Contains(fx, Effect(SetBool{fieldbus.SigInspectionIncomplete, true}))

	// a sequencer stands in for missing results, no incomplete report
	p = Params{Scanmaster: true}
	c = started(t, p)
	c, _ = Transition(c, SeamStartEvent{Number: 1}, p)
	c, fx = Transition(c, SeamStopEvent{}, p)
	require.True(c.SumError)
	require.Contains(fx, Effect(SetBool{fieldbus.SigSumErrorLatched, true}))
	require.NotContains(fx, Effect(SetBool{fieldbus.SigInspectionIncomplete, true}))
}

func TestTransition_SeamFailedBeforeOpening(t *testing.T) {
	require := require.New(t)
	p := Params{Scanmaster: true}

	c := started(t, p)
	c, _ = Transition(c, SeamSeriesStartEvent{Number: 1}, p)
	c, fx := Transition(c, SeamFailedEvent{Number: 2, Mask: 1}, p)
	require.Equal(SeamSeriesActive, c.State())
	require.Equal(1, c.FailedSeams)
	require.True(c.SumError)
	require.Contains(fx, Effect(SeamFailed{SeamSeries: 1, Number: 2, Errors: 1}))
	require.Contains(fx, Effect(SetField{fieldbus.SigQualityError, 1}))

	c, _ = Transition(c, SeamSeriesStopEvent{}, p)
	_, fx = Transition(c, CycleStopEvent{}, p)
	stop, ok := findEffect[StopCycle](fx)
	require.True(ok)
	require.False(stop.InspectionOK)
	require.Contains(fx, Effect(SetBool{fieldbus.SigInspectionOK, false}))

	// only between seams of a running cycle
	c, fx = Transition(Context{}, SeamFailedEvent{Number: 1, Mask: 1}, p)
	require.Equal(Context{}, c)
	_, ok = findEffect[Violation](fx)
	require.True(ok)
}

func TestTransition_CycleStopForceClosesInOrder(t *testing.T) {
	require := require.New(t)
	p := Params{}

	c := started(t, p)
	c, _ = Transition(c, SeamSeriesStartEvent{Number: 1}, p)
	c, _ = Transition(c, SeamStartEvent{Number: 3}, p)
	c, _ = Transition(c, ResultEvent{}, p)

	c, fx := Transition(c, CycleStopEvent{}, p)
	require.Equal(Idle, c.State())

	var order []string
	for _, f := range fx {
		switch f := f.(type) {
		case Warning:
			order = append(order, "warning")
		case StopSeam:
			require.True(f.Forced)
			order = append(order, "stop-seam")
		case StopSeamSeries:
			require.True(f.Forced)
			order = append(order, "stop-series")
		case StopCycle:
			require.False(f.Forced)
			order = append(order, "stop-cycle")
		}
	}
	require.Equal([]string{"warning", "stop-seam", "warning", "stop-series", "stop-cycle"}, order)
}

func TestTransition_CycleAckDeadline(t *testing.T) {
	const limit = 3
	p := Params{CycleAckTimeout: limit}

	t.Run("ack on the last valid tick", func(t *testing.T) {
		require := require.New(t)

		c := started(t, p)
		for i := 0; i < limit; i++ {
			var fx []Effect
			c, fx = Transition(c, TickEvent{}, p)
			require.Empty(fx)
		}
		// the ack is applied before the tick that would expire the deadline
		c, fx := Transition(c, ProcessAckEvent{}, p)
		require.Contains(fx, Effect(SetBool{fieldbus.SigCycleAcknowledge, true}))
		c, fx = Transition(c, TickEvent{}, p)
		require.Empty(fx)
		require.False(c.Fault)
		require.True(c.CycleActive)
	})

	t.Run("missing ack faults", func(t *testing.T) {
		require := require.New(t)

		c := started(t, p)
		for i := 0; i < limit; i++ {
			c, _ = Transition(c, TickEvent{}, p)
		}
		c, fx := Transition(c, TickEvent{}, p)
		require.True(c.Fault)
		require.False(c.CycleActive)

		_, ok := findEffect[Fault](fx)
		require.True(ok)
		stop, ok := findEffect[StopCycle](fx)
		require.True(ok)
		require.True(stop.Forced)
		require.False(stop.InspectionOK)
		require.Contains(fx, Effect(SetBool{fieldbus.SigSystemFault, true}))

		c, fx = Transition(c, QuitFaultEvent{}, p)
		require.False(c.Fault)
		require.Contains(fx, Effect(SetBool{fieldbus.SigSystemReady, true}))
	})
}

func TestTransition_Calibration(t *testing.T) {
	require := require.New(t)

	c, fx := Transition(Context{}, CalibrationStartEvent{Type: 2}, Params{})
	require.True(c.Calibrating)
	require.Contains(fx, Effect(Calibrate{Type: 2}))

	next, fx := Transition(c, CycleStartEvent{}, Params{})
	require.Equal(c, next)
	require.IsType(Violation{}, fx[0])

	c, fx = Transition(c, CalibrationDoneEvent{Result: 0b11}, Params{})
	require.False(c.Calibrating)
	require.Contains(fx, Effect(SetField{fieldbus.SigCalibrationResult, 0b11}))
	require.Contains(fx, Effect(SetBool{fieldbus.SigCalibrationBusy, false}))
}
