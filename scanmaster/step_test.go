package scanmaster

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-seamctl/recipe"
)

// doorFrame has three seams in series 1; seams 1 and 3 are measured.
func doorFrame() recipe.SelectionTable {
	p := &recipe.Product{
		Type: 3,
		SeamSeries: []recipe.SeamSeries{{
			Number: 1,
			Seams: []recipe.Seam{
				{LWM: recipe.LWMParams{Active: true, Program: 12}},
				{},
				{LWM: recipe.LWMParams{Active: true, Program: 14}},
			},
		}},
	}

	return p.Selections()
}

func running() Input {
	return Input{CycleActive: true, Selections: doorFrame()}
}

// runSequence evaluates Step with a process that ends every seam at once and no LWM device,
// returning the started seams and the skipped ones.
func runSequence(t *testing.T, s State, in Input, p Params) (State, []int, []int) {
	t.Helper()

	in.AcquisitionStarted = true
	in.ProcessingEnded = true

	var started, skipped []int
	for i := 0; i < 1000; i++ {
		next, fx, _ := Step(s, in, p)
		s = next
		in.Start = false
		for _, f := range fx {
			switch f := f.(type) {
			case StartSeam:
				started = append(started, f.Seam)
			case Skip:
				skipped = append(skipped, f.Seam)
			case Finished:
				return s, started, skipped
			}
		}
	}
	t.Fatal("sequence did not finish")

	return s, nil, nil
}

func flagged(count int, seams ...int) State {
	s := BeginSeries(1, count)
	for _, n := range seams {
		s.NotOK[n-1] = true
	}

	return s
}

func TestStep_GeneralProcessesEverySeam(t *testing.T) {
	require := require.New(t)

	in := running()
	in.Start = true
	in.Step = 2
	s, started, skipped := runSequence(t, flagged(3, 2), in, Params{})

	require.Equal([]int{1, 2, 3}, started)
	require.Empty(skipped)
	require.Equal(Idle, s.Phase)
}

func TestStep_ThreeStepSkipsFlaggedSeams(t *testing.T) {
	tests := []struct {
		name    string
		step    int
		started []int
		skipped []int
	}{
		{name: "first step processes all", step: 1, started: []int{1, 2, 3}},
		{name: "second step skips", step: 2, started: []int{1, 3}, skipped: []int{2}},
		{name: "third step skips", step: 3, started: []int{1, 3}, skipped: []int{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			in := running()
			in.Start = true
			in.Step = tt.step
			_, started, skipped := runSequence(t, flagged(3, 2), in, Params{ThreeStep: true})

			require.Equal(tt.started, started)
			require.Equal(tt.skipped, skipped)
		})
	}
}

func TestStep_StartViolations(t *testing.T) {
	require := require.New(t)

	in := running()
	in.Start = true
	s, fx, flow := Step(BeginSeries(1, 0), in, Params{})
	require.Equal(Idle, s.Phase)
	require.Equal(Wait, flow)
	require.Len(fx, 1)
	require.IsType(Violation{}, fx[0])

	in.CycleActive = false
	_, fx, _ = Step(BeginSeries(1, 3), in, Params{})
	require.Len(fx, 1)
	require.IsType(Violation{}, fx[0])
}

func TestStep_SelectionRequestedForMeasuredSeams(t *testing.T) {
	require := require.New(t)

	in := running()
	in.Start = true
	p := Params{LWM: true, SelectionTimeout: 5}

	s, fx, _ := Step(BeginSeries(1, 3), in, p)
	require.Equal([]Effect{ProcessingActive{On: true}}, fx)

	s, fx, flow := Step(s, in, p)
	require.Equal(WaitSelectionAck, s.Phase)
	require.Equal(Wait, flow)
	require.Equal([]Effect{RequestSelection{Series: 1, Seam: 1, Program: 12}}, fx)

	// a failed send is retried on the next tick
	in.Start = false
	in.SelectionFailed = true
	s, fx, _ = Step(s, in, p)
	require.Equal([]Effect{RequestSelection{Series: 1, Seam: 1, Program: 12}}, fx)
	require.Equal(1, s.Elapsed)

	in.SelectionFailed = false
	in.SelectionAcked = true
	s, fx, flow = Step(s, in, p)
	require.Equal(SeamActive, s.Phase)
	require.Empty(fx)
	require.Equal(Advance, flow)

	s, fx, _ = Step(s, in, p)
	require.Equal(WaitImageAcquisitionStart, s.Phase)
	require.Equal([]Effect{StartSeam{Seam: 1}}, fx)
	require.True(s.Started)
}

func TestStep_UnmeasuredSeamSkipsSelection(t *testing.T) {
	require := require.New(t)

	s := BeginSeries(1, 3)
	s.Phase = SelectLWMProgram
	s.Seam = 2

	s, fx, flow := Step(s, running(), Params{LWM: true})
	require.Equal(SeamActive, s.Phase)
	require.Empty(fx)
	require.Equal(Advance, flow)
	require.False(s.Inspect)
}

func waitingForResult() State {
	s := BeginSeries(1, 1)
	s.Phase = WaitLWMResult
	s.Seam = 1
	s.Started = true
	s.Inspect = true

	return s
}

func TestStep_ResultOnLastValidTickWins(t *testing.T) {
	require := require.New(t)

	p := Params{LWM: true, ResultTimeout: 2}
	in := running()
	s := waitingForResult()

	for i := 0; i < p.ResultTimeout; i++ {
		var fx []Effect
		s, fx, _ = Step(s, in, p)
		require.Empty(fx)
	}
	require.Equal(WaitLWMResult, s.Phase)

	in.Result = &Result{OK: true}
	s, fx, flow := Step(s, in, p)
	require.Equal(NextSeamOrFinish, s.Phase)
	require.Equal(Advance, flow)
	require.Equal([]Effect{Report{Seam: 1}}, fx)
	require.False(s.TimedOut)
}

func TestStep_MissingResultReportsOnce(t *testing.T) {
	require := require.New(t)

	p := Params{LWM: true, ResultTimeout: 2}
	in := running()
	s := waitingForResult()

	var reports []Report
	for i := 0; i < 10; i++ {
		var fx []Effect
		s, fx, _ = Step(s, in, p)
		for _, f := range fx {
			if r, ok := f.(Report); ok {
				reports = append(reports, r)
			}
		}
	}

	require.Equal([]Report{{Seam: 1, Mask: NotOKMask, Synthetic: true}}, reports)
	require.Equal(Idle, s.Phase)
	require.True(s.TimedOut)
	require.True(s.NotOK[0])
	require.False(s.Started)
}

func TestStep_NotOKResultFlagsSeam(t *testing.T) {
	require := require.New(t)

	in := running()
	in.Result = &Result{OK: false}
	before := waitingForResult()

	s, fx, _ := Step(before, in, Params{LWM: true, ResultTimeout: 2})
	require.Equal([]Effect{Report{Seam: 1, Mask: NotOKMask}}, fx)
	require.True(s.NotOK[0])
	require.False(before.NotOK[0], "caller state must not change")

	s, fx, flow := Step(s, in, Params{})
	require.Equal(Idle, s.Phase)
	require.Equal(Wait, flow)
	require.Len(fx, 3)
	require.Equal(StopSeam{Seam: 1}, fx[0])
	require.Equal(ProcessingActive{On: false}, fx[1])
	require.Equal(Finished{Step: 0, NotOK: []bool{true}}, fx[2])
}

func TestStep_DisconnectResolvesWaits(t *testing.T) {
	t.Run("selection", func(t *testing.T) {
		require := require.New(t)

		s := BeginSeries(1, 3)
		s.Phase = WaitSelectionAck
		s.Seam = 1
		in := running()
		in.Disconnected = true

		s, fx, _ := Step(s, in, Params{LWM: true, SelectionTimeout: 100})
		require.Equal(Idle, s.Phase)
		require.IsType(Timeout{}, fx[0])
		require.False(fx[0].(Timeout).Opened)
		require.Equal(AbandonSelection{}, fx[1])
		require.Equal(SeamFailed{Seam: 1, Mask: NotOKMask}, fx[2])
		require.Equal(ProcessingActive{On: false}, fx[3])
		require.Len(fx, 4)
	})

	t.Run("result", func(t *testing.T) {
		require := require.New(t)

		in := running()
		in.Disconnected = true

		s, fx, _ := Step(waitingForResult(), in, Params{LWM: true, ResultTimeout: 100})
		require.Equal(Idle, s.Phase)
		require.Contains(fx, Effect(Report{Seam: 1, Mask: NotOKMask, Synthetic: true}))
		require.Contains(fx, Effect(StopSeam{Seam: 1}))
	})
}

func TestStep_SelectionRefusedFailsSeam(t *testing.T) {
	require := require.New(t)

	s := BeginSeries(1, 3)
	s.Phase = WaitSelectionAck
	s.Seam = 3
	in := running()
	in.SelectionRefused = true

	s, fx, _ := Step(s, in, Params{LWM: true, SelectionTimeout: 100})
	require.Equal(Idle, s.Phase)
	require.Equal([]bool{false, false, true}, s.NotOK)
	require.Contains(fx, Effect(SeamFailed{Seam: 3, Mask: NotOKMask}))
	require.NotContains(fx, Effect(StopSeam{Seam: 3}))
}

func TestStep_SelectionTimeoutReportsSeamFailed(t *testing.T) {
	require := require.New(t)

	s := BeginSeries(1, 3)
	s.Phase = WaitSelectionAck
	s.Seam = 1
	p := Params{LWM: true, SelectionTimeout: 2}

	var failed []SeamFailed
	var timeouts []Timeout
	for i := 0; i < 5; i++ {
		var fx []Effect
		s, fx, _ = Step(s, running(), p)
		for _, f := range fx {
			switch f := f.(type) {
			case SeamFailed:
				failed = append(failed, f)
			case Timeout:
				timeouts = append(timeouts, f)
			}
		}
	}

	require.Equal([]SeamFailed{{Seam: 1, Mask: NotOKMask}}, failed)
	require.Len(timeouts, 1)
	require.False(timeouts[0].Opened)
	require.Equal(Idle, s.Phase)
	require.True(s.TimedOut)
}

func TestStep_SettleDelaysStop(t *testing.T) {
	require := require.New(t)

	s := waitingForResult()
	s.Phase = SeamEndSettle
	p := Params{LWM: true, Settle: 2, ResultTimeout: 5}

	for i := 0; i < p.Settle; i++ {
		var fx []Effect
		s, fx, _ = Step(s, running(), p)
		require.Empty(fx)
		require.Equal(SeamEndSettle, s.Phase)
	}

	s, fx, flow := Step(s, running(), p)
	require.Equal(WaitLWMResult, s.Phase)
	require.Equal([]Effect{StopMeasurement{}}, fx)
	require.Equal(Advance, flow)
}

func TestStep_CycleEndAborts(t *testing.T) {
	require := require.New(t)

	s := BeginSeries(1, 3)
	s.Phase = WaitSelectionAck
	s.Seam = 2

	s, fx, flow := Step(s, Input{}, Params{LWM: true})
	require.Equal(Idle, s.Phase)
	require.Equal(Wait, flow)
	require.Equal([]Effect{AbandonSelection{}, ProcessingActive{On: false}}, fx)
}
