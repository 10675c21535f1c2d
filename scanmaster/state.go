package scanmaster

import "github.com/arloliu/go-seamctl/recipe"

// Phase is the position of the sequencer within one seam.
type Phase uint8

const (
	Idle Phase = iota
	SelectLWMProgram
	WaitSelectionAck
	SeamActive
	WaitImageAcquisitionStart
	WaitSeamProcessingEnd
	SeamEndSettle
	WaitLWMResult
	NextSeamOrFinish
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case SelectLWMProgram:
		return "select-lwm-program"
	case WaitSelectionAck:
		return "wait-selection-ack"
	case SeamActive:
		return "seam-active"
	case WaitImageAcquisitionStart:
		return "wait-image-acquisition-start"
	case WaitSeamProcessingEnd:
		return "wait-seam-processing-end"
	case SeamEndSettle:
		return "seam-end-settle"
	case WaitLWMResult:
		return "wait-lwm-result"
	case NextSeamOrFinish:
		return "next-seam-or-finish"
	default:
		return "unknown"
	}
}

// Flow tells the driver whether to evaluate Step again within the same tick.
type Flow uint8

const (
	// Wait ends the tick.
	Wait Flow = iota
	// Advance evaluates the next phase immediately.
	Advance
)

// NotOKMask is the quality error bit reported for a not-OK LWM result and for synthetic results.
const NotOKMask uint32 = 1 << 0

// State is the sequencer state of the active seam-series.
type State struct {
	Phase  Phase
	Series int
	Step   int
	// Seam is the current seam, numbered from 1.
	Seam int
	// NotOK has one flag per seam of the seam-series.
	NotOK []bool
	// Elapsed counts the ticks spent in the current wait phase.
	Elapsed int
	// TimedOut is set when the last sequence ended by a missed deadline.
	TimedOut bool
	// Started is set while the current seam is open in the cycle controller.
	Started bool
	// Inspect is set when the current seam is measured by the LWM device.
	Inspect bool
	Program int32
}

// Count returns the number of seams of the seam-series.
func (s State) Count() int {
	return len(s.NotOK)
}

// BeginSeries sizes the not-OK flags for a new seam-series.
func BeginSeries(series, count int) State {
	return State{Series: series, NotOK: make([]bool, count)}
}

// Params are the configuration inputs of Step. Durations are in ticks.
type Params struct {
	ThreeStep bool
	// LWM enables per-seam program selection and result collection.
	LWM                  bool
	Settle               int
	SelectionTimeout     int
	ImageStartTimeout    int
	ProcessingEndTimeout int
	ResultTimeout        int
}

// Result is an LWM seam verdict.
type Result struct {
	OK bool
}

// Input is everything Step observes in one evaluation. The one-shot observations are latched by
// the driver until the effect that makes them stale is executed.
type Input struct {
	// Start is the rising edge of the sequence start signal.
	Start       bool
	Step        int
	CycleActive bool
	Selections  recipe.SelectionTable

	SelectionAcked     bool
	SelectionRefused   bool
	SelectionFailed    bool
	Disconnected       bool
	AcquisitionStarted bool
	ProcessingEnded    bool
	Result             *Result
}
