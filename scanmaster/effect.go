package scanmaster

// Effect is an output of Step that the Sequencer carries out.
type Effect interface {
	isEffect()
}

// RequestSelection selects the LWM program of a seam.
type RequestSelection struct {
	Series  int
	Seam    int
	Program int32
}

// AbandonSelection forgets an unacknowledged selection.
type AbandonSelection struct{}

// StartSeam opens the seam in the cycle controller.
type StartSeam struct {
	Seam int
}

// StopSeam closes the seam in the cycle controller.
type StopSeam struct {
	Seam int
}

// StopMeasurement ends the LWM measurement of the seam.
type StopMeasurement struct{}

// Report hands a seam result to the cycle controller.
type Report struct {
	Seam      int
	Mask      uint32
	Synthetic bool
}

// SeamFailed reports a seam that failed before it was opened.
type SeamFailed struct {
	Seam int
	Mask uint32
}

// ProcessingActive drives the processing active output.
type ProcessingActive struct {
	On bool
}

// Timeout reports a missed deadline.
type Timeout struct {
	Phase Phase
	Seam  int
	Cause string
	// Opened is set when the seam was open in the cycle controller.
	Opened bool
}

// Skip reports a seam that is not processed because an earlier step flagged it not-OK.
type Skip struct {
	Seam int
}

// Finished reports the end of a sequence.
type Finished struct {
	Step  int
	NotOK []bool
}

// Violation reports a sequence start that was dropped.
type Violation struct {
	Msg string
}

func (RequestSelection) isEffect() {}
func (AbandonSelection) isEffect() {}
func (StartSeam) isEffect() {}
func (StopSeam) isEffect() {}
func (StopMeasurement) isEffect() {}
func (Report) isEffect() {}
func (SeamFailed) isEffect() {}
func (ProcessingActive) isEffect() {}
func (Timeout) isEffect() {}
func (Skip) isEffect() {}
func (Finished) isEffect() {}
func (Violation) isEffect() {}
