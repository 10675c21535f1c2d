package cycle

import "github.com/arloliu/go-seamctl/fieldbus"

// Effect is an output of Transition that the Controller carries out.
type Effect interface {
	isEffect()
}

// StartCycle tells the process to start a cycle.
type StartCycle struct {
	Product Product
}

// StopCycle tells the process that the cycle ended.
type StopCycle struct {
	Product      Product
	Errors       uint32
	FailedSeams  int
	InspectionOK bool
	Forced       bool
}

// StartSeamSeries tells the process that a seam-series started.
type StartSeamSeries struct {
	Number int
}

// StopSeamSeries tells the process that a seam-series ended.
type StopSeamSeries struct {
	Number int
	Errors uint32
	Forced bool
}

// StartSeam tells the process to start a seam.
type StartSeam struct {
	SeamSeries int
	Number     int
}

// StopSeam tells the process that the seam ended.
type StopSeam struct {
	SeamSeries int
	Number     int
	Errors     uint32
	Results    int
	Forced     bool
}

// SeamFailed reports a seam that was never opened and counts as failed.
type SeamFailed struct {
	SeamSeries int
	Number     int
	Errors     uint32
}

// LoadSelections asks the driver to load the LWM seam selection table of a product type.
type LoadSelections struct {
	ProductType uint32
}

// SetBool writes a bit output.
type SetBool struct {
	Signal fieldbus.Signal
	Value  bool
}

// SetField writes a field output.
type SetField struct {
	Signal fieldbus.Signal
	Value  uint32
}

// Warning reports an unusual but handled situation, such as a force-closed seam.
type Warning struct {
	Msg string
}

// Violation reports a command that was dropped because it is not allowed in the current state.
type Violation struct {
	Msg string
}

// Fault reports the transition into the system fault state.
type Fault struct {
	Reason string
}

// Calibrate tells the process to run a calibration.
type Calibrate struct {
	Type uint32
}

// HomeAxis tells the process to home the axis.
type HomeAxis struct{}

func (StartCycle) isEffect() {}
func (StopCycle) isEffect() {}
func (StartSeamSeries) isEffect() {}
func (StopSeamSeries) isEffect() {}
func (StartSeam) isEffect() {}
func (StopSeam) isEffect() {}
func (SeamFailed) isEffect() {}
func (LoadSelections) isEffect() {}
func (SetBool) isEffect() {}
func (SetField) isEffect() {}
func (Warning) isEffect() {}
func (Violation) isEffect() {}
func (Fault) isEffect() {}
func (Calibrate) isEffect() {}
func (HomeAxis) isEffect() {}
