package cycle

// Event is an input of Transition.
type Event interface {
	isEvent()
}

// CycleStartEvent is the rising edge of the cycle start signal.
//
// ProductNumber is the value read from the fieldbus, External the last externally supplied
// number and Serial the next clock derived serial. The configured policy picks one of them.
type CycleStartEvent struct {
	ProductType   uint32
	ProductNumber uint32
	External      uint32
	Serial        uint32
	Info          string
}

// CycleStopEvent is the falling edge of the cycle start signal.
type CycleStopEvent struct{}

// SeamSeriesStartEvent is the rising edge of the seam-series start signal.
type SeamSeriesStartEvent struct {
	Number int
}

// SeamSeriesStopEvent is the falling edge of the seam-series start signal.
type SeamSeriesStopEvent struct{}

// SeamStartEvent opens a seam, from the seam start signal or from a sequencer.
type SeamStartEvent struct {
	Number int
}

// SeamStopEvent closes the open seam.
type SeamStopEvent struct{}

// ResultEvent carries one inspection result of the open seam. Mask is the quality error
// bitmask, zero means OK.
type ResultEvent struct {
	Mask uint32
}

// SeamFailedEvent reports a seam a sequencer gave up on before it was opened, with a synthetic
// quality error bitmask.
type SeamFailedEvent struct {
	Number int
	Mask   uint32
}

// ProcessAckEvent is the process acknowledging the cycle start.
type ProcessAckEvent struct{}

// TickEvent advances tick-counted timeouts. It is applied once per cyclic task tick after all
// other events of that tick.
type TickEvent struct{}

// QuitFaultEvent is the rising edge of the quit system fault signal.
type QuitFaultEvent struct{}

// FaultEvent is a fatal condition detected outside of the controller.
type FaultEvent struct {
	Reason string
}

// CalibrationStartEvent is the rising edge of the calibration start signal.
type CalibrationStartEvent struct {
	Type uint32
}

// CalibrationDoneEvent is the process finishing a calibration.
type CalibrationDoneEvent struct {
	Result uint32
}

// HomeAxisEvent is the rising edge of the home axis signal.
type HomeAxisEvent struct{}

func (CycleStartEvent) isEvent() {}
func (CycleStopEvent) isEvent() {}
func (SeamSeriesStartEvent) isEvent() {}
func (SeamSeriesStopEvent) isEvent() {}
func (SeamStartEvent) isEvent() {}
func (SeamStopEvent) isEvent() {}
func (ResultEvent) isEvent() {}
func (SeamFailedEvent) isEvent() {}
func (ProcessAckEvent) isEvent() {}
func (TickEvent) isEvent() {}
func (QuitFaultEvent) isEvent() {}
func (FaultEvent) isEvent() {}
func (CalibrationStartEvent) isEvent() {}
func (CalibrationDoneEvent) isEvent() {}
func (HomeAxisEvent) isEvent() {}
