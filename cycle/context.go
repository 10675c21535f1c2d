package cycle

import "fmt"

// State is the lifecycle position derived from a Context.
type State uint8

const (
	Idle State = iota
	CycleActive
	SeamSeriesActive
	SeamActive
)

func (s State) String() string {
	switch s {
	case CycleActive:
		return "cycle-active"
	case SeamSeriesActive:
		return "seam-series-active"
	case SeamActive:
		return "seam-active"
	default:
		return "idle"
	}
}

// Product identifies the product of a cycle.
type Product struct {
	Type   uint32
	Number uint32
	Info   string
}

func (p Product) String() string {
	return fmt.Sprintf("type=%d number=%d", p.Type, p.Number)
}

// Context is the complete controller state. The zero value is an idle controller without fault.
//
// A seam may be open without an enclosing seam-series, but never without a cycle.
type Context struct {
	CycleActive  bool
	SeriesActive bool
	SeamActive   bool

	Product    Product
	SeamSeries int
	Seam       int

	// quality error bitmasks accumulated per cycle, seam-series and seam
	CycleErrors  uint32
	SeriesErrors uint32
	SeamErrors   uint32
	// results recorded for the open seam
	SeamResults int
	// seams of the cycle that ended with quality errors or without results
	FailedSeams int
	SumError    bool

	AckArmed bool
	AckTicks int

	Fault       bool
	Calibrating bool
}

// State returns the innermost open lifecycle level.
func (c Context) State() State {
	switch {
	case c.SeamActive:
		return SeamActive
	case c.SeriesActive:
		return SeamSeriesActive
	case c.CycleActive:
		return CycleActive
	default:
		return Idle
	}
}

// InspectionOK reports whether the cycle so far has neither quality errors nor a sum error.
func (c Context) InspectionOK() bool {
	return c.CycleErrors == 0 && !c.SumError
}
