package cycle

// EdgeKind is the kind of a level change of a boolean trigger.
type EdgeKind uint8

const (
	// NoEdge means the level did not change.
	NoEdge EdgeKind = iota
	// RisingEdge is a false to true change.
	RisingEdge
	// FallingEdge is a true to false change.
	FallingEdge
)

func (k EdgeKind) String() string {
	switch k {
	case RisingEdge:
		return "rising"
	case FallingEdge:
		return "falling"
	default:
		return "none"
	}
}

// DetectEdge compares two consecutive samples of a trigger.
func DetectEdge(prev, cur bool) EdgeKind {
	switch {
	case !prev && cur:
		return RisingEdge
	case prev && !cur:
		return FallingEdge
	default:
		return NoEdge
	}
}

// Edge holds the previous sample of exactly one trigger signal.
type Edge struct {
	prev bool
}

// Update records cur and returns the edge relative to the previous sample.
func (e *Edge) Update(cur bool) EdgeKind {
	k := DetectEdge(e.prev, cur)
	e.prev = cur

	return k
}

// Level returns the last recorded sample.
func (e *Edge) Level() bool {
	return e.prev
}
