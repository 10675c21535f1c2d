package s6k

// HandshakePhase is the position within a valid/acknowledge handshake.
type HandshakePhase uint8

const (
	HandshakeIdle HandshakePhase = iota
	HandshakeWaitAckHigh
	HandshakeWaitAckLow
)

func (p HandshakePhase) String() string {
	switch p {
	case HandshakeIdle:
		return "idle"
	case HandshakeWaitAckHigh:
		return "wait-ack-high"
	case HandshakeWaitAckLow:
		return "wait-ack-low"
	default:
		return "unknown"
	}
}

// Outcome is the result of one handshake step.
type Outcome uint8

const (
	// Pending means the handshake is idle or still running.
	Pending Outcome = iota
	// Acknowledged means the peer raised and dropped its acknowledge.
	Acknowledged
	// Aborted means the acknowledge did not change within the limit.
	Aborted
)

// Handshake is the valid/acknowledge dialog used for result blocks and quality reports. The
// owner writes the data fields, calls Begin and drives the valid output from Valid.
type Handshake struct {
	Phase   HandshakePhase
	Elapsed int
}

// Begin starts a handshake. The valid output goes high.
func (h Handshake) Begin() Handshake {
	return Handshake{Phase: HandshakeWaitAckHigh}
}

// Busy reports whether a handshake is running.
func (h Handshake) Busy() bool {
	return h.Phase != HandshakeIdle
}

// Valid is the level of the valid output.
func (h Handshake) Valid() bool {
	return h.Phase == HandshakeWaitAckHigh
}

// Step evaluates the acknowledge input once. Each wait phase allows limit ticks; the input is
// checked before the limit, so an acknowledge on the last allowed tick is accepted.
func (h Handshake) Step(ack bool, limit int) (Handshake, Outcome) {
	switch h.Phase {
	case HandshakeWaitAckHigh:
		if ack {
			return Handshake{Phase: HandshakeWaitAckLow}, Pending
		}
	case HandshakeWaitAckLow:
		if !ack {
			return Handshake{}, Acknowledged
		}
	default:
		return h, Pending
	}

	if h.Elapsed >= limit {
		return Handshake{}, Aborted
	}
	h.Elapsed++

	return h, Pending
}
