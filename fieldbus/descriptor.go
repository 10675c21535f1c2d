package fieldbus

import (
	"fmt"
)

// Direction tells whether a register is written by the host (input) or by the core (output).
type Direction uint8

const (
	// Input registers are produced by the host/line controller and consumed by the core.
	Input Direction = iota
	// Output registers are produced by the core.
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}

	return "input"
}

// Kind is the value shape of a signal.
type Kind uint8

const (
	// KindBit is a single boolean bit.
	KindBit Kind = iota
	// KindField is an unsigned integer of 1 to 32 bits.
	KindField
	// KindString is a byte aligned ISO-8859-1 text field padded with NUL bytes.
	KindString
	// KindBytes is a byte aligned raw block.
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindBit:
		return "bit"
	case KindField:
		return "field"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// DeviceID identifies a fieldbus slave the way the bus configuration does.
type DeviceID struct {
	ProductCode uint32
	VendorID    uint32
	Instance    uint32
}

func (id DeviceID) String() string {
	return fmt.Sprintf("%08x:%08x:%d", id.VendorID, id.ProductCode, id.Instance)
}

// Descriptor binds a logical signal to a bit range of a device register.
// Descriptors are immutable after loading; several descriptors may address the same register.
type Descriptor struct {
	Signal    Signal
	Device    DeviceID
	StartBit  uint32
	Length    uint32
	Direction Direction
	Kind      Kind
}

// EndBit returns the first bit after the described range.
func (d Descriptor) EndBit() uint32 {
	if d.Length == 0 {
		return d.StartBit + 1
	}

	return d.StartBit + d.Length
}

// Aligned reports whether both start bit and length fall on byte boundaries.
func (d Descriptor) Aligned() bool {
	return d.StartBit%8 == 0 && d.Length%8 == 0
}

// Validate checks the descriptor against the byte size of its register.
func (d Descriptor) Validate(registerSize int) error {
	switch d.Kind {
	case KindBit:
		if d.Length > 1 {
			return fmt.Errorf("%w: %s is a bit signal with length %d", ErrInvalidLength, d.Signal, d.Length)
		}
	case KindField:
		if d.Length == 0 || d.Length > 32 {
			return fmt.Errorf("%w: %s has length %d", ErrInvalidLength, d.Signal, d.Length)
		}
	case KindString, KindBytes:
		if d.Length == 0 {
			return fmt.Errorf("%w: %s has length 0", ErrInvalidLength, d.Signal)
		}
		if !d.Aligned() {
			return fmt.Errorf("%w: %s start=%d length=%d", ErrMisaligned, d.Signal, d.StartBit, d.Length)
		}
	}

	if uint64(d.EndBit()) > uint64(registerSize)*8 {
		return fmt.Errorf("%w: %s ends at bit %d, register has %d bytes", ErrOutOfRange, d.Signal, d.EndBit(), registerSize)
	}

	return nil
}
