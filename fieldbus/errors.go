package fieldbus

import "errors"

var (
	// ErrMisaligned indicates a string or byte block descriptor whose start bit or length is not byte aligned.
	ErrMisaligned = errors.New("fieldbus: descriptor is not byte aligned")

	// ErrOutOfRange indicates a descriptor that does not fit into the register of its device.
	ErrOutOfRange = errors.New("fieldbus: descriptor exceeds register size")

	// ErrUnknownDevice indicates a descriptor or delivery for a device that is not configured.
	ErrUnknownDevice = errors.New("fieldbus: unknown device")

	// ErrUnknownSignal indicates a signal name that is not part of the signal catalog.
	ErrUnknownSignal = errors.New("fieldbus: unknown signal")

	// ErrInvalidLength indicates a field descriptor with zero length or more than 32 bits.
	ErrInvalidLength = errors.New("fieldbus: invalid field length")
)
