package lwm

import "errors"

var (
	// ErrTruncated indicates a payload that ends before all of its fields were read.
	ErrTruncated = errors.New("lwm: unexpected end of telegram")

	// ErrUnknownTelegram indicates a telegram id this client does not understand.
	ErrUnknownTelegram = errors.New("lwm: unknown telegram id")

	// ErrPayloadTooLarge indicates a header length that is negative or exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("lwm: invalid payload length")

	// ErrTrailingBytes indicates a payload with bytes left after all fields were decoded.
	ErrTrailingBytes = errors.New("lwm: trailing bytes in telegram")

	// ErrSelectionPending is returned when a selection is requested while another one is not acknowledged yet.
	ErrSelectionPending = errors.New("lwm: selection already pending")

	// ErrNotConnected is returned when a request is made without a device connection.
	ErrNotConnected = errors.New("lwm: not connected")

	// ErrClientClosed is returned by requests after Close.
	ErrClientClosed = errors.New("lwm: client closed")

	// ErrConfigNil is returned by options applied to a nil Config.
	ErrConfigNil = errors.New("lwm: config is nil")

	// ErrInvalidTransition indicates a connection state change that is not allowed from the current state.
	ErrInvalidTransition = errors.New("lwm: invalid connection state transition")
)
