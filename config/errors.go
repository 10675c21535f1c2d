package config

import "errors"

var (
	// ErrInvalidOption indicates an option whose value cannot be used.
	ErrInvalidOption = errors.New("config: invalid option")

	// ErrUnknownTunable indicates a SetTunable call for a name that is not user tunable.
	ErrUnknownTunable = errors.New("config: unknown tunable")

	// ErrNoPath indicates Save on a store that was not loaded from a file.
	ErrNoPath = errors.New("config: store has no file path")
)
