package archive

import "errors"

var (
	// ErrCycleNotFound is returned when no cycle with the requested id is archived.
	ErrCycleNotFound = errors.New("archive: cycle not found")

	// ErrRecorderStarted is returned when a Recorder is started twice.
	ErrRecorderStarted = errors.New("archive: recorder already started")
)
