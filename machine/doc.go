// Package machine wires the seamctl runtime together.
//
// A Machine owns the fieldbus, the LWM client, the cycle controller and the optional cycle
// drivers built on it: the SCANMASTER sequencer or the S6K result pipeline. One cyclic task
// drains the LWM events, ticks the controller and the active driver and flushes the outputs.
// A second task samples the generic sensor inputs at its own period with raised priority.
// Cycle records are archived to SQLite by a dedicated writer task.
//
//	store, err := config.Load("seamctl.ini", l)
//	...
//	m, err := machine.New(ctx, store, machine.WithLogger(l))
//	...
//	err = m.Run(ctx) // returns after ctx is canceled
package machine
