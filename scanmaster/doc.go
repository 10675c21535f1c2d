// Package scanmaster implements the SCANMASTER seam sequencer.
//
// The sequencer runs on top of the cycle controller. Once per tick Sequencer.Tick evaluates Step
// repeatedly until it returns Wait, so several phases can complete within one tick. Every wait
// phase has a tick-counted deadline; a missed deadline logs the missing input, reports a
// synthetic not-OK result for the seam, stops the seam, releases the processing active output
// and returns to Idle.
//
// In the three-step variant the per-seam not-OK flags survive between the steps of a
// seam-series, and steps after the first skip every seam that an earlier step flagged.
package scanmaster
