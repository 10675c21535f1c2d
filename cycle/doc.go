// Package cycle implements the automatic cycle controller.
//
// The controller turns edge-triggered fieldbus signals into the nested cycle, seam-series and
// seam lifecycle of a processing run. All decisions are made by Transition, a pure function of
// the current Context and one Event that returns the next Context together with the effects to
// carry out. Controller is the driver: it samples the fieldbus once per tick, feeds the resulting
// events through Transition and executes the effects against the process, the fieldbus outputs,
// the recipe book and any registered observers.
//
// Controller is not safe for concurrent use except for Post, which other goroutines use to hand
// over acknowledges, results and faults to the cyclic task.
package cycle
