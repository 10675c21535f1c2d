package machine

import (
	"errors"

	"github.com/arloliu/go-seamctl/cycle"
	"github.com/arloliu/go-seamctl/logger"
	"github.com/arloliu/go-seamctl/lwm"
)

// NotOKMask is the quality error bit reported for a not-OK LWM result of an edge-driven seam.
const NotOKMask uint32 = 1 << 0

// inspector couples the LWM device to seams opened by the seam start signal. It selects the
// program of the seam when it starts. When the seam start signal falls it stops the measurement
// and holds the seam open until the verdict arrives or timeout ticks passed, then reports the
// verdict as the seam result.
type inspector struct {
	logger  logger.Logger
	ctrl    *cycle.Controller
	lwm     LWMClient
	timeout int

	open      bool
	requested bool
	acked     bool
	reported  bool
	program   int32

	// waiting is set while the seam is held for its verdict
	waiting bool
	elapsed int
}

func newInspector(ctrl *cycle.Controller, client LWMClient, timeout int, l logger.Logger) *inspector {
	return &inspector{
		logger:  l.With("component", "inspector"),
		ctrl:    ctrl,
		lwm:     client,
		timeout: timeout,
	}
}

// observe is registered as a cycle.Observer.
func (in *inspector) observe(_ cycle.Context, fx cycle.Effect) {
	switch fx := fx.(type) {
	case cycle.StartSeam:
		in.open = true
		in.requested = false
		in.acked = false
		in.reported = false
		in.waiting = false

		entry, ok := in.ctrl.Selections().Lookup(fx.SeamSeries, fx.Number)
		if !ok || !entry.Active {
			return
		}
		in.program = entry.Program
		in.request(fx.SeamSeries, fx.Number)

	case cycle.StopSeam:
		if in.requested && !in.acked {
			// the seam is over, its selection can no longer be acknowledged in time
			in.lwm.AbandonSelection()
		}
		in.open = false
		in.requested = false
		in.waiting = false
	}
}

func (in *inspector) request(series, seam int) {
	sel := lwm.Selection{
		AckRequested:    true,
		SystemActivated: true,
		Program:         in.program,
		SeamSeries:      int32(series),
		Seam:            int32(seam),
	}

	err := in.lwm.RequestSelection(sel)
	switch {
	case errors.Is(err, lwm.ErrSelectionPending):
		in.logger.Warn("command dropped", "reason", "LWM selection while another selection is pending",
			"seamSeries", series, "seam", seam, "program", sel.Program)
	case err != nil:
		in.logger.Warn("LWM selection not sent", "seamSeries", series, "seam", seam, "program", sel.Program, "error", err)
	default:
		in.requested = true
	}
}

// HoldSeam implements cycle.SeamHolder. A measured seam without verdict stays open while the
// device finishes the measurement.
func (in *inspector) HoldSeam() bool {
	if !in.open || !in.acked || in.reported {
		return false
	}

	if err := in.lwm.RequestStop(false); err != nil {
		in.logger.Warn("LWM stop not sent", "program", in.program, "error", err)
		return false
	}
	in.waiting = true
	in.elapsed = 0

	return true
}

// tick advances the verdict deadline of a held seam. It runs on the cyclic task after the
// controller.
func (in *inspector) tick() {
	if !in.waiting {
		return
	}
	if in.elapsed < in.timeout {
		in.elapsed++
		return
	}

	in.logger.Warn("LWM seam result missing, synthetic not-OK result reported", "program", in.program, "ticks", in.timeout)
	in.synthesize()
}

func (in *inspector) synthesize() {
	in.reported = true
	in.waiting = false
	in.ctrl.Apply(cycle.ResultEvent{Mask: NotOKMask})
	in.ctrl.ReleaseSeam()
}

// handle consumes an LWM client event on the cyclic task.
func (in *inspector) handle(ev lwm.Event) {
	if ev.Kind == lwm.EventDisconnected {
		if in.waiting {
			in.logger.Warn("LWM connection lost while waiting for the seam result, synthetic not-OK result reported",
				"program", in.program)
			in.synthesize()
		}
		in.requested = in.requested && in.acked

		return
	}
	if ev.Kind != lwm.EventTelegram {
		return
	}

	switch t := ev.Telegram.(type) {
	case *lwm.SelectionAck:
		if !in.requested || in.acked {
			return
		}
		if t.Code != 0 {
			in.logger.Warn("LWM program selection refused", "program", in.program, "code", t.Code)
			in.requested = false

			return
		}
		in.acked = true

	case *lwm.ResultRanges:
		in.result(t)
	case *lwm.ResultValuesRanges:
		in.result(&t.ResultRanges)
	}
}

func (in *inspector) result(r *lwm.ResultRanges) {
	if !in.open || !in.acked || in.reported || r.Program != in.program {
		in.logger.Warn("LWM result not attributed", "program", r.Program, "selected", in.program, "seamOpen", in.open)
		return
	}
	in.reported = true

	var mask uint32
	if !r.OK() {
		mask = NotOKMask
	}
	in.ctrl.Apply(cycle.ResultEvent{Mask: mask})

	if in.waiting {
		in.waiting = false
		in.ctrl.ReleaseSeam()
	}
}
