package scanmaster

import (
	"errors"

	"github.com/arloliu/go-seamctl/cycle"
	"github.com/arloliu/go-seamctl/fieldbus"
	"github.com/arloliu/go-seamctl/internal/queue"
	"github.com/arloliu/go-seamctl/logger"
	"github.com/arloliu/go-seamctl/lwm"
	"github.com/arloliu/go-seamctl/recipe"
)

// maxAdvance bounds the phase evaluations of one tick.
const maxAdvance = 1 << 16

// Cycle is the part of the cycle controller the sequencer drives. *cycle.Controller implements it.
type Cycle interface {
	Context() cycle.Context
	Selections() recipe.SelectionTable
	SeamCount(series int) int
	Apply(ev cycle.Event)
}

// Signals is the fieldbus view of the sequencer. *fieldbus.Bus implements it.
type Signals interface {
	Bool(sig fieldbus.Signal) bool
	Field(sig fieldbus.Signal) uint32
	BoolSender(sig fieldbus.Signal) fieldbus.BoolSender
}

// LWM is the part of the LWM client the sequencer uses. *lwm.Client implements it.
type LWM interface {
	RequestSelection(sel lwm.Selection) error
	AbandonSelection()
	RequestStop(ackRequested bool) error
}

// Observation is an input the process collaborator reports from its own goroutine.
type Observation uint8

const (
	// AcquisitionStarted reports that image acquisition of the open seam started.
	AcquisitionStarted Observation = iota + 1
	// ProcessingEnded reports that processing of the open seam ended.
	ProcessingEnded
)

// Sequencer drives Step from the cyclic task.
type Sequencer struct {
	logger     logger.Logger
	params     Params
	cycle      Cycle
	signals    Signals
	lwm        LWM
	processing fieldbus.BoolSender

	state     State
	in        Input
	startEdge cycle.Edge
	posted    *queue.Queue[Observation]
}

// New creates a sequencer. lwm may be nil when no LWM device is configured; Params.LWM is then
// ignored.
func New(c Cycle, signals Signals, client LWM, p Params, l logger.Logger) *Sequencer {
	if l == nil {
		l = logger.GetLogger()
	}
	if client == nil {
		p.LWM = false
	}

	return &Sequencer{
		logger:     l.With("component", "scanmaster"),
		params:     p,
		cycle:      c,
		signals:    signals,
		lwm:        client,
		processing: signals.BoolSender(fieldbus.SigProcessingActive),
		posted:     queue.New[Observation](),
	}
}

// State returns the current sequencer state.
func (s *Sequencer) State() State {
	return s.state
}

// Post hands an observation over from another goroutine.
func (s *Sequencer) Post(o Observation) {
	s.posted.Enqueue(o)
}

// Observe follows the seam-series lifecycle of the cycle controller. Register it with
// cycle.Controller.AddObserver.
func (s *Sequencer) Observe(_ cycle.Context, fx cycle.Effect) {
	switch fx := fx.(type) {
	case cycle.StartSeamSeries:
		s.reset()
		s.state = BeginSeries(fx.Number, s.cycle.SeamCount(fx.Number))
		s.logger.Debug("seam-series taken over", "seamSeries", fx.Number, "seams", s.state.Count())

	case cycle.StopSeamSeries, cycle.StopCycle:
		s.reset()
		s.state = State{}
	}
}

// HandleLWM latches LWM client events. It runs on the cyclic task.
func (s *Sequencer) HandleLWM(ev lwm.Event) {
	switch ev.Kind {
	case lwm.EventDisconnected:
		s.in.Disconnected = true
		return
	case lwm.EventConnected:
		return
	}

	switch t := ev.Telegram.(type) {
	case *lwm.SelectionAck:
		if t.Code != 0 {
			s.in.SelectionRefused = true
		} else {
			s.in.SelectionAcked = true
		}
	case *lwm.ResultRanges:
		s.in.Result = &Result{OK: t.OK()}
	case *lwm.ResultValuesRanges:
		s.in.Result = &Result{OK: t.OK()}
	}
}

// Tick evaluates the sequencer until it waits for the next tick.
func (s *Sequencer) Tick() {
	s.posted.Drain(func(o Observation) {
		switch o {
		case AcquisitionStarted:
			s.in.AcquisitionStarted = true
		case ProcessingEnded:
			s.in.ProcessingEnded = true
		}
	})

	ctx := s.cycle.Context()
	s.in.Start = s.startEdge.Update(s.signals.Bool(fieldbus.SigSequenceStart)) == cycle.RisingEdge
	s.in.Step = int(s.signals.Field(fieldbus.SigScanmasterStep))
	s.in.CycleActive = ctx.CycleActive
	s.in.Selections = s.cycle.Selections()

	for i := 0; ; i++ {
		if i == maxAdvance {
			s.logger.Error("sequencer did not settle within one tick", "phase", s.state.Phase, "seam", s.state.Seam)
			break
		}

		next, fx, flow := Step(s.state, s.in, s.params)
		s.state = next
		s.in.Start = false
		for _, f := range fx {
			s.execute(f)
		}
		if flow == Wait {
			break
		}
	}
}

func (s *Sequencer) execute(fx Effect) {
	switch fx := fx.(type) {
	case RequestSelection:
		s.in.SelectionAcked = false
		s.in.SelectionRefused = false
		s.in.SelectionFailed = false
		s.in.Disconnected = false

		err := s.lwm.RequestSelection(lwm.Selection{
			AckRequested:    true,
			SystemActivated: true,
			Program:         fx.Program,
			SeamSeries:      int32(fx.Series),
			Seam:            int32(fx.Seam),
		})
		if err != nil {
			s.in.SelectionFailed = true
			s.logger.Debug("LWM selection not sent", "seam", fx.Seam, "program", fx.Program, "error", err)
		}

	case AbandonSelection:
		s.lwm.AbandonSelection()

	case StartSeam:
		s.in.AcquisitionStarted = false
		s.in.ProcessingEnded = false
		s.in.Result = nil
		s.in.Disconnected = false
		s.cycle.Apply(cycle.SeamStartEvent{Number: fx.Seam})

	case StopSeam:
		s.cycle.Apply(cycle.SeamStopEvent{})

	case StopMeasurement:
		if err := s.lwm.RequestStop(false); err != nil && !errors.Is(err, lwm.ErrNotConnected) {
			s.logger.Warn("LWM stop not sent", "seam", s.state.Seam, "error", err)
		}

	case Report:
		s.cycle.Apply(cycle.ResultEvent{Mask: fx.Mask})

	case ProcessingActive:
		s.processing.Send(fx.On)

	case SeamFailed:
		s.cycle.Apply(cycle.SeamFailedEvent{Number: fx.Seam, Mask: fx.Mask})

	case Timeout:
		msg := "seam aborted, synthetic not-OK result reported"
		if !fx.Opened {
			msg = "seam failed before it was opened, reported not-OK"
		}
		s.logger.Error(msg, "cause", fx.Cause, "phase", fx.Phase, "seam", fx.Seam, "step", s.state.Step)

	case Skip:
		s.logger.Info("seam skipped, flagged not-OK by an earlier step", "seam", fx.Seam, "step", s.state.Step)

	case Finished:
		failed := 0
		for _, v := range fx.NotOK {
			if v {
				failed++
			}
		}
		s.logger.Info("sequence finished", "step", fx.Step, "seams", len(fx.NotOK), "notOK", failed)

	case Violation:
		s.logger.Warn("sequence start dropped", "reason", fx.Msg)
	}
}

// reset releases what a running sequence holds when its seam-series or cycle ends.
func (s *Sequencer) reset() {
	if s.state.Phase == Idle {
		return
	}

	s.logger.Warn("sequence interrupted", "phase", s.state.Phase, "seam", s.state.Seam)
	if s.state.Phase == WaitSelectionAck && s.lwm != nil {
		s.lwm.AbandonSelection()
	}
	s.processing.Send(false)
}
