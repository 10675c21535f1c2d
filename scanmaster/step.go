package scanmaster

// Step evaluates the current phase once. NotOK is copied before it is modified, so the caller's
// state is never changed.
func Step(s State, in Input, p Params) (State, []Effect, Flow) {
	if s.Phase != Idle && !in.CycleActive {
		return abort(s)
	}

	switch s.Phase {
	case Idle:
		if !in.Start {
			return s, nil, Wait
		}
		if !in.CycleActive {
			return s, []Effect{Violation{"sequence start without active cycle"}}, Wait
		}
		if s.Count() == 0 {
			return s, []Effect{Violation{"sequence start without seams in the active seam-series"}}, Wait
		}
		s.Step = in.Step
		s.Seam = 1
		s.TimedOut = false

		return enter(s, SelectLWMProgram), []Effect{ProcessingActive{On: true}}, Advance

	case SelectLWMProgram:
		if p.ThreeStep && s.Step > 1 && s.NotOK[s.Seam-1] {
			return enter(s, NextSeamOrFinish), []Effect{Skip{Seam: s.Seam}}, Advance
		}

		entry, ok := in.Selections.Lookup(s.Series, s.Seam)
		s.Inspect = p.LWM && ok && entry.Active
		s.Program = entry.Program
		if !s.Inspect {
			return enter(s, SeamActive), nil, Advance
		}

		return enter(s, WaitSelectionAck), []Effect{RequestSelection{Series: s.Series, Seam: s.Seam, Program: s.Program}}, Wait

	case WaitSelectionAck:
		switch {
		case in.SelectionAcked:
			return enter(s, SeamActive), nil, Advance
		case in.SelectionRefused:
			return fail(s, "LWM program selection refused")
		case in.Disconnected:
			return fail(s, "LWM connection lost during program selection")
		}

		var fx []Effect
		if in.SelectionFailed {
			fx = append(fx, RequestSelection{Series: s.Series, Seam: s.Seam, Program: s.Program})
		}
		if s.Elapsed >= p.SelectionTimeout {
			return fail(s, "LWM selection acknowledge missing")
		}
		s.Elapsed++

		return s, fx, Wait

	case SeamActive:
		s.Started = true

		return enter(s, WaitImageAcquisitionStart), []Effect{StartSeam{Seam: s.Seam}}, Wait

	case WaitImageAcquisitionStart:
		if in.AcquisitionStarted {
			return enter(s, WaitSeamProcessingEnd), nil, Advance
		}

		return deadline(s, p.ImageStartTimeout, "image acquisition start missing")

	case WaitSeamProcessingEnd:
		if in.ProcessingEnded {
			return enter(s, SeamEndSettle), nil, Advance
		}

		return deadline(s, p.ProcessingEndTimeout, "seam processing end missing")

	case SeamEndSettle:
		if s.Elapsed < p.Settle {
			s.Elapsed++
			return s, nil, Wait
		}
		if s.Inspect {
			return enter(s, WaitLWMResult), []Effect{StopMeasurement{}}, Advance
		}

		return enter(s, NextSeamOrFinish), nil, Advance

	case WaitLWMResult:
		switch {
		case in.Result != nil:
			var fx []Effect
			if !in.Result.OK {
				s = flag(s)
				fx = append(fx, Report{Seam: s.Seam, Mask: NotOKMask})
			} else {
				fx = append(fx, Report{Seam: s.Seam})
			}

			return enter(s, NextSeamOrFinish), fx, Advance
		case in.Disconnected:
			return fail(s, "LWM connection lost while waiting for the seam result")
		}

		return deadline(s, p.ResultTimeout, "LWM seam result missing")

	case NextSeamOrFinish:
		var fx []Effect
		if s.Started {
			fx = append(fx, StopSeam{Seam: s.Seam})
			s.Started = false
		}

		if s.Seam >= s.Count() {
			fx = append(fx,
				ProcessingActive{On: false},
				Finished{Step: s.Step, NotOK: append([]bool(nil), s.NotOK...)},
			)

			return enter(s, Idle), fx, Wait
		}
		s.Seam++

		return enter(s, SelectLWMProgram), fx, Advance
	}

	return s, nil, Wait
}

func enter(s State, phase Phase) State {
	s.Phase = phase
	s.Elapsed = 0

	return s
}

// deadline checks the tick budget of a wait phase. The observation is always checked by the
// caller before, so an input arriving on the last valid tick wins over the timeout.
func deadline(s State, limit int, cause string) (State, []Effect, Flow) {
	if s.Elapsed >= limit {
		return fail(s, cause)
	}
	s.Elapsed++

	return s, nil, Wait
}

func flag(s State) State {
	notOK := append([]bool(nil), s.NotOK...)
	notOK[s.Seam-1] = true
	s.NotOK = notOK

	return s
}

// fail ends the sequence after a missed deadline or a lost device with a synthetic not-OK result.
// A seam that was never opened is reported to the controller as failed instead.
func fail(s State, cause string) (State, []Effect, Flow) {
	fx := []Effect{Timeout{Phase: s.Phase, Seam: s.Seam, Cause: cause, Opened: s.Started}}
	if s.Phase == WaitSelectionAck {
		fx = append(fx, AbandonSelection{})
	}
	if s.Started {
		fx = append(fx,
			Report{Seam: s.Seam, Mask: NotOKMask, Synthetic: true},
			StopSeam{Seam: s.Seam},
		)
		s.Started = false
	} else {
		fx = append(fx, SeamFailed{Seam: s.Seam, Mask: NotOKMask})
	}
	fx = append(fx, ProcessingActive{On: false})

	s = flag(s)
	s.TimedOut = true

	return enter(s, Idle), fx, Wait
}

// abort drops a running sequence whose cycle has ended. The controller already closed the seam.
func abort(s State) (State, []Effect, Flow) {
	var fx []Effect
	if s.Phase == WaitSelectionAck {
		fx = append(fx, AbandonSelection{})
	}
	fx = append(fx, ProcessingActive{On: false})
	s.Started = false

	return enter(s, Idle), fx, Wait
}
