package cycle

import (
	"fmt"

	"github.com/arloliu/go-seamctl/config"
	"github.com/arloliu/go-seamctl/fieldbus"
)

// LiveProductType is the product type used when the host supplies type 0.
const LiveProductType = 1

// Params are the configuration inputs of Transition.
type Params struct {
	ProductNumber config.ProductNumberPolicy
	// CycleAckTimeout is the number of ticks the process may take to acknowledge a cycle
	// start. Zero disables the timeout.
	CycleAckTimeout int
	// Scanmaster is set when a sequencer drives the seams; seams without results are then not
	// reported as inspection incomplete because the sequencer synthesizes missing results.
	Scanmaster bool
}

// Initial returns the start-up context and the outputs that announce it.
func Initial() (Context, []Effect) {
	return Context{}, []Effect{
		SetBool{fieldbus.SigSystemFault, false},
		SetBool{fieldbus.SigSystemReady, true},
	}
}

// ResolveProductType maps the reserved type 0 to LiveProductType.
func ResolveProductType(t uint32) uint32 {
	if t == 0 {
		return LiveProductType
	}

	return t
}

// Transition applies ev to c. It never mutates its inputs.
func Transition(c Context, ev Event, p Params) (Context, []Effect) {
	var fx []Effect

	switch ev := ev.(type) {
	case CycleStartEvent:
		return cycleStart(c, ev, p)

	case CycleStopEvent:
		if !c.CycleActive {
			return c, []Effect{Violation{"cycle stop without active cycle"}}
		}
		c, fx = closeCycle(c, fx, p, false)

	case SeamSeriesStartEvent:
		switch {
		case !c.CycleActive:
			return c, []Effect{Violation{"seam-series start without active cycle"}}
		case c.SeriesActive:
			return c, []Effect{Violation{fmt.Sprintf("seam-series %d start while seam-series %d is active", ev.Number, c.SeamSeries)}}
		case c.SeamActive:
			return c, []Effect{Violation{fmt.Sprintf("seam-series %d start while seam %d is active", ev.Number, c.Seam)}}
		}
		c.SeriesActive = true
		c.SeamSeries = ev.Number
		c.SeriesErrors = 0
		fx = append(fx,
			SetBool{fieldbus.SigSumErrorSeamSeries, false},
			StartSeamSeries{Number: ev.Number},
		)

	case SeamSeriesStopEvent:
		if !c.SeriesActive {
			return c, []Effect{Violation{"seam-series stop without active seam-series"}}
		}
		if c.SeamActive {
			fx = append(fx, Warning{fmt.Sprintf("seam %d still active at seam-series stop, closing it", c.Seam)})
			c, fx = closeSeam(c, fx, p, true)
		}
		c, fx = closeSeries(c, fx, false)

	case SeamStartEvent:
		switch {
		case !c.CycleActive:
			return c, []Effect{Violation{fmt.Sprintf("seam %d start without active cycle", ev.Number)}}
		case c.SeamActive:
			return c, []Effect{Violation{fmt.Sprintf("seam %d start while seam %d is active", ev.Number, c.Seam)}}
		}
		c.SeamActive = true
		c.Seam = ev.Number
		c.SeamErrors = 0
		c.SeamResults = 0
		fx = append(fx,
			SetBool{fieldbus.SigSumErrorSeam, false},
			StartSeam{SeamSeries: c.SeamSeries, Number: ev.Number},
		)

	case SeamStopEvent:
		if !c.SeamActive {
			return c, []Effect{Violation{"seam stop without active seam"}}
		}
		c, fx = closeSeam(c, fx, p, false)

	case ResultEvent:
		if !c.SeamActive {
			return c, []Effect{Violation{"inspection result without active seam"}}
		}
		c.SeamResults++
		if ev.Mask != 0 {
			c.SeamErrors |= ev.Mask
			c.SeriesErrors |= ev.Mask
			c.CycleErrors |= ev.Mask
			c.SumError = true
			fx = append(fx,
				SetField{fieldbus.SigQualityError, c.CycleErrors},
				SetBool{fieldbus.SigSumErrorSeam, true},
				SetBool{fieldbus.SigSumErrorSeamSeries, c.SeriesActive},
				SetBool{fieldbus.SigSumErrorLatched, true},
			)
		}

	case SeamFailedEvent:
		switch {
		case !c.CycleActive:
			return c, []Effect{Violation{fmt.Sprintf("seam %d failure without active cycle", ev.Number)}}
		case c.SeamActive:
			return c, []Effect{Violation{fmt.Sprintf("seam %d failure while seam %d is active", ev.Number, c.Seam)}}
		}
		mask := ev.Mask
		if mask == 0 {
			mask = 1
		}
		c.CycleErrors |= mask
		c.SeriesErrors |= mask
		c.FailedSeams++
		c.SumError = true
		fx = append(fx,
			SetField{fieldbus.SigQualityError, c.CycleErrors},
			SetBool{fieldbus.SigSumErrorSeamSeries, c.SeriesActive},
			SetBool{fieldbus.SigSumErrorLatched, true},
			Warning{fmt.Sprintf("seam %d failed before it was opened", ev.Number)},
			SeamFailed{SeamSeries: c.SeamSeries, Number: ev.Number, Errors: mask},
		)

	case ProcessAckEvent:
		if !c.AckArmed {
			return c, nil
		}
		c.AckArmed = false
		c.AckTicks = 0
		fx = append(fx, SetBool{fieldbus.SigCycleAcknowledge, true})

	case TickEvent:
		if !c.AckArmed || p.CycleAckTimeout <= 0 {
			return c, nil
		}
		if c.AckTicks >= p.CycleAckTimeout {
			return enterFault(c, fmt.Sprintf("no cycle acknowledge within %d ticks", p.CycleAckTimeout), p)
		}
		c.AckTicks++

	case FaultEvent:
		return enterFault(c, ev.Reason, p)

	case QuitFaultEvent:
		if !c.Fault {
			return c, nil
		}
		c.Fault = false
		fx = append(fx,
			SetBool{fieldbus.SigSystemFault, false},
			SetBool{fieldbus.SigSystemReady, true},
		)

	case CalibrationStartEvent:
		switch {
		case c.CycleActive:
			return c, []Effect{Violation{"calibration rejected while a cycle is active"}}
		case c.Fault:
			return c, []Effect{Violation{"calibration rejected while the system fault is active"}}
		case c.Calibrating:
			return c, []Effect{Violation{"calibration already running"}}
		}
		c.Calibrating = true
		fx = append(fx,
			SetBool{fieldbus.SigCalibrationBusy, true},
			Calibrate{Type: ev.Type},
		)

	case CalibrationDoneEvent:
		if !c.Calibrating {
			return c, []Effect{Violation{"calibration result without running calibration"}}
		}
		c.Calibrating = false
		fx = append(fx,
			SetField{fieldbus.SigCalibrationResult, ev.Result},
			SetBool{fieldbus.SigCalibrationBusy, false},
		)

	case HomeAxisEvent:
		switch {
		case c.CycleActive:
			return c, []Effect{Violation{"homing rejected while a cycle is active"}}
		case c.Fault:
			return c, []Effect{Violation{"homing rejected while the system fault is active"}}
		}
		fx = append(fx, HomeAxis{})
	}

	return c, fx
}

func cycleStart(c Context, ev CycleStartEvent, p Params) (Context, []Effect) {
	switch {
	case c.Fault:
		return c, []Effect{Violation{"cycle start rejected while the system fault is active"}}
	case c.Calibrating:
		return c, []Effect{Violation{"cycle start rejected while a calibration is running"}}
	case c.CycleActive:
		return c, []Effect{Violation{"cycle start while a cycle is active"}}
	}

	number := ev.ProductNumber
	switch p.ProductNumber {
	case config.ProductNumberFromClock:
		number = ev.Serial
	case config.ProductNumberExternal:
		number = ev.External
	}

	next := Context{
		CycleActive: true,
		Product: Product{
			Type:   ResolveProductType(ev.ProductType),
			Number: number,
			Info:   ev.Info,
		},
		AckArmed: true,
	}

	return next, []Effect{
		SetBool{fieldbus.SigCycleAcknowledge, false},
		SetBool{fieldbus.SigInspectionOK, false},
		SetBool{fieldbus.SigInspectionIncomplete, false},
		SetBool{fieldbus.SigSumErrorLatched, false},
		SetBool{fieldbus.SigSumErrorSeamSeries, false},
		SetBool{fieldbus.SigSumErrorSeam, false},
		SetField{fieldbus.SigQualityError, 0},
		LoadSelections{ProductType: next.Product.Type},
		StartCycle{Product: next.Product},
	}
}

func closeSeam(c Context, fx []Effect, p Params, forced bool) (Context, []Effect) {
	if c.SeamResults == 0 {
		c.SumError = true
		fx = append(fx, SetBool{fieldbus.SigSumErrorLatched, true})
		if !p.Scanmaster {
			fx = append(fx,
				SetBool{fieldbus.SigInspectionIncomplete, true},
				Warning{fmt.Sprintf("seam %d ended without inspection results", c.Seam)},
			)
		}
	}
	if c.SeamErrors != 0 || c.SeamResults == 0 {
		c.FailedSeams++
	}

	fx = append(fx, StopSeam{
		SeamSeries: c.SeamSeries,
		Number:     c.Seam,
		Errors:     c.SeamErrors,
		Results:    c.SeamResults,
		Forced:     forced,
	})
	c.SeamActive = false

	return c, fx
}

func closeSeries(c Context, fx []Effect, forced bool) (Context, []Effect) {
	fx = append(fx,
		SetBool{fieldbus.SigSumErrorSeamSeries, c.SeriesErrors != 0},
		StopSeamSeries{Number: c.SeamSeries, Errors: c.SeriesErrors, Forced: forced},
	)
	c.SeriesActive = false

	return c, fx
}

// closeCycle closes any open seam and seam-series before the cycle itself.
func closeCycle(c Context, fx []Effect, p Params, forced bool) (Context, []Effect) {
	if c.SeamActive {
		fx = append(fx, Warning{fmt.Sprintf("seam %d still active at cycle stop, closing it", c.Seam)})
		c, fx = closeSeam(c, fx, p, true)
	}
	if c.SeriesActive {
		fx = append(fx, Warning{fmt.Sprintf("seam-series %d still active at cycle stop, closing it", c.SeamSeries)})
		c, fx = closeSeries(c, fx, true)
	}

	ok := c.InspectionOK() && !forced
	fx = append(fx,
		SetBool{fieldbus.SigInspectionOK, ok},
		SetBool{fieldbus.SigCycleAcknowledge, false},
		StopCycle{
			Product:      c.Product,
			Errors:       c.CycleErrors,
			FailedSeams:  c.FailedSeams,
			InspectionOK: ok,
			Forced:       forced,
		},
	)

	return Context{Fault: c.Fault, Calibrating: c.Calibrating}, fx
}

// enterFault aborts an open cycle and raises the system fault output.
func enterFault(c Context, reason string, p Params) (Context, []Effect) {
	fx := []Effect{
		Fault{Reason: reason},
		SetBool{fieldbus.SigSystemReady, false},
		SetBool{fieldbus.SigSystemFault, true},
	}
	c.Fault = true
	c.AckArmed = false

	if c.CycleActive {
		c, fx = closeCycle(c, fx, p, true)
	}

	return c, fx
}
