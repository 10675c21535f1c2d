package machine

import (
	"github.com/arloliu/go-seamctl/cycle"
	"github.com/arloliu/go-seamctl/logger"
	"github.com/arloliu/go-seamctl/scanmaster"
)

// loopbackProcess stands in for the processing collaborator when none is configured. It
// acknowledges every request at once, so cycles, calibrations and SCANMASTER seams run to the
// end without hardware.
type loopbackProcess struct {
	logger logger.Logger
	ctrl   *cycle.Controller
	seq    *scanmaster.Sequencer
}

var _ cycle.Process = (*loopbackProcess)(nil)

func (p *loopbackProcess) CycleStarted(pr cycle.Product) {
	p.ctrl.Post(cycle.ProcessAckEvent{})
}

func (p *loopbackProcess) CycleStopped(s cycle.StopCycle) {}

func (p *loopbackProcess) SeamSeriesStarted(number int) {}

func (p *loopbackProcess) SeamSeriesStopped(s cycle.StopSeamSeries) {}

func (p *loopbackProcess) SeamStarted(series, seam int) {
	if p.seq == nil {
		return
	}
	p.seq.Post(scanmaster.AcquisitionStarted)
	p.seq.Post(scanmaster.ProcessingEnded)
}

func (p *loopbackProcess) SeamStopped(s cycle.StopSeam) {}

func (p *loopbackProcess) Calibrate(calibrationType uint32) {
	p.logger.Debug("calibration simulated", "calibrationType", calibrationType)
	p.ctrl.Post(cycle.CalibrationDoneEvent{})
}

func (p *loopbackProcess) HomeAxis() {
	p.logger.Debug("homing simulated")
}
