package s6k

import (
	"sync/atomic"
)

// Metrics contains atomic counters of a Pipeline.
type Metrics struct {
	// BlockSendCount indicates the number of result blocks acknowledged by the line controller.
	BlockSendCount atomic.Uint64
	// BlockAbortCount indicates the number of result blocks whose acknowledge stalled.
	BlockAbortCount atomic.Uint64
	// BlockDropCount indicates the number of blocks dropped incomplete or on a full output ring.
	BlockDropCount atomic.Uint64
	// MeasurementDropCount indicates the number of measurements that matched no block slot.
	MeasurementDropCount atomic.Uint64

	// QualitySendCount indicates the number of acknowledged quality reports.
	QualitySendCount atomic.Uint64
	// QualityAbortCount indicates the number of quality reports whose acknowledge stalled.
	QualityAbortCount atomic.Uint64

	// ResultRejectCount indicates LWM results that did not match the selected program.
	ResultRejectCount atomic.Uint64
}

func (m *Metrics) incBlockSendCount() {
	m.BlockSendCount.Add(1)
}

func (m *Metrics) incBlockAbortCount() {
	m.BlockAbortCount.Add(1)
}

func (m *Metrics) incBlockDropCount() {
	m.BlockDropCount.Add(1)
}

func (m *Metrics) incMeasurementDropCount() {
	m.MeasurementDropCount.Add(1)
}

func (m *Metrics) incQualitySendCount() {
	m.QualitySendCount.Add(1)
}

func (m *Metrics) incQualityAbortCount() {
	m.QualityAbortCount.Add(1)
}

func (m *Metrics) incResultRejectCount() {
	m.ResultRejectCount.Add(1)
}
