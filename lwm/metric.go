package lwm

import (
	"sync/atomic"
)

// Metrics contains atomic counters of a Client.
type Metrics struct {
	// TelegramSendCount indicates the number of telegrams written to the device.
	TelegramSendCount atomic.Uint64
	// TelegramRecvCount indicates the number of telegrams decoded from the device.
	TelegramRecvCount atomic.Uint64
	// TelegramErrCount indicates the number of write, framing and decode errors.
	TelegramErrCount atomic.Uint64

	// WatchdogSendCount indicates the number of watchdog telegrams sent.
	WatchdogSendCount atomic.Uint64
	// WatchdogAckCount indicates the number of watchdog acknowledges received.
	WatchdogAckCount atomic.Uint64
	// WatchdogMissCount indicates the number of watchdog acknowledges that did not arrive in time.
	WatchdogMissCount atomic.Uint64

	// SelectionRejectCount indicates selections refused because another one was pending.
	SelectionRejectCount atomic.Uint64

	// ConnRetryGauge indicates the number of consecutive failed connection attempts.
	ConnRetryGauge atomic.Uint32
}

func (m *Metrics) incTelegramSendCount() {
	m.TelegramSendCount.Add(1)
}

func (m *Metrics) incTelegramRecvCount() {
	m.TelegramRecvCount.Add(1)
}

func (m *Metrics) incTelegramErrCount() {
	m.TelegramErrCount.Add(1)
}

func (m *Metrics) incWatchdogSendCount() {
	m.WatchdogSendCount.Add(1)
}

func (m *Metrics) incWatchdogAckCount() {
	m.WatchdogAckCount.Add(1)
}

func (m *Metrics) incWatchdogMissCount() {
	m.WatchdogMissCount.Add(1)
}

func (m *Metrics) incSelectionRejectCount() {
	m.SelectionRejectCount.Add(1)
}

func (m *Metrics) incConnRetryGauge() uint32 {
	return m.ConnRetryGauge.Add(1)
}

func (m *Metrics) resetConnRetryGauge() {
	m.ConnRetryGauge.Store(0)
}
