package cycle

import (
	"sync/atomic"
	"time"
)

// Serial derives product numbers from a free-running clock. Numbers are strictly increasing
// even when several cycles start within the same second.
type Serial struct {
	last atomic.Uint32
	now  func() time.Time
}

// NewSerial creates a serial that reads the wall clock through now; nil means time.Now.
func NewSerial(now func() time.Time) *Serial {
	if now == nil {
		now = time.Now
	}

	return &Serial{now: now}
}

// Next returns the next serial number.
func (s *Serial) Next() uint32 {
	v := uint32(s.now().Unix())
	for {
		last := s.last.Load()
		next := v
		if next <= last {
			next = last + 1
		}
		if s.last.CompareAndSwap(last, next) {
			return next
		}
	}
}
