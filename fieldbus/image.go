package fieldbus

import (
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

type register struct {
	mu    sync.RWMutex
	in    []byte
	out   []byte
	dirty bool
}

// Image holds the input and output register buffers of every configured device.
//
// Each device register is guarded by its own lock: a transport delivering inputs for one device
// never blocks readers of another.
type Image struct {
	regs *xsync.MapOf[DeviceID, *register]
}

// NewImage allocates zeroed registers for devices.
func NewImage(devices []Device) *Image {
	im := &Image{regs: xsync.NewMapOf[DeviceID, *register]()}
	for _, dev := range devices {
		im.regs.Store(dev.ID, &register{
			in:  make([]byte, dev.InputSize),
			out: make([]byte, dev.OutputSize),
		})
	}

	return im
}

// Deliver copies data into the input register of dev at byte offset.
func (im *Image) Deliver(dev DeviceID, offset int, data []byte) error {
	reg, ok := im.regs.Load(dev)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, dev)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if offset < 0 || offset+len(data) > len(reg.in) {
		return fmt.Errorf("%w: delivery [%d,%d) for %s with %d bytes", ErrOutOfRange, offset, offset+len(data), dev, len(reg.in))
	}
	copy(reg.in[offset:], data)

	return nil
}

// Input returns a copy of the input register of dev.
func (im *Image) Input(dev DeviceID) []byte {
	var out []byte
	im.view(dev, Input, func(buf []byte) {
		out = make([]byte, len(buf))
		copy(out, buf)
	})

	return out
}

// Output returns a copy of the output register of dev.
func (im *Image) Output(dev DeviceID) []byte {
	var out []byte
	im.view(dev, Output, func(buf []byte) {
		out = make([]byte, len(buf))
		copy(out, buf)
	})

	return out
}

// view calls fn with the register buffer under the read lock. fn must not retain buf.
func (im *Image) view(dev DeviceID, dir Direction, fn func(buf []byte)) bool {
	reg, ok := im.regs.Load(dev)
	if !ok {
		return false
	}

	reg.mu.RLock()
	defer reg.mu.RUnlock()

	if dir == Output {
		fn(reg.out)
	} else {
		fn(reg.in)
	}

	return true
}

// update calls fn with the output register under the write lock and marks it dirty when fn
// reports a change.
func (im *Image) update(dev DeviceID, fn func(buf []byte) bool) bool {
	reg, ok := im.regs.Load(dev)
	if !ok {
		return false
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if fn(reg.out) {
		reg.dirty = true
	}

	return true
}

// markAllDirty forces the next collect to return every output register.
func (im *Image) markAllDirty() {
	im.regs.Range(func(_ DeviceID, reg *register) bool {
		reg.mu.Lock()
		reg.dirty = true
		reg.mu.Unlock()

		return true
	})
}

// collect returns copies of all dirty output registers and clears their dirty flags.
func (im *Image) collect() []PendingWrite {
	var out []PendingWrite
	im.regs.Range(func(dev DeviceID, reg *register) bool {
		reg.mu.Lock()
		if reg.dirty && len(reg.out) > 0 {
			buf := make([]byte, len(reg.out))
			copy(buf, reg.out)
			out = append(out, PendingWrite{Device: dev, Data: buf})
		}
		reg.dirty = false
		reg.mu.Unlock()

		return true
	})

	return out
}
