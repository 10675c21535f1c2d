package fieldbus

import (
	"context"
	"sync"
)

// Device describes one fieldbus slave: its identity, register sizes and transport addressing.
// Fields that do not apply to the configured transport stay zero.
type Device struct {
	Name       string
	ID         DeviceID
	InputSize  int
	OutputSize int

	// Modbus addressing.
	Unit          uint8
	InputAddress  uint16
	OutputAddress uint16

	// CAN addressing. Registers longer than 8 bytes use consecutive identifiers, one per 8-byte chunk.
	InputCANID  uint32
	OutputCANID uint32
}

// InputHandler receives input register data delivered by a transport. offset is the byte offset
// of data inside the input register. Handlers copy data and return quickly; they run on the
// transport goroutine.
type InputHandler func(dev DeviceID, offset int, data []byte)

// Transport moves register images between the Image and the physical bus.
type Transport interface {
	// Open starts the transport. Input registers are delivered to onInput until Close.
	Open(ctx context.Context, devices []Device, onInput InputHandler) error
	// Write queues a complete output register image. It must not block on bus I/O.
	Write(dev DeviceID, data []byte) error
	// Close stops the transport and releases the bus.
	Close() error
}

// Outbox keeps the latest pending output image per device for transports that write from their
// own goroutine. Older pending images of the same device are replaced, never queued.
type Outbox struct {
	mu      sync.Mutex
	pending map[DeviceID][]byte
	order   []DeviceID
	notify  chan struct{}
}

// PendingWrite is one output image taken from an Outbox.
type PendingWrite struct {
	Device DeviceID
	Data   []byte
}

// NewOutbox creates an empty Outbox.
func NewOutbox() *Outbox {
	return &Outbox{
		pending: make(map[DeviceID][]byte),
		notify:  make(chan struct{}, 1),
	}
}

// Put stores a copy of data as the latest image of dev and wakes the writer.
func (o *Outbox) Put(dev DeviceID, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	o.mu.Lock()
	if _, ok := o.pending[dev]; !ok {
		o.order = append(o.order, dev)
	}
	o.pending[dev] = buf
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// Ready is signaled after Put.
func (o *Outbox) Ready() <-chan struct{} {
	return o.notify
}

// Take removes and returns all pending images in first-put order.
func (o *Outbox) Take() []PendingWrite {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.order) == 0 {
		return nil
	}

	out := make([]PendingWrite, 0, len(o.order))
	for _, dev := range o.order {
		out = append(out, PendingWrite{Device: dev, Data: o.pending[dev]})
		delete(o.pending, dev)
	}
	o.order = o.order[:0]

	return out
}
