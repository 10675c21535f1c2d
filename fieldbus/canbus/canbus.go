// Package canbus implements the fieldbus transport over SocketCAN.
//
// A register image is carried in consecutive CAN frames of up to 8 data bytes: chunk i of the
// input register of a device arrives with identifier InputCANID+i, chunk i of the output register
// is published with identifier OutputCANID+i.
package canbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/brutella/can"

	"github.com/arloliu/go-seamctl/fieldbus"
	"github.com/arloliu/go-seamctl/internal/task"
	"github.com/arloliu/go-seamctl/logger"
)

const frameSize = 8

// FrameBus is the subset of *can.Bus the transport uses.
type FrameBus interface {
	ConnectAndPublish() error
	Disconnect() error
	Publish(frame can.Frame) error
	Subscribe(handler can.Handler)
}

// Open opens the SocketCAN interface with the given name, e.g. "can0".
func Open(iface string) (FrameBus, error) {
	bus, err := can.NewBusForInterfaceWithName(iface)
	if err != nil {
		return nil, fmt.Errorf("canbus: open %s: %w", iface, err)
	}

	return bus, nil
}

type chunk struct {
	dev    fieldbus.DeviceID
	offset int
}

// Transport is the CAN fieldbus transport.
type Transport struct {
	bus    FrameBus
	logger logger.Logger

	mu      sync.Mutex
	mgr     *task.Manager
	ctx     context.Context
	inputs  map[uint32]chunk
	devices map[fieldbus.DeviceID]fieldbus.Device
	outbox  *fieldbus.Outbox
	onInput fieldbus.InputHandler
}

var _ fieldbus.Transport = (*Transport)(nil)

// New creates a transport on bus.
func New(bus FrameBus, l logger.Logger) *Transport {
	if l == nil {
		l = logger.GetLogger()
	}

	return &Transport{
		bus:    bus,
		logger: l.With("component", "fieldbus.canbus"),
		outbox: fieldbus.NewOutbox(),
	}
}

func (t *Transport) Open(ctx context.Context, devices []fieldbus.Device, onInput fieldbus.InputHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mgr != nil {
		return errors.New("canbus: transport already open")
	}

	t.inputs = make(map[uint32]chunk)
	t.devices = make(map[fieldbus.DeviceID]fieldbus.Device, len(devices))
	for _, dev := range devices {
		t.devices[dev.ID] = dev
		for off := 0; off < dev.InputSize; off += frameSize {
			id := dev.InputCANID + uint32(off/frameSize)
			if prev, ok := t.inputs[id]; ok {
				return fmt.Errorf("canbus: identifier %#x used by %s and %s", id, prev.dev, dev.ID)
			}
			t.inputs[id] = chunk{dev: dev.ID, offset: off}
		}
	}
	t.onInput = onInput

	t.bus.Subscribe(t)

	t.mgr = task.NewManager(ctx, t.logger)
	t.ctx = t.mgr.Context()
	err := t.mgr.Start("can-receive", func() bool {
		if err := t.bus.ConnectAndPublish(); err != nil && t.ctx.Err() == nil {
			t.logger.Error("can bus receive stopped", "error", err)
		}

		return false
	}, nil)
	if err != nil {
		return err
	}

	return t.mgr.Start("can-write", t.writeLoop, nil)
}

// Handle receives frames from the bus.
func (t *Transport) Handle(frame can.Frame) {
	c, ok := t.inputs[frame.ID]
	if !ok {
		return
	}

	n := min(int(frame.Length), frameSize)
	data := make([]byte, n)
	copy(data, frame.Data[:n])
	t.onInput(c.dev, c.offset, data)
}

// Write queues the output image for the writer task.
func (t *Transport) Write(dev fieldbus.DeviceID, data []byte) error {
	t.mu.Lock()
	_, ok := t.devices[dev]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", fieldbus.ErrUnknownDevice, dev)
	}
	t.outbox.Put(dev, data)

	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	mgr := t.mgr
	t.mgr = nil
	t.mu.Unlock()

	if mgr == nil {
		return nil
	}
	mgr.Stop()
	err := t.bus.Disconnect()
	mgr.Wait()

	return err
}

func (t *Transport) writeLoop() bool {
	select {
	case <-t.ctx.Done():
		return false
	case <-t.outbox.Ready():
	}

	for _, w := range t.outbox.Take() {
		dev := t.devices[w.Device]
		for _, frame := range Frames(dev.OutputCANID, w.Data) {
			if err := t.bus.Publish(frame); err != nil {
				t.logger.Warn("can publish failed", "device", dev.Name, "id", frame.ID, "error", err)
				break
			}
		}
	}

	return true
}

// Frames splits a register image into frames with consecutive identifiers starting at baseID.
func Frames(baseID uint32, data []byte) []can.Frame {
	frames := make([]can.Frame, 0, (len(data)+frameSize-1)/frameSize)
	for off := 0; off < len(data); off += frameSize {
		end := min(off+frameSize, len(data))
		f := can.Frame{
			ID:     baseID + uint32(off/frameSize),
			Length: uint8(end - off),
		}
		copy(f.Data[:], data[off:end])
		frames = append(frames, f)
	}

	return frames
}
