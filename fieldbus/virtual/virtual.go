// Package virtual provides an in-memory fieldbus transport. Inputs are injected by the caller and
// output writes are kept for inspection; an optional loopback feeds output registers straight back
// into input registers of another device.
package virtual

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-seamctl/fieldbus"
)

// ErrNotOpen is returned by SetInput before Open or after Close.
var ErrNotOpen = errors.New("virtual: transport is not open")

// Transport is the in-memory transport.
type Transport struct {
	mu       sync.Mutex
	onInput  fieldbus.InputHandler
	devices  map[fieldbus.DeviceID]fieldbus.Device
	outputs  map[fieldbus.DeviceID][]byte
	loopback map[fieldbus.DeviceID]fieldbus.DeviceID
	writes   atomic.Int64
}

var _ fieldbus.Transport = (*Transport)(nil)

// New creates a closed transport.
func New() *Transport {
	return &Transport{
		outputs:  make(map[fieldbus.DeviceID][]byte),
		loopback: make(map[fieldbus.DeviceID]fieldbus.DeviceID),
	}
}

// Loop feeds every output image of from into the input register of to.
func (t *Transport) Loop(from, to fieldbus.DeviceID) {
	t.mu.Lock()
	t.loopback[from] = to
	t.mu.Unlock()
}

func (t *Transport) Open(_ context.Context, devices []fieldbus.Device, onInput fieldbus.InputHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.devices = make(map[fieldbus.DeviceID]fieldbus.Device, len(devices))
	for _, dev := range devices {
		t.devices[dev.ID] = dev
	}
	t.onInput = onInput

	return nil
}

// Write stores a copy of the output image and applies the loopback.
func (t *Transport) Write(dev fieldbus.DeviceID, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	t.mu.Lock()
	if _, ok := t.devices[dev]; !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", fieldbus.ErrUnknownDevice, dev)
	}
	t.outputs[dev] = buf
	to, loop := t.loopback[dev]
	onInput := t.onInput
	t.mu.Unlock()

	t.writes.Add(1)
	if loop && onInput != nil {
		onInput(to, 0, buf)
	}

	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	t.onInput = nil
	t.mu.Unlock()

	return nil
}

// SetInput delivers data into the input register of dev at byte offset, as a bus driver would.
func (t *Transport) SetInput(dev fieldbus.DeviceID, offset int, data []byte) error {
	t.mu.Lock()
	onInput := t.onInput
	t.mu.Unlock()

	if onInput == nil {
		return ErrNotOpen
	}
	onInput(dev, offset, data)

	return nil
}

// Output returns the last output image written for dev.
func (t *Transport) Output(dev fieldbus.DeviceID) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	buf := t.outputs[dev]
	if buf == nil {
		return nil
	}
	out := make([]byte, len(buf))
	copy(out, buf)

	return out
}

// Writes returns the number of output images written since creation.
func (t *Transport) Writes() int {
	return int(t.writes.Load())
}
