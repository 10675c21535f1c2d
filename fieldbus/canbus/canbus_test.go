package canbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brutella/can"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-seamctl/fieldbus"
	"github.com/arloliu/go-seamctl/logger"
)

type fakeBus struct {
	mu        sync.Mutex
	handler   can.Handler
	published []can.Frame
	done      chan struct{}
}

func newFakeBus() *fakeBus {
	return &fakeBus{done: make(chan struct{})}
}

func (b *fakeBus) ConnectAndPublish() error {
	<-b.done
	return nil
}

func (b *fakeBus) Disconnect() error {
	close(b.done)
	return nil
}

func (b *fakeBus) Publish(frame can.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.published = append(b.published, frame)

	return nil
}

func (b *fakeBus) Subscribe(handler can.Handler) {
	b.handler = handler
}

func (b *fakeBus) frames() []can.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]can.Frame(nil), b.published...)
}

func TestFrames(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	frames := Frames(0x180, data)

	require.Len(t, frames, 2)
	assert.Equal(t, uint32(0x180), frames[0].ID)
	assert.Equal(t, uint8(8), frames[0].Length)
	assert.Equal(t, [8]uint8{1, 2, 3, 4, 5, 6, 7, 8}, frames[0].Data)
	assert.Equal(t, uint32(0x181), frames[1].ID)
	assert.Equal(t, uint8(2), frames[1].Length)
	assert.Equal(t, uint8(10), frames[1].Data[1])
}

func TestTransport_InputsAndOutputs(t *testing.T) {
	bus := newFakeBus()
	tr := New(bus, logger.NewMockLogger().AllowAll())

	dev := fieldbus.Device{Name: "gw", ID: fieldbus.DeviceID{ProductCode: 7}, InputSize: 12, OutputSize: 12, InputCANID: 0x200, OutputCANID: 0x280}

	var (
		mu  sync.Mutex
		got = make([]byte, 12)
	)
	onInput := func(id fieldbus.DeviceID, offset int, data []byte) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, dev.ID, id)
		copy(got[offset:], data)
	}
	require.NoError(t, tr.Open(context.Background(), []fieldbus.Device{dev}, onInput))

	bus.handler.Handle(can.Frame{ID: 0x201, Length: 4, Data: [8]uint8{9, 8, 7, 6}})
	bus.handler.Handle(can.Frame{ID: 0x300, Length: 8})

	mu.Lock()
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0, 9, 8, 7, 6}, got)
	mu.Unlock()

	require.NoError(t, tr.Write(dev.ID, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}))
	require.Eventually(t, func() bool { return len(bus.frames()) == 2 }, time.Second, time.Millisecond)

	frames := bus.frames()
	assert.Equal(t, uint32(0x280), frames[0].ID)
	assert.Equal(t, uint32(0x281), frames[1].ID)
	assert.Equal(t, uint8(4), frames[1].Length)

	require.NoError(t, tr.Close())
}

func TestTransport_DuplicateIdentifier(t *testing.T) {
	tr := New(newFakeBus(), logger.NewMockLogger().AllowAll())

	devs := []fieldbus.Device{
		{Name: "a", ID: fieldbus.DeviceID{Instance: 1}, InputSize: 16, InputCANID: 0x100},
		{Name: "b", ID: fieldbus.DeviceID{Instance: 2}, InputSize: 8, InputCANID: 0x101},
	}
	err := tr.Open(context.Background(), devs, func(fieldbus.DeviceID, int, []byte) {})
	require.Error(t, err)
}
