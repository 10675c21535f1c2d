package modbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-seamctl/fieldbus"
	"github.com/arloliu/go-seamctl/logger"
)

type fakeClient struct {
	mu     sync.Mutex
	inputs []byte
	fail   bool
	writes map[uint16][]byte
}

func (c *fakeClient) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail {
		return nil, errors.New("connection refused")
	}
	out := make([]byte, int(quantity)*2)
	copy(out, c.inputs)

	return out, nil
}

func (c *fakeClient) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if int(quantity)*2 != len(value) {
		return nil, errors.New("quantity mismatch")
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	c.writes[address] = buf

	return nil, nil
}

func (c *fakeClient) written(address uint16) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.writes[address]
}

type delivery struct {
	mu   sync.Mutex
	data map[fieldbus.DeviceID][]byte
}

func (d *delivery) handle(dev fieldbus.DeviceID, offset int, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf := make([]byte, offset+len(data))
	copy(buf[offset:], data)
	d.data[dev] = buf
}

func (d *delivery) get(dev fieldbus.DeviceID) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.data[dev]
}

func TestTransport_PollAndWrite(t *testing.T) {
	client := &fakeClient{inputs: []byte{0x11, 0x22, 0x33}, writes: make(map[uint16][]byte)}
	var units []uint8
	factory := func(_ string, unit uint8, _ time.Duration) (RegisterClient, func() error) {
		units = append(units, unit)
		return client, func() error { return nil }
	}

	dev := fieldbus.Device{Name: "io", ID: fieldbus.DeviceID{ProductCode: 1}, InputSize: 3, OutputSize: 3, Unit: 2, InputAddress: 100, OutputAddress: 200}
	tr := New(Config{Address: "127.0.0.1:502", PollInterval: time.Millisecond}, factory, logger.NewMockLogger().AllowAll())

	d := &delivery{data: make(map[fieldbus.DeviceID][]byte)}
	require.NoError(t, tr.Open(context.Background(), []fieldbus.Device{dev}, d.handle))
	defer tr.Close()

	assert.Equal(t, []uint8{2}, units)

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]byte{0x11, 0x22, 0x33}, d.get(dev.ID))
	}, time.Second, time.Millisecond)

	require.NoError(t, tr.Write(dev.ID, []byte{1, 2, 3}))
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]byte{1, 2, 3, 0}, client.written(200))
	}, time.Second, time.Millisecond)

	require.ErrorIs(t, tr.Write(fieldbus.DeviceID{ProductCode: 9}, []byte{1}), fieldbus.ErrUnknownDevice)
}

func TestTransport_RegisterSizeLimit(t *testing.T) {
	factory := func(string, uint8, time.Duration) (RegisterClient, func() error) {
		return &fakeClient{}, nil
	}
	tr := New(Config{}, factory, logger.NewMockLogger().AllowAll())

	dev := fieldbus.Device{Name: "big", InputSize: 300}
	err := tr.Open(context.Background(), []fieldbus.Device{dev}, func(fieldbus.DeviceID, int, []byte) {})
	require.ErrorIs(t, err, ErrRegisterSize)
}

func TestTransport_FailureEscalation(t *testing.T) {
	client := &fakeClient{fail: true, writes: make(map[uint16][]byte)}
	l := logger.NewMockLogger()
	l.On("Warn", "modbus request failed", mock.Anything).Once()
	l.On("Error", "modbus device unreachable", mock.Anything).Once()
	l.On("Info", "modbus device recovered", mock.Anything).Once()

	tr := New(Config{FailureEscalation: 3}, func(string, uint8, time.Duration) (RegisterClient, func() error) {
		return client, nil
	}, l)

	dev := fieldbus.Device{Name: "io", InputSize: 2}
	tr.devices = map[fieldbus.DeviceID]fieldbus.Device{dev.ID: dev}
	tr.units = map[uint8]*unit{0: {client: client}}
	tr.onInput = func(fieldbus.DeviceID, int, []byte) {}

	for range 3 {
		tr.poll()
	}
	client.fail = false
	tr.poll()

	l.AssertExpectations(t)
}
