package fieldbus_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-seamctl/fieldbus"
	"github.com/arloliu/go-seamctl/fieldbus/virtual"
	"github.com/arloliu/go-seamctl/logger"
)

var (
	hostIO  = fieldbus.DeviceID{ProductCode: 0x1001, VendorID: 0x00AB, Instance: 0}
	gateway = fieldbus.DeviceID{ProductCode: 0x2002, VendorID: 0x00AB, Instance: 1}
)

func testDevices() []fieldbus.Device {
	return []fieldbus.Device{
		{Name: "io", ID: hostIO, InputSize: 2, OutputSize: 2},
		{Name: "gateway", ID: gateway, InputSize: 16, OutputSize: 16},
	}
}

func testDescriptors() []fieldbus.Descriptor {
	return []fieldbus.Descriptor{
		{Signal: fieldbus.SigCycleStart, Device: hostIO, StartBit: 0, Direction: fieldbus.Input, Kind: fieldbus.KindBit},
		{Signal: fieldbus.SigSeamNumber, Device: hostIO, StartBit: 3, Length: 5, Direction: fieldbus.Input, Kind: fieldbus.KindField},
		{Signal: fieldbus.SigProductType, Device: hostIO, StartBit: 8, Length: 8, Direction: fieldbus.Input, Kind: fieldbus.KindField},
		{Signal: fieldbus.SigExtendedProductInfo, Device: gateway, StartBit: 0, Length: 64, Direction: fieldbus.Input, Kind: fieldbus.KindString},
		{Signal: fieldbus.SigSystemReady, Device: hostIO, StartBit: 0, Direction: fieldbus.Output, Kind: fieldbus.KindBit},
		{Signal: fieldbus.SigQualityError, Device: hostIO, StartBit: 4, Length: 12, Direction: fieldbus.Output, Kind: fieldbus.KindField},
		{Signal: fieldbus.SigS6KResultBlock, Device: gateway, StartBit: 32, Length: 64, Direction: fieldbus.Output, Kind: fieldbus.KindBytes},
	}
}

func newTestBus(t *testing.T) (*fieldbus.Bus, *virtual.Transport) {
	t.Helper()

	tr := virtual.New()
	bus := fieldbus.NewBus(testDevices(), testDescriptors(), tr, logger.NewMockLogger().AllowAll())
	require.NoError(t, bus.Open(context.Background()))
	t.Cleanup(func() { _ = bus.Close() })

	return bus, tr
}

func TestBus_ReadInputs(t *testing.T) {
	bus, tr := newTestBus(t)

	require.NoError(t, tr.SetInput(hostIO, 0, []byte{0b0001_1001, 7}))
	require.NoError(t, tr.SetInput(gateway, 0, []byte("P-4711\x00\x00")))

	assert.True(t, bus.Bool(fieldbus.SigCycleStart))
	assert.Equal(t, uint32(3), bus.Field(fieldbus.SigSeamNumber))
	assert.Equal(t, uint32(7), bus.Field(fieldbus.SigProductType))
	assert.Equal(t, "P-4711", bus.String(fieldbus.SigExtendedProductInfo))

	// partial delivery only touches its bytes
	require.NoError(t, tr.SetInput(hostIO, 1, []byte{9}))
	assert.True(t, bus.Bool(fieldbus.SigCycleStart))
	assert.Equal(t, uint32(9), bus.Field(fieldbus.SigProductType))
}

func TestBus_UnconfiguredSignal(t *testing.T) {
	bus, _ := newTestBus(t)

	assert.False(t, bus.Has(fieldbus.SigHomeAxis))
	assert.False(t, bus.Bool(fieldbus.SigHomeAxis))
	assert.Zero(t, bus.Field(fieldbus.SigHomeAxis))

	s := bus.BoolSender(fieldbus.SigCalibrationBusy)
	assert.False(t, s.Enabled())
	s.Send(true)
}

func TestBus_FlushOnlyDirty(t *testing.T) {
	bus, tr := newTestBus(t)

	// Open marks every output dirty once
	require.NoError(t, bus.Flush())
	assert.Equal(t, 2, tr.Writes())
	assert.Equal(t, []byte{0, 0}, tr.Output(hostIO))

	ready := bus.BoolSender(fieldbus.SigSystemReady)
	quality := bus.FieldSender(fieldbus.SigQualityError)
	require.True(t, ready.Enabled())

	ready.Send(true)
	quality.Send(0xABC)
	require.NoError(t, bus.Flush())
	assert.Equal(t, 3, tr.Writes())
	assert.Equal(t, []byte{0xC1, 0xAB}, tr.Output(hostIO))

	// unchanged values do not dirty the register
	ready.Send(true)
	require.NoError(t, bus.Flush())
	assert.Equal(t, 3, tr.Writes())

	block := bus.BytesSender(fieldbus.SigS6KResultBlock)
	block.Send([]byte{1, 2, 3})
	require.NoError(t, bus.Flush())
	assert.Equal(t, 4, tr.Writes())
	assert.Equal(t, []byte{1, 2, 3, 0, 0, 0, 0, 0}, tr.Output(gateway)[4:12])
	assert.Equal(t, []byte{1, 2, 3, 0, 0, 0, 0, 0}, bus.Bytes(fieldbus.SigS6KResultBlock))
}

func TestBus_Loopback(t *testing.T) {
	tr := virtual.New()
	tr.Loop(hostIO, hostIO)
	bus := fieldbus.NewBus(testDevices(), testDescriptors(), tr, logger.NewMockLogger().AllowAll())
	require.NoError(t, bus.Open(context.Background()))
	defer bus.Close()

	bus.BoolSender(fieldbus.SigSystemReady).Send(true)
	require.NoError(t, bus.Flush())
	assert.True(t, bus.Bool(fieldbus.SigCycleStart))
}

func TestBus_MisalignedStringIsConfigurationError(t *testing.T) {
	l := logger.NewMockLogger()
	l.On("Error", "fieldbus configuration error", mock.Anything).Once()

	descs := []fieldbus.Descriptor{
		{Signal: fieldbus.SigExtendedProductInfo, Device: gateway, StartBit: 3, Length: 64, Direction: fieldbus.Input, Kind: fieldbus.KindString},
	}
	bus := fieldbus.NewBus(testDevices(), descs, virtual.New(), l)

	assert.False(t, bus.Has(fieldbus.SigExtendedProductInfo))
	assert.Empty(t, bus.String(fieldbus.SigExtendedProductInfo))
	l.AssertExpectations(t)
}

func TestBus_UnknownDeviceIsConfigurationError(t *testing.T) {
	l := logger.NewMockLogger()
	l.On("Error", "fieldbus configuration error", mock.Anything).Once()

	descs := []fieldbus.Descriptor{
		{Signal: fieldbus.SigCycleStart, Device: fieldbus.DeviceID{ProductCode: 99}, Direction: fieldbus.Input, Kind: fieldbus.KindBit},
		{Signal: fieldbus.SigSeamStart, Device: hostIO, StartBit: 1, Direction: fieldbus.Input, Kind: fieldbus.KindBit},
	}
	bus := fieldbus.NewBus(testDevices(), descs, virtual.New(), l)

	assert.False(t, bus.Has(fieldbus.SigCycleStart))
	assert.True(t, bus.Has(fieldbus.SigSeamStart))
	l.AssertExpectations(t)
}

func TestImage_DeliverOutOfRange(t *testing.T) {
	im := fieldbus.NewImage(testDevices())

	require.ErrorIs(t, im.Deliver(hostIO, 1, []byte{1, 2}), fieldbus.ErrOutOfRange)
	require.ErrorIs(t, im.Deliver(fieldbus.DeviceID{}, 0, []byte{1}), fieldbus.ErrUnknownDevice)
	require.NoError(t, im.Deliver(hostIO, 1, []byte{5}))
	assert.Equal(t, []byte{0, 5}, im.Input(hostIO))
}

func TestOutbox_KeepsLatest(t *testing.T) {
	o := fieldbus.NewOutbox()
	o.Put(hostIO, []byte{1})
	o.Put(gateway, []byte{2})
	o.Put(hostIO, []byte{3})

	select {
	case <-o.Ready():
	default:
		t.Fatal("outbox not signaled")
	}

	got := o.Take()
	require.Len(t, got, 2)
	assert.Equal(t, hostIO, got[0].Device)
	assert.Equal(t, []byte{3}, got[0].Data)
	assert.Equal(t, gateway, got[1].Device)
	assert.Nil(t, o.Take())
}
