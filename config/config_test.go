package config

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-seamctl/fieldbus"
	"github.com/arloliu/go-seamctl/logger"
)

func TestLoad(t *testing.T) {
	require := require.New(t)

	store, err := Load("testdata/machine.ini", logger.GetLogger())
	require.NoError(err)
	require.Empty(store.Issues())

	s := store.Snapshot()
	require.Equal(time.Millisecond, s.Machine.TickPeriod)
	require.Equal(ProductNumberFromClock, s.Machine.ProductNumber)
	require.Equal(5000, s.Ticks(s.Machine.CycleAckTimeout))

	require.True(s.Scanmaster.Application)
	require.True(s.Scanmaster.ThreeStep)
	require.False(s.Scanmaster.General)
	require.Equal(300*time.Millisecond, s.Scanmaster.SelectionTimeout)
	require.Equal(2*time.Second, s.Scanmaster.ImageStartTimeout)

	require.Equal(8, s.S6K.ImageCount)

	require.True(s.LWM.Enabled)
	require.Equal("192.168.10.20", s.LWM.Host)
	require.Equal(binary.BigEndian, s.LWM.ByteOrder)
	require.Equal(1500*time.Millisecond, s.LWM.ResultTimeout)

	require.Equal(TransportModbus, s.Fieldbus.Transport)
	require.Len(s.Fieldbus.Devices, 1)
	dev := s.Fieldbus.Devices[0]
	require.Equal("plc", dev.Name)
	require.Equal(fieldbus.DeviceID{ProductCode: 0x044c2c52, VendorID: 2, Instance: 1}, dev.ID)
	require.Equal(uint16(100), dev.OutputAddress)

	require.Len(s.Fieldbus.Descriptors, 4)
	byName := make(map[fieldbus.Signal]fieldbus.Descriptor)
	for _, d := range s.Fieldbus.Descriptors {
		byName[d.Signal] = d
	}
	require.Equal(fieldbus.Descriptor{
		Signal: fieldbus.SigProductType, Device: dev.ID, StartBit: 8, Length: 8,
		Direction: fieldbus.Input, Kind: fieldbus.KindField,
	}, byName[fieldbus.SigProductType])
	require.Equal(uint32(1), byName[fieldbus.SigCycleStart].Length)
	require.Equal(fieldbus.Output, byName[fieldbus.SigCycleAcknowledge].Direction)
	require.NotContains(byName, fieldbus.SigHomeAxis)

	require.Equal(uint32(1200), s.Sampler.AnalogThreshold)
	require.Equal("/var/lib/seamctl/archive.db", s.Archive.Path)
	require.Equal("console", s.Log.Format)
}

func TestParse_Defaults(t *testing.T) {
	require := require.New(t)

	store, err := Parse([]byte(""), logger.GetLogger())
	require.NoError(err)
	require.Empty(store.Issues())
	require.Equal(Default(), store.Snapshot())
}

func TestParse_InvalidOptionsUseDefaults(t *testing.T) {
	require := require.New(t)

	l := logger.NewMockLogger()
	l.On("Error", "configuration error", mock.Anything).Times(6)
	l.On("Info", mock.Anything, mock.Anything).Maybe()

	data := strings.Join([]string{
		"[machine]",
		"tick_period = fast",
		"product_number = random",
		"[scanmaster]",
		"three_step = true",
		"general = true",
		"[lwm]",
		"enabled = true",
		"[signal.no_such_signal]",
		"device = plc",
		"[signal.cycle_start]",
		"device = missing",
	}, "\n")

	store, err := Parse([]byte(data), l)
	require.NoError(err)
	require.Len(store.Issues(), 6)
	for _, issue := range store.Issues() {
		require.ErrorIs(issue, ErrInvalidOption)
	}

	s := store.Snapshot()
	def := Default()
	require.Equal(def.Machine.TickPeriod, s.Machine.TickPeriod)
	require.Equal(ProductNumberFromFieldbus, s.Machine.ProductNumber)
	require.False(s.Scanmaster.ThreeStep)
	require.True(s.Scanmaster.General)
	require.False(s.LWM.Enabled)
	require.Empty(s.Fieldbus.Descriptors)

	l.AssertExpectations(t)
}

func TestSnapshot_Ticks(t *testing.T) {
	s := &Snapshot{Machine: Machine{TickPeriod: 2 * time.Millisecond}}

	require.Equal(t, 1, s.Ticks(0))
	require.Equal(t, 1, s.Ticks(time.Millisecond))
	require.Equal(t, 1, s.Ticks(2*time.Millisecond))
	require.Equal(t, 2, s.Ticks(3*time.Millisecond))
	require.Equal(t, 2500, s.Ticks(5*time.Second))
}

func TestStore_SetTunable(t *testing.T) {
	require := require.New(t)

	src, err := os.ReadFile("testdata/machine.ini")
	require.NoError(err)
	path := filepath.Join(t.TempDir(), "machine.ini")
	require.NoError(os.WriteFile(path, src, 0o600))

	store, err := Load(path, logger.GetLogger())
	require.NoError(err)
	before := store.Snapshot()

	require.ErrorIs(store.SetTunable("lwm.host", "10.0.0.1"), ErrUnknownTunable)
	require.ErrorIs(store.SetTunable(TunableAnalogThreshold, "high"), ErrInvalidOption)

	require.NoError(store.SetTunable(TunableAnalogThreshold, "1500"))
	require.Equal(uint32(1500), store.Snapshot().Sampler.AnalogThreshold)
	require.Equal(uint32(1200), before.Sampler.AnalogThreshold)
	require.NoError(store.Save())

	reloaded, err := Load(path, logger.GetLogger())
	require.NoError(err)
	require.Equal(uint32(1500), reloaded.Snapshot().Sampler.AnalogThreshold)
	require.Equal("192.168.10.20", reloaded.Snapshot().LWM.Host)
}

func TestStore_SaveWithoutPath(t *testing.T) {
	store, err := Parse([]byte("[sampler]\nanalog_threshold = 10\n"), logger.GetLogger())
	require.NoError(t, err)
	require.ErrorIs(t, store.Save(), ErrNoPath)

	var sb strings.Builder
	_, err = store.WriteTo(&sb)
	require.NoError(t, err)
	require.Contains(t, sb.String(), "analog_threshold")
}

func TestParse_ScanmasterExcludesS6K(t *testing.T) {
	require := require.New(t)

	l := logger.NewMockLogger()
	l.On("Error", "configuration error", mock.Anything).Once()
	l.On("Info", mock.Anything, mock.Anything).Maybe()

	store, err := Parse([]byte("[scanmaster]\napplication = true\n[s6k]\nenabled = true\n"), l)
	require.NoError(err)
	require.Len(store.Issues(), 1)
	require.True(store.Snapshot().Scanmaster.Application)
	require.False(store.Snapshot().S6K.Enabled)
	l.AssertExpectations(t)
}
