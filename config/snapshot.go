package config

import (
	"encoding/binary"
	"time"

	"github.com/arloliu/go-seamctl/fieldbus"
)

// ProductNumberPolicy selects where the product number of a new cycle comes from.
type ProductNumberPolicy uint8

const (
	// ProductNumberFromFieldbus reads the product number signal.
	ProductNumberFromFieldbus ProductNumberPolicy = iota
	// ProductNumberFromClock derives a serial number from a free-running clock.
	ProductNumberFromClock
	// ProductNumberExternal uses the value last supplied by an external collaborator.
	ProductNumberExternal
)

func (p ProductNumberPolicy) String() string {
	switch p {
	case ProductNumberFromClock:
		return "clock"
	case ProductNumberExternal:
		return "external"
	default:
		return "fieldbus"
	}
}

// Machine is the [machine] section.
type Machine struct {
	TickPeriod      time.Duration
	ContinuousMode  bool
	ProductNumber   ProductNumberPolicy
	CycleAckTimeout time.Duration
	RecipeDir       string
}

// Scanmaster is the [scanmaster] section. ThreeStep and General are never both set.
type Scanmaster struct {
	Application          bool
	ThreeStep            bool
	General              bool
	LWM                  bool
	Settle               time.Duration
	SelectionTimeout     time.Duration
	ImageStartTimeout    time.Duration
	ProcessingEndTimeout time.Duration
	ResultTimeout        time.Duration
}

// S6K is the [s6k] section.
type S6K struct {
	Enabled        bool
	ImageCount     int
	InputRing      int
	OutputRing     int
	AckRetries     int
	QualityDialog  bool
	QualityTimeout time.Duration
}

// LWM is the [lwm] section.
type LWM struct {
	Enabled           bool
	Host              string
	Port              int
	ByteOrder         binary.ByteOrder
	WatchdogInterval  time.Duration
	WatchdogTimeout   time.Duration
	RetryDelay        time.Duration
	ReadTimeout       time.Duration
	FailureEscalation int
	// ResultTimeout bounds the wait for the verdict of a seam that was stopped outside the
	// SCANMASTER sequencer.
	ResultTimeout time.Duration
}

// Transport names of the [fieldbus] section.
const (
	TransportVirtual = "virtual"
	TransportModbus  = "modbus"
	TransportCAN     = "canbus"
)

// Fieldbus is the [fieldbus] section together with the device and signal sections.
type Fieldbus struct {
	Transport         string
	Address           string
	Interface         string
	Timeout           time.Duration
	PollInterval      time.Duration
	FailureEscalation int
	Devices           []fieldbus.Device
	Descriptors       []fieldbus.Descriptor
}

// Sampler is the [sampler] section.
type Sampler struct {
	Enabled         bool
	Period          time.Duration
	AnalogThreshold uint32
	Priority        int
}

// Archive is the [archive] section.
type Archive struct {
	Enabled bool
	Path    string
}

// Log is the [log] section.
type Log struct {
	Level  string
	Format string
}

// Snapshot is the immutable machine configuration.
type Snapshot struct {
	Machine    Machine
	Scanmaster Scanmaster
	S6K        S6K
	LWM        LWM
	Fieldbus   Fieldbus
	Sampler    Sampler
	Archive    Archive
	Log        Log
}

// Ticks converts d into a number of cyclic task ticks, rounding up and never below 1.
func (s *Snapshot) Ticks(d time.Duration) int {
	period := s.Machine.TickPeriod
	if period <= 0 {
		period = time.Millisecond
	}

	n := int((d + period - 1) / period)
	if n < 1 {
		n = 1
	}

	return n
}

// Default returns the configuration used for every option that is missing.
func Default() *Snapshot {
	return &Snapshot{
		Machine: Machine{
			TickPeriod:      2 * time.Millisecond,
			ProductNumber:   ProductNumberFromFieldbus,
			CycleAckTimeout: 5 * time.Second,
			RecipeDir:       "recipes",
		},
		Scanmaster: Scanmaster{
			LWM:                  true,
			Settle:               20 * time.Millisecond,
			SelectionTimeout:     500 * time.Millisecond,
			ImageStartTimeout:    2 * time.Second,
			ProcessingEndTimeout: 10 * time.Second,
			ResultTimeout:        2 * time.Second,
		},
		S6K: S6K{
			ImageCount:     16,
			InputRing:      4,
			OutputRing:     4,
			AckRetries:     250,
			QualityDialog:  true,
			QualityTimeout: time.Second,
		},
		LWM: LWM{
			Port:              3800,
			ByteOrder:         binary.LittleEndian,
			WatchdogInterval:  500 * time.Millisecond,
			WatchdogTimeout:   40 * time.Millisecond,
			RetryDelay:        time.Second,
			ReadTimeout:       100 * time.Millisecond,
			FailureEscalation: 10,
			ResultTimeout:     2 * time.Second,
		},
		Fieldbus: Fieldbus{
			Transport:         TransportVirtual,
			Timeout:           time.Second,
			PollInterval:      5 * time.Millisecond,
			FailureEscalation: 100,
		},
		Sampler: Sampler{
			Period:   time.Millisecond,
			Priority: -10,
		},
		Archive: Archive{
			Path: "seamctl.db",
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
}
