// Package cycletest provides a fieldbus with a complete signal map and a recording process for
// tests of the cycle controller and the components built on it.
package cycletest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/arloliu/go-seamctl/cycle"
	"github.com/arloliu/go-seamctl/fieldbus"
	"github.com/arloliu/go-seamctl/logger"
)

// Host is the single device of the test bus.
var Host = fieldbus.DeviceID{ProductCode: 0x0001_0010, VendorID: 0x0000_0002, Instance: 1}

type layout struct {
	sig    fieldbus.Signal
	start  uint32
	length uint32
}

var inputs = []layout{
	{fieldbus.SigCycleStart, 0, 1},
	{fieldbus.SigSeamSeriesStart, 1, 1},
	{fieldbus.SigSeamStart, 2, 1},
	{fieldbus.SigCalibrationStart, 3, 1},
	{fieldbus.SigHomeAxis, 4, 1},
	{fieldbus.SigQuitSystemFault, 5, 1},
	{fieldbus.SigSequenceStart, 6, 1},
	{fieldbus.SigS6KResultAck, 7, 1},
	{fieldbus.SigProductType, 8, 8},
	{fieldbus.SigProductNumber, 16, 16},
	{fieldbus.SigSeamSeriesNumber, 32, 8},
	{fieldbus.SigSeamNumber, 40, 8},
	{fieldbus.SigCalibrationType, 48, 8},
	{fieldbus.SigScanmasterStep, 56, 8},
	{fieldbus.SigS6KBatchID, 64, 32},
	{fieldbus.SigS6KSeamSeries, 96, 8},
	{fieldbus.SigS6KSeam, 104, 8},
	{fieldbus.SigS6KQualityAck, 112, 1},
	{fieldbus.SigGenericDigitalIn, 120, 8},
	{fieldbus.SigAnalogIn1, 128, 16},
	{fieldbus.SigAnalogIn2, 144, 16},
	{fieldbus.SigExtendedProductInfo, 160, 64},
}

var outputs = []layout{
	{fieldbus.SigSystemReady, 0, 1},
	{fieldbus.SigSystemFault, 1, 1},
	{fieldbus.SigCycleAcknowledge, 2, 1},
	{fieldbus.SigInspectionOK, 3, 1},
	{fieldbus.SigInspectionIncomplete, 4, 1},
	{fieldbus.SigSumErrorLatched, 5, 1},
	{fieldbus.SigSumErrorSeam, 6, 1},
	{fieldbus.SigSumErrorSeamSeries, 7, 1},
	{fieldbus.SigCalibrationBusy, 8, 1},
	{fieldbus.SigProcessingActive, 9, 1},
	{fieldbus.SigS6KResultValid, 10, 1},
	{fieldbus.SigS6KQualityValid, 11, 1},
	{fieldbus.SigQualityError, 16, 16},
	{fieldbus.SigCalibrationResult, 32, 8},
	{fieldbus.SigS6KResultIndex, 40, 8},
	{fieldbus.SigS6KBatchMirror, 64, 32},
	{fieldbus.SigS6KSeamSeriesMirror, 96, 8},
	{fieldbus.SigS6KSeamMirror, 104, 8},
	{fieldbus.SigS6KSeamErrorCat1, 128, 32},
	{fieldbus.SigS6KSeamErrorCat2, 160, 32},
	{fieldbus.SigS6KResultBlock, 256, 512},
}

// Sizes of the register images of Host.
const (
	InputSize  = 32
	OutputSize = 96
)

// Devices returns the device list of the test bus.
func Devices() []fieldbus.Device {
	return []fieldbus.Device{{Name: "host", ID: Host, InputSize: InputSize, OutputSize: OutputSize}}
}

// Descriptors returns a descriptor for every cataloged signal.
func Descriptors() []fieldbus.Descriptor {
	out := make([]fieldbus.Descriptor, 0, len(inputs)+len(outputs))
	add := func(list []layout, dir fieldbus.Direction) {
		for _, l := range list {
			_, _, kind, err := fieldbus.Lookup(string(l.sig))
			if err != nil {
				panic(err)
			}
			out = append(out, fieldbus.Descriptor{
				Signal:    l.sig,
				Device:    Host,
				StartBit:  l.start,
				Length:    l.length,
				Direction: dir,
				Kind:      kind,
			})
		}
	}
	add(inputs, fieldbus.Input)
	add(outputs, fieldbus.Output)

	return out
}

// Bus is a fieldbus without transport whose inputs are set directly by the test.
type Bus struct {
	*fieldbus.Bus

	mu sync.Mutex
	in []byte
}

// NewBus creates the test bus. A nil logger discards everything.
func NewBus(l logger.Logger) *Bus {
	if l == nil {
		l = logger.NewMockLogger().AllowAll()
	}

	return &Bus{
		Bus: fieldbus.NewBus(Devices(), Descriptors(), nil, l),
		in:  make([]byte, InputSize),
	}
}

// Set writes an input signal and delivers the whole input register.
func (b *Bus) Set(sig fieldbus.Signal, v uint32) {
	d, ok := b.Descriptor(sig)
	if !ok || d.Direction != fieldbus.Input {
		panic(fmt.Sprintf("cycletest: %s is not an input signal", sig))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if d.Kind == fieldbus.KindBit {
		fieldbus.WriteBit(b.in, d, v != 0)
	} else {
		fieldbus.WriteField(b.in, d, v)
	}
	if err := b.Image().Deliver(Host, 0, b.in); err != nil {
		panic(err)
	}
}

// SetBool writes a bit input signal.
func (b *Bus) SetBool(sig fieldbus.Signal, v bool) {
	var n uint32
	if v {
		n = 1
	}
	b.Set(sig, n)
}

// Process records every call of the cycle.Process interface as a short text line.
type Process struct {
	mu    sync.Mutex
	calls []string
}

var _ cycle.Process = (*Process)(nil)

func (p *Process) record(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *Process) CycleStarted(pr cycle.Product) {
	p.record("cycle-start type=%d number=%d", pr.Type, pr.Number)
}

func (p *Process) CycleStopped(s cycle.StopCycle) {
	p.record("cycle-stop ok=%v forced=%v", s.InspectionOK, s.Forced)
}

func (p *Process) SeamSeriesStarted(number int) {
	p.record("series-start %d", number)
}

func (p *Process) SeamSeriesStopped(s cycle.StopSeamSeries) {
	p.record("series-stop %d", s.Number)
}

func (p *Process) SeamStarted(series, seam int) {
	p.record("seam-start %d/%d", series, seam)
}

func (p *Process) SeamStopped(s cycle.StopSeam) {
	p.record("seam-stop %d/%d results=%d", s.SeamSeries, s.Number, s.Results)
}

func (p *Process) Calibrate(calibrationType uint32) {
	p.record("calibrate %d", calibrationType)
}

func (p *Process) HomeAxis() {
	p.record("home")
}

// Calls returns a copy of the recorded calls.
func (p *Process) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.calls...)
}

// Count returns the number of recorded calls starting with prefix.
func (p *Process) Count(prefix string) int {
	n := 0
	for _, c := range p.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}

	return n
}

// Reset forgets the recorded calls.
func (p *Process) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = nil
}

// INI renders the device and signal sections of the test bus in configuration file syntax.
func INI() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[fieldbus.device.host]\nvendor_id = %d\nproduct_code = %d\ninstance = %d\n",
		Host.VendorID, Host.ProductCode, Host.Instance)
	fmt.Fprintf(&b, "input_size = %d\noutput_size = %d\n\n", InputSize, OutputSize)

	for _, list := range [][]layout{inputs, outputs} {
		for _, l := range list {
			fmt.Fprintf(&b, "[signal.%s]\ndevice = host\nstart_bit = %d\nlength = %d\n\n", l.sig, l.start, l.length)
		}
	}

	return b.String()
}
