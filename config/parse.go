package config

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/arloliu/go-seamctl/fieldbus"
	"github.com/arloliu/go-seamctl/logger"
)

const (
	deviceSectionPrefix = "fieldbus.device."
	signalSectionPrefix = "signal."
)

// parser reads typed options and records every unusable value as a configuration error.
type parser struct {
	logger logger.Logger
	issues []error
}

func (p *parser) invalid(section, key string, err error) {
	err = fmt.Errorf("%w: [%s] %s: %w", ErrInvalidOption, section, key, err)
	p.issues = append(p.issues, err)
	p.logger.Error("configuration error", "section", section, "key", key, "error", err)
}

func (p *parser) boolean(sec *ini.Section, key string, def bool) bool {
	if !sec.HasKey(key) {
		return def
	}

	v, err := sec.Key(key).Bool()
	if err != nil {
		p.invalid(sec.Name(), key, err)
		return def
	}

	return v
}

func (p *parser) integer(sec *ini.Section, key string, def, low, high int) int {
	if !sec.HasKey(key) {
		return def
	}

	v, err := sec.Key(key).Int()
	if err != nil {
		p.invalid(sec.Name(), key, err)
		return def
	}
	if v < low || v > high {
		p.invalid(sec.Name(), key, fmt.Errorf("%d out of range [%d, %d]", v, low, high))
		return def
	}

	return v
}

func (p *parser) unsigned(sec *ini.Section, key string, def uint32) uint32 {
	if !sec.HasKey(key) {
		return def
	}

	v, err := sec.Key(key).Uint64()
	if err != nil {
		p.invalid(sec.Name(), key, err)
		return def
	}
	if v > math.MaxUint32 {
		p.invalid(sec.Name(), key, fmt.Errorf("%d exceeds 32 bits", v))
		return def
	}

	return uint32(v)
}

func (p *parser) duration(sec *ini.Section, key string, def, low time.Duration) time.Duration {
	if !sec.HasKey(key) {
		return def
	}

	v, err := sec.Key(key).Duration()
	if err != nil {
		p.invalid(sec.Name(), key, err)
		return def
	}
	if v < low {
		p.invalid(sec.Name(), key, fmt.Errorf("%s is below %s", v, low))
		return def
	}

	return v
}

func (p *parser) choice(sec *ini.Section, key, def string, allowed ...string) string {
	if !sec.HasKey(key) {
		return def
	}

	v := strings.ToLower(strings.TrimSpace(sec.Key(key).String()))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	p.invalid(sec.Name(), key, fmt.Errorf("%q is not one of %s", v, strings.Join(allowed, ", ")))

	return def
}

func (p *parser) str(sec *ini.Section, key, def string) string {
	if !sec.HasKey(key) {
		return def
	}

	return strings.TrimSpace(sec.Key(key).String())
}

func (p *parser) parse(file *ini.File) *Snapshot {
	s := Default()

	p.machine(file.Section("machine"), &s.Machine)
	p.scanmaster(file.Section("scanmaster"), &s.Scanmaster)
	p.s6k(file.Section("s6k"), &s.S6K)
	p.lwm(file.Section("lwm"), &s.LWM)
	p.fieldbus(file, &s.Fieldbus)
	p.sampler(file.Section("sampler"), &s.Sampler)

	if s.Scanmaster.Application && s.S6K.Enabled {
		p.invalid("s6k", "enabled", errors.New("the S6K pipeline cannot run together with the SCANMASTER sequencer"))
		s.S6K.Enabled = false
	}

	arch := file.Section("archive")
	s.Archive.Enabled = p.boolean(arch, "enabled", s.Archive.Enabled)
	s.Archive.Path = p.str(arch, "path", s.Archive.Path)

	lg := file.Section("log")
	s.Log.Level = p.choice(lg, "level", s.Log.Level, "debug", "info", "warn", "error", "fatal")
	s.Log.Format = p.choice(lg, "format", s.Log.Format, "json", "console")

	return s
}

func (p *parser) machine(sec *ini.Section, m *Machine) {
	m.TickPeriod = p.duration(sec, "tick_period", m.TickPeriod, 100*time.Microsecond)
	m.ContinuousMode = p.boolean(sec, "continuous_mode", m.ContinuousMode)
	m.CycleAckTimeout = p.duration(sec, "cycle_ack_timeout", m.CycleAckTimeout, m.TickPeriod)
	m.RecipeDir = p.str(sec, "recipe_dir", m.RecipeDir)

	switch p.choice(sec, "product_number", m.ProductNumber.String(), "fieldbus", "clock", "external") {
	case "clock":
		m.ProductNumber = ProductNumberFromClock
	case "external":
		m.ProductNumber = ProductNumberExternal
	default:
		m.ProductNumber = ProductNumberFromFieldbus
	}
}

func (p *parser) scanmaster(sec *ini.Section, sm *Scanmaster) {
	sm.Application = p.boolean(sec, "application", sm.Application)
	sm.ThreeStep = p.boolean(sec, "three_step", sm.ThreeStep)
	sm.General = p.boolean(sec, "general", sm.General)
	sm.LWM = p.boolean(sec, "lwm", sm.LWM)
	sm.Settle = p.duration(sec, "settle", sm.Settle, 0)
	sm.SelectionTimeout = p.duration(sec, "selection_timeout", sm.SelectionTimeout, time.Millisecond)
	sm.ImageStartTimeout = p.duration(sec, "image_start_timeout", sm.ImageStartTimeout, time.Millisecond)
	sm.ProcessingEndTimeout = p.duration(sec, "processing_end_timeout", sm.ProcessingEndTimeout, time.Millisecond)
	sm.ResultTimeout = p.duration(sec, "result_timeout", sm.ResultTimeout, time.Millisecond)

	// the general application processes every seam, the safe choice when both are requested
	if sm.ThreeStep && sm.General {
		p.invalid(sec.Name(), "three_step", errors.New("three_step and general are mutually exclusive"))
		sm.ThreeStep = false
	}
}

func (p *parser) s6k(sec *ini.Section, c *S6K) {
	c.Enabled = p.boolean(sec, "enabled", c.Enabled)
	c.ImageCount = p.integer(sec, "image_count", c.ImageCount, 1, 1024)
	c.InputRing = p.integer(sec, "input_ring", c.InputRing, 1, 64)
	c.OutputRing = p.integer(sec, "output_ring", c.OutputRing, 1, 64)
	c.AckRetries = p.integer(sec, "ack_retries", c.AckRetries, 1, math.MaxInt32)
	c.QualityDialog = p.boolean(sec, "quality_dialog", c.QualityDialog)
	c.QualityTimeout = p.duration(sec, "quality_timeout", c.QualityTimeout, time.Millisecond)
}

func (p *parser) lwm(sec *ini.Section, c *LWM) {
	c.Enabled = p.boolean(sec, "enabled", c.Enabled)
	c.Host = p.str(sec, "host", c.Host)
	c.Port = p.integer(sec, "port", c.Port, 1, 65535)
	c.WatchdogInterval = p.duration(sec, "watchdog_interval", c.WatchdogInterval, time.Millisecond)
	c.WatchdogTimeout = p.duration(sec, "watchdog_timeout", c.WatchdogTimeout, time.Millisecond)
	c.RetryDelay = p.duration(sec, "retry_delay", c.RetryDelay, time.Millisecond)
	c.ReadTimeout = p.duration(sec, "read_timeout", c.ReadTimeout, time.Millisecond)
	c.FailureEscalation = p.integer(sec, "failure_escalation", c.FailureEscalation, 1, math.MaxInt32)
	c.ResultTimeout = p.duration(sec, "result_timeout", c.ResultTimeout, time.Millisecond)

	if p.choice(sec, "byte_order", "little", "little", "big") == "big" {
		c.ByteOrder = binary.BigEndian
	} else {
		c.ByteOrder = binary.LittleEndian
	}

	if c.Enabled && c.Host == "" {
		p.invalid(sec.Name(), "host", errors.New("LWM communication is enabled without a host"))
		c.Enabled = false
	}
}

func (p *parser) sampler(sec *ini.Section, c *Sampler) {
	c.Enabled = p.boolean(sec, "enabled", c.Enabled)
	c.Period = p.duration(sec, "period", c.Period, 100*time.Microsecond)
	c.AnalogThreshold = p.unsigned(sec, "analog_threshold", c.AnalogThreshold)
	c.Priority = p.integer(sec, "priority", c.Priority, -20, 19)
}

func (p *parser) fieldbus(file *ini.File, c *Fieldbus) {
	sec := file.Section("fieldbus")
	c.Transport = p.choice(sec, "transport", c.Transport, TransportVirtual, TransportModbus, TransportCAN)
	c.Address = p.str(sec, "address", c.Address)
	c.Interface = p.str(sec, "interface", c.Interface)
	c.Timeout = p.duration(sec, "timeout", c.Timeout, time.Millisecond)
	c.PollInterval = p.duration(sec, "poll_interval", c.PollInterval, 100*time.Microsecond)
	c.FailureEscalation = p.integer(sec, "failure_escalation", c.FailureEscalation, 1, math.MaxInt32)

	if c.Transport == TransportModbus && c.Address == "" {
		p.invalid(sec.Name(), "address", errors.New("modbus transport needs an address"))
		c.Transport = TransportVirtual
	}
	if c.Transport == TransportCAN && c.Interface == "" {
		p.invalid(sec.Name(), "interface", errors.New("canbus transport needs an interface"))
		c.Transport = TransportVirtual
	}

	byName := make(map[string]fieldbus.DeviceID)
	for _, s := range file.Sections() {
		name, ok := strings.CutPrefix(s.Name(), deviceSectionPrefix)
		if !ok || name == "" {
			continue
		}

		dev := fieldbus.Device{
			Name: name,
			ID: fieldbus.DeviceID{
				ProductCode: p.unsigned(s, "product_code", 0),
				VendorID:    p.unsigned(s, "vendor_id", 0),
				Instance:    p.unsigned(s, "instance", 0),
			},
			InputSize:     p.integer(s, "input_size", 0, 0, 4096),
			OutputSize:    p.integer(s, "output_size", 0, 0, 4096),
			Unit:          uint8(p.integer(s, "unit", 1, 0, 247)),
			InputAddress:  uint16(p.integer(s, "input_address", 0, 0, math.MaxUint16)),
			OutputAddress: uint16(p.integer(s, "output_address", 0, 0, math.MaxUint16)),
			InputCANID:    p.unsigned(s, "input_can_id", 0),
			OutputCANID:   p.unsigned(s, "output_can_id", 0),
		}

		if _, dup := byName[name]; dup {
			p.invalid(s.Name(), "", errors.New("duplicate device section"))
			continue
		}
		byName[name] = dev.ID
		c.Devices = append(c.Devices, dev)
	}

	for _, s := range file.Sections() {
		name, ok := strings.CutPrefix(s.Name(), signalSectionPrefix)
		if !ok || name == "" {
			continue
		}
		if !p.boolean(s, "enabled", true) {
			continue
		}

		sig, dir, kind, err := fieldbus.Lookup(name)
		if err != nil {
			p.invalid(s.Name(), "", err)
			continue
		}

		devName := p.str(s, "device", "")
		id, ok := byName[devName]
		if !ok {
			p.invalid(s.Name(), "device", fmt.Errorf("%w: %q", fieldbus.ErrUnknownDevice, devName))
			continue
		}

		defLen := 0
		if kind == fieldbus.KindBit {
			defLen = 1
		}
		c.Descriptors = append(c.Descriptors, fieldbus.Descriptor{
			Signal:    sig,
			Device:    id,
			StartBit:  p.unsigned(s, "start_bit", 0),
			Length:    uint32(p.integer(s, "length", defLen, 0, 65535)),
			Direction: dir,
			Kind:      kind,
		})
	}
}
