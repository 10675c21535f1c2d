package fieldbus

import (
	"context"
	"fmt"

	"github.com/arloliu/go-seamctl/logger"
)

// Bus maps logical signals onto the register image and moves dirty output registers to the
// transport. Reads and writes of unconfigured signals are no-ops that return zero values.
type Bus struct {
	logger    logger.Logger
	image     *Image
	devices   []Device
	transport Transport
	descs     map[Signal]Descriptor
}

// NewBus creates a bus for devices with the given signal descriptors.
//
// Descriptors that reference an unknown device or do not fit their register are configuration
// errors: they are logged and skipped, the remaining descriptors stay usable.
func NewBus(devices []Device, descs []Descriptor, tr Transport, l logger.Logger) *Bus {
	if l == nil {
		l = logger.GetLogger()
	}
	b := &Bus{
		logger:    l.With("component", "fieldbus"),
		image:     NewImage(devices),
		devices:   devices,
		transport: tr,
		descs:     make(map[Signal]Descriptor, len(descs)),
	}

	sizes := make(map[DeviceID]Device, len(devices))
	for _, dev := range devices {
		sizes[dev.ID] = dev
	}

	for _, d := range descs {
		dev, ok := sizes[d.Device]
		if !ok {
			b.logger.Error("fieldbus configuration error", "signal", d.Signal, "error", fmt.Errorf("%w: %s", ErrUnknownDevice, d.Device))
			continue
		}

		size := dev.InputSize
		if d.Direction == Output {
			size = dev.OutputSize
		}
		if err := d.Validate(size); err != nil {
			b.logger.Error("fieldbus configuration error", "signal", d.Signal, "error", err)
			continue
		}
		b.descs[d.Signal] = d
	}

	return b
}

// Open starts the transport. Input registers delivered by the transport update the image.
func (b *Bus) Open(ctx context.Context) error {
	if b.transport == nil {
		return nil
	}
	// outputs start from a known all-zero state on the bus
	b.image.markAllDirty()

	return b.transport.Open(ctx, b.devices, b.deliver)
}

// Close stops the transport.
func (b *Bus) Close() error {
	if b.transport == nil {
		return nil
	}

	return b.transport.Close()
}

func (b *Bus) deliver(dev DeviceID, offset int, data []byte) {
	if err := b.image.Deliver(dev, offset, data); err != nil {
		b.logger.Warn("input delivery dropped", "device", dev, "error", err)
	}
}

// Image returns the register image.
func (b *Bus) Image() *Image {
	return b.image
}

// Devices returns the configured devices.
func (b *Bus) Devices() []Device {
	return b.devices
}

// Descriptor returns the descriptor of sig and whether it is configured.
func (b *Bus) Descriptor(sig Signal) (Descriptor, bool) {
	d, ok := b.descs[sig]
	return d, ok
}

// Has reports whether sig is configured.
func (b *Bus) Has(sig Signal) bool {
	_, ok := b.descs[sig]
	return ok
}

// Bool reads a bit signal.
func (b *Bus) Bool(sig Signal) bool {
	d, ok := b.descs[sig]
	if !ok {
		return false
	}

	var v bool
	b.image.view(d.Device, d.Direction, func(buf []byte) {
		if d.Kind == KindBit {
			v = ReadBit(buf, d)
		} else {
			v = ReadField(buf, d) != 0
		}
	})

	return v
}

// Field reads an unsigned field signal.
func (b *Bus) Field(sig Signal) uint32 {
	d, ok := b.descs[sig]
	if !ok {
		return 0
	}

	var v uint32
	b.image.view(d.Device, d.Direction, func(buf []byte) {
		if d.Kind == KindBit {
			if ReadBit(buf, d) {
				v = 1
			}
		} else {
			v = ReadField(buf, d)
		}
	})

	return v
}

// String reads a text signal. A misaligned descriptor is logged and reads as empty.
func (b *Bus) String(sig Signal) string {
	d, ok := b.descs[sig]
	if !ok {
		return ""
	}

	var (
		s   string
		err error
	)
	b.image.view(d.Device, d.Direction, func(buf []byte) {
		s, err = ReadString(buf, d)
	})
	if err != nil {
		b.logger.Error("fieldbus configuration error", "signal", sig, "error", err)
		return ""
	}

	return s
}

// Bytes reads a raw block signal.
func (b *Bus) Bytes(sig Signal) []byte {
	d, ok := b.descs[sig]
	if !ok {
		return nil
	}

	var (
		out []byte
		err error
	)
	b.image.view(d.Device, d.Direction, func(buf []byte) {
		out, err = ReadBytes(buf, d)
	})
	if err != nil {
		b.logger.Error("fieldbus configuration error", "signal", sig, "error", err)
		return nil
	}

	return out
}

// Flush hands every dirty output register to the transport. It never waits for bus I/O.
func (b *Bus) Flush() error {
	if b.transport == nil {
		return nil
	}

	var firstErr error
	for _, w := range b.image.collect() {
		if err := b.transport.Write(w.Device, w.Data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("fieldbus flush %s: %w", w.Device, err)
		}
	}

	return firstErr
}

func (b *Bus) output(sig Signal) (Descriptor, bool) {
	d, ok := b.descs[sig]
	if !ok {
		return Descriptor{}, false
	}
	if d.Direction != Output {
		b.logger.Warn("write to input signal ignored", "signal", sig)
		return Descriptor{}, false
	}

	return d, true
}

func (b *Bus) writeBool(d Descriptor, v bool) {
	b.image.update(d.Device, func(buf []byte) bool {
		if d.Kind == KindBit {
			if ReadBit(buf, d) == v {
				return false
			}
			WriteBit(buf, d, v)

			return true
		}

		var n uint32
		if v {
			n = 1
		}
		if ReadField(buf, d) == n {
			return false
		}
		WriteField(buf, d, n)

		return true
	})
}

func (b *Bus) writeField(d Descriptor, v uint32) {
	b.image.update(d.Device, func(buf []byte) bool {
		if d.Kind == KindBit {
			bit := v != 0
			if ReadBit(buf, d) == bit {
				return false
			}
			WriteBit(buf, d, bit)

			return true
		}

		if ReadField(buf, d) == v {
			return false
		}
		WriteField(buf, d, v)

		return true
	})
}

func (b *Bus) writeBytes(d Descriptor, data []byte, text bool, s string) {
	var err error
	b.image.update(d.Device, func(buf []byte) bool {
		before, rerr := ReadBytes(buf, d)
		if rerr != nil {
			err = rerr
			return false
		}
		if text {
			err = WriteString(buf, d, s)
		} else {
			err = WriteBytes(buf, d, data)
		}
		if err != nil {
			return false
		}
		after, _ := ReadBytes(buf, d)

		return string(before) != string(after)
	})
	if err != nil {
		b.logger.Error("fieldbus configuration error", "signal", d.Signal, "error", err)
	}
}
