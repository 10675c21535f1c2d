package fieldbus

// BoolSender writes one bit output signal. The zero value and senders of unconfigured signals
// discard writes.
type BoolSender struct {
	bus  *Bus
	desc Descriptor
}

// Send sets the signal. The register is transmitted on the next Flush if the value changed.
func (s BoolSender) Send(v bool) {
	if s.bus != nil {
		s.bus.writeBool(s.desc, v)
	}
}

// Enabled reports whether the signal is configured.
func (s BoolSender) Enabled() bool {
	return s.bus != nil
}

// FieldSender writes one unsigned field output signal.
type FieldSender struct {
	bus  *Bus
	desc Descriptor
}

// Send stores the low bits of v in the field.
func (s FieldSender) Send(v uint32) {
	if s.bus != nil {
		s.bus.writeField(s.desc, v)
	}
}

// Enabled reports whether the signal is configured.
func (s FieldSender) Enabled() bool {
	return s.bus != nil
}

// BytesSender writes a raw block or text output signal.
type BytesSender struct {
	bus  *Bus
	desc Descriptor
}

// Send writes data, zero padded to the block length.
func (s BytesSender) Send(data []byte) {
	if s.bus != nil {
		s.bus.writeBytes(s.desc, data, false, "")
	}
}

// SendString writes s as ISO-8859-1 text.
func (s BytesSender) SendString(text string) {
	if s.bus != nil {
		s.bus.writeBytes(s.desc, nil, true, text)
	}
}

// Enabled reports whether the signal is configured.
func (s BytesSender) Enabled() bool {
	return s.bus != nil
}

// BoolSender returns the sender of a bit output signal.
func (b *Bus) BoolSender(sig Signal) BoolSender {
	d, ok := b.output(sig)
	if !ok {
		return BoolSender{}
	}

	return BoolSender{bus: b, desc: d}
}

// FieldSender returns the sender of a field output signal.
func (b *Bus) FieldSender(sig Signal) FieldSender {
	d, ok := b.output(sig)
	if !ok {
		return FieldSender{}
	}

	return FieldSender{bus: b, desc: d}
}

// BytesSender returns the sender of a byte block or text output signal. Misaligned blocks are
// rejected by NewBus, so a returned sender is always aligned.
func (b *Bus) BytesSender(sig Signal) BytesSender {
	d, ok := b.output(sig)
	if !ok {
		return BytesSender{}
	}

	return BytesSender{bus: b, desc: d}
}
