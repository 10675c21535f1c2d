package fieldbus

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// ReadBit returns the bit at d.StartBit. Bits outside of buf read as false.
func ReadBit(buf []byte, d Descriptor) bool {
	idx := d.StartBit / 8
	if uint64(idx) >= uint64(len(buf)) {
		return false
	}

	return buf[idx]&(1<<(d.StartBit%8)) != 0
}

// WriteBit sets or clears the bit at d.StartBit. Writes outside of buf are ignored.
func WriteBit(buf []byte, d Descriptor, value bool) {
	idx := d.StartBit / 8
	if uint64(idx) >= uint64(len(buf)) {
		return
	}

	if value {
		buf[idx] |= 1 << (d.StartBit % 8)
	} else {
		buf[idx] &^= 1 << (d.StartBit % 8)
	}
}

// ReadField extracts an unsigned field of d.Length bits starting at d.StartBit.
//
// The buffer is walked one bit at a time, LSB first within each byte; every set bit ORs the
// current mask into the result and the mask shifts left once per bit. Bits outside of buf read
// as zero and at most 32 bits are extracted.
func ReadField(buf []byte, d Descriptor) uint32 {
	length := min(d.Length, 32)

	var result uint32
	mask := uint32(1)
	for i := range length {
		bit := d.StartBit + i
		idx := bit / 8
		if uint64(idx) >= uint64(len(buf)) {
			break
		}
		if buf[idx]&(1<<(bit%8)) != 0 {
			result |= mask
		}
		mask <<= 1
	}

	return result
}

// WriteField stores the low d.Length bits of value starting at d.StartBit, using the same bit
// walk as ReadField. Bits outside of buf are ignored.
func WriteField(buf []byte, d Descriptor, value uint32) {
	length := min(d.Length, 32)

	mask := uint32(1)
	for i := range length {
		bit := d.StartBit + i
		idx := bit / 8
		if uint64(idx) >= uint64(len(buf)) {
			return
		}
		if value&mask != 0 {
			buf[idx] |= 1 << (bit % 8)
		} else {
			buf[idx] &^= 1 << (bit % 8)
		}
		mask <<= 1
	}
}

// ReadBytes returns a copy of the byte aligned block described by d.
func ReadBytes(buf []byte, d Descriptor) ([]byte, error) {
	start, end, err := byteRange(buf, d)
	if err != nil {
		return nil, err
	}

	out := make([]byte, end-start)
	copy(out, buf[start:end])

	return out, nil
}

// WriteBytes copies data into the byte aligned block described by d. Shorter data is padded with
// zero bytes, longer data is truncated.
func WriteBytes(buf []byte, d Descriptor, data []byte) error {
	start, end, err := byteRange(buf, d)
	if err != nil {
		return err
	}

	n := copy(buf[start:end], data)
	clear(buf[start+n : end])

	return nil
}

var latin1 = charmap.ISO8859_1

// ReadString decodes the byte aligned ISO-8859-1 text field described by d.
// Trailing NUL padding is removed.
func ReadString(buf []byte, d Descriptor) (string, error) {
	raw, err := ReadBytes(buf, d)
	if err != nil {
		return "", err
	}

	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}

	text, err := latin1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}

	return string(text), nil
}

// WriteString encodes s as ISO-8859-1 into the text field described by d. Characters without a
// Latin-1 representation are replaced.
func WriteString(buf []byte, d Descriptor, s string) error {
	raw, err := encoding.ReplaceUnsupported(latin1.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return err
	}

	return WriteBytes(buf, d, raw)
}

func byteRange(buf []byte, d Descriptor) (int, int, error) {
	if !d.Aligned() {
		return 0, 0, fmt.Errorf("%w: %s start=%d length=%d", ErrMisaligned, d.Signal, d.StartBit, d.Length)
	}

	start := int(d.StartBit / 8)
	end := start + int(d.Length/8)
	if end > len(buf) {
		return 0, 0, fmt.Errorf("%w: %s needs bytes [%d,%d), register has %d", ErrOutOfRange, d.Signal, start, end, len(buf))
	}

	return start, end, nil
}
