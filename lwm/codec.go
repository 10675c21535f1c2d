package lwm

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// writer appends fixed size fields in a byte order.
type writer struct {
	order binary.ByteOrder
	buf   []byte
}

func (w *writer) uint32(v uint32) {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) int32(v int32) { w.uint32(uint32(v)) }

func (w *writer) bool(v bool) {
	if v {
		w.int32(1)
	} else {
		w.int32(0)
	}
}

func (w *writer) float32(v float32) {
	w.uint32(math.Float32bits(v))
}

// text writes an int32 byte count followed by the ISO-8859-1 bytes of s.
func (w *writer) text(s string) {
	raw, err := encoding.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		raw = nil
	}
	w.int32(int32(len(raw)))
	w.buf = append(w.buf, raw...)
}

// reader consumes fixed size fields and reports ErrTruncated instead of reading past the payload.
type reader struct {
	order binary.ByteOrder
	buf   []byte
	off   int
	err   error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.off, len(r.buf)-r.off)
		return false
	}

	return true
}

func (r *reader) int32() int32 {
	if !r.need(4) {
		return 0
	}
	v := int32(r.order.Uint32(r.buf[r.off:]))
	r.off += 4

	return v
}

func (r *reader) bool() bool {
	return r.int32() != 0
}

func (r *reader) float32() float32 {
	if !r.need(4) {
		return 0
	}
	v := math.Float32frombits(r.order.Uint32(r.buf[r.off:]))
	r.off += 4

	return v
}

func (r *reader) text() string {
	n := int(r.int32())
	if !r.need(n) {
		return ""
	}
	raw := r.buf[r.off : r.off+n]
	r.off += n

	s, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		r.err = err
		return ""
	}

	return string(s)
}

// count reads an element count and checks that count elements of elemSize bytes can follow.
func (r *reader) count(elemSize int) int {
	n := int(r.int32())
	if n < 0 {
		if r.err == nil {
			r.err = fmt.Errorf("%w: negative element count %d", ErrTruncated, n)
		}
		return 0
	}
	if !r.need(n * elemSize) {
		return 0
	}

	return n
}

func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.buf) {
		return fmt.Errorf("%w: %d bytes", ErrTrailingBytes, len(r.buf)-r.off)
	}

	return nil
}

// Encode serializes t with its header.
func Encode(t Telegram, order binary.ByteOrder) []byte {
	w := &writer{order: order, buf: make([]byte, HeaderSize, HeaderSize+64)}
	encodePayload(w, t)

	order.PutUint32(w.buf[0:], uint32(t.TelegramID()))
	order.PutUint32(w.buf[4:], uint32(t.Status()))
	order.PutUint32(w.buf[8:], uint32(len(w.buf)-HeaderSize))

	return w.buf
}

func encodePayload(w *writer, t Telegram) {
	switch v := t.(type) {
	case SignOffClient, *SignOffClient, Watchdog, *Watchdog, *WatchdogAck, *StopAck:
	case *Selection:
		w.bool(v.AckRequested)
		w.bool(v.SystemActivated)
		w.int32(v.Program)
		w.text(v.Comment)
		w.int32(v.SeamSeries)
		w.int32(v.Seam)
	case *Stop:
		w.bool(v.AckRequested)
	case *SelectionAck:
		w.int32(v.Program)
	case *ErrorNotification:
		w.int32(v.Code)
		w.text(v.Comment)
	case *Trigger:
		w.int32(v.Trigger)
		w.int32(v.Program)
	case *ResultRanges:
		encodeResultRanges(w, v)
	case *ResultValuesRanges:
		encodeResultRanges(w, &v.ResultRanges)
		w.int32(int32(len(v.Sensors)))
		for _, s := range v.Sensors {
			w.int32(s.SensorID)
			w.int32(int32(len(s.Values)))
			for _, f := range s.Values {
				w.float32(f)
			}
		}
	}
}

func encodeResultRanges(w *writer, r *ResultRanges) {
	w.int32(r.Program)
	w.int32(r.ConfigID)
	w.int32(r.Overall)
	w.int32(r.Extended)
	w.float32(r.ErrorProbability)
	ts := r.Timestamp
	for _, f := range [...]int32{ts.Year, ts.Month, ts.Day, ts.Hour, ts.Minute, ts.Second, ts.Millis} {
		w.int32(f)
	}
	w.text(r.Comment)
	w.int32(int32(len(r.Ranges)))
	for _, rg := range r.Ranges {
		w.int32(rg.Index)
		w.int32(rg.Result)
	}
}

// DecodeHeader decodes a telegram header from the first HeaderSize bytes of buf.
func DecodeHeader(buf []byte, order binary.ByteOrder) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header has %d bytes", ErrTruncated, len(buf))
	}

	h := Header{
		ID:     TelegramID(int32(order.Uint32(buf[0:]))),
		Status: int32(order.Uint32(buf[4:])),
		Length: int32(order.Uint32(buf[8:])),
	}
	if h.Length < 0 || h.Length > MaxPayloadSize {
		return h, fmt.Errorf("%w: %d", ErrPayloadTooLarge, h.Length)
	}

	return h, nil
}

// DecodeFromDevice decodes a telegram sent by the device to the client.
func DecodeFromDevice(h Header, payload []byte, order binary.ByteOrder) (Telegram, error) {
	r := &reader{order: order, buf: payload}

	var t Telegram
	switch h.ID {
	case WatchdogID:
		t = &WatchdogAck{Code: h.Status}
	case SimpleIOSelectionID:
		t = &SelectionAck{Code: h.Status, Program: r.int32()}
	case SimpleIOStopID:
		t = &StopAck{Code: h.Status}
	case SimpleIOErrorID:
		t = &ErrorNotification{Code: r.int32(), Comment: r.text()}
	case SimpleIOTriggerID:
		t = &Trigger{Trigger: r.int32(), Program: r.int32()}
	case ResultRangesID:
		res := &ResultRanges{}
		decodeResultRanges(r, res)
		t = res
	case ResultValuesRangesID:
		res := &ResultValuesRanges{}
		decodeResultRanges(r, &res.ResultRanges)
		if n := r.count(8); n > 0 {
			res.Sensors = make([]SensorBlock, 0, n)
			for range n {
				s := SensorBlock{SensorID: r.int32()}
				if m := r.count(4); m > 0 {
					s.Values = make([]float32, m)
					for i := range s.Values {
						s.Values[i] = r.float32()
					}
				}
				res.Sensors = append(res.Sensors, s)
			}
		}
		t = res
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTelegram, h.ID)
	}

	if err := r.done(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", h.ID, err)
	}

	return t, nil
}

// DecodeFromClient decodes a telegram sent by a client to the device.
func DecodeFromClient(h Header, payload []byte, order binary.ByteOrder) (Telegram, error) {
	r := &reader{order: order, buf: payload}

	var t Telegram
	switch h.ID {
	case SignOffClientID:
		t = SignOffClient{}
	case WatchdogID:
		t = Watchdog{}
	case SimpleIOSelectionID:
		t = &Selection{
			AckRequested:    r.bool(),
			SystemActivated: r.bool(),
			Program:         r.int32(),
			Comment:         r.text(),
			SeamSeries:      r.int32(),
			Seam:            r.int32(),
		}
	case SimpleIOStopID:
		t = &Stop{AckRequested: r.bool()}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTelegram, h.ID)
	}

	if err := r.done(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", h.ID, err)
	}

	return t, nil
}

func decodeResultRanges(r *reader, res *ResultRanges) {
	res.Program = r.int32()
	res.ConfigID = r.int32()
	res.Overall = r.int32()
	res.Extended = r.int32()
	res.ErrorProbability = r.float32()
	res.Timestamp = Timestamp{
		Year: r.int32(), Month: r.int32(), Day: r.int32(),
		Hour: r.int32(), Minute: r.int32(), Second: r.int32(), Millis: r.int32(),
	}
	res.Comment = r.text()
	if n := r.count(8); n > 0 {
		res.Ranges = make([]Range, n)
		for i := range res.Ranges {
			res.Ranges[i] = Range{Index: r.int32(), Result: r.int32()}
		}
	}
}
