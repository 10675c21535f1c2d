package lwm

import (
	"fmt"
	"time"
)

// TelegramID identifies the telegram type in the header.
type TelegramID int32

// Telegram ids. Acknowledges of selection, stop and watchdog carry the id of the request.
const (
	SignOffClientID      TelegramID = 0x0002
	WatchdogID           TelegramID = 0x0003
	SimpleIOSelectionID  TelegramID = 0x0101
	SimpleIOStopID       TelegramID = 0x0102
	SimpleIOErrorID      TelegramID = 0x0103
	SimpleIOTriggerID    TelegramID = 0x0104
	ResultRangesID       TelegramID = 0x0201
	ResultValuesRangesID TelegramID = 0x0202
)

func (id TelegramID) String() string {
	switch id {
	case SignOffClientID:
		return "SignOffClient"
	case WatchdogID:
		return "Watchdog"
	case SimpleIOSelectionID:
		return "SimpleIOSelection"
	case SimpleIOStopID:
		return "SimpleIOStop"
	case SimpleIOErrorID:
		return "SimpleIOError"
	case SimpleIOTriggerID:
		return "SimpleIOTrigger"
	case ResultRangesID:
		return "ResultRanges"
	case ResultValuesRangesID:
		return "ResultValuesRanges"
	default:
		return fmt.Sprintf("Telegram(%#x)", int32(id))
	}
}

// HeaderSize is the size of the telegram header in bytes.
const HeaderSize = 12

// MaxPayloadSize limits the payload length accepted from a header.
const MaxPayloadSize = 1 << 20

// Header is the fixed telegram header.
type Header struct {
	ID     TelegramID
	Status int32
	Length int32
}

// Telegram is implemented by every telegram payload type.
type Telegram interface {
	TelegramID() TelegramID
	// Status returns the header status transmitted with the telegram.
	Status() int32
}

// Client to device telegrams.

// SignOffClient announces an orderly disconnect.
type SignOffClient struct{}

// Watchdog is the periodic liveness request.
type Watchdog struct{}

// Selection selects the measurement program for the next seam.
type Selection struct {
	AckRequested    bool
	SystemActivated bool
	Program         int32
	Comment         string
	SeamSeries      int32
	Seam            int32
}

// Stop ends the measurement of the current seam.
type Stop struct {
	AckRequested bool
}

// Device to client telegrams.

// WatchdogAck answers a Watchdog.
type WatchdogAck struct {
	Code int32
}

// SelectionAck answers a Selection with the selected program.
type SelectionAck struct {
	Code    int32
	Program int32
}

// StopAck answers a Stop.
type StopAck struct {
	Code int32
}

// ErrorNotification reports a device side error.
type ErrorNotification struct {
	Code    int32
	Comment string
}

// Trigger notifies a measurement trigger of the running program.
type Trigger struct {
	Trigger int32
	Program int32
}

// Timestamp is the device time of a measurement.
type Timestamp struct {
	Year, Month, Day             int32
	Hour, Minute, Second, Millis int32
}

// Time converts the timestamp to a time in loc.
func (ts Timestamp) Time(loc *time.Location) time.Time {
	return time.Date(int(ts.Year), time.Month(ts.Month), int(ts.Day),
		int(ts.Hour), int(ts.Minute), int(ts.Second), int(ts.Millis)*int(time.Millisecond), loc)
}

// TimestampOf converts t to a device timestamp.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp{
		Year: int32(t.Year()), Month: int32(t.Month()), Day: int32(t.Day()),
		Hour: int32(t.Hour()), Minute: int32(t.Minute()), Second: int32(t.Second()),
		Millis: int32(t.Nanosecond() / int(time.Millisecond)),
	}
}

// Range is the result of one evaluation range of a seam.
type Range struct {
	Index  int32
	Result int32
}

// Result values. Everything but ResultOK is a not-OK seam.
const (
	ResultOK    int32 = 0
	ResultNotOK int32 = 1
)

// ResultRanges is the seam result with per range verdicts.
type ResultRanges struct {
	Program          int32
	ConfigID         int32
	Overall          int32
	Extended         int32
	ErrorProbability float32
	Timestamp        Timestamp
	Comment          string
	Ranges           []Range
}

// OK reports whether the overall result is OK.
func (r *ResultRanges) OK() bool {
	return r.Overall == ResultOK
}

// SensorBlock carries the sampled values of one sensor.
type SensorBlock struct {
	SensorID int32
	Values   []float32
}

// ResultValuesRanges extends ResultRanges with the raw sensor values.
type ResultValuesRanges struct {
	ResultRanges
	Sensors []SensorBlock
}

func (SignOffClient) TelegramID() TelegramID { return SignOffClientID }
func (Watchdog) TelegramID() TelegramID { return WatchdogID }
func (*Selection) TelegramID() TelegramID { return SimpleIOSelectionID }
func (*Stop) TelegramID() TelegramID { return SimpleIOStopID }
func (*WatchdogAck) TelegramID() TelegramID { return WatchdogID }
func (*SelectionAck) TelegramID() TelegramID { return SimpleIOSelectionID }
func (*StopAck) TelegramID() TelegramID { return SimpleIOStopID }
func (*ErrorNotification) TelegramID() TelegramID { return SimpleIOErrorID }
func (*Trigger) TelegramID() TelegramID { return SimpleIOTriggerID }
func (*ResultRanges) TelegramID() TelegramID { return ResultRangesID }
func (*ResultValuesRanges) TelegramID() TelegramID { return ResultValuesRangesID }

func (SignOffClient) Status() int32 { return 0 }
func (Watchdog) Status() int32 { return 0 }
func (*Selection) Status() int32 { return 0 }
func (*Stop) Status() int32 { return 0 }
func (a *WatchdogAck) Status() int32 { return a.Code }
func (a *SelectionAck) Status() int32 { return a.Code }
func (a *StopAck) Status() int32 { return a.Code }
func (*ErrorNotification) Status() int32 { return 0 }
func (*Trigger) Status() int32 { return 0 }
func (*ResultRanges) Status() int32 { return 0 }
func (*ResultValuesRanges) Status() int32 { return 0 }
