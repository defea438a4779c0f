package asdu104

import (
	"encoding/binary"
	"time"
)

// CP24Time2a is the 3-byte binary time used by the "*_TA_1" information
// object types: milliseconds within the minute plus the invalid flag and
// the minute of the hour. It carries no date, and nothing in the collector
// converts it to a time.Time: samples are stamped with their receive time.
type CP24Time2a struct {
	Millisecond int // 0-59999
	Invalid     bool
	Minute      int // 0-59
}

// EncodeCP24Time2a writes the 3-byte wire form of t.
func EncodeCP24Time2a(t CP24Time2a) [3]byte {
	var b [3]byte
	binary.LittleEndian.PutUint16(b[0:2], uint16(t.Millisecond))
	b[2] = byte(t.Minute & 0x3f)
	if t.Invalid {
		b[2] |= 0x80
	}
	return b
}

// DecodeCP24Time2a parses the 3-byte wire form of a CP24Time2a value.
func DecodeCP24Time2a(b []byte) (CP24Time2a, error) {
	if len(b) < 3 {
		return CP24Time2a{}, ErrBadFormat
	}
	ms := binary.LittleEndian.Uint16(b[0:2])
	return CP24Time2a{
		Millisecond: int(ms),
		Minute:      int(b[2] & 0x3f),
		Invalid:     b[2]&0x80 != 0,
	}, nil
}

// CP56Time2a is the 7-byte binary time used by the "*_TB_1" and "*_TA_1"
// (control direction) information object types: a full timestamp down to
// the millisecond, with daylight-saving and invalid flags.
type CP56Time2a struct {
	Millisecond int // 0-59999
	Invalid     bool
	Minute      int // 0-59
	Hour        int // 0-23
	SummerTime  bool
	Day         int // 1-31
	Weekday     int // 1=Monday .. 7=Sunday
	Month       int // 1-12
	Year        int // 0-99, offset from 2000
}

// EncodeCP56Time2a writes the 7-byte wire form of t.
func EncodeCP56Time2a(t CP56Time2a) [7]byte {
	var b [7]byte
	binary.LittleEndian.PutUint16(b[0:2], uint16(t.Millisecond))
	b[2] = byte(t.Minute & 0x3f)
	if t.Invalid {
		b[2] |= 0x80
	}
	b[3] = byte(t.Hour & 0x1f)
	if t.SummerTime {
		b[3] |= 0x80
	}
	b[4] = byte(t.Day&0x1f) | byte((t.Weekday&0x07)<<5)
	b[5] = byte(t.Month & 0x0f)
	b[6] = byte(t.Year & 0x7f)
	return b
}

// DecodeCP56Time2a parses the 7-byte wire form of a CP56Time2a value.
func DecodeCP56Time2a(b []byte) (CP56Time2a, error) {
	if len(b) < 7 {
		return CP56Time2a{}, ErrBadFormat
	}
	ms := binary.LittleEndian.Uint16(b[0:2])
	return CP56Time2a{
		Millisecond: int(ms),
		Minute:      int(b[2] & 0x3f),
		Invalid:     b[2]&0x80 != 0,
		Hour:        int(b[3] & 0x1f),
		SummerTime:  b[3]&0x80 != 0,
		Day:         int(b[4] & 0x1f),
		Weekday:     int((b[4] >> 5) & 0x07),
		Month:       int(b[5] & 0x0f),
		Year:        int(b[6] & 0x7f),
	}, nil
}

// ToTime converts a CP56Time2a into a time.Time in the given location. The
// standard's millisecond field covers seconds and milliseconds together.
func (t CP56Time2a) ToTime(loc *time.Location) time.Time {
	sec := t.Millisecond / 1000
	nsec := (t.Millisecond % 1000) * int(time.Millisecond)
	return time.Date(2000+t.Year, time.Month(t.Month), t.Day, t.Hour, t.Minute, sec, nsec, loc)
}

// NewCP56Time2a builds a CP56Time2a from a wall-clock time, as used when
// the collector timestamps a clock-sync command or a locally-sourced
// event.
func NewCP56Time2a(t time.Time) CP56Time2a {
	su := false
	if _, offset := t.Zone(); offset != 0 {
		_, stdOffset := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location()).Zone()
		su = offset != stdOffset
	}
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // time.Sunday == 0, CP56 wants 7
	}
	return CP56Time2a{
		Millisecond: t.Second()*1000 + t.Nanosecond()/int(time.Millisecond),
		Minute:      t.Minute(),
		Hour:        t.Hour(),
		SummerTime:  su,
		Day:         t.Day(),
		Weekday:     weekday,
		Month:       int(t.Month()),
		Year:        t.Year() - 2000,
	}
}
