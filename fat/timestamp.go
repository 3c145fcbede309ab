package fat

import "time"

// Epoch is the earliest timestamp representable in a FAT directory entry,
// 1980-01-01 00:00:00 local time.
var Epoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.Local)

// MaxTimestamp is the latest timestamp representable in a FAT directory entry,
// 2107-12-31 23:59:59.99 local time.
var MaxTimestamp = time.Date(2107, time.December, 31, 23, 59, 59, 990000000, time.Local)

// DOSTimestamp is the on-disk encoding of a wall-clock time: a 16-bit date word,
// a 16-bit time word (two-second resolution), and a centisecond byte that
// recovers the second's missing low bit.
type DOSTimestamp struct {
	Date         uint16
	Time         uint16
	Centiseconds uint8
}

// EncodeTimestamp converts a wall-clock timestamp into its DOS representation,
// clamping to [Epoch, MaxTimestamp] when out of range.
func EncodeTimestamp(t time.Time) DOSTimestamp {
	dosYear := t.Year() - 1980
	if dosYear < 0 {
		t = Epoch
	} else if dosYear > 127 {
		t = MaxTimestamp
	}

	year := t.Year() - 1980
	date := uint16(year<<9) | uint16(int(t.Month())<<5) | uint16(t.Day())

	second := t.Second()
	tm := uint16(t.Hour()<<11) | uint16(t.Minute()<<5) | uint16(second>>1)

	centi := (t.Nanosecond() / 10000000) + (second&1)*100

	return DOSTimestamp{Date: date, Time: tm, Centiseconds: uint8(centi)}
}

// EncodeDate converts a wall-clock timestamp into just the DOS date word,
// clamping as EncodeTimestamp does. Used for the access-date-only field.
func EncodeDate(t time.Time) uint16 {
	return EncodeTimestamp(t).Date
}

// DecodeDate converts a DOS date word into a time.Time at midnight local time.
// Used only for round-trip testing -- the core engine never reads dates back.
func DecodeDate(value uint16) time.Time {
	day := int(value & 0x001f)
	month := time.Month((value >> 5) & 0x000f)
	year := 1980 + int(value>>9)
	return time.Date(year, month, day, 0, 0, 0, 0, time.Local)
}

// DecodeTimestamp converts a DOS (date, time, centiseconds) triple back into a
// time.Time, for round-trip property tests.
func DecodeTimestamp(date, tm uint16, centiseconds uint8) time.Time {
	d := DecodeDate(date)

	seconds := int(tm&0x001f) * 2
	hundredths := centiseconds
	if hundredths >= 100 {
		seconds++
		hundredths -= 100
	}

	minutes := int((tm >> 5) & 0x003f)
	hours := int(tm >> 11)
	nanoseconds := int(hundredths) * 10000000

	return time.Date(
		d.Year(), d.Month(), d.Day(), hours, minutes, seconds, nanoseconds, time.Local)
}
