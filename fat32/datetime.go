package fat32

import "time"

// Date is a FAT32 on-disk date: bits [yyyyyyy:mmmm:ddddd], year offset from
// 1980, per spec.md §6.
type Date uint16

// Time is a FAT32 on-disk time: bits [hhhhh:mmmmmm:sssss], seconds in units
// of 2, per spec.md §6.
type Time uint16

// TimeHundredths is the sub-second creation field, 0..199.
type TimeHundredths uint8

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NewDate packs a calendar date into the FAT32 on-disk representation,
// clamping out-of-range inputs.
func NewDate(year, month, day int) Date {
	yy := clamp(year-1980, 0, 127)
	mm := clamp(month, 1, 12)
	dd := clamp(day, 1, 31)
	return Date(uint16(yy)<<9 | uint16(mm)<<5 | uint16(dd))
}

// NewTime packs a time-of-day into the FAT32 on-disk representation,
// clamping out-of-range inputs. Seconds are stored in units of 2.
func NewTime(hour, minute, second int) Time {
	hh := clamp(hour, 0, 23)
	mm := clamp(minute, 0, 59)
	ss := clamp(second/2, 0, 29)
	return Time(uint16(hh)<<11 | uint16(mm)<<5 | uint16(ss))
}

// NewTimeHundredths clamps a hundredths-of-a-second value to [0,199].
func NewTimeHundredths(hundredths int) TimeHundredths {
	return TimeHundredths(clamp(hundredths, 0, 199))
}

// Year returns the calendar year encoded in d.
func (d Date) Year() int  { return int(d>>9) + 1980 }
func (d Date) Month() int { return int((d >> 5) & 0xF) }
func (d Date) Day() int   { return int(d & 0x1F) }

func (t Time) Hour() int   { return int(t >> 11) }
func (t Time) Minute() int { return int((t >> 5) & 0x3F) }
func (t Time) Second() int { return int(t&0x1F) * 2 }

// ToTime combines a Date and Time into a UTC time.Time.
func ToTime(d Date, t Time, hundredths TimeHundredths) time.Time {
	return time.Date(
		d.Year(), time.Month(d.Month()), d.Day(),
		t.Hour(), t.Minute(), t.Second()+int(hundredths)/100,
		(int(hundredths)%100)*10_000_000,
		time.UTC,
	)
}

// FromTime decomposes a time.Time into its FAT32 Date/Time/hundredths parts.
func FromTime(t time.Time) (Date, Time, TimeHundredths) {
	t = t.UTC()
	d := NewDate(t.Year(), int(t.Month()), t.Day())
	tm := NewTime(t.Hour(), t.Minute(), t.Second())
	hundredths := NewTimeHundredths((t.Second()%2)*100 + t.Nanosecond()/10_000_000)
	return d, tm, hundredths
}
