// Package datetime implements the UTC timestamp type shared by documents,
// the hunt/search time window filters, and the Sigma/Chainsaw rule loaders.
package datetime

import (
	"fmt"
	"strconv"
	"strings"
)

// DateTime is a UTC timestamp decomposed into fields, total-ordered
// lexicographically. It intentionally does not carry a timezone: every
// reader normalizes to UTC at parse time so locale environment variables
// never affect output.
type DateTime struct {
	Year, Month, Day          int
	Hour, Minute, Second      int
	Microsecond               int
}

// Compare returns -1, 0, or 1 as d is before, equal to, or after o.
func (d DateTime) Compare(o DateTime) int {
	fields := [][2]int{
		{d.Year, o.Year}, {d.Month, o.Month}, {d.Day, o.Day},
		{d.Hour, o.Hour}, {d.Minute, o.Minute}, {d.Second, o.Second},
		{d.Microsecond, o.Microsecond},
	}
	for _, f := range fields {
		if f[0] < f[1] {
			return -1
		}
		if f[0] > f[1] {
			return 1
		}
	}
	return 0
}

func (d DateTime) Before(o DateTime) bool { return d.Compare(o) < 0 }
func (d DateTime) After(o DateTime) bool  { return d.Compare(o) > 0 }
func (d DateTime) Equal(o DateTime) bool  { return d.Compare(o) == 0 }

// String renders ISO-8601 with microsecond precision and a trailing Z,
// the inverse of Parse.
func (d DateTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d.%06dZ",
		d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second, d.Microsecond)
}

// Parse accepts exactly two ISO-8601 shapes:
//
//	YYYY-MM-DDTHH:MM:SS
//	YYYY-MM-DDTHH:MM:SS.ffffff
//
// each optionally suffixed with Z. The fraction may have one to six
// digits. Out-of-range components fail the parse.
func Parse(s string) (DateTime, error) {
	s = strings.TrimSuffix(s, "Z")

	datePart, timePart, ok := strings.Cut(s, "T")
	if !ok {
		return DateTime{}, fmt.Errorf("datetime: missing 'T' separator in %q", s)
	}

	dateFields := strings.Split(datePart, "-")
	if len(dateFields) != 3 {
		return DateTime{}, fmt.Errorf("datetime: malformed date %q", datePart)
	}

	secPart := timePart
	microPart := ""
	if dot := strings.IndexByte(timePart, '.'); dot >= 0 {
		secPart = timePart[:dot]
		microPart = timePart[dot+1:]
	}
	timeFields := strings.Split(secPart, ":")
	if len(timeFields) != 3 {
		return DateTime{}, fmt.Errorf("datetime: malformed time %q", secPart)
	}

	year, err := atoiExact(dateFields[0], 4)
	if err != nil {
		return DateTime{}, err
	}
	month, err := atoiExact(dateFields[1], 2)
	if err != nil {
		return DateTime{}, err
	}
	day, err := atoiExact(dateFields[2], 2)
	if err != nil {
		return DateTime{}, err
	}
	hour, err := atoiExact(timeFields[0], 2)
	if err != nil {
		return DateTime{}, err
	}
	minute, err := atoiExact(timeFields[1], 2)
	if err != nil {
		return DateTime{}, err
	}
	second, err := atoiExact(timeFields[2], 2)
	if err != nil {
		return DateTime{}, err
	}

	micro := 0
	if microPart != "" {
		if len(microPart) > 6 {
			return DateTime{}, fmt.Errorf("datetime: fractional part too long %q", microPart)
		}
		padded := microPart + strings.Repeat("0", 6-len(microPart))
		micro, err = strconv.Atoi(padded)
		if err != nil {
			return DateTime{}, fmt.Errorf("datetime: invalid fractional seconds %q", microPart)
		}
	}

	d := DateTime{
		Year: year, Month: month, Day: day,
		Hour: hour, Minute: minute, Second: second,
		Microsecond: micro,
	}
	if err := d.validate(); err != nil {
		return DateTime{}, err
	}
	return d, nil
}

func atoiExact(s string, width int) (int, error) {
	if len(s) != width {
		return 0, fmt.Errorf("datetime: expected %d digits, got %q", width, s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("datetime: non-digit in %q", s)
		}
	}
	return strconv.Atoi(s)
}

var daysInMonth = [...]int{31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

func (d DateTime) validate() error {
	if d.Month < 1 || d.Month > 12 {
		return fmt.Errorf("datetime: month %d out of range", d.Month)
	}
	max := daysInMonth[d.Month-1]
	if d.Month == 2 && !isLeap(d.Year) {
		max = 28
	}
	if d.Day < 1 || d.Day > max {
		return fmt.Errorf("datetime: day %d out of range for month %d", d.Day, d.Month)
	}
	if d.Hour < 0 || d.Hour > 23 {
		return fmt.Errorf("datetime: hour %d out of range", d.Hour)
	}
	if d.Minute < 0 || d.Minute > 59 {
		return fmt.Errorf("datetime: minute %d out of range", d.Minute)
	}
	if d.Second < 0 || d.Second > 59 {
		return fmt.Errorf("datetime: second %d out of range", d.Second)
	}
	return nil
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
