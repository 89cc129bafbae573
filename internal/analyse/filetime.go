package analyse

import "github.com/triagelabs/chainsaw/internal/datetime"

// fileTimeToDateTime converts a Windows FILETIME (100ns ticks since
// 1601-01-01) to UTC calendar fields, mirroring the reader framework's
// own FILETIME handling.
func fileTimeToDateTime(ft uint64) *datetime.DateTime {
	const ticksPerSecond = 10_000_000
	const epochDiffSeconds = 11644473600 // 1601-01-01 -> 1970-01-01
	totalSeconds := int64(ft/ticksPerSecond) - epochDiffSeconds
	micros := int((ft % ticksPerSecond) / 10)
	d := civilFromUnix(totalSeconds)
	d.Microsecond = micros
	return &d
}

// civilFromUnix converts a Unix timestamp (seconds since epoch, UTC) into
// calendar fields, mirroring the reader framework's own conversion.
func civilFromUnix(sec int64) datetime.DateTime {
	days := sec / 86400
	rem := sec % 86400
	if rem < 0 {
		rem += 86400
		days--
	}
	hour := int(rem / 3600)
	minute := int((rem % 3600) / 60)
	second := int(rem % 60)

	// Civil-from-days algorithm (Howard Hinnant), proleptic Gregorian.
	z := days + 719468
	era := z / 146097
	if z < 0 && z%146097 != 0 {
		era--
	}
	doe := z - era*146097
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	y := yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	d := doy - (153*mp+2)/5 + 1
	m := mp + 3
	if mp >= 10 {
		m = mp - 9
		y++
	}

	return datetime.DateTime{
		Year: int(y), Month: int(m), Day: int(d),
		Hour: hour, Minute: minute, Second: second,
	}
}
