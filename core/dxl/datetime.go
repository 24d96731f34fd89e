package dxl

import (
	"strconv"
	"strings"
	"time"

	"github.com/tosuru/notesdb-export/internal/logging"
)

// NormalizeDatetime converts a Domino-native timestamp
// (YYYYMMDDTHHMMSS,ffffff[+-]HHMM, or a bare YYYYMMDD date) to ISO-8601.
// A full timestamp gets a timezone offset; a bare date becomes
// YYYY-MM-DD with no time or offset. Ill-formed input, including an
// offset that is not 2 or 4 digits, is returned verbatim; an out-of-range
// offset defaults to +0000.
func NormalizeDatetime(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}

	base, sign, tzDigits, hasTZ := splitTimezone(raw)

	if !strings.Contains(base, "T") {
		if len(base) == 8 && isAllDigits(base) {
			return base[0:4] + "-" + base[4:6] + "-" + base[6:8]
		}
		return raw
	}

	parts := strings.SplitN(base, "T", 2)
	datePart, timePart := parts[0], parts[1]

	sec := timePart
	micro := "000000"
	if idx := strings.Index(timePart, ","); idx >= 0 {
		sec = timePart[:idx]
		frac := timePart[idx+1:]
		micro = (frac + "000000")[:6]
	}

	if len(datePart) != 8 || len(sec) != 6 {
		return raw
	}

	offset := time.Duration(0)
	if hasTZ {
		hh, mm, ok := parseTZDigits(tzDigits)
		if !ok || hh > 23 || mm > 59 {
			logging.Warn("dxl: timezone offset out of range, defaulting to +0000", "raw", raw, "offset", string(sign)+tzDigits)
			offset = 0
		} else {
			offset = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
			if sign == '-' {
				offset = -offset
			}
		}
	}

	// The digits are wall-clock time in the given offset, so they must be
	// parsed in that zone rather than parsed as UTC and shifted.
	loc := time.FixedZone("", int(offset.Seconds()))
	t, err := time.ParseInLocation("20060102150405", datePart+sec, loc)
	if err != nil {
		return raw
	}
	microVal, err := strconv.Atoi(micro)
	if err != nil {
		return raw
	}
	t = t.Add(time.Duration(microVal) * time.Microsecond)

	return t.Format("2006-01-02T15:04:05.000000-07:00")
}

// splitTimezone detects a trailing [+-]HH or [+-]HHMM timezone offset on
// a Domino timestamp, distinguishing it from a sign that is actually part
// of the date/time body (there isn't one in this format, but the naive
// "last +/- in the string" search needs a length/digit sanity check to
// avoid misfiring).
func splitTimezone(raw string) (base string, sign byte, digits string, ok bool) {
	lastPlus := strings.LastIndexByte(raw, '+')
	lastMinus := strings.LastIndexByte(raw, '-')
	idx := lastPlus
	if lastMinus > idx {
		idx = lastMinus
	}
	if idx <= 0 {
		return raw, '+', "", false
	}

	candidate := raw[idx+1:]
	if !isAllDigits(candidate) || (len(candidate) != 2 && len(candidate) != 4) {
		return raw, '+', "", false
	}

	return raw[:idx], raw[idx], candidate, true
}

func parseTZDigits(digits string) (hh, mm int, ok bool) {
	if len(digits) == 2 {
		digits += "00"
	}
	if len(digits) != 4 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(digits[:2])
	if err != nil {
		return 0, 0, false
	}
	m, err := strconv.Atoi(digits[2:])
	if err != nil {
		return 0, 0, false
	}
	return h, m, true
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
