package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// NumberFormat describes the separators used by numeric source values.
type NumberFormat struct {
	// DecimalSeparator defaults to '.'.
	DecimalSeparator rune
	// ThousandsSeparator is removed before parsing; 0 means none.
	ThousandsSeparator rune
}

// ParseNumber coerces s to a finite float. Blank, malformed and non-finite
// values report ok=false.
func ParseNumber(s string, nf NumberFormat) (float64, bool) {
	raw := strings.TrimSpace(strings.ReplaceAll(s, "\u00A0", " "))
	if raw == "" {
		return 0, false
	}
	dec := nf.DecimalSeparator
	if dec == 0 {
		dec = '.'
	}
	if thou := nf.ThousandsSeparator; thou != 0 && thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		if strings.Contains(raw, ".") {
			return 0, false
		}
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

var dateTimeLayouts = []string{
	"2006-1-2 15:04",
	"2006-1-2 15:04:05",
	"2006-1-2 3:04 PM",
	"2006-1-2 3:04:05 PM",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 3:04 PM",
	"1/2/2006 3:04:05 PM",
	"2006/1/2 15:04",
	"2006/1/2 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
}

var dateLayouts = []string{
	"2006-1-2",
	"1/2/2006",
	"2006/1/2",
	"20060102",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// ParseTime parses a single timestamp or date value.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range dateTimeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDateTime combines a date value and a time-of-day value. Open-data
// exports often carry a midnight timestamp in the date column
// ("2021-01-05T00:00:00.000"); when the joined string does not parse, the
// date part before 'T' is joined with the time instead.
func ParseDateTime(date, clock string) (time.Time, bool) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, false
	}
	if t, ok := ParseTime(date + " " + clock); ok {
		return t, true
	}
	if i := strings.IndexByte(date, 'T'); i > 0 {
		return ParseTime(date[:i] + " " + clock)
	}
	return time.Time{}, false
}
