package normalize

import (
	"strconv"
	"strings"
	"time"
)

// Day-first layouts are tried before anything else so that "03/04/2021"
// means 3 April.
var dayFirstLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02/01/2006 15:04:05",
	"2/1/2006 15:04:05",
	"02/01/2006 15:04",
	"2/1/2006 15:04",
	"02-01-2006",
	"2-1-2006",
	"02-01-2006 15:04:05",
	"02.01.2006",
	"2.1.2006",
	"02/01/06",
	"2/1/06",
}

var isoLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	time.RFC3339,
	time.RFC3339Nano,
	"2006/01/02",
	"2006/1/2",
	"2006/01/02 15:04:05",
}

// Month-first layouts only apply when no day-first reading exists,
// e.g. "12/25/2020".
var monthFirstLayouts = []string{
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04:05",
	"01-02-2006",
	"1-2-2006",
}

// Spreadsheet serial day numbers count from 1899-12-30.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Serials below minSerial are treated as plain numbers, so a bare year
// such as "2020" is not read as a day in 1905.
const (
	minSerial = 10000   // 1927-05-18
	maxSerial = 2958465 // 9999-12-31
)

// ParseDate parses a raw date cell into a UTC date at midnight.
// It reports false when the value cannot be read as a date.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	if t, ok := parseNumericDate(s); ok {
		return t, true
	}

	for _, group := range [][]string{dayFirstLayouts, isoLayouts, monthFirstLayouts} {
		for _, layout := range group {
			if t, err := time.Parse(layout, s); err == nil {
				return truncateDay(t), true
			}
		}
	}
	return time.Time{}, false
}

// parseNumericDate handles compact yyyymmdd values and spreadsheet serials.
func parseNumericDate(s string) (time.Time, bool) {
	if len(s) == 8 && isDigits(s) {
		if t, err := time.Parse("20060102", s); err == nil {
			return t, true
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < minSerial || f > maxSerial {
		return time.Time{}, false
	}
	return serialEpoch.AddDate(0, 0, int(f)), true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// ElapsedDays returns |b - a| in whole days.
func ElapsedDays(a, b time.Time) int {
	d := b.Sub(a)
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour))
}
