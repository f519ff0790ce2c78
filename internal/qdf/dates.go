package qdf

import (
	"strings"
	"time"

	apperrors "macrosynergy/internal/errors"
)

// DateLayout is the ISO date format used on every interface.
const DateLayout = "2006-01-02"

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the time-of-day part of t and moves it to UTC.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// ParseDate parses an ISO date. The empty string yields the zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, apperrors.Validationf("invalid ISO date %q", s)
	}
	return t, nil
}

// MustParseDate is ParseDate for constants and tests.
func MustParseDate(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// IsBusinessDay reports whether t is a weekday. Holidays are not modelled.
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// RollForward moves weekend dates to the following Monday.
func RollForward(t time.Time) time.Time {
	for !IsBusinessDay(t) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// BusinessDays lists the weekdays in [start, end].
func BusinessDays(start, end time.Time) []time.Time {
	start, end = Truncate(start), Truncate(end)
	if end.Before(start) {
		return nil
	}
	out := make([]time.Time, 0, int(end.Sub(start).Hours()/24*5/7)+2)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			out = append(out, d)
		}
	}
	return out
}

// Freq is a sampling frequency.
type Freq string

const (
	Daily     Freq = "D"
	Weekly    Freq = "W"
	Monthly   Freq = "M"
	Quarterly Freq = "Q"
	Annual    Freq = "A"
)

// ParseFreq accepts D/W/M/Q/A in either case; the empty string is daily.
func ParseFreq(s string) (Freq, error) {
	switch f := Freq(strings.ToUpper(s)); f {
	case "":
		return Daily, nil
	case Daily, Weekly, Monthly, Quarterly, Annual:
		return f, nil
	}
	return "", apperrors.Validationf("frequency must be one of D, W, M, Q, A; got %q", s)
}

// PeriodsPerYear returns the approximate number of periods in a year.
func (f Freq) PeriodsPerYear() float64 {
	switch f {
	case Weekly:
		return 52
	case Monthly:
		return 12
	case Quarterly:
		return 4
	case Annual:
		return 1
	}
	return 252
}

// PeriodKey identifies the period of freq that contains t. Weeks start on
// Monday.
func PeriodKey(t time.Time, freq Freq) int {
	y, m, _ := t.Date()
	switch freq {
	case Weekly:
		// 1970-01-01 was a Thursday.
		return floorDiv(epochDays(t)+3, 7)
	case Monthly:
		return y*12 + int(m) - 1
	case Quarterly:
		return y*4 + (int(m)-1)/3
	case Annual:
		return y
	}
	return epochDays(t)
}

func epochDays(t time.Time) int {
	return floorDiv(int(Truncate(t).Unix()), 86400)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// EndOfPeriods returns the indices of the last date of every period in the
// sorted dates. The final date always closes a period.
func EndOfPeriods(dates []time.Time, freq Freq) []int {
	out := make([]int, 0)
	for i := range dates {
		if i == len(dates)-1 || PeriodKey(dates[i], freq) != PeriodKey(dates[i+1], freq) {
			out = append(out, i)
		}
	}
	return out
}

// StartOfPeriods returns the indices of the first date of every period.
func StartOfPeriods(dates []time.Time, freq Freq) []int {
	out := make([]int, 0)
	for i := range dates {
		if i == 0 || PeriodKey(dates[i], freq) != PeriodKey(dates[i-1], freq) {
			out = append(out, i)
		}
	}
	return out
}

// EndOfPeriodMask marks the EndOfPeriods indices.
func EndOfPeriodMask(dates []time.Time, freq Freq) []bool {
	mask := make([]bool, len(dates))
	for _, i := range EndOfPeriods(dates, freq) {
		mask[i] = true
	}
	return mask
}
