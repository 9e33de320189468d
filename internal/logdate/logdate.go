// Package logdate turns free-form date strings into canonical calendar
// dates. Operators type dates inconsistently, so resolution is two-tier: a
// fixed list of strict formats handles the common case deterministically,
// and a lenient natural-language parser is the safety net.
package logdate

import (
	"fmt"
	"time"

	"github.com/araddon/dateparse"

	"logvault/internal/faults"
)

// strictFormats are tried in order before falling back to lenient parsing.
var strictFormats = []string{
	"2006-01-02",
	"02-01-2006",
	"2006/01/02",
	"02/01/2006",
}

// Date is a calendar date with no time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func fromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// String renders the date in ISO form.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// RemoteLabel renders the date in the DD-MM-YYYY form embedded in remote
// log filenames. The convention is a fixed contract with the remote
// rotation scheme and never varies with the format the caller used.
func (d Date) RemoteLabel() string {
	return fmt.Sprintf("%02d-%02d-%04d", d.Day, d.Month, d.Year)
}

// Resolve parses raw into a Date. Strict formats win; the lenient fallback
// prefers day-before-month when ambiguous, so "03-04-2024" reads as 3 April
// rather than March 4th.
func Resolve(raw string) (Date, error) {
	for _, layout := range strictFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return fromTime(t), nil
		}
	}
	t, err := dateparse.ParseAny(raw, dateparse.PreferMonthFirst(false))
	if err != nil || t.IsZero() {
		return Date{}, &faults.InvalidDateFormatError{Input: raw}
	}
	return fromTime(t), nil
}
