// Package shift defines the business day used by every ledger and comparison
// component. A business date D covers the evening of D through the early
// morning of D+1 in the restaurant's local time zone.
package shift

import (
	"errors"
	"fmt"
	"time"
)

const (
	// OpenHour is the local hour at which a business day starts.
	OpenHour = 17
	// Length is the fixed duration of a business day window (17:00 -> 03:00).
	Length = 10 * time.Hour

	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

var (
	// ErrInvalidDate indicates a malformed YYYY-MM-DD value.
	ErrInvalidDate = errors.New("shift: invalid date")
	// ErrInvalidMonth indicates a malformed YYYY-MM value.
	ErrInvalidMonth = errors.New("shift: invalid month")
)

// Date is a calendar date identifying one business day. It carries no time
// or zone information.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for constants and tests.
func MustParseDate(value string) Date {
	d, err := ParseDate(value)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Time returns midnight UTC of the date, suitable for DATE columns.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays shifts the date by n calendar days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool {
	return d.Time().After(other.Time())
}

// MarshalText implements encoding.TextMarshaler. The zero date is empty.
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(data []byte) error {
	parsed, err := ParseDate(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Window is the half-open interval [From, To) of one business day.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Calendar resolves business dates against a fixed location.
type Calendar struct {
	loc *time.Location
}

// NewCalendar builds a calendar for loc. A nil location means UTC.
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

// Location returns the calendar's time zone.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Window maps a business date to its [From, To) interval. To is always
// From+Length so the interval has the same length on DST transition days.
func (c Calendar) Window(d Date) Window {
	from := time.Date(d.Year, d.Month, d.Day, OpenHour, 0, 0, 0, c.Location())
	return Window{From: from, To: from.Add(Length)}
}

// BusinessDate returns the business date whose window started most recently
// at or before t. Instants between two windows (03:00-17:00 local) belong to
// the previous evening's business day.
func (c Calendar) BusinessDate(t time.Time) Date {
	local := t.In(c.Location())
	d := DateOf(local)
	if local.Before(c.Window(d).From) {
		return d.AddDays(-1)
	}
	return d
}

// LastClosed returns the most recent business date whose window ended at or
// before t.
func (c Calendar) LastClosed(t time.Time) Date {
	d := c.BusinessDate(t)
	if c.Window(d).To.After(t) {
		return d.AddDays(-1)
	}
	return d
}

// ParseMonth parses YYYY-MM and returns every date of that month in order.
func ParseMonth(value string) ([]Date, error) {
	t, err := time.Parse(monthLayout, value)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMonth, value)
	}
	first := DateOf(t)
	days := make([]Date, 0, 31)
	for d := first; d.Month == first.Month; d = d.AddDays(1) {
		days = append(days, d)
	}
	return days, nil
}
