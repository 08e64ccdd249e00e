package shift

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func bangkok(t *testing.T) *time.Location {
	t.Helper()
	return time.FixedZone("ICT", 7*60*60)
}

func TestWindowSpansMidnight(t *testing.T) {
	cal := NewCalendar(bangkok(t))
	w := cal.Window(MustParseDate("2025-01-10"))

	require.Equal(t, "2025-01-10T17:00:00+07:00", w.From.Format(time.RFC3339))
	require.Equal(t, "2025-01-11T03:00:00+07:00", w.To.Format(time.RFC3339))
	require.Equal(t, "2025-01-10T10:00:00Z", w.From.UTC().Format(time.RFC3339))
	require.Equal(t, "2025-01-10T20:00:00Z", w.To.UTC().Format(time.RFC3339))
}

func TestWindowIsFixedLengthAndDeterministic(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	cal := NewCalendar(ny)
	start := MustParseDate("2024-01-01")
	for i := 0; i < 366; i++ {
		d := start.AddDays(i)
		first := cal.Window(d)
		second := cal.Window(d)
		require.Equal(t, first, second)
		require.Equal(t, Length, first.To.Sub(first.From), d.String())
	}
}

func TestWindowHalfOpen(t *testing.T) {
	cal := NewCalendar(bangkok(t))
	w := cal.Window(MustParseDate("2025-03-01"))
	require.True(t, w.Contains(w.From))
	require.False(t, w.Contains(w.To))
	require.True(t, w.Contains(w.To.Add(-time.Nanosecond)))
}

func TestBusinessDate(t *testing.T) {
	loc := bangkok(t)
	cal := NewCalendar(loc)

	cases := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2025, 1, 10, 17, 0, 0, 0, loc), "2025-01-10"},
		{time.Date(2025, 1, 10, 23, 59, 0, 0, loc), "2025-01-10"},
		{time.Date(2025, 1, 11, 2, 30, 0, 0, loc), "2025-01-10"},
		{time.Date(2025, 1, 11, 12, 0, 0, 0, loc), "2025-01-10"},
		{time.Date(2025, 1, 11, 17, 0, 0, 0, loc), "2025-01-11"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, cal.BusinessDate(tc.at).String(), tc.at.String())
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	require.Equal(t, "2024-02-29", d.String())
	require.Equal(t, "2024-03-01", d.AddDays(1).String())

	for _, bad := range []string{"", "2024-13-01", "2023-02-29", "10/01/2025", "2025-1-5"} {
		_, err := ParseDate(bad)
		require.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}

func TestParseMonth(t *testing.T) {
	days, err := ParseMonth("2024-02")
	require.NoError(t, err)
	require.Len(t, days, 29)
	require.Equal(t, "2024-02-01", days[0].String())
	require.Equal(t, "2024-02-29", days[28].String())

	_, err = ParseMonth("2024-2")
	require.ErrorIs(t, err, ErrInvalidMonth)
}

func TestDateTextRoundTrip(t *testing.T) {
	var d Date
	require.NoError(t, d.UnmarshalText([]byte("2025-01-10")))
	out, err := d.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "2025-01-10", string(out))
	require.Error(t, d.UnmarshalText([]byte("nope")))
}

func TestLastClosed(t *testing.T) {
	cal := NewCalendar(bangkok(t))
	at := func(s string) time.Time {
		ts, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return ts
	}
	require.Equal(t, "2025-01-10", cal.LastClosed(at("2025-01-11T03:00:00+07:00")).String())
	require.Equal(t, "2025-01-09", cal.LastClosed(at("2025-01-11T02:59:00+07:00")).String())
	require.Equal(t, "2025-01-10", cal.LastClosed(at("2025-01-11T16:00:00+07:00")).String())
	require.Equal(t, "2025-01-10", cal.LastClosed(at("2025-01-11T18:00:00+07:00")).String())
}
