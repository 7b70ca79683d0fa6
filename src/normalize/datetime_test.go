package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokerLocalToUtc(t *testing.T) {
	tests := []struct {
		name  string
		input string
		tz    string
		want  string
	}{
		{name: "summer time in new york", input: "08/22/2025 14:30:00", tz: NewYorkZone, want: "2025-08-22T18:30:00.000Z"},
		{name: "winter time in new york", input: "01/15/2024 10:30", tz: NewYorkZone, want: "2024-01-15T15:30:00.000Z"},
		{name: "explicit EDT wins", input: "01/15/2024 10:30:00 EDT", tz: NewYorkZone, want: "2024-01-15T14:30:00.000Z"},
		{name: "explicit EST lowercase", input: "07/04/2024 09:00 est", tz: NewYorkZone, want: "2024-07-04T14:00:00.000Z"},
		{name: "us date only", input: "3/5/2024", tz: NewYorkZone, want: "2024-03-05T05:00:00.000Z"},
		{name: "iso date time", input: "2024-01-15 10:30:00", tz: NewYorkZone, want: "2024-01-15T15:30:00.000Z"},
		{name: "iso with T", input: "2024-06-03T09:30", tz: NewYorkZone, want: "2024-06-03T13:30:00.000Z"},
		{name: "ibkr comma form", input: "2024-06-03, 09:30:00", tz: NewYorkZone, want: "2024-06-03T13:30:00.000Z"},
		{name: "iso date", input: "2024-01-15", tz: NewYorkZone, want: "2024-01-15T05:00:00.000Z"},
		{name: "epoch seconds", input: "1705332600", tz: NewYorkZone, want: "2024-01-15T15:30:00.000Z"},
		{name: "epoch millis", input: "1705332600000", tz: NewYorkZone, want: "2024-01-15T15:30:00.000Z"},
		{name: "rfc3339 keeps its offset", input: "2024-01-15T15:30:00Z", tz: NewYorkZone, want: "2024-01-15T15:30:00.000Z"},
		{name: "empty zone means new york", input: "2024-07-01 12:00", tz: "", want: "2024-07-01T16:00:00.000Z"},
		{name: "unknown zone falls back to EST", input: "2024-07-01 12:00", tz: "Mars/Olympus", want: "2024-07-01T17:00:00.000Z"},
		{name: "utc zone", input: "2024-07-01 12:00", tz: "UTC", want: "2024-07-01T12:00:00.000Z"},
		{name: "leap day", input: "02/29/2024", tz: NewYorkZone, want: "2024-02-29T05:00:00.000Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBrokerLocalToUtc(tt.input, tt.tz, 3)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ISOString(got))
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseBrokerLocalToUtcIsDeterministic(t *testing.T) {
	a, err := ParseBrokerLocalToUtc("08/22/2025 14:30:00", NewYorkZone, 0)
	require.NoError(t, err)
	b, err := ParseBrokerLocalToUtc("08/22/2025 14:30:00", NewYorkZone, 0)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`, ISOString(a))
}

func TestParseBrokerLocalToUtcRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "whitespace", input: "   "},
		{name: "garbage", input: "invalid-date"},
		{name: "month 13", input: "13/01/2024"},
		{name: "day 32", input: "01/32/2024"},
		{name: "hour 24", input: "01/15/2024 24:00"},
		{name: "minute 60", input: "2024-01-15 10:60"},
		{name: "second 60", input: "2024-01-15 10:30:60"},
		{name: "year too early", input: "1899-12-31"},
		{name: "year too late", input: "2101-01-01"},
		{name: "non leap february 29", input: "02/29/2025"},
		{name: "april 31", input: "2024-04-31"},
		{name: "nine digit epoch", input: "170533260"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBrokerLocalToUtc(tt.input, NewYorkZone, 7)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrBadDate))

			var dateErr *BrokerDateParseError
			require.True(t, errors.As(err, &dateErr))
			assert.Equal(t, 7, dateErr.RowIndex)
			assert.Equal(t, tt.input, dateErr.Value)
		})
	}
}

func TestNewYorkOffsetCutovers(t *testing.T) {
	// 2024: DST starts Sunday March 10, ends Sunday November 3.
	assert.Equal(t, -5, NewYorkOffset(2024, time.March, 9))
	assert.Equal(t, -4, NewYorkOffset(2024, time.March, 10))
	assert.Equal(t, -4, NewYorkOffset(2024, time.November, 2))
	assert.Equal(t, -5, NewYorkOffset(2024, time.November, 3))
	// 2025: March 9 to November 2.
	assert.Equal(t, -4, NewYorkOffset(2025, time.March, 9))
	assert.Equal(t, -5, NewYorkOffset(2025, time.November, 2))
}

func TestNewYorkTimesFollowDayRule(t *testing.T) {
	for year := 2010; year <= 2030; year++ {
		for d := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC); d.Year() == year; d = d.AddDate(0, 0, 1) {
			ts := d.Format("2006-01-02") + " 12:00"
			got, err := ParseBrokerLocalToUtc(ts, NewYorkZone, 0)
			require.NoError(t, err)
			wantHour := 12 - NewYorkOffset(year, d.Month(), d.Day())
			if !assert.Equal(t, wantHour, got.Hour(), ts) {
				return
			}
		}
	}
}

func TestNewYorkTransitionDays(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "03/10/2024 00:30:00", want: "2024-03-10T04:30:00.000Z"},
		{input: "03/10/2024 01:30:00", want: "2024-03-10T05:30:00.000Z"},
		{input: "03/10/2024 02:30:00", want: "2024-03-10T06:30:00.000Z"},
		{input: "03/09/2024 23:30:00", want: "2024-03-10T04:30:00.000Z"},
		{input: "11/03/2024 00:30:00", want: "2024-11-03T05:30:00.000Z"},
		{input: "11/03/2024 01:30:00", want: "2024-11-03T06:30:00.000Z"},
		{input: "11/02/2024 23:30:00", want: "2024-11-03T03:30:00.000Z"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBrokerLocalToUtc(tt.input, NewYorkZone, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ISOString(got))
		})
	}
}

func TestIsValidDateString(t *testing.T) {
	assert.True(t, IsValidDateString("2024-01-15"))
	assert.False(t, IsValidDateString("15.01.2024"))
}
