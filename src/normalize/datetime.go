package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // broker zones must resolve on hosts without zoneinfo
)

const NewYorkZone = "America/New_York"

var ErrBadDate = errors.New("bad broker date")

// BrokerDateParseError describes why a broker timestamp was rejected.
type BrokerDateParseError struct {
	Value    string
	RowIndex int
	Reason   string
}

func (e *BrokerDateParseError) Error() string {
	return fmt.Sprintf("row %d: cannot parse broker date %q: %s", e.RowIndex, e.Value, e.Reason)
}

func (e *BrokerDateParseError) Is(target error) bool { return target == ErrBadDate }

var (
	estOffset = time.FixedZone("EST", -5*60*60)
	edtOffset = time.FixedZone("EDT", -4*60*60)

	reUSZoned     = regexp.MustCompile(`(?i)^(\d{1,2})/(\d{1,2})/(\d{4})\s+(\d{1,2}):(\d{2})(?::(\d{2}))?\s+(EDT|EST)$`)
	reUSDateTime  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})\s+(\d{1,2}):(\d{2})(?::(\d{2}))?$`)
	reUSDate      = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	reISODateTime = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})(?:[ T]|,\s*)(\d{1,2}):(\d{2})(?::(\d{2}))?$`)
	reISODate     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	reEpochSec    = regexp.MustCompile(`^\d{10}$`)
	reEpochMilli  = regexp.MustCompile(`^\d{13}$`)
)

type dateParts struct {
	year, month, day     int
	hour, minute, second int
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}

func (p dateParts) validate() string {
	switch {
	case p.month < 1 || p.month > 12:
		return fmt.Sprintf("month %d out of range", p.month)
	case p.day < 1 || p.day > 31:
		return fmt.Sprintf("day %d out of range", p.day)
	case p.hour < 0 || p.hour > 23:
		return fmt.Sprintf("hour %d out of range", p.hour)
	case p.minute < 0 || p.minute > 59:
		return fmt.Sprintf("minute %d out of range", p.minute)
	case p.second < 0 || p.second > 59:
		return fmt.Sprintf("second %d out of range", p.second)
	case p.year < 1900 || p.year > 2100:
		return fmt.Sprintf("year %d outside 1900-2100", p.year)
	}
	t := time.Date(p.year, time.Month(p.month), p.day, 0, 0, 0, 0, time.UTC)
	if t.Day() != p.day || int(t.Month()) != p.month {
		return fmt.Sprintf("%04d-%02d-%02d is not a calendar date", p.year, p.month, p.day)
	}
	return ""
}

// brokerLocation resolves the zone a broker reports local times in. New York
// uses the whole-day rule of NewYorkOffset, so times inside the 2am cutover
// hour still get that day's offset. Names the tz database does not know fall
// back to fixed EST.
func brokerLocation(brokerTimezone string, p dateParts) *time.Location {
	tz := strings.TrimSpace(brokerTimezone)
	if tz == "" || tz == NewYorkZone {
		if NewYorkOffset(p.year, time.Month(p.month), p.day) == -4 {
			return edtOffset
		}
		return estOffset
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return estOffset
	}
	return loc
}

// ParseBrokerLocalToUtc converts a broker-local timestamp to a UTC instant.
// Recognised forms: MM/DD/YYYY[ HH:mm[:ss]][ EDT|EST], YYYY-MM-DD[ HH:mm[:ss]],
// RFC 3339 with an explicit offset, 10-digit epoch seconds and 13-digit epoch
// milliseconds.
func ParseBrokerLocalToUtc(timestamp, brokerTimezone string, rowIndex int) (time.Time, error) {
	fail := func(reason string) (time.Time, error) {
		return time.Time{}, &BrokerDateParseError{Value: timestamp, RowIndex: rowIndex, Reason: reason}
	}

	s := strings.TrimSpace(timestamp)
	if s == "" {
		return fail("empty timestamp")
	}

	var (
		p   dateParts
		loc *time.Location
	)
	switch {
	case reUSZoned.MatchString(s):
		m := reUSZoned.FindStringSubmatch(s)
		p = dateParts{year: atoi(m[3]), month: atoi(m[1]), day: atoi(m[2]), hour: atoi(m[4]), minute: atoi(m[5]), second: atoi(m[6])}
		loc = estOffset
		if strings.EqualFold(m[7], "EDT") {
			loc = edtOffset
		}
	case reUSDateTime.MatchString(s):
		m := reUSDateTime.FindStringSubmatch(s)
		p = dateParts{year: atoi(m[3]), month: atoi(m[1]), day: atoi(m[2]), hour: atoi(m[4]), minute: atoi(m[5]), second: atoi(m[6])}
	case reUSDate.MatchString(s):
		m := reUSDate.FindStringSubmatch(s)
		p = dateParts{year: atoi(m[3]), month: atoi(m[1]), day: atoi(m[2])}
	case reISODateTime.MatchString(s):
		m := reISODateTime.FindStringSubmatch(s)
		p = dateParts{year: atoi(m[1]), month: atoi(m[2]), day: atoi(m[3]), hour: atoi(m[4]), minute: atoi(m[5]), second: atoi(m[6])}
	case reISODate.MatchString(s):
		m := reISODate.FindStringSubmatch(s)
		p = dateParts{year: atoi(m[1]), month: atoi(m[2]), day: atoi(m[3])}
	case reEpochSec.MatchString(s):
		return epochToUTC(time.Unix(int64(atoi(s)), 0), fail)
	case reEpochMilli.MatchString(s):
		ms, _ := strconv.ParseInt(s, 10, 64)
		return epochToUTC(time.UnixMilli(ms), fail)
	default:
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return epochToUTC(t, fail)
		}
		return fail("unrecognised format")
	}

	if reason := p.validate(); reason != "" {
		return fail(reason)
	}
	if loc == nil {
		loc = brokerLocation(brokerTimezone, p)
	}
	t := time.Date(p.year, time.Month(p.month), p.day, p.hour, p.minute, p.second, 0, loc)
	return t.UTC(), nil
}

func epochToUTC(t time.Time, fail func(string) (time.Time, error)) (time.Time, error) {
	t = t.UTC()
	if t.Year() < 1900 || t.Year() > 2100 {
		return fail(fmt.Sprintf("year %d outside 1900-2100", t.Year()))
	}
	return t, nil
}

// IsValidDateString reports whether s parses as a broker timestamp.
func IsValidDateString(s string) bool {
	_, err := ParseBrokerLocalToUtc(s, NewYorkZone, 0)
	return err == nil
}

// NewYorkOffset returns the UTC offset in hours the New York rule assigns to a
// calendar day: -4 from the second Sunday of March up to, not including, the
// first Sunday of November, -5 otherwise.
func NewYorkOffset(year int, month time.Month, day int) int {
	d := time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
	start := nthSunday(year, time.March, 2)
	end := nthSunday(year, time.November, 1)
	if !d.Before(start) && d.Before(end) {
		return -4
	}
	return -5
}

func nthSunday(year int, month time.Month, n int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (7 - int(first.Weekday())) % 7
	return first.AddDate(0, 0, offset+7*(n-1))
}

// ISOString renders t the way the journal stores instants: UTC with
// millisecond precision.
func ISOString(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
