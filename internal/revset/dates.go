package revset

import (
	"strconv"
	"strings"
	"time"
)

// dateMatcher reports whether a unix timestamp falls inside a user date
// specification.
type dateMatcher func(int64) bool

var dateLayouts = []struct {
	layout string
	unit   func(time.Time) time.Time // start of the following period
}{
	{"2006-01-02 15:04:05", func(t time.Time) time.Time { return t.Add(time.Second) }},
	{"2006-01-02 15:04", func(t time.Time) time.Time { return t.Add(time.Minute) }},
	{"2006-01-02", func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }},
	{"2006-01", func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }},
	{"2006", func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }},
}

// parsePeriod resolves a date string to the half-open interval
// [start, end) it denotes, at the granularity the string spells out.
func parsePeriod(s string) (start, end int64, ok bool) {
	now := time.Now().UTC()
	switch s {
	case "now":
		return now.Unix(), now.Unix() + 1, true
	case "today":
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return day.Unix(), day.AddDate(0, 0, 1).Unix(), true
	case "yesterday":
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		return day.Unix(), day.AddDate(0, 0, 1).Unix(), true
	}
	for _, l := range dateLayouts {
		t, err := time.ParseInLocation(l.layout, s, time.UTC)
		if err == nil {
			return t.Unix(), l.unit(t).Unix(), true
		}
	}
	return 0, 0, false
}

// compileDateMatcher interprets a date specification:
//
//	DATE           within the named period
//	<DATE, <=DATE  on or before the period
//	>DATE, >=DATE  on or after the period
//	DATE to DATE   between the two periods inclusive
//	-DAYS          within the last DAYS days
func compileDateMatcher(value string) (dateMatcher, error) {
	spec := strings.TrimSpace(value)
	bad := func() error { return argErr("invalid date: '%s'", value) }
	switch {
	case spec == "":
		return nil, bad()
	case strings.HasPrefix(spec, "-"):
		days, err := strconv.ParseInt(spec[1:], 10, 64)
		if err != nil || days < 0 {
			return nil, bad()
		}
		cutoff := time.Now().UTC().Unix() - days*86400
		return func(ts int64) bool { return ts >= cutoff }, nil
	case strings.HasPrefix(spec, "<"):
		_, end, ok := parsePeriod(strings.TrimSpace(strings.TrimPrefix(spec[1:], "=")))
		if !ok {
			return nil, bad()
		}
		return func(ts int64) bool { return ts < end }, nil
	case strings.HasPrefix(spec, ">"):
		start, _, ok := parsePeriod(strings.TrimSpace(strings.TrimPrefix(spec[1:], "=")))
		if !ok {
			return nil, bad()
		}
		return func(ts int64) bool { return ts >= start }, nil
	}
	if lo, hi, found := strings.Cut(spec, " to "); found {
		start, _, ok1 := parsePeriod(strings.TrimSpace(lo))
		_, end, ok2 := parsePeriod(strings.TrimSpace(hi))
		if !ok1 || !ok2 {
			return nil, bad()
		}
		return func(ts int64) bool { return ts >= start && ts < end }, nil
	}
	start, end, ok := parsePeriod(spec)
	if !ok {
		return nil, bad()
	}
	return func(ts int64) bool { return ts >= start && ts < end }, nil
}
