// Package window computes the local-time day a summary covers and decides
// which commit timestamps fall inside it.
package window

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zone names resolve without system zoneinfo
)

// DateLayout is the calendar date format accepted on input.
const DateLayout = "2006-01-02"

// MaxUTCOffset is the largest offset any timezone uses (UTC+14, Line Islands).
// Query bounds are widened by it on both sides.
const MaxUTCOffset = 14 * time.Hour

// ErrInvalid is returned for malformed dates or unknown timezones.
var ErrInvalid = errors.New("invalid day window")

// Window is the half-open interval [Start, End) covering one calendar day
// in Location.
type Window struct {
	Start    time.Time
	End      time.Time
	Location *time.Location
}

// New returns the window for the calendar day of date in loc. Only the
// year, month and day of date are used.
func New(date time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	// next local midnight; 23 or 25 real hours across DST changes
	end := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	return Window{Start: start, End: end, Location: loc}
}

// Parse builds a window from a YYYY-MM-DD date and a zone name or offset.
// An empty date means today in that zone.
func Parse(date, tz string, now time.Time) (Window, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return Window{}, err
	}
	date = strings.TrimSpace(date)
	if date == "" {
		return New(now.In(loc), loc), nil
	}
	d, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return Window{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalid, date)
	}
	return New(d, loc), nil
}

// LoadLocation resolves an IANA zone name or a fixed UTC offset such as
// +05:30 or -0800; empty means UTC.
func LoadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	if strings.HasPrefix(tz, "+") || strings.HasPrefix(tz, "-") {
		return fixedZone(tz)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalid, tz)
	}
	return loc, nil
}

func fixedZone(tz string) (*time.Location, error) {
	for _, layout := range []string{"-07:00", "-0700", "-07"} {
		t, err := time.Parse(layout, tz)
		if err != nil {
			continue
		}
		_, offset := t.Zone()
		if d := time.Duration(offset) * time.Second; d > MaxUTCOffset || d < -12*time.Hour {
			return nil, fmt.Errorf("%w: offset %q out of range", ErrInvalid, tz)
		}
		return time.FixedZone("UTC"+tz, offset), nil
	}
	return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalid, tz)
}

// Contains reports whether t falls inside the window once converted to the
// window's location. Start is included, End is excluded.
func (w Window) Contains(t time.Time) bool {
	local := t.In(w.Location)
	return !local.Before(w.Start) && local.Before(w.End)
}

// InWindow is the free-function form of Contains.
func InWindow(t time.Time, w Window) bool {
	return w.Contains(t)
}

// Padded returns query bounds widened by MaxUTCOffset on each side.
func (w Window) Padded() (since, until time.Time) {
	return w.Start.Add(-MaxUTCOffset), w.End.Add(MaxUTCOffset)
}

// Date returns the calendar date of the window as YYYY-MM-DD.
func (w Window) Date() string {
	return w.Start.Format(DateLayout)
}

func (w Window) String() string {
	return fmt.Sprintf("%s [%s, %s) %s", w.Date(),
		w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339), w.Location)
}
