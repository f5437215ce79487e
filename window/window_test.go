package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestContains(t *testing.T) {
	w := New(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.UTC)

	testCases := []struct {
		name     string
		ts       time.Time
		expected bool
	}{
		{"exact start", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"morning", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), true},
		{"last second", time.Date(2024, 3, 1, 23, 59, 59, 0, time.UTC), true},
		{"exact end", time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), false},
		{"previous day", time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC), false},
		{"evening west of UTC lands next day", time.Date(2024, 3, 1, 20, 0, 0, 0, time.FixedZone("", -5*3600)), false},
		{"evening west of UTC lands on day", time.Date(2024, 2, 29, 20, 0, 0, 0, time.FixedZone("", -5*3600)), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, w.Contains(tc.ts))
			assert.Equal(t, tc.expected, InWindow(tc.ts, w))
		})
	}
}

func TestContainsLocalMidnight(t *testing.T) {
	tokyo := mustLoad(t, "Asia/Tokyo")
	w := New(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), tokyo)

	assert.True(t, w.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, tokyo)))
	assert.False(t, w.Contains(time.Date(2024, 3, 2, 0, 0, 0, 0, tokyo)))
	// 2024-02-29T15:00Z is midnight in Tokyo
	assert.True(t, w.Contains(time.Date(2024, 2, 29, 15, 0, 0, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2024, 2, 29, 14, 59, 59, 0, time.UTC)))
}

func TestContainsMatchesInterval(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	w := New(time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC), ny)

	for offset := -30 * time.Hour; offset <= 54*time.Hour; offset += 17 * time.Minute {
		ts := w.Start.Add(offset).UTC()
		local := ts.In(ny)
		expected := !local.Before(w.Start) && local.Before(w.End)
		assert.Equal(t, expected, w.Contains(ts), "timestamp %s", ts)
	}
}

func TestNewAcrossDST(t *testing.T) {
	ny := mustLoad(t, "America/New_York")

	spring := New(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), ny)
	assert.Equal(t, 23*time.Hour, spring.End.Sub(spring.Start))

	fall := New(time.Date(2024, 11, 3, 0, 0, 0, 0, time.UTC), ny)
	assert.Equal(t, 25*time.Hour, fall.End.Sub(fall.Start))
}

func TestPadded(t *testing.T) {
	w := New(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.UTC)
	since, until := w.Padded()
	assert.Equal(t, time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC), since.UTC())
	assert.Equal(t, time.Date(2024, 3, 2, 14, 0, 0, 0, time.UTC), until.UTC())
}

func TestParseFixedOffset(t *testing.T) {
	w, err := Parse("2024-03-01", "+05:30", time.Now())
	require.NoError(t, err)

	_, offset := w.Start.Zone()
	assert.Equal(t, 5*3600+30*60, offset)
	assert.True(t, time.Date(2024, 2, 29, 18, 30, 0, 0, time.UTC).Equal(w.Start))
	assert.Equal(t, 24*time.Hour, w.End.Sub(w.Start))
}

func TestParse(t *testing.T) {
	now := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)

	testCases := []struct {
		name        string
		date        string
		tz          string
		expectedDay string
		expectedErr bool
	}{
		{name: "explicit date", date: "2024-02-14", tz: "UTC", expectedDay: "2024-02-14"},
		{name: "empty timezone is UTC", date: "2024-02-14", tz: "", expectedDay: "2024-02-14"},
		{name: "default date uses zone", date: "", tz: "Asia/Tokyo", expectedDay: "2024-03-02"},
		{name: "malformed date", date: "03/01/2024", tz: "UTC", expectedErr: true},
		{name: "unknown zone", date: "2024-03-01", tz: "Mars/Olympus", expectedErr: true},
		{name: "positive offset", date: "", tz: "+05:30", expectedDay: "2024-03-02"},
		{name: "negative offset", date: "", tz: "-08:00", expectedDay: "2024-03-01"},
		{name: "offset without colon", date: "2024-03-01", tz: "+0530", expectedDay: "2024-03-01"},
		{name: "hour offset", date: "2024-03-01", tz: "-03", expectedDay: "2024-03-01"},
		{name: "offset out of range", date: "2024-03-01", tz: "+15:00", expectedErr: true},
		{name: "malformed offset", date: "2024-03-01", tz: "+5:3", expectedErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := Parse(tc.date, tc.tz, now)
			if tc.expectedErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedDay, w.Date())
		})
	}
}
