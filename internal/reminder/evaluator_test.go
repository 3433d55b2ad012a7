package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"Jan 26, 2026", time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC), true},
		{"January 26, 2026", time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC), true},
		{"26-01-2026", time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC), true},
		{"2026-01-26", time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC), true},
		{"  Sep 1, 2026 ", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), true},
		{"next Tuesday", time.Time{}, false},
		{"", time.Time{}, false},
		{"13/45/2026", time.Time{}, false},
	}
	for _, tc := range tests {
		got, err := ParseEventDate(tc.in, time.UTC)
		if !tc.ok {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.True(t, got.Equal(tc.want), "%s: got %v", tc.in, got)
	}
}

func TestIsDue(t *testing.T) {
	// Morning run on Jan 26 with the default one-day window.
	now := time.Date(2026, 1, 26, 7, 0, 0, 0, time.UTC)
	lookahead := 24 * time.Hour

	day := func(d int) time.Time { return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC) }

	assert.True(t, IsDue(day(26), now, lookahead), "event earlier today is still due")
	assert.True(t, IsDue(day(27), now, lookahead), "event tomorrow is inside the window")
	assert.False(t, IsDue(day(28), now, lookahead), "event in two days is not due")
	assert.False(t, IsDue(day(25), now, lookahead), "event yesterday is past")

	// Exact window edge is inclusive.
	assert.True(t, IsDue(now.Add(lookahead), now, lookahead))
	assert.False(t, IsDue(now.Add(lookahead+time.Second), now, lookahead))
}

func TestIsDue_WiderWindow(t *testing.T) {
	now := time.Date(2026, 1, 26, 7, 0, 0, 0, time.UTC)
	week := 7 * 24 * time.Hour
	assert.True(t, IsDue(time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), now, week))
	assert.False(t, IsDue(time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), now, week))
}
