// Package reminder implements the due-date notification pipeline:
// date evaluation, content generation, per-recipient dispatch, the
// idempotent notification log, and the daily scheduler that drives it.
package reminder

import (
	"fmt"
	"strings"
	"time"
)

// Accepted event-date layouts, tried in order. Records come out of
// document extraction, so formatting drifts between contracts.
var dateLayouts = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"02-01-2006",
	"2006-01-02",
}

// ParseEventDate parses a contract event date string. The result is
// midnight in loc.
func ParseEventDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty event date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized event date %q", s)
}

// IsDue reports whether event falls inside the notification window:
// from the start of now's calendar day through now+lookahead,
// inclusive on both ends. Events earlier today still count; an event
// exactly at the window edge counts.
func IsDue(event, now time.Time, lookahead time.Duration) bool {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return !event.Before(dayStart) && !event.After(now.Add(lookahead))
}
