// Package calendar creates Google Calendar entries for contract
// events. Each (attendee, event date) pair becomes one all-day event.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/agreedhq/backoffice/internal/config"
	"github.com/agreedhq/backoffice/internal/domain"
	"github.com/agreedhq/backoffice/internal/pkg/logger"
	"github.com/agreedhq/backoffice/internal/reminder"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// Scheduler inserts all-day events into a Google calendar.
type Scheduler struct {
	calendarID string
	baseURL    string
	http       *http.Client
}

// NewScheduler builds a scheduler whose HTTP client refreshes access
// tokens from the configured refresh token.
func NewScheduler(ctx context.Context, cfg config.CalendarConfig) *Scheduler {
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     googleEndpoint,
		Scopes:       []string{"https://www.googleapis.com/auth/calendar"},
	}
	client := conf.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Scheduler{calendarID: calendarID, baseURL: defaultBaseURL, http: client}
}

// SetBaseURL overrides the API endpoint, for tests.
func (s *Scheduler) SetBaseURL(u string) { s.baseURL = strings.TrimRight(u, "/") }

// SetHTTPClient overrides the transport, for tests.
func (s *Scheduler) SetHTTPClient(c *http.Client) { s.http = c }

type allDayEvent struct {
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Start       struct {
		Date string `json:"date"`
	} `json:"start"`
	End struct {
		Date string `json:"date"`
	} `json:"end"`
	Attendees []struct {
		Email string `json:"email"`
	} `json:"attendees,omitempty"`
}

// InsertAllDay creates one all-day event on day for one attendee.
func (s *Scheduler) InsertAllDay(ctx context.Context, summary, description, attendee string, day time.Time) (string, error) {
	var ev allDayEvent
	ev.Summary = summary
	ev.Description = description
	ev.Start.Date = day.Format("2006-01-02")
	ev.End.Date = day.AddDate(0, 0, 1).Format("2006-01-02")
	if attendee != "" {
		ev.Attendees = append(ev.Attendees, struct {
			Email string `json:"email"`
		}{Email: attendee})
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("calendar: encoding event: %w", err)
	}
	endpoint := fmt.Sprintf("%s/calendars/%s/events", s.baseURL, s.calendarID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("calendar: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("calendar: inserting event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("calendar: insert returned status %d", resp.StatusCode)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("calendar: decoding response: %w", err)
	}
	return out.ID, nil
}

// ScheduleResult summarizes one record's scheduling.
type ScheduleResult struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// ScheduleRecord creates one event per (attendee, parsable date) on a
// client record. Attendees are the recipient plus cc addresses.
// Unparsable dates are skipped; one insert failure never stops the
// rest.
func (s *Scheduler) ScheduleRecord(ctx context.Context, rec *domain.ClientRecord) (*ScheduleResult, error) {
	attendees := append([]string{rec.RecipientEmail}, rec.CCList()...)
	res := &ScheduleResult{}

	for _, entry := range rec.Dates {
		day, err := reminder.ParseEventDate(entry.DateValue, time.UTC)
		if err != nil {
			logger.Warn("skipping unparsable event date",
				"client_id", rec.ID, "date_value", entry.DateValue)
			res.Skipped++
			continue
		}
		summary := fmt.Sprintf("%s: %s", rec.ClientName, entry.DateType)
		description := fmt.Sprintf("Contract event %s on %s for %s.", entry.DateType, entry.DateValue, rec.ClientName)

		for _, attendee := range attendees {
			if attendee == "" {
				continue
			}
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if _, err := s.InsertAllDay(ctx, summary, description, attendee, day); err != nil {
				res.Errors = append(res.Errors, err.Error())
				continue
			}
			res.Created++
		}
	}
	return res, nil
}
