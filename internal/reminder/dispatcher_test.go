package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agreedhq/backoffice/internal/config"
	"github.com/agreedhq/backoffice/internal/domain"
	"github.com/agreedhq/backoffice/internal/events"
	"github.com/agreedhq/backoffice/internal/genai"
	"github.com/agreedhq/backoffice/internal/mailer"
	"github.com/agreedhq/backoffice/internal/storage"
)

// memStore is a minimal in-memory ClientStore for pipeline tests.
type memStore struct {
	mu      sync.Mutex
	records map[string]*domain.ClientRecord
	order   []string
}

func newMemStore(recs ...*domain.ClientRecord) *memStore {
	s := &memStore{records: map[string]*domain.ClientRecord{}}
	for _, r := range recs {
		s.records[r.ID] = r
		s.order = append(s.order, r.ID)
	}
	return s
}

func (s *memStore) Create(_ context.Context, rec *domain.ClientRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *memStore) FindAll(context.Context) ([]domain.ClientRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ClientRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.records[id])
	}
	return out, nil
}

func (s *memStore) FindByID(_ context.Context, id string) (*domain.ClientRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) FindByAccessToken(_ context.Context, token string) (*domain.ClientRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.AccessToken == token {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *memStore) AppendNotification(_ context.Context, id string, entry domain.NotificationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return storage.ErrNotFound
	}
	rec.NotificationLog = append(rec.NotificationLog, entry)
	return nil
}

func (s *memStore) AppendCallContent(_ context.Context, id string, entry domain.CallContentEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return storage.ErrNotFound
	}
	rec.CallContentLog = append(rec.CallContentLog, entry)
	return nil
}

func (s *memStore) SetVideoLink(_ context.Context, id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return storage.ErrNotFound
	}
	rec.VideoURL = url
	return nil
}

type fakeGen struct {
	mu    sync.Mutex
	calls int
	out   string
	err   error
}

func (g *fakeGen) Generate(context.Context, string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.out, nil
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []mailer.Message
	failTo string
}

func (f *fakeSender) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo != "" && msg.To == f.failTo {
		return errors.New("smtp 554 rejected")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func testCfg() config.ReminderConfig {
	return config.ReminderConfig{
		LookaheadHours:      24,
		Timezone:            "UTC",
		Concurrency:         4,
		BatchTimeoutMinutes: 5,
	}
}

func testClient(id string, email string, dates ...domain.DateEntry) *domain.ClientRecord {
	return &domain.ClientRecord{
		ID:               id,
		ClientName:       "Client " + id,
		RecipientEmail:   email,
		CCAddresses:      []domain.EmailAddress{{Entity: "Billing", Email: "billing@" + id + ".example"}},
		ExtractedContent: "Agreement between parties, renewal terms apply.",
		Dates:            dates,
	}
}

func fixedNow(d *Dispatcher, now time.Time) { d.now = func() time.Time { return now } }

func TestDispatch_SendsDueReminder(t *testing.T) {
	now := time.Date(2026, 1, 26, 7, 0, 0, 0, time.UTC)
	store := newMemStore(testClient("c1", "c1@example.com",
		domain.DateEntry{DateValue: "Jan 27, 2026", DateType: "Renewal Date"},
		domain.DateEntry{DateValue: "Mar 15, 2026", DateType: "Expiration Date"},
	))
	gen := &fakeGen{out: "Subject: Renewal is near\n\nDear client, your renewal is on Jan 27, 2026."}
	sender := &fakeSender{}

	d := NewDispatcher(store, gen, sender, events.NopPublisher{}, testCfg())
	fixedNow(d, now)

	rep, err := d.DispatchDueNotifications(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, 0, rep.Failed)
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "c1@example.com", msg.To)
	assert.Equal(t, []string{"billing@c1.example"}, msg.CC)
	assert.Equal(t, "Renewal is near", msg.Subject)
	assert.Contains(t, msg.HTMLBody, "<p>")
	assert.NotContains(t, msg.TextBody, "Subject:")

	rec, err := store.FindByID(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, rec.NotificationLog, 1)
	entry := rec.NotificationLog[0]
	assert.Equal(t, "Jan 27, 2026", entry.RelatedDate)
	assert.Equal(t, "Renewal Date", entry.DateType)
	assert.Equal(t, "Renewal is near", entry.Subject)
	assert.NotEmpty(t, entry.ID)
}

func TestDispatch_IdempotentWithinDay(t *testing.T) {
	now := time.Date(2026, 1, 26, 7, 0, 0, 0, time.UTC)
	store := newMemStore(testClient("c1", "c1@example.com",
		domain.DateEntry{DateValue: "Jan 26, 2026", DateType: "Completion Date"},
	))
	gen := &fakeGen{out: "Subject: Done soon\n\nBody."}
	sender := &fakeSender{}
	d := NewDispatcher(store, gen, sender, events.NopPublisher{}, testCfg())
	fixedNow(d, now)

	_, err := d.DispatchDueNotifications(context.Background())
	require.NoError(t, err)

	// Second run later the same day: nothing new goes out.
	fixedNow(d, now.Add(3*time.Hour))
	rep, err := d.DispatchDueNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Sent)
	assert.Equal(t, 1, rep.Skipped)
	assert.Len(t, sender.sent, 1)

	// Next day it fires again.
	fixedNow(d, now.AddDate(0, 0, 1))
	rep, err = d.DispatchDueNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Sent) // Jan 26 is now past
}

func TestDispatch_PartialFailureIsolated(t *testing.T) {
	now := time.Date(2026, 1, 26, 7, 0, 0, 0, time.UTC)
	due := domain.DateEntry{DateValue: "Jan 26, 2026", DateType: "Renewal Date"}
	store := newMemStore(
		testClient("c1", "c1@example.com", due),
		testClient("c2", "reject@example.com", due),
		testClient("c3", "c3@example.com", due),
	)
	gen := &fakeGen{out: "Subject: Hi\n\nBody."}
	sender := &fakeSender{failTo: "reject@example.com"}
	d := NewDispatcher(store, gen, sender, events.NopPublisher{}, testCfg())
	fixedNow(d, now)

	rep, err := d.DispatchDueNotifications(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Sent)
	assert.Equal(t, 1, rep.Failed)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "c2", rep.Failures[0].ClientID)
	assert.Contains(t, rep.Failures[0].Reason, "sending email")

	rec, _ := store.FindByID(context.Background(), "c2")
	assert.Empty(t, rec.NotificationLog, "failed send must not be logged")
}

func TestDispatch_UnparsableDateSkipped(t *testing.T) {
	now := time.Date(2026, 1, 26, 7, 0, 0, 0, time.UTC)
	store := newMemStore(testClient("c1", "c1@example.com",
		domain.DateEntry{DateValue: "sometime next spring", DateType: "Renewal Date"},
		domain.DateEntry{DateValue: "Jan 26, 2026", DateType: "Acceptance Date"},
	))
	gen := &fakeGen{out: "Subject: Hi\n\nBody."}
	sender := &fakeSender{}
	d := NewDispatcher(store, gen, sender, events.NopPublisher{}, testCfg())
	fixedNow(d, now)

	rep, err := d.DispatchDueNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 0, rep.Failed)
}

func TestDispatch_GenerationExhaustedFailsItem(t *testing.T) {
	now := time.Date(2026, 1, 26, 7, 0, 0, 0, time.UTC)
	store := newMemStore(testClient("c1", "c1@example.com",
		domain.DateEntry{DateValue: "Jan 26, 2026", DateType: "Renewal Date"},
	))
	gen := &fakeGen{err: &genai.GenerationExhaustedError{Attempts: 3, LastErr: fmt.Errorf("status 503")}}
	sender := &fakeSender{}
	d := NewDispatcher(store, gen, sender, events.NopPublisher{}, testCfg())
	fixedNow(d, now)

	rep, err := d.DispatchDueNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Empty(t, sender.sent)
	require.Len(t, rep.Failures, 1)
	assert.Contains(t, rep.Failures[0].Reason, "after 3 attempts")
}

func TestDispatch_NoRecipientEmail(t *testing.T) {
	now := time.Date(2026, 1, 26, 7, 0, 0, 0, time.UTC)
	store := newMemStore(testClient("c1", "",
		domain.DateEntry{DateValue: "Jan 26, 2026", DateType: "Renewal Date"},
	))
	gen := &fakeGen{out: "Subject: Hi\n\nBody."}
	d := NewDispatcher(store, gen, &fakeSender{}, events.NopPublisher{}, testCfg())
	fixedNow(d, now)

	rep, err := d.DispatchDueNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 0, gen.calls, "no generation without a recipient")
}

func TestDispatchCallContent(t *testing.T) {
	now := time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC)
	store := newMemStore(testClient("c1", "c1@example.com",
		domain.DateEntry{DateValue: "Jan 26, 2026", DateType: "Renewal Date"},
	))
	gen := &fakeGen{out: "Hello, this is AgreeD calling about your renewal on January 26."}
	d := NewDispatcher(store, gen, &fakeSender{}, events.NopPublisher{}, testCfg())
	fixedNow(d, now)

	rep, err := d.DispatchCallContent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)

	rec, _ := store.FindByID(context.Background(), "c1")
	require.Len(t, rec.CallContentLog, 1)
	assert.True(t, strings.Contains(rec.CallContentLog[0].Content, "renewal"))

	// Idempotent within the day.
	rep, err = d.DispatchCallContent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	rec, _ = store.FindByID(context.Background(), "c1")
	assert.Len(t, rec.CallContentLog, 1)
}

func TestDispatch_CancelledContext(t *testing.T) {
	now := time.Date(2026, 1, 26, 7, 0, 0, 0, time.UTC)
	store := newMemStore(testClient("c1", "c1@example.com",
		domain.DateEntry{DateValue: "Jan 26, 2026", DateType: "Renewal Date"},
	))
	d := NewDispatcher(store, &fakeGen{out: "x"}, &fakeSender{}, events.NopPublisher{}, testCfg())
	fixedNow(d, now)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.DispatchDueNotifications(ctx)
	assert.Error(t, err)
}
