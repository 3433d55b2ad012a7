package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agreedhq/backoffice/internal/domain"
	"github.com/agreedhq/backoffice/internal/payments"
	"github.com/agreedhq/backoffice/internal/reminder"
	"github.com/agreedhq/backoffice/internal/storage"
)

type fakeStore struct {
	records map[string]*domain.ClientRecord
}

func (s *fakeStore) Create(_ context.Context, rec *domain.ClientRecord) error {
	if s.records == nil {
		s.records = map[string]*domain.ClientRecord{}
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *fakeStore) FindAll(context.Context) ([]domain.ClientRecord, error) {
	var out []domain.ClientRecord
	for _, r := range s.records {
		out = append(out, *r)
	}
	return out, nil
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*domain.ClientRecord, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) FindByAccessToken(_ context.Context, token string) (*domain.ClientRecord, error) {
	for _, r := range s.records {
		if r.AccessToken == token {
			return r, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeStore) AppendNotification(context.Context, string, domain.NotificationEntry) error {
	return nil
}
func (s *fakeStore) AppendCallContent(context.Context, string, domain.CallContentEntry) error {
	return nil
}
func (s *fakeStore) SetVideoLink(context.Context, string, string) error { return nil }

type fakeRunner struct {
	lastJob string
	rep     *reminder.DispatchReport
	err     error
}

func (r *fakeRunner) TriggerNow(_ context.Context, name string) (*reminder.DispatchReport, error) {
	r.lastJob = name
	return r.rep, r.err
}

type fakeGen struct{ out string }

func (g *fakeGen) Generate(context.Context, string) (string, error) { return g.out, nil }

type fakeCaller struct {
	to, script string
}

func (c *fakeCaller) Call(_ context.Context, to, script string) (string, error) {
	c.to, c.script = to, script
	return "CA1", nil
}

func newTestRouter(store *fakeStore, runner *fakeRunner, gen *fakeGen, caller *fakeCaller) http.Handler {
	h := NewHandlers(HandlerDeps{Store: store, Gen: gen, Voice: caller, Runner: runner})
	return SetupRoutes(h, nil)
}

func seedClient() *fakeStore {
	return &fakeStore{records: map[string]*domain.ClientRecord{
		"c-1": {
			ID:               "c-1",
			ClientName:       "Northwind LLC",
			RecipientEmail:   "ana@northwind.example",
			ExtractedContent: "Renewal on Jan 26, 2026 between AgreeD and Northwind.",
			AccessToken:      "tok-1",
			PhoneNumbers:     []domain.PhoneNumber{{Entity: "Office", Number: "+15550001111"}},
			CallContentLog: []domain.CallContentEntry{
				{ID: "01A", Content: "Hi, reminder about your renewal.", CreatedAt: time.Now().UTC()},
			},
		},
	}}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(seedClient(), &fakeRunner{}, &fakeGen{}, &fakeCaller{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
}

func TestGetClient(t *testing.T) {
	router := newTestRouter(seedClient(), &fakeRunner{}, &fakeGen{}, &fakeCaller{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/clients/c-1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var rec domain.ClientRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, "Northwind LLC", rec.ClientName)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/clients/missing", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetClientByToken(t *testing.T) {
	router := newTestRouter(seedClient(), &fakeRunner{}, &fakeGen{}, &fakeCaller{})

	body := bytes.NewBufferString(`{"access_token":"tok-1"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/clients/by-token", body))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Northwind LLC")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/clients/by-token",
		bytes.NewBufferString(`{"access_token":"wrong"}`)))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSaveClient(t *testing.T) {
	store := seedClient()
	router := newTestRouter(store, &fakeRunner{}, &fakeGen{}, &fakeCaller{})

	body := bytes.NewBufferString(`{"client_name":"Acme","recipient_email":"ops@acme.example"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/clients/save", body))
	require.Equal(t, http.StatusCreated, rr.Code)

	var rec domain.ClientRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Contains(t, store.records, rec.ID)
}

func TestChatAsk(t *testing.T) {
	router := newTestRouter(seedClient(), &fakeRunner{}, &fakeGen{out: "The renewal is on Jan 26, 2026."}, &fakeCaller{})

	body := bytes.NewBufferString(`{"client_id":"c-1","question":"When is the renewal?"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/chat/ask", body))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Jan 26, 2026")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/chat/ask",
		bytes.NewBufferString(`{"client_id":"c-1"}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRunReminders(t *testing.T) {
	runner := &fakeRunner{rep: &reminder.DispatchReport{Sent: 3}}
	router := newTestRouter(seedClient(), runner, &fakeGen{}, &fakeCaller{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/reminders/run",
		bytes.NewBufferString(`{}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, reminder.JobEmail, runner.lastJob)
	assert.Contains(t, rr.Body.String(), `"sent":3`)
}

func TestRunReminders_AlreadyRunning(t *testing.T) {
	runner := &fakeRunner{err: reminder.ErrAlreadyRunning}
	router := newTestRouter(seedClient(), runner, &fakeGen{}, &fakeCaller{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/reminders/run",
		bytes.NewBufferString(`{"job":"email"}`)))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestMakeCall(t *testing.T) {
	caller := &fakeCaller{}
	router := newTestRouter(seedClient(), &fakeRunner{}, &fakeGen{}, caller)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/voice/make-call",
		bytes.NewBufferString(`{"client_id":"c-1"}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "+15550001111", caller.to, "falls back to the record's number")
	assert.Contains(t, caller.script, "renewal")
	assert.Contains(t, rr.Body.String(), "CA1")
}

func TestGetCallContent(t *testing.T) {
	router := newTestRouter(seedClient(), &fakeRunner{}, &fakeGen{}, &fakeCaller{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/voice/call-content/c-1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "reminder about your renewal")
}

type fakePayments struct {
	ev  *payments.Event
	err error
}

func (p *fakePayments) CreateIntent(_ context.Context, amount int64, currency, clientID string) (*payments.Intent, error) {
	return &payments.Intent{ID: "pi_1", Amount: amount, Currency: currency}, nil
}

func (p *fakePayments) VerifyWebhook([]byte, string) (*payments.Event, error) {
	return p.ev, p.err
}

func TestPaymentsWebhook(t *testing.T) {
	h := NewHandlers(HandlerDeps{
		Store:    seedClient(),
		Gen:      &fakeGen{},
		Payments: &fakePayments{ev: &payments.Event{ID: "evt_1", Type: "payment_intent.succeeded"}},
		Runner:   &fakeRunner{},
	})
	router := SetupRoutes(h, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook",
		bytes.NewBufferString(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "evt_1")
}

func TestServiceUnavailableWhenUnconfigured(t *testing.T) {
	router := newTestRouter(seedClient(), &fakeRunner{}, &fakeGen{}, &fakeCaller{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/esign/templates", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/video/status?video_id=v1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
