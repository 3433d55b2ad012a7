package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agreedhq/backoffice/internal/calendar"
	"github.com/agreedhq/backoffice/internal/domain"
	"github.com/agreedhq/backoffice/internal/esign"
	"github.com/agreedhq/backoffice/internal/genai"
	"github.com/agreedhq/backoffice/internal/heygen"
	"github.com/agreedhq/backoffice/internal/intake"
	"github.com/agreedhq/backoffice/internal/payments"
	"github.com/agreedhq/backoffice/internal/pkg/httputil"
	"github.com/agreedhq/backoffice/internal/pkg/logger"
	"github.com/agreedhq/backoffice/internal/reminder"
	"github.com/agreedhq/backoffice/internal/storage"
)

// maxUploadBytes caps contract uploads.
const maxUploadBytes = 32 << 20

// Narrow capability interfaces so handler tests can fake the wiring.

type intakeService interface {
	Process(ctx context.Context, filename string, data []byte, recipientEmail string) (*domain.ClientRecord, error)
}

type esignClient interface {
	SendEnvelope(ctx context.Context, req esign.EnvelopeRequest) (string, error)
	RecipientViewURL(ctx context.Context, envelopeID, returnURL string, signer esign.Signer) (string, error)
	CreateTemplate(ctx context.Context, name string, documentPDF []byte) (string, error)
	ListTemplates(ctx context.Context) ([]esign.Template, error)
}

type videoClient interface {
	GenerateVideo(ctx context.Context, req heygen.GenerateRequest) (string, error)
	VideoStatus(ctx context.Context, videoID string) (*heygen.Status, error)
}

type voiceCaller interface {
	Call(ctx context.Context, toNumber, script string) (string, error)
}

type paymentsClient interface {
	CreateIntent(ctx context.Context, amount int64, currency, clientID string) (*payments.Intent, error)
	VerifyWebhook(payload []byte, sigHeader string) (*payments.Event, error)
}

type calendarClient interface {
	ScheduleRecord(ctx context.Context, rec *domain.ClientRecord) (*calendar.ScheduleResult, error)
}

type reminderRunner interface {
	TriggerNow(ctx context.Context, name string) (*reminder.DispatchReport, error)
}

// HandlerDeps is the wiring for the handler set. Any integration may
// be left nil; its routes then answer 503.
type HandlerDeps struct {
	Store    storage.ClientStore
	Intake   intakeService
	Gen      genai.Generator
	Esign    esignClient
	Video    videoClient
	Voice    voiceCaller
	Payments paymentsClient
	Calendar calendarClient
	Runner   reminderRunner
}

// Handlers carries the wired dependencies for every route.
type Handlers struct {
	store    storage.ClientStore
	intake   intakeService
	gen      genai.Generator
	esign    esignClient
	video    videoClient
	voice    voiceCaller
	payments paymentsClient
	calendar calendarClient
	runner   reminderRunner
}

// NewHandlers builds the handler set from its dependencies.
func NewHandlers(deps HandlerDeps) *Handlers {
	return &Handlers{
		store: deps.Store, intake: deps.Intake, gen: deps.Gen,
		esign: deps.Esign, video: deps.Video, voice: deps.Voice,
		payments: deps.Payments, calendar: deps.Calendar, runner: deps.Runner,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	httputil.JSON(w, status, v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	httputil.Error(w, status, msg)
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// IntakeUpload ingests a contract document (multipart field "document",
// optional "recipient_email") and returns the created record.
func (h *Handlers) IntakeUpload(w http.ResponseWriter, r *http.Request) {
	if h.intake == nil {
		writeError(w, http.StatusServiceUnavailable, "intake not configured")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing document file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload failed")
		return
	}
	if len(data) > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "document too large")
		return
	}

	rec, err := h.intake.Process(r.Context(), header.Filename, data, r.FormValue("recipient_email"))
	if err != nil {
		if errors.Is(err, intake.ErrUnsupportedFormat) {
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
			return
		}
		logger.Error("intake failed", "filename", header.Filename, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "intake failed")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// SaveClient upserts a manually edited record.
func (h *Handlers) SaveClient(w http.ResponseWriter, r *http.Request) {
	var rec domain.ClientRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid client record")
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := h.store.Create(r.Context(), &rec); err != nil {
		logger.Error("saving client failed", "client_id", rec.ID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "saving client failed")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListClients returns every record.
func (h *Handlers) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.store.FindAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing clients failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"clients": clients, "count": len(clients)})
}

// GetClient returns one record by ID.
func (h *Handlers) GetClient(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "client not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "loading client failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetClientByToken resolves a record from its client-facing access
// token. Used by signing and payment pages. POST keeps the token out of
// access logs.
func (h *Handlers) GetClientByToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "missing access_token")
		return
	}
	rec, err := h.store.FindByAccessToken(r.Context(), req.AccessToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "client not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "loading client failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ChatAsk answers a question grounded on one record's extracted text.
func (h *Handlers) ChatAsk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID string `json:"client_id"`
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClientID == "" || req.Question == "" {
		writeError(w, http.StatusBadRequest, "client_id and question are required")
		return
	}

	rec, err := h.store.FindByID(r.Context(), req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "client not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "loading client failed")
		return
	}
	if rec.ExtractedContent == "" {
		writeError(w, http.StatusConflict, "client has no extracted contract text")
		return
	}

	prompt, err := genai.ChatQuestionPrompt(rec.ExtractedContent, req.Question)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "building prompt failed")
		return
	}
	answer, err := h.gen.Generate(r.Context(), prompt)
	if err != nil {
		logger.Error("chat generation failed", "client_id", req.ClientID, "error", err.Error())
		writeError(w, http.StatusBadGateway, "answer generation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

// RunReminders triggers a scheduler job immediately. Body:
// {"job": "email"|"call-content"|"video-poll"}; default "email".
func (h *Handlers) RunReminders(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Job string `json:"job"`
	}
	// An empty body is fine.
	json.NewDecoder(r.Body).Decode(&req)
	if req.Job == "" {
		req.Job = reminder.JobEmail
	}

	rep, err := h.runner.TriggerNow(r.Context(), req.Job)
	if err != nil {
		if errors.Is(err, reminder.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "job already running")
			return
		}
		logger.Error("manual run failed", "job", req.Job, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "run failed")
		return
	}
	if rep == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "lock held by another replica"})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
