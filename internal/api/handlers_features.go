package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agreedhq/backoffice/internal/esign"
	"github.com/agreedhq/backoffice/internal/heygen"
	"github.com/agreedhq/backoffice/internal/pkg/logger"
	"github.com/agreedhq/backoffice/internal/reminder"
	"github.com/agreedhq/backoffice/internal/storage"
)

// CreateEnvelope sends a signature envelope for a client's contract.
// The document travels base64-encoded in the request body.
func (h *Handlers) CreateEnvelope(w http.ResponseWriter, r *http.Request) {
	if h.esign == nil {
		writeError(w, http.StatusServiceUnavailable, "e-signature not configured")
		return
	}
	var req struct {
		ClientID       string `json:"client_id"`
		DocumentName   string `json:"document_name"`
		DocumentBase64 string `json:"document_base64"`
		Subject        string `json:"subject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClientID == "" || req.DocumentBase64 == "" {
		writeError(w, http.StatusBadRequest, "client_id and document_base64 are required")
		return
	}
	doc, err := base64.StdEncoding.DecodeString(req.DocumentBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "document_base64 is not valid base64")
		return
	}

	rec, err := h.store.FindByID(r.Context(), req.ClientID)
	if err != nil {
		writeError(w, clientLookupStatus(err), "client lookup failed")
		return
	}
	if rec.RecipientEmail == "" {
		writeError(w, http.StatusConflict, "client has no recipient email")
		return
	}

	envelopeID, err := h.esign.SendEnvelope(r.Context(), esign.EnvelopeRequest{
		DocumentName: req.DocumentName,
		DocumentPDF:  doc,
		Subject:      req.Subject,
		Signer:       esign.Signer{Email: rec.RecipientEmail, Name: rec.ContactPerson},
	})
	if err != nil {
		logger.Error("sending envelope failed", "client_id", req.ClientID, "error", err.Error())
		writeError(w, http.StatusBadGateway, "sending envelope failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"envelope_id": envelopeID})
}

// EnvelopeView returns an embedded signing URL for an envelope.
func (h *Handlers) EnvelopeView(w http.ResponseWriter, r *http.Request) {
	if h.esign == nil {
		writeError(w, http.StatusServiceUnavailable, "e-signature not configured")
		return
	}
	var req struct {
		ClientID  string `json:"client_id"`
		ReturnURL string `json:"return_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	rec, err := h.store.FindByID(r.Context(), req.ClientID)
	if err != nil {
		writeError(w, clientLookupStatus(err), "client lookup failed")
		return
	}

	url, err := h.esign.RecipientViewURL(r.Context(), chi.URLParam(r, "id"), req.ReturnURL,
		esign.Signer{Email: rec.RecipientEmail, Name: rec.ContactPerson})
	if err != nil {
		writeError(w, http.StatusBadGateway, "creating signing view failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// CreateTemplate registers a reusable envelope template.
func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	if h.esign == nil {
		writeError(w, http.StatusServiceUnavailable, "e-signature not configured")
		return
	}
	var req struct {
		Name           string `json:"name"`
		DocumentBase64 string `json:"document_base64"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.DocumentBase64 == "" {
		writeError(w, http.StatusBadRequest, "name and document_base64 are required")
		return
	}
	doc, err := base64.StdEncoding.DecodeString(req.DocumentBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "document_base64 is not valid base64")
		return
	}

	id, err := h.esign.CreateTemplate(r.Context(), req.Name, doc)
	if err != nil {
		writeError(w, http.StatusBadGateway, "creating template failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"template_id": id})
}

// ListTemplates lists the account's envelope templates.
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	if h.esign == nil {
		writeError(w, http.StatusServiceUnavailable, "e-signature not configured")
		return
	}
	templates, err := h.esign.ListTemplates(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "listing templates failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": templates})
}

// GenerateVideo submits an avatar-video job voiced from the client's
// newest call script.
func (h *Handlers) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	if h.video == nil {
		writeError(w, http.StatusServiceUnavailable, "video not configured")
		return
	}
	var req struct {
		ClientID string `json:"client_id"`
		AvatarID string `json:"avatar_id"`
		VoiceID  string `json:"voice_id"`
		Script   string `json:"script"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	rec, err := h.store.FindByID(r.Context(), req.ClientID)
	if err != nil {
		writeError(w, clientLookupStatus(err), "client lookup failed")
		return
	}

	script := req.Script
	if script == "" {
		if n := len(rec.CallContentLog); n > 0 {
			script = rec.CallContentLog[n-1].Content
		}
	}
	if script == "" {
		writeError(w, http.StatusConflict, "client has no call script to voice")
		return
	}

	videoID, err := h.video.GenerateVideo(r.Context(), heygen.GenerateRequest{
		AvatarID: req.AvatarID,
		VoiceID:  req.VoiceID,
		Script:   script,
	})
	if err != nil {
		logger.Error("video generation failed", "client_id", req.ClientID, "error", err.Error())
		writeError(w, http.StatusBadGateway, "video generation failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"video_id": videoID})
}

// VideoStatus proxies a generation job's state.
func (h *Handlers) VideoStatus(w http.ResponseWriter, r *http.Request) {
	if h.video == nil {
		writeError(w, http.StatusServiceUnavailable, "video not configured")
		return
	}
	videoID := r.URL.Query().Get("video_id")
	if videoID == "" {
		writeError(w, http.StatusBadRequest, "video_id is required")
		return
	}
	st, err := h.video.VideoStatus(r.Context(), videoID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "status lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// MakeCall places a reminder call speaking the client's newest call
// script.
func (h *Handlers) MakeCall(w http.ResponseWriter, r *http.Request) {
	if h.voice == nil {
		writeError(w, http.StatusServiceUnavailable, "voice not configured")
		return
	}
	var req struct {
		ClientID    string `json:"client_id"`
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	rec, err := h.store.FindByID(r.Context(), req.ClientID)
	if err != nil {
		writeError(w, clientLookupStatus(err), "client lookup failed")
		return
	}
	if len(rec.CallContentLog) == 0 {
		writeError(w, http.StatusConflict, "client has no generated call script")
		return
	}
	number := req.PhoneNumber
	if number == "" && len(rec.PhoneNumbers) > 0 {
		number = rec.PhoneNumbers[0].Number
	}
	if number == "" {
		writeError(w, http.StatusConflict, "no phone number for client")
		return
	}

	script := rec.CallContentLog[len(rec.CallContentLog)-1].Content
	sid, err := h.voice.Call(r.Context(), number, script)
	if err != nil {
		logger.Error("placing call failed", "client_id", req.ClientID, "error", err.Error())
		writeError(w, http.StatusBadGateway, "placing call failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"call_sid": sid})
}

// RunCallContent triggers the call-script generation job.
func (h *Handlers) RunCallContent(w http.ResponseWriter, r *http.Request) {
	rep, err := h.runner.TriggerNow(r.Context(), reminder.JobCallContent)
	if err != nil {
		if errors.Is(err, reminder.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "job already running")
			return
		}
		writeError(w, http.StatusInternalServerError, "run failed")
		return
	}
	if rep == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "lock held by another replica"})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GetCallContent returns a client's generated call scripts.
func (h *Handlers) GetCallContent(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.FindByID(r.Context(), chi.URLParam(r, "clientId"))
	if err != nil {
		writeError(w, clientLookupStatus(err), "client lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"client_id":    rec.ID,
		"call_content": rec.CallContentLog,
	})
}

// PaymentIntent creates a Stripe payment intent for a client invoice.
func (h *Handlers) PaymentIntent(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeError(w, http.StatusServiceUnavailable, "payments not configured")
		return
	}
	var req struct {
		ClientID string `json:"client_id"`
		Amount   int64  `json:"amount"` // smallest currency unit
		Currency string `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "positive amount is required")
		return
	}

	intent, err := h.payments.CreateIntent(r.Context(), req.Amount, req.Currency, req.ClientID)
	if err != nil {
		logger.Error("creating payment intent failed", "client_id", req.ClientID, "error", err.Error())
		writeError(w, http.StatusBadGateway, "creating payment intent failed")
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

// PaymentsWebhook verifies and acknowledges Stripe events.
func (h *Handlers) PaymentsWebhook(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeError(w, http.StatusServiceUnavailable, "payments not configured")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading payload failed")
		return
	}

	ev, err := h.payments.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		logger.Warn("webhook rejected", "error", err.Error())
		writeError(w, http.StatusBadRequest, "signature verification failed")
		return
	}

	logger.Info("payment event received", "event_id", ev.ID, "type", ev.Type)
	writeJSON(w, http.StatusOK, map[string]string{"received": ev.ID})
}

// CalendarSchedule creates calendar events for a client's contract
// dates.
func (h *Handlers) CalendarSchedule(w http.ResponseWriter, r *http.Request) {
	if h.calendar == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar not configured")
		return
	}
	var req struct {
		ClientID string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	rec, err := h.store.FindByID(r.Context(), req.ClientID)
	if err != nil {
		writeError(w, clientLookupStatus(err), "client lookup failed")
		return
	}

	res, err := h.calendar.ScheduleRecord(r.Context(), rec)
	if err != nil {
		writeError(w, http.StatusBadGateway, "scheduling failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func clientLookupStatus(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
