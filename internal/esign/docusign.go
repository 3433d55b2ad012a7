// Package esign integrates DocuSign: OAuth token caching, envelope
// creation, embedded signing views, and templates.
package esign

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/agreedhq/backoffice/internal/config"
	"github.com/agreedhq/backoffice/internal/pkg/httpretry"
	"github.com/agreedhq/backoffice/internal/pkg/logger"
)

// Client talks to the DocuSign eSignature REST API.
type Client struct {
	cfg  config.DocuSignConfig
	http httpretry.HTTPDoer

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

// NewClient builds a DocuSign client with retrying transport.
func NewClient(cfg config.DocuSignConfig) *Client {
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = 30
	}
	return &Client{
		cfg:  cfg,
		http: httpretry.NewRetryClient(http.DefaultClient, 3),
		now:  time.Now,
	}
}

// SetHTTPClient overrides the transport, for tests.
func (c *Client) SetHTTPClient(h httpretry.HTTPDoer) { c.http = h }

// Token returns a valid access token, refreshing when the cached one
// is within the refresh threshold of expiry. Refreshes are serialized;
// concurrent callers share the result.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	threshold := time.Duration(c.cfg.RefreshThreshold) * time.Minute
	if c.token != "" && c.now().Before(c.expiresAt.Add(-threshold)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", c.cfg.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.AuthServer, "/")+"/oauth/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("esign: building token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.IntegrationKey + ":" + c.cfg.SecretKey))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("esign: refreshing token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("esign: token refresh returned status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("esign: decoding token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("esign: token response missing access_token")
	}

	c.token = body.AccessToken
	c.expiresAt = c.now().Add(time.Duration(body.ExpiresIn) * time.Second)
	logger.Info("docusign token refreshed", "expires_in_s", body.ExpiresIn)
	return c.token, nil
}

// Signer is one envelope recipient.
type Signer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// EnvelopeRequest creates one signature envelope around a document.
type EnvelopeRequest struct {
	DocumentName string
	DocumentPDF  []byte
	Subject      string
	Signer       Signer
}

type envelopeDefinition struct {
	EmailSubject string `json:"emailSubject"`
	Status       string `json:"status"`
	Documents    []struct {
		DocumentBase64 string `json:"documentBase64"`
		Name           string `json:"name"`
		FileExtension  string `json:"fileExtension"`
		DocumentID     string `json:"documentId"`
	} `json:"documents"`
	Recipients struct {
		Signers []struct {
			Email        string `json:"email"`
			Name         string `json:"name"`
			RecipientID  string `json:"recipientId"`
			ClientUserID string `json:"clientUserId,omitempty"`
		} `json:"signers"`
	} `json:"recipients"`
}

// SendEnvelope creates and immediately sends an envelope. Returns the
// envelope ID.
func (c *Client) SendEnvelope(ctx context.Context, req EnvelopeRequest) (string, error) {
	if len(req.DocumentPDF) == 0 {
		return "", fmt.Errorf("esign: envelope has no document")
	}
	if req.Signer.Email == "" {
		return "", fmt.Errorf("esign: envelope has no signer")
	}

	var def envelopeDefinition
	def.EmailSubject = req.Subject
	if def.EmailSubject == "" {
		def.EmailSubject = "Please sign: " + req.DocumentName
	}
	def.Status = "sent"
	def.Documents = append(def.Documents, struct {
		DocumentBase64 string `json:"documentBase64"`
		Name           string `json:"name"`
		FileExtension  string `json:"fileExtension"`
		DocumentID     string `json:"documentId"`
	}{
		DocumentBase64: base64.StdEncoding.EncodeToString(req.DocumentPDF),
		Name:           req.DocumentName,
		FileExtension:  "pdf",
		DocumentID:     "1",
	})
	def.Recipients.Signers = append(def.Recipients.Signers, struct {
		Email        string `json:"email"`
		Name         string `json:"name"`
		RecipientID  string `json:"recipientId"`
		ClientUserID string `json:"clientUserId,omitempty"`
	}{
		Email:        req.Signer.Email,
		Name:         req.Signer.Name,
		RecipientID:  "1",
		ClientUserID: "1000",
	})

	var out struct {
		EnvelopeID string `json:"envelopeId"`
	}
	if err := c.call(ctx, http.MethodPost, "/envelopes", def, &out); err != nil {
		return "", err
	}
	logger.Info("envelope sent", "envelope_id", out.EnvelopeID, "signer", req.Signer.Email)
	return out.EnvelopeID, nil
}

// RecipientViewURL creates an embedded signing session URL for the
// envelope's signer.
func (c *Client) RecipientViewURL(ctx context.Context, envelopeID, returnURL string, signer Signer) (string, error) {
	body := map[string]string{
		"returnUrl":            returnURL,
		"authenticationMethod": "none",
		"email":                signer.Email,
		"userName":             signer.Name,
		"clientUserId":         "1000",
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := c.call(ctx, http.MethodPost, "/envelopes/"+envelopeID+"/views/recipient", body, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// Template is a reusable envelope blueprint.
type Template struct {
	TemplateID string `json:"templateId"`
	Name       string `json:"name"`
}

// CreateTemplate registers a template built from a document.
func (c *Client) CreateTemplate(ctx context.Context, name string, documentPDF []byte) (string, error) {
	body := map[string]interface{}{
		"name":        name,
		"description": "Created by AgreeD back office",
		"documents": []map[string]string{{
			"documentBase64": base64.StdEncoding.EncodeToString(documentPDF),
			"name":           name,
			"fileExtension":  "pdf",
			"documentId":     "1",
		}},
		"emailSubject": "Please sign: " + name,
		"status":       "created",
	}
	var out struct {
		TemplateID string `json:"templateId"`
	}
	if err := c.call(ctx, http.MethodPost, "/templates", body, &out); err != nil {
		return "", err
	}
	return out.TemplateID, nil
}

// ListTemplates returns the account's templates.
func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	var out struct {
		EnvelopeTemplates []Template `json:"envelopeTemplates"`
	}
	if err := c.call(ctx, http.MethodGet, "/templates", nil, &out); err != nil {
		return nil, err
	}
	return out.EnvelopeTemplates, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("esign: encoding request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	endpoint := fmt.Sprintf("%s/v2.1/accounts/%s%s",
		strings.TrimRight(c.cfg.BasePath, "/"), c.cfg.AccountID, path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return fmt.Errorf("esign: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("esign: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("esign: %s %s returned status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("esign: decoding response: %w", err)
	}
	return nil
}
