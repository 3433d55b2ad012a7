// Package payments integrates Stripe: payment-intent creation for
// contract invoices and webhook signature verification.
package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agreedhq/backoffice/internal/config"
	"github.com/agreedhq/backoffice/internal/pkg/httpretry"
	"github.com/agreedhq/backoffice/internal/pkg/logger"
)

const defaultBaseURL = "https://api.stripe.com"

// Client talks to the Stripe REST API.
type Client struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	http          httpretry.HTTPDoer

	now func() time.Time
}

// NewClient builds a Stripe client with retrying transport.
func NewClient(cfg config.StripeConfig) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       strings.TrimRight(base, "/"),
		http:          httpretry.NewRetryClient(http.DefaultClient, 3),
		now:           time.Now,
	}
}

// SetHTTPClient overrides the transport, for tests.
func (c *Client) SetHTTPClient(h httpretry.HTTPDoer) { c.http = h }

// Intent is the subset of a Stripe PaymentIntent we use.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

// CreateIntent creates a payment intent. amount is in the currency's
// smallest unit (cents).
func (c *Client) CreateIntent(ctx context.Context, amount int64, currency, clientID string) (*Intent, error) {
	if c.secretKey == "" {
		return nil, fmt.Errorf("payments: stripe secret key not configured")
	}
	if amount <= 0 {
		return nil, fmt.Errorf("payments: amount must be positive, got %d", amount)
	}
	if currency == "" {
		currency = "usd"
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	if clientID != "" {
		form.Set("metadata[client_id]", clientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("payments: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payments: creating intent: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payments: stripe returned status %d", resp.StatusCode)
	}

	var intent Intent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("payments: decoding intent: %w", err)
	}
	logger.Info("payment intent created", "intent_id", intent.ID, "amount", intent.Amount, "client_id", clientID)
	return &intent, nil
}

// Event is a verified webhook event.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// signatureTolerance bounds how stale a webhook timestamp may be.
const signatureTolerance = 5 * time.Minute

// VerifyWebhook checks the Stripe-Signature header (t=...,v1=... HMAC
// SHA-256 over "<t>.<payload>") and returns the decoded event.
func (c *Client) VerifyWebhook(payload []byte, sigHeader string) (*Event, error) {
	if c.webhookSecret == "" {
		return nil, fmt.Errorf("payments: webhook secret not configured")
	}

	var ts string
	var sigs []string
	for _, part := range strings.Split(sigHeader, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return nil, fmt.Errorf("payments: malformed signature header")
	}

	epoch, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("payments: invalid signature timestamp: %w", err)
	}
	age := c.now().Sub(time.Unix(epoch, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return nil, fmt.Errorf("payments: signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	verified := false
	for _, s := range sigs {
		got, err := hex.DecodeString(s)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, got) {
			verified = true
			break
		}
	}
	if !verified {
		return nil, fmt.Errorf("payments: webhook signature mismatch")
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("payments: decoding event: %w", err)
	}
	return &ev, nil
}
