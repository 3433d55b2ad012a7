// Package voice places reminder phone calls through the Twilio REST
// API. The spoken content comes from the call-content log written by
// the nightly generation run.
package voice

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/agreedhq/backoffice/internal/config"
	"github.com/agreedhq/backoffice/internal/pkg/httpretry"
	"github.com/agreedhq/backoffice/internal/pkg/logger"
)

const defaultBaseURL = "https://api.twilio.com"

// Caller places outbound voice calls.
type Caller interface {
	Call(ctx context.Context, toNumber, script string) (sid string, err error)
}

// TwilioCaller is the production Caller.
type TwilioCaller struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	http       httpretry.HTTPDoer
}

// NewTwilioCaller builds a caller with retrying transport.
func NewTwilioCaller(cfg config.TwilioConfig) *TwilioCaller {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &TwilioCaller{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		baseURL:    strings.TrimRight(base, "/"),
		http:       httpretry.NewRetryClient(http.DefaultClient, 3),
	}
}

// SetHTTPClient overrides the transport, for tests.
func (t *TwilioCaller) SetHTTPClient(c httpretry.HTTPDoer) { t.http = c }

type say struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr"`
	Text    string   `xml:",chardata"`
}

type response struct {
	XMLName xml.Name `xml:"Response"`
	Say     say
}

// twiml renders the spoken script. xml.Marshal escapes the script text,
// so generated content can never break out of the document.
func twiml(script string) (string, error) {
	out, err := xml.Marshal(response{Say: say{Voice: "alice", Text: script}})
	if err != nil {
		return "", fmt.Errorf("voice: building twiml: %w", err)
	}
	return xml.Header + string(out), nil
}

// Call places one outbound call speaking the given script.
func (t *TwilioCaller) Call(ctx context.Context, toNumber, script string) (string, error) {
	if t.accountSID == "" || t.authToken == "" {
		return "", fmt.Errorf("voice: twilio credentials not configured")
	}
	if strings.TrimSpace(toNumber) == "" {
		return "", fmt.Errorf("voice: empty destination number")
	}
	if strings.TrimSpace(script) == "" {
		return "", fmt.Errorf("voice: empty call script")
	}

	doc, err := twiml(script)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("To", toNumber)
	form.Set("From", t.fromNumber)
	form.Set("Twiml", doc)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", t.baseURL, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("voice: building request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("voice: placing call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("voice: twilio returned status %d", resp.StatusCode)
	}

	var body struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("voice: decoding response: %w", err)
	}

	logger.Info("call placed", "to", logger.RedactPhone(toNumber), "sid", body.SID)
	return body.SID, nil
}
