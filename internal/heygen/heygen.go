// Package heygen integrates the HeyGen avatar-video API: video
// generation, status lookup, and the daily poller that records
// completed video URLs on client records.
package heygen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/agreedhq/backoffice/internal/config"
	"github.com/agreedhq/backoffice/internal/pkg/httpretry"
)

const defaultBaseURL = "https://api.heygen.com"

// VideoStatus values returned by the status endpoint.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Client talks to the HeyGen REST API.
type Client struct {
	apiKey  string
	baseURL string
	http    httpretry.HTTPDoer
}

// NewClient builds a HeyGen client with retrying transport.
func NewClient(cfg config.HeyGenConfig) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(base, "/"),
		http:    httpretry.NewRetryClient(http.DefaultClient, 3),
	}
}

// SetHTTPClient overrides the transport, for tests.
func (c *Client) SetHTTPClient(h httpretry.HTTPDoer) { c.http = h }

// GenerateRequest describes one avatar video.
type GenerateRequest struct {
	AvatarID string
	VoiceID  string
	Script   string
}

// GenerateVideo submits a video-generation job and returns its ID.
func (c *Client) GenerateVideo(ctx context.Context, req GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Script) == "" {
		return "", fmt.Errorf("heygen: empty script")
	}

	body := map[string]interface{}{
		"video_inputs": []map[string]interface{}{{
			"character": map[string]string{
				"type":      "avatar",
				"avatar_id": req.AvatarID,
			},
			"voice": map[string]string{
				"type":       "text",
				"input_text": req.Script,
				"voice_id":   req.VoiceID,
			},
		}},
		"dimension": map[string]int{"width": 1280, "height": 720},
	}

	var out struct {
		Data struct {
			VideoID string `json:"video_id"`
		} `json:"data"`
	}
	if err := c.call(ctx, http.MethodPost, "/v2/video/generate", body, &out); err != nil {
		return "", err
	}
	if out.Data.VideoID == "" {
		return "", fmt.Errorf("heygen: response missing video_id")
	}
	return out.Data.VideoID, nil
}

// Status is one video's generation state.
type Status struct {
	VideoID  string `json:"video_id"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url"`
	Error    string `json:"error"`
}

// VideoStatus fetches the state of a generation job.
func (c *Client) VideoStatus(ctx context.Context, videoID string) (*Status, error) {
	if videoID == "" {
		return nil, fmt.Errorf("heygen: empty video id")
	}
	var out struct {
		Data Status `json:"data"`
	}
	path := "/v1/video_status.get?video_id=" + videoID
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	out.Data.VideoID = videoID
	return &out.Data, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("heygen: encoding request: %w", err)
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("heygen: building request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("heygen: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("heygen: %s %s returned status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("heygen: decoding response: %w", err)
	}
	return nil
}
