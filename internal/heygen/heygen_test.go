package heygen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agreedhq/backoffice/internal/config"
)

func TestGenerateVideo(t *testing.T) {
	var gotKey string
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/video/generate", r.URL.Path)
		gotKey = r.Header.Get("X-Api-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]string{"video_id": "vid-7"},
		})
	}))
	defer srv.Close()

	c := NewClient(config.HeyGenConfig{APIKey: "hg-key", BaseURL: srv.URL})
	id, err := c.GenerateVideo(context.Background(), GenerateRequest{
		AvatarID: "av-1", VoiceID: "vo-1", Script: "Hello, a quick update on your agreement.",
	})
	require.NoError(t, err)
	assert.Equal(t, "vid-7", id)
	assert.Equal(t, "hg-key", gotKey)
	assert.Contains(t, body, "video_inputs")
}

func TestGenerateVideo_EmptyScript(t *testing.T) {
	c := NewClient(config.HeyGenConfig{APIKey: "k"})
	_, err := c.GenerateVideo(context.Background(), GenerateRequest{Script: "  "})
	assert.Error(t, err)
}

func TestVideoStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/video_status.get", r.URL.Path)
		assert.Equal(t, "vid-7", r.URL.Query().Get("video_id"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]string{"status": "completed", "video_url": "https://cdn.example/v.mp4"},
		})
	}))
	defer srv.Close()

	c := NewClient(config.HeyGenConfig{APIKey: "k", BaseURL: srv.URL})
	st, err := c.VideoStatus(context.Background(), "vid-7")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, "https://cdn.example/v.mp4", st.VideoURL)
}
