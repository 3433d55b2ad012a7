package heygen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agreedhq/backoffice/internal/domain"
	"github.com/agreedhq/backoffice/internal/events"
	"github.com/agreedhq/backoffice/internal/storage"
)

type stubStatus struct {
	byID map[string]*Status
	err  error
}

func (s *stubStatus) VideoStatus(_ context.Context, id string) (*Status, error) {
	if s.err != nil {
		return nil, s.err
	}
	st, ok := s.byID[id]
	if !ok {
		return nil, errors.New("unknown video")
	}
	return st, nil
}

type pollStore struct {
	records []domain.ClientRecord
	links   map[string]string
}

func (s *pollStore) Create(context.Context, *domain.ClientRecord) error { return nil }
func (s *pollStore) FindAll(context.Context) ([]domain.ClientRecord, error) {
	return s.records, nil
}
func (s *pollStore) FindByID(context.Context, string) (*domain.ClientRecord, error) {
	return nil, storage.ErrNotFound
}
func (s *pollStore) FindByAccessToken(context.Context, string) (*domain.ClientRecord, error) {
	return nil, storage.ErrNotFound
}
func (s *pollStore) AppendNotification(context.Context, string, domain.NotificationEntry) error {
	return nil
}
func (s *pollStore) AppendCallContent(context.Context, string, domain.CallContentEntry) error {
	return nil
}
func (s *pollStore) SetVideoLink(_ context.Context, id, url string) error {
	if s.links == nil {
		s.links = map[string]string{}
	}
	s.links[id] = url
	return nil
}

func TestPoller_Run(t *testing.T) {
	store := &pollStore{records: []domain.ClientRecord{
		{ID: "c1", VideoID: "vid-1"},                                      // completed
		{ID: "c2", VideoID: "vid-2"},                                      // still processing
		{ID: "c3", VideoID: "vid-3"},                                      // failed
		{ID: "c4", VideoID: "vid-4", VideoURL: "https://done.example/v"},  // already recorded
		{ID: "c5"},                                                        // no video requested
	}}
	api := &stubStatus{byID: map[string]*Status{
		"vid-1": {Status: StatusCompleted, VideoURL: "https://cdn.example/1.mp4"},
		"vid-2": {Status: StatusProcessing},
		"vid-3": {Status: StatusFailed, Error: "render error"},
	}}

	p := NewPoller(api, store, events.NopPublisher{})
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Checked)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "https://cdn.example/1.mp4", store.links["c1"])
	_, touched := store.links["c2"]
	assert.False(t, touched)
}
