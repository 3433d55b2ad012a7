package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/agreedhq/backoffice/internal/domain"
)

// LocalStore keeps one JSON file per client record under a directory.
// Development/test backend; not meant for more than a few hundred records.
type LocalStore struct {
	dir string
	mu  sync.RWMutex
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "clients"), 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "documents"), 0755); err != nil {
		return nil, fmt.Errorf("creating documents directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) recordPath(id string) string {
	return filepath.Join(s.dir, "clients", id+".json")
}

func (s *LocalStore) writeRecord(rec *domain.ClientRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.recordPath(rec.ID), data, 0644)
}

func (s *LocalStore) readRecord(id string) (*domain.ClientRecord, error) {
	data, err := os.ReadFile(s.recordPath(id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec domain.ClientRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", id, err)
	}
	return &rec, nil
}

// Create persists a new record.
func (s *LocalStore) Create(ctx context.Context, rec *domain.ClientRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.recordPath(rec.ID)); err == nil {
		return fmt.Errorf("record %s already exists", rec.ID)
	}
	return s.writeRecord(rec)
}

// FindAll loads every stored record, ordered by creation time.
func (s *LocalStore) FindAll(ctx context.Context) ([]domain.ClientRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, "clients"))
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	var out []domain.ClientRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		rec, err := s.readRecord(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			// One corrupt file must not hide every other client.
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// FindByID loads one record.
func (s *LocalStore) FindByID(ctx context.Context, id string) (*domain.ClientRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readRecord(id)
}

// FindByAccessToken scans for the record carrying the given lookup token.
func (s *LocalStore) FindByAccessToken(ctx context.Context, token string) (*domain.ClientRecord, error) {
	recs, err := s.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].AccessToken == token {
			return &recs[i], nil
		}
	}
	return nil, ErrNotFound
}

// AppendNotification appends a reminder-email log entry.
func (s *LocalStore) AppendNotification(ctx context.Context, id string, entry domain.NotificationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.readRecord(id)
	if err != nil {
		return err
	}
	rec.NotificationLog = append(rec.NotificationLog, entry)
	return s.writeRecord(rec)
}

// AppendCallContent appends a voice-script log entry.
func (s *LocalStore) AppendCallContent(ctx context.Context, id string, entry domain.CallContentEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.readRecord(id)
	if err != nil {
		return err
	}
	rec.CallContentLog = append(rec.CallContentLog, entry)
	return s.writeRecord(rec)
}

// SetVideoLink records a completed avatar video URL.
func (s *LocalStore) SetVideoLink(ctx context.Context, id, videoURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.readRecord(id)
	if err != nil {
		return err
	}
	rec.VideoURL = videoURL
	return s.writeRecord(rec)
}

// PutDocument writes an uploaded contract next to the records.
func (s *LocalStore) PutDocument(ctx context.Context, key string, body []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.dir, "documents", filepath.Base(key))
	return os.WriteFile(path, body, 0644)
}
