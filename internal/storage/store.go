// Package storage provides the client-record store. Backends: DynamoDB
// (production), a local JSON directory (development), and PostgreSQL
// (see internal/repository/postgres). All backends share ClientStore.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/agreedhq/backoffice/internal/config"
	"github.com/agreedhq/backoffice/internal/domain"
)

// ErrNotFound is returned when a client record does not exist.
var ErrNotFound = errors.New("storage: client record not found")

// ClientStore is the persistence capability the rest of the system
// depends on. Log-append operations are read-modify-write on a single
// record; each record is only ever mutated by the worker processing it.
type ClientStore interface {
	Create(ctx context.Context, rec *domain.ClientRecord) error
	FindAll(ctx context.Context) ([]domain.ClientRecord, error)
	FindByID(ctx context.Context, id string) (*domain.ClientRecord, error)
	FindByAccessToken(ctx context.Context, token string) (*domain.ClientRecord, error)
	AppendNotification(ctx context.Context, id string, entry domain.NotificationEntry) error
	AppendCallContent(ctx context.Context, id string, entry domain.CallContentEntry) error
	SetVideoLink(ctx context.Context, id, videoURL string) error
}

// DocumentStore archives raw uploaded contracts.
type DocumentStore interface {
	PutDocument(ctx context.Context, key string, body []byte, contentType string) error
}

// New creates the configured ClientStore/DocumentStore pair.
// The "postgres" backend is wired separately in cmd (it needs *sql.DB);
// New handles "dynamodb" and "local".
func New(ctx context.Context, cfg config.StorageConfig) (ClientStore, DocumentStore, error) {
	switch cfg.Type {
	case "dynamodb":
		aws, err := NewAWSStore(ctx, cfg.DynamoDBTable, cfg.DocumentBucket, cfg.AWSRegion, cfg.GetAWSProfile())
		if err != nil {
			return nil, nil, fmt.Errorf("initializing dynamodb storage: %w", err)
		}
		return aws, aws, nil
	case "local":
		local, err := NewLocalStore(cfg.LocalPath)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing local storage: %w", err)
		}
		return local, local, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
