// Package app wires configuration into the concrete service graph
// shared by the server, worker, and ops CLI binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/agreedhq/backoffice/internal/config"
	"github.com/agreedhq/backoffice/internal/events"
	"github.com/agreedhq/backoffice/internal/genai"
	"github.com/agreedhq/backoffice/internal/mailer"
	"github.com/agreedhq/backoffice/internal/pkg/distlock"
	"github.com/agreedhq/backoffice/internal/pkg/logger"
	"github.com/agreedhq/backoffice/internal/reminder"
	"github.com/agreedhq/backoffice/internal/repository/postgres"
	"github.com/agreedhq/backoffice/internal/storage"
)

// App is the wired service graph.
type App struct {
	Cfg *config.Config

	Store storage.ClientStore
	Docs  storage.DocumentStore
	Gen   genai.Generator
	Pub   events.Publisher

	DB    *sql.DB
	Redis *redis.Client
}

// Build wires storage, generation, and eventing from config.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Cfg: cfg}

	if cfg.Storage.Type == "postgres" {
		db, err := sql.Open("postgres", cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("pinging postgres: %w", err)
		}
		a.DB = db
		a.Store = postgres.NewClientRepo(db)
		// Document archive still needs S3 when configured.
		if cfg.Storage.DocumentBucket != "" {
			aws, err := storage.NewAWSStore(ctx, "", cfg.Storage.DocumentBucket,
				cfg.Storage.AWSRegion, cfg.Storage.GetAWSProfile())
			if err != nil {
				return nil, fmt.Errorf("initializing document archive: %w", err)
			}
			a.Docs = aws
		}
	} else {
		store, docs, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		a.Store = store
		a.Docs = docs
	}

	gen, err := buildGenerator(ctx, cfg.Generation)
	if err != nil {
		return nil, err
	}
	a.Gen = gen

	if cfg.Redis.Addr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	if cfg.Events.Enabled && cfg.Events.URL != "" {
		pub, err := events.NewAMQPPublisher(cfg.Events.URL, cfg.Events.Exchange)
		if err != nil {
			// Outcome events are best-effort; run without them.
			logger.Warn("event publisher unavailable", "error", err.Error())
			a.Pub = events.NopPublisher{}
		} else {
			a.Pub = pub
		}
	} else {
		a.Pub = events.NopPublisher{}
	}

	return a, nil
}

func buildGenerator(ctx context.Context, cfg config.GenerationConfig) (genai.Generator, error) {
	var base genai.Generator
	switch cfg.Provider {
	case "bedrock":
		b, err := genai.NewBedrockClient(ctx, cfg.BedrockModelID, cfg.BedrockRegion)
		if err != nil {
			return nil, fmt.Errorf("initializing bedrock: %w", err)
		}
		base = b
	case "gemini", "":
		base = genai.NewGeminiClient(cfg)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
	return genai.NewRetrying(base, cfg.MaxRetries, cfg.Backoff()), nil
}

// NewMailer builds the SES sender.
func (a *App) NewMailer(ctx context.Context) (mailer.Sender, error) {
	return mailer.NewSESSender(ctx, a.Cfg.Email)
}

// RunLock builds a cross-replica lock for the named job. Redis when
// configured, postgres advisory lock as fallback, in-process otherwise.
func (a *App) RunLock(name string) distlock.DistLock {
	return distlock.NewLock(a.Redis, a.DB, "backoffice:runlock:"+name, a.Cfg.Reminder.LockTTL())
}

// NewDispatcher builds the reminder pipeline dispatcher.
func (a *App) NewDispatcher(sender mailer.Sender) *reminder.Dispatcher {
	return reminder.NewDispatcher(a.Store, a.Gen, sender, a.Pub, a.Cfg.Reminder)
}

// Close releases held connections.
func (a *App) Close() {
	if a.Pub != nil {
		a.Pub.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// WaitTimeout bounds graceful shutdown.
const WaitTimeout = 15 * time.Second
