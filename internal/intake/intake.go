// Package intake turns an uploaded contract into a client record:
// text extraction, structured field extraction, the finalize-agreement
// email draft, document archival, and record creation.
package intake

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agreedhq/backoffice/internal/domain"
	"github.com/agreedhq/backoffice/internal/events"
	"github.com/agreedhq/backoffice/internal/genai"
	"github.com/agreedhq/backoffice/internal/pkg/logger"
	"github.com/agreedhq/backoffice/internal/storage"
)

// Service orchestrates document intake.
type Service struct {
	store storage.ClientStore
	docs  storage.DocumentStore
	gen   genai.Generator
	pub   events.Publisher

	now func() time.Time
}

// NewService wires the intake pipeline. docs may be nil when no
// document archive is configured.
func NewService(store storage.ClientStore, docs storage.DocumentStore, gen genai.Generator, pub events.Publisher) *Service {
	return &Service{store: store, docs: docs, gen: gen, pub: pub, now: time.Now}
}

// extracted mirrors the JSON shape the extraction prompt asks for.
type extracted struct {
	ClientName     string `json:"clientName"`
	ContactPerson  string `json:"contactPerson"`
	Address        string `json:"address"`
	Cost           string `json:"cost"`
	Dates          []struct {
		DateValue string `json:"dateValue"`
		DateType  string `json:"dateType"`
	} `json:"dates"`
	EmailAddresses []struct {
		Entity string `json:"entity"`
		Email  string `json:"email"`
	} `json:"emailAddresses"`
	PhoneNumbers []struct {
		Entity      string `json:"entity"`
		PhoneNumber string `json:"phoneNumber"`
	} `json:"phoneNumbers"`
}

// Process ingests one uploaded contract. recipientEmail is the primary
// notification address supplied with the upload.
func (s *Service) Process(ctx context.Context, filename string, data []byte, recipientEmail string) (*domain.ClientRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("intake: empty upload")
	}

	text, err := ExtractText(filename, data)
	if err != nil {
		return nil, err
	}

	rec := &domain.ClientRecord{
		ID:             uuid.NewString(),
		RecipientEmail: recipientEmail,
		ExtractedContent: text,
		AccessToken:    newAccessToken(),
		CreatedAt:      s.now().UTC(),
	}

	if err := s.fillStructuredFields(ctx, rec, text); err != nil {
		// Extraction quality issues leave the fields empty; the record
		// is still usable and operators can fill gaps by hand.
		logger.Warn("structured extraction failed", "error", err.Error())
	}
	if rec.ClientName == "" {
		rec.ClientName = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}

	prompt, err := genai.IntakeEmailPrompt(text)
	if err != nil {
		return nil, fmt.Errorf("intake: building email prompt: %w", err)
	}
	emailContent, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("intake: generating intake email: %w", err)
	}
	rec.EmailContent = emailContent

	if s.docs != nil {
		key := fmt.Sprintf("contracts/%s/%s", rec.ID, filepath.Base(filename))
		contentType := mime.TypeByExtension(filepath.Ext(filename))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if err := s.docs.PutDocument(ctx, key, data, contentType); err != nil {
			return nil, fmt.Errorf("intake: archiving document: %w", err)
		}
		rec.DocumentKey = key
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("intake: creating record: %w", err)
	}

	s.pub.Publish(ctx, events.KeyClientCreated, events.Envelope{
		ClientID: rec.ID,
		Payload:  map[string]string{"client_name": rec.ClientName},
	})
	logger.Info("client record created", "client_id", rec.ID, "client_name", rec.ClientName, "dates", fmt.Sprint(len(rec.Dates)))
	return rec, nil
}

func (s *Service) fillStructuredFields(ctx context.Context, rec *domain.ClientRecord, text string) error {
	prompt, err := genai.StructuredExtractionPrompt(text)
	if err != nil {
		return err
	}
	raw, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return err
	}

	var ex extracted
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &ex); err != nil {
		return fmt.Errorf("parsing extraction response: %w", err)
	}

	rec.ClientName = ex.ClientName
	rec.ContactPerson = ex.ContactPerson
	rec.Address = ex.Address
	rec.Cost = ex.Cost
	for _, d := range ex.Dates {
		rec.Dates = append(rec.Dates, domain.DateEntry{DateValue: d.DateValue, DateType: d.DateType})
	}
	for _, e := range ex.EmailAddresses {
		rec.CCAddresses = append(rec.CCAddresses, domain.EmailAddress{Entity: e.Entity, Email: e.Email})
	}
	for _, p := range ex.PhoneNumbers {
		rec.PhoneNumbers = append(rec.PhoneNumbers, domain.PhoneNumber{Entity: p.Entity, Number: p.PhoneNumber})
	}
	return nil
}

// stripCodeFence tolerates models that wrap JSON in ``` fences despite
// the prompt.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func newAccessToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
