// Package postgres implements storage.ClientStore against PostgreSQL.
// Identity and intake fields live as columns; the array-valued fields
// are JSONB; the two logs are append-only child tables.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/agreedhq/backoffice/internal/domain"
	"github.com/agreedhq/backoffice/internal/storage"
)

// ClientRepo implements storage.ClientStore against PostgreSQL.
type ClientRepo struct{ db *sql.DB }

// NewClientRepo creates a Postgres-backed client repository.
func NewClientRepo(db *sql.DB) *ClientRepo { return &ClientRepo{db: db} }

const clientColumns = `
	id, client_name, contact_person, address, cost, recipient_email,
	COALESCE(extracted_content,''), COALESCE(email_content,''), COALESCE(subject,''),
	COALESCE(document_key,''), COALESCE(envelope_id,''), COALESCE(video_id,''),
	COALESCE(video_url,''), COALESCE(access_token,''),
	cc_addresses, phone_numbers, dates, created_at`

func scanClient(row interface{ Scan(...interface{}) error }) (*domain.ClientRecord, error) {
	var rec domain.ClientRecord
	var ccJSON, phonesJSON, datesJSON []byte

	err := row.Scan(
		&rec.ID, &rec.ClientName, &rec.ContactPerson, &rec.Address, &rec.Cost, &rec.RecipientEmail,
		&rec.ExtractedContent, &rec.EmailContent, &rec.Subject,
		&rec.DocumentKey, &rec.EnvelopeID, &rec.VideoID,
		&rec.VideoURL, &rec.AccessToken,
		&ccJSON, &phonesJSON, &datesJSON, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(ccJSON) > 0 {
		if err := json.Unmarshal(ccJSON, &rec.CCAddresses); err != nil {
			return nil, fmt.Errorf("decoding cc_addresses: %w", err)
		}
	}
	if len(phonesJSON) > 0 {
		if err := json.Unmarshal(phonesJSON, &rec.PhoneNumbers); err != nil {
			return nil, fmt.Errorf("decoding phone_numbers: %w", err)
		}
	}
	if len(datesJSON) > 0 {
		if err := json.Unmarshal(datesJSON, &rec.Dates); err != nil {
			return nil, fmt.Errorf("decoding dates: %w", err)
		}
	}
	return &rec, nil
}

// Create inserts a new client record.
func (r *ClientRepo) Create(ctx context.Context, rec *domain.ClientRecord) error {
	ccJSON, err := json.Marshal(rec.CCAddresses)
	if err != nil {
		return err
	}
	phonesJSON, err := json.Marshal(rec.PhoneNumbers)
	if err != nil {
		return err
	}
	datesJSON, err := json.Marshal(rec.Dates)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO clients (
			id, client_name, contact_person, address, cost, recipient_email,
			extracted_content, email_content, subject, document_key, envelope_id,
			video_id, video_url, access_token, cc_addresses, phone_numbers, dates, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, rec.ID, rec.ClientName, rec.ContactPerson, rec.Address, rec.Cost, rec.RecipientEmail,
		rec.ExtractedContent, rec.EmailContent, rec.Subject, rec.DocumentKey, rec.EnvelopeID,
		rec.VideoID, rec.VideoURL, rec.AccessToken, ccJSON, phonesJSON, datesJSON, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

// FindAll loads every client with their notification and call logs.
func (r *ClientRepo) FindAll(ctx context.Context) ([]domain.ClientRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var out []domain.ClientRecord
	for rows.Next() {
		rec, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if err := r.loadLogs(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FindByID loads one client with logs.
func (r *ClientRepo) FindByID(ctx context.Context, id string) (*domain.ClientRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	rec, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	if err := r.loadLogs(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// FindByAccessToken loads one client by their random lookup token.
func (r *ClientRepo) FindByAccessToken(ctx context.Context, token string) (*domain.ClientRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE access_token = $1`, token)
	rec, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client by token: %w", err)
	}
	if err := r.loadLogs(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *ClientRepo) loadLogs(ctx context.Context, rec *domain.ClientRecord) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, content, related_date, date_type, subject, sent_at
		FROM notification_log WHERE client_id = $1 ORDER BY sent_at
	`, rec.ID)
	if err != nil {
		return fmt.Errorf("load notification log: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e domain.NotificationEntry
		if err := rows.Scan(&e.ID, &e.Content, &e.RelatedDate, &e.DateType, &e.Subject, &e.SentAt); err != nil {
			return fmt.Errorf("scan notification entry: %w", err)
		}
		rec.NotificationLog = append(rec.NotificationLog, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	callRows, err := r.db.QueryContext(ctx, `
		SELECT id, content, related_date, date_type, created_at
		FROM call_content_log WHERE client_id = $1 ORDER BY created_at
	`, rec.ID)
	if err != nil {
		return fmt.Errorf("load call content log: %w", err)
	}
	defer callRows.Close()
	for callRows.Next() {
		var e domain.CallContentEntry
		if err := callRows.Scan(&e.ID, &e.Content, &e.RelatedDate, &e.DateType, &e.CreatedAt); err != nil {
			return fmt.Errorf("scan call content entry: %w", err)
		}
		rec.CallContentLog = append(rec.CallContentLog, e)
	}
	return callRows.Err()
}

// AppendNotification inserts an append-only notification log row.
func (r *ClientRepo) AppendNotification(ctx context.Context, id string, entry domain.NotificationEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_log (id, client_id, content, related_date, date_type, subject, sent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, id, entry.Content, entry.RelatedDate, entry.DateType, entry.Subject, entry.SentAt)
	if err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

// AppendCallContent inserts an append-only call-script log row.
func (r *ClientRepo) AppendCallContent(ctx context.Context, id string, entry domain.CallContentEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO call_content_log (id, client_id, content, related_date, date_type, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, id, entry.Content, entry.RelatedDate, entry.DateType, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append call content: %w", err)
	}
	return nil
}

// SetVideoLink records a completed avatar video URL.
func (r *ClientRepo) SetVideoLink(ctx context.Context, id, videoURL string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE clients SET video_url = $1 WHERE id = $2`, videoURL, id)
	if err != nil {
		return fmt.Errorf("set video link: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
