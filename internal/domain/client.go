// Package domain holds the client-record model shared by the storage
// backends, the API, and the reminder pipeline.
package domain

import (
	"strings"
	"time"
)

// DateType labels the contractual significance of a client date.
// Values come straight from document extraction, e.g. "Renewal",
// "Expiration", "Acceptance"; the pipeline treats them as opaque labels.
type DateType = string

// DateEntry is one contractually significant date on a client record.
// DateValue keeps the string as extracted from the document; the
// reminder evaluator normalizes it before comparison.
type DateEntry struct {
	DateValue string   `json:"date_value" db:"date_value"`
	DateType  DateType `json:"date_type" db:"date_type"`
}

// EmailAddress is a secondary notification address tied to an entity
// named in the contract (e.g. "Landlord" → landlord@example.com).
type EmailAddress struct {
	Entity string `json:"entity"`
	Email  string `json:"email"`
}

// PhoneNumber is a contact number tied to an entity named in the contract.
type PhoneNumber struct {
	Entity string `json:"entity"`
	Number string `json:"phone_number"`
}

// NotificationEntry records one successfully dispatched reminder email.
// Entries are append-only; the pipeline never edits or removes them.
type NotificationEntry struct {
	ID          string    `json:"id"` // ULID, sortable by creation time
	Content     string    `json:"content"`
	RelatedDate string    `json:"related_date"`
	DateType    DateType  `json:"date_type"`
	Subject     string    `json:"subject"`
	SentAt      time.Time `json:"sent_at"`
}

// CallContentEntry records one generated voice-call script. Scripts are
// stored for later placement; generation never triggers a call.
type CallContentEntry struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	RelatedDate string    `json:"related_date"`
	DateType    DateType  `json:"date_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// ClientRecord is one client with their contract intake artifacts,
// contractual dates, and notification history. A record is created once
// at intake; the reminder pipeline only appends to the two logs.
type ClientRecord struct {
	ID            string `json:"id"`
	ClientName    string `json:"client_name"`
	ContactPerson string `json:"contact_person"`
	Address       string `json:"address"`
	Cost          string `json:"cost"`

	RecipientEmail string         `json:"recipient_email"`
	CCAddresses    []EmailAddress `json:"cc_addresses"`
	PhoneNumbers   []PhoneNumber  `json:"phone_numbers"`

	// Intake artifacts, set once at document-intake time.
	ExtractedContent string `json:"extracted_content"`
	EmailContent     string `json:"email_content"`
	Subject          string `json:"subject"`
	DocumentKey      string `json:"document_key,omitempty"` // S3 object key of the uploaded contract
	EnvelopeID       string `json:"envelope_id,omitempty"`
	VideoID          string `json:"video_id,omitempty"`
	VideoURL         string `json:"video_url,omitempty"`
	AccessToken      string `json:"access_token,omitempty"` // random lookup token for client-facing pages

	Dates []DateEntry `json:"dates"`

	NotificationLog []NotificationEntry `json:"notification_log"`
	CallContentLog  []CallContentEntry  `json:"call_content_log"`

	CreatedAt time.Time `json:"created_at"`
}

// CCList returns the plain cc email addresses, skipping empties.
func (c *ClientRecord) CCList() []string {
	out := make([]string, 0, len(c.CCAddresses))
	for _, a := range c.CCAddresses {
		if strings.TrimSpace(a.Email) != "" {
			out = append(out, a.Email)
		}
	}
	return out
}

// HasNotificationOn reports whether a reminder for the given date entry
// was already logged on the calendar day containing sentAt. This is the
// idempotency check: one entry per (relatedDate, dateType) per run day.
func (c *ClientRecord) HasNotificationOn(relatedDate string, dateType DateType, day time.Time) bool {
	y, m, d := day.UTC().Date()
	for _, n := range c.NotificationLog {
		if n.RelatedDate != relatedDate || n.DateType != dateType {
			continue
		}
		ny, nm, nd := n.SentAt.UTC().Date()
		if ny == y && nm == m && nd == d {
			return true
		}
	}
	return false
}

// HasCallContentOn is the voice-channel counterpart of HasNotificationOn.
func (c *ClientRecord) HasCallContentOn(relatedDate string, dateType DateType, day time.Time) bool {
	y, m, d := day.UTC().Date()
	for _, e := range c.CallContentLog {
		if e.RelatedDate != relatedDate || e.DateType != dateType {
			continue
		}
		ey, em, ed := e.CreatedAt.UTC().Date()
		if ey == y && em == m && ed == d {
			return true
		}
	}
	return false
}
