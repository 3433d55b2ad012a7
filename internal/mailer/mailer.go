// Package mailer delivers reminder and intake emails. The production
// backend is AWS SES; tests substitute a fake Sender.
package mailer

import "context"

// Message is one outbound email.
type Message struct {
	To       string
	CC       []string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender delivers a single email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
