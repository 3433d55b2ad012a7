package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agreedhq/backoffice/internal/config"
	"github.com/agreedhq/backoffice/internal/domain"
	"github.com/agreedhq/backoffice/internal/events"
	"github.com/agreedhq/backoffice/internal/genai"
	"github.com/agreedhq/backoffice/internal/mailer"
	"github.com/agreedhq/backoffice/internal/pkg/logger"
	"github.com/agreedhq/backoffice/internal/storage"
)

// ItemFailure describes one reminder item that could not be completed.
type ItemFailure struct {
	ClientID    string `json:"client_id"`
	RelatedDate string `json:"related_date"`
	DateType    string `json:"date_type"`
	Reason      string `json:"reason"`
}

// DispatchReport summarizes one batch run. Attempted counts items that
// passed the due check; Skipped counts idempotency skips and
// unparsable dates.
type DispatchReport struct {
	Clients   int           `json:"clients"`
	Attempted int           `json:"attempted"`
	Sent      int           `json:"sent"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Failures  []ItemFailure `json:"failures,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Dispatcher runs the reminder pipeline over the whole client roster.
// Clients are processed concurrently up to the configured limit; a
// single client's dates run sequentially so their log appends never
// race.
type Dispatcher struct {
	store  storage.ClientStore
	gen    genai.Generator
	sender mailer.Sender
	pub    events.Publisher
	cfg    config.ReminderConfig

	now func() time.Time // test hook
}

// NewDispatcher wires the pipeline. gen should already carry its retry
// policy; pub may be a NopPublisher.
func NewDispatcher(store storage.ClientStore, gen genai.Generator, sender mailer.Sender, pub events.Publisher, cfg config.ReminderConfig) *Dispatcher {
	return &Dispatcher{
		store:  store,
		gen:    gen,
		sender: sender,
		pub:    pub,
		cfg:    cfg,
		now:    time.Now,
	}
}

// DispatchDueNotifications runs the email channel over every client.
// One client's failure never stops the batch; the report carries every
// per-item failure reason.
func (d *Dispatcher) DispatchDueNotifications(ctx context.Context) (*DispatchReport, error) {
	return d.run(ctx, "email", d.emailClient)
}

// DispatchCallContent runs the voice-script channel over every client.
// It only generates and logs the scripts; placing calls is a separate,
// explicitly triggered step.
func (d *Dispatcher) DispatchCallContent(ctx context.Context) (*DispatchReport, error) {
	return d.run(ctx, "voice", d.callContentClient)
}

type clientFn func(ctx context.Context, rec *domain.ClientRecord, now time.Time, rep *DispatchReport, mu *sync.Mutex)

func (d *Dispatcher) run(ctx context.Context, channel string, each clientFn) (*DispatchReport, error) {
	started := d.now()
	clients, err := d.store.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading clients: %w", err)
	}

	rep := &DispatchReport{Clients: len(clients)}
	var mu sync.Mutex

	concurrency := d.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i := range clients {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(rec *domain.ClientRecord) {
			defer wg.Done()
			defer func() { <-sem }()
			each(ctx, rec, started, rep, &mu)
		}(&clients[i])
	}
	wg.Wait()

	rep.Elapsed = d.now().Sub(started)
	batchDuration.WithLabelValues(channel).Observe(rep.Elapsed.Seconds())
	logger.Info("dispatch batch finished",
		"channel", channel,
		"clients", rep.Clients,
		"sent", rep.Sent,
		"skipped", rep.Skipped,
		"failed", rep.Failed,
		"elapsed_ms", rep.Elapsed.Milliseconds())
	if ctx.Err() != nil {
		return rep, fmt.Errorf("batch interrupted: %w", ctx.Err())
	}
	return rep, nil
}

// dueEntries evaluates a client's dates against the window. Unparsable
// dates are logged and counted as skips, never as failures.
func (d *Dispatcher) dueEntries(rec *domain.ClientRecord, now time.Time, channel string, rep *DispatchReport, mu *sync.Mutex) []domain.DateEntry {
	var due []domain.DateEntry
	for _, entry := range rec.Dates {
		event, err := ParseEventDate(entry.DateValue, now.Location())
		if err != nil {
			logger.Warn("skipping unparsable event date",
				"client_id", rec.ID, "date_value", entry.DateValue, "date_type", entry.DateType)
			mu.Lock()
			rep.Skipped++
			mu.Unlock()
			notificationsTotal.WithLabelValues(channel, "skipped").Inc()
			continue
		}
		if IsDue(event, now, d.cfg.Lookahead()) {
			due = append(due, entry)
		}
	}
	return due
}

func (d *Dispatcher) emailClient(ctx context.Context, rec *domain.ClientRecord, now time.Time, rep *DispatchReport, mu *sync.Mutex) {
	for _, entry := range d.dueEntries(rec, now, "email", rep, mu) {
		if ctx.Err() != nil {
			return
		}
		d.emailOne(ctx, rec, entry, now, rep, mu)
	}
}

func (d *Dispatcher) emailOne(ctx context.Context, rec *domain.ClientRecord, entry domain.DateEntry, now time.Time, rep *DispatchReport, mu *sync.Mutex) {
	mu.Lock()
	rep.Attempted++
	mu.Unlock()

	if rec.HasNotificationOn(entry.DateValue, entry.DateType, now) {
		logger.Debug("reminder already sent today",
			"client_id", rec.ID, "date_value", entry.DateValue, "date_type", entry.DateType)
		d.count(rep, mu, "email", "skipped", nil)
		return
	}
	if rec.RecipientEmail == "" {
		d.count(rep, mu, "email", "failed", &ItemFailure{
			ClientID: rec.ID, RelatedDate: entry.DateValue, DateType: entry.DateType,
			Reason: "no recipient email on record",
		})
		return
	}

	prompt, err := genai.ReminderEmailPrompt(rec.ExtractedContent, entry.DateType, entry.DateValue)
	if err != nil {
		d.fail(rec, entry, rep, mu, "email", fmt.Errorf("building prompt: %w", err))
		return
	}
	generated, err := d.gen.Generate(ctx, prompt)
	if err != nil {
		d.fail(rec, entry, rep, mu, "email", fmt.Errorf("generating content: %w", err))
		return
	}

	subject, body := ExtractSubject(generated)
	msg := mailer.Message{
		To:       rec.RecipientEmail,
		CC:       rec.CCList(),
		Subject:  subject,
		HTMLBody: renderHTML(body),
		TextBody: body,
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		d.fail(rec, entry, rep, mu, "email", fmt.Errorf("sending email: %w", err))
		return
	}

	logEntry := domain.NotificationEntry{
		ID:          ulid.Make().String(),
		Content:     body,
		RelatedDate: entry.DateValue,
		DateType:    entry.DateType,
		Subject:     subject,
		SentAt:      now.UTC(),
	}
	if err := d.store.AppendNotification(ctx, rec.ID, logEntry); err != nil {
		// The email went out; losing the log entry risks a duplicate
		// tomorrow, so surface it as a failure.
		d.fail(rec, entry, rep, mu, "email", fmt.Errorf("recording notification: %w", err))
		return
	}
	rec.NotificationLog = append(rec.NotificationLog, logEntry)

	d.count(rep, mu, "email", "sent", nil)
	d.pub.Publish(ctx, events.KeyNotificationSent, events.Envelope{
		ClientID: rec.ID,
		Payload: map[string]string{
			"related_date": entry.DateValue,
			"date_type":    entry.DateType,
			"subject":      subject,
		},
	})
	logger.Info("reminder sent",
		"client_id", rec.ID, "date_value", entry.DateValue, "date_type", entry.DateType)
}

func (d *Dispatcher) callContentClient(ctx context.Context, rec *domain.ClientRecord, now time.Time, rep *DispatchReport, mu *sync.Mutex) {
	for _, entry := range d.dueEntries(rec, now, "voice", rep, mu) {
		if ctx.Err() != nil {
			return
		}
		d.callContentOne(ctx, rec, entry, now, rep, mu)
	}
}

func (d *Dispatcher) callContentOne(ctx context.Context, rec *domain.ClientRecord, entry domain.DateEntry, now time.Time, rep *DispatchReport, mu *sync.Mutex) {
	mu.Lock()
	rep.Attempted++
	mu.Unlock()

	if rec.HasCallContentOn(entry.DateValue, entry.DateType, now) {
		d.count(rep, mu, "voice", "skipped", nil)
		return
	}

	prompt, err := genai.CallScriptPrompt(rec.ExtractedContent, entry.DateType, entry.DateValue)
	if err != nil {
		d.fail(rec, entry, rep, mu, "voice", fmt.Errorf("building prompt: %w", err))
		return
	}
	script, err := d.gen.Generate(ctx, prompt)
	if err != nil {
		d.fail(rec, entry, rep, mu, "voice", fmt.Errorf("generating script: %w", err))
		return
	}

	logEntry := domain.CallContentEntry{
		ID:          ulid.Make().String(),
		Content:     script,
		RelatedDate: entry.DateValue,
		DateType:    entry.DateType,
		CreatedAt:   now.UTC(),
	}
	if err := d.store.AppendCallContent(ctx, rec.ID, logEntry); err != nil {
		d.fail(rec, entry, rep, mu, "voice", fmt.Errorf("recording call content: %w", err))
		return
	}
	rec.CallContentLog = append(rec.CallContentLog, logEntry)

	d.count(rep, mu, "voice", "sent", nil)
	d.pub.Publish(ctx, events.KeyCallContentGenerated, events.Envelope{
		ClientID: rec.ID,
		Payload: map[string]string{
			"related_date": entry.DateValue,
			"date_type":    entry.DateType,
		},
	})
	logger.Info("call script generated",
		"client_id", rec.ID, "date_value", entry.DateValue, "date_type", entry.DateType)
}

func (d *Dispatcher) count(rep *DispatchReport, mu *sync.Mutex, channel, outcome string, failure *ItemFailure) {
	mu.Lock()
	switch outcome {
	case "sent":
		rep.Sent++
	case "skipped":
		rep.Skipped++
	case "failed":
		rep.Failed++
		if failure != nil {
			rep.Failures = append(rep.Failures, *failure)
		}
	}
	mu.Unlock()
	notificationsTotal.WithLabelValues(channel, outcome).Inc()
}

func (d *Dispatcher) fail(rec *domain.ClientRecord, entry domain.DateEntry, rep *DispatchReport, mu *sync.Mutex, channel string, err error) {
	logger.Error("reminder item failed",
		"client_id", rec.ID, "date_value", entry.DateValue, "date_type", entry.DateType, "error", err.Error())
	d.count(rep, mu, channel, "failed", &ItemFailure{
		ClientID:    rec.ID,
		RelatedDate: entry.DateValue,
		DateType:    entry.DateType,
		Reason:      err.Error(),
	})
}
