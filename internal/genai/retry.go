package genai

import (
	"context"
	"time"

	"github.com/agreedhq/backoffice/internal/pkg/logger"
)

// Retrying wraps a Generator with a bounded retry policy and capped
// exponential backoff. MaxRetries is the TOTAL number of attempts, so
// MaxRetries=3 means one call plus at most two retries.
type Retrying struct {
	inner      Generator
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetrying wraps gen with the given attempt budget. baseDelay may be
// zero (immediate retry, used by tests).
func NewRetrying(gen Generator, maxRetries int, baseDelay time.Duration) *Retrying {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Retrying{
		inner:      gen,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   30 * time.Second,
	}
}

// Generate runs the inner generator until it succeeds or the attempt
// budget is exhausted, then fails with GenerationExhaustedError carrying
// the last underlying cause.
func (r *Retrying) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if attempt > 1 && r.baseDelay > 0 {
			delay := r.baseDelay << (attempt - 2)
			if delay > r.maxDelay {
				delay = r.maxDelay
			}
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return "", &GenerationExhaustedError{Attempts: attempt - 1, LastErr: ctx.Err()}
			}
		}

		text, err := r.inner.Generate(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		logger.Warn("generation attempt failed",
			"attempt", attempt,
			"max_attempts", r.maxRetries,
			"error", err.Error())

		if ctx.Err() != nil {
			return "", &GenerationExhaustedError{Attempts: attempt, LastErr: lastErr}
		}
	}

	return "", &GenerationExhaustedError{Attempts: r.maxRetries, LastErr: lastErr}
}
