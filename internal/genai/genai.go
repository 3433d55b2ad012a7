// Package genai wraps the external generative-text services used for
// reminder emails, call scripts, intake emails, and structured
// extraction. Callers see a single Generator capability; the concrete
// backend (Gemini or Bedrock) is a config decision.
package genai

import (
	"context"
	"errors"
	"fmt"
)

// Generator produces plain text from a prompt. Implementations make a
// single outbound call per invocation; retry policy lives in Retrying.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrEmptyCompletion indicates the service answered 200 but returned no
// usable text. Treated as retryable, never as a silent empty result.
var ErrEmptyCompletion = errors.New("genai: empty completion payload")

// GenerationExhaustedError is returned once all attempts are spent.
type GenerationExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *GenerationExhaustedError) Error() string {
	return fmt.Sprintf("genai: generation failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *GenerationExhaustedError) Unwrap() error { return e.LastErr }

// IsExhausted reports whether err is a retry-exhaustion failure.
func IsExhausted(err error) bool {
	var ge *GenerationExhaustedError
	return errors.As(err, &ge)
}
