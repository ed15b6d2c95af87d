package ocr

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"medlist/api/internal/prompt"
)

// Settings configures one engine. Zero values fall back to defaults.
type Settings struct {
	APIKey    string
	Model     string
	BaseURL   string
	Prompt    string
	MaxTokens int
	Attempts  int
}

const (
	DefaultMaxTokens = 4096
	retryStep        = 300 * time.Millisecond
)

func (s Settings) WithDefaults() Settings {
	if s.MaxTokens <= 0 {
		s.MaxTokens = DefaultMaxTokens
	}
	if s.Attempts <= 0 {
		s.Attempts = 1
	}
	if strings.TrimSpace(s.Prompt) == "" {
		s.Prompt = prompt.Extract
	}
	return s
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying, e.g. a rejected key or a 400.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsClientStatus reports a 4xx HTTP status other than 429, which never succeeds on retry.
func IsClientStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

// Retry calls fn up to attempts times with a linear backoff, stopping early
// once ctx is done. Errors wrapped with Permanent are returned unwrapped at once.
func Retry(ctx context.Context, attempts int, fn func(ctx context.Context) (string, error)) (string, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		var pe *permanentError
		if errors.As(err, &pe) {
			return "", pe.err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * retryStep):
		}
	}
	return "", lastErr
}
