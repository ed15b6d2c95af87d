package types

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoImage is returned when the request carries neither an upload nor imageData.
	ErrNoImage = errors.New("No image provided")
	// ErrInvalidImage is returned when imageData is not decodable base64.
	ErrInvalidImage = errors.New("Invalid image data")
	// ErrExtraction is returned when no recovery stage produced JSON.
	ErrExtraction = errors.New("Could not parse response as JSON")
	// ErrSchemaValidation is returned when the recovered JSON is not a medication list.
	ErrSchemaValidation = errors.New("response does not match medication schema")
	// ErrUnknownEngine is returned for an llm_name that is not configured.
	ErrUnknownEngine = errors.New("unknown llm_name")
)

// IsInvalidInput reports whether err is a client-side input problem.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrNoImage) || errors.Is(err, ErrInvalidImage)
}

// UpstreamError wraps a failure of the external model call.
type UpstreamError struct {
	Engine string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Engine, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NewUpstreamError returns nil for a nil err.
func NewUpstreamError(engine string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Engine: engine, Err: err}
}
