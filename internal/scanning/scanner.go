package scanning

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors shared by every backend. Callers use errors.Is to decide
// whether another strategy should be tried.
var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrTimeout            = errors.New("backend timed out")
	ErrEmptyResult        = errors.New("backend returned no usable result")
	ErrUnparseable        = errors.New("response is not valid JSON")
	ErrUndecodable        = errors.New("image could not be decoded")
)

// TextLayerReader reads the embedded text layer of a digital document
type TextLayerReader interface {
	// TextLayer returns the text of every page, in page order
	TextLayer(ctx context.Context, data []byte) ([]string, error)
}

// Recognizer turns page pixels into text
type Recognizer interface {
	// Recognize returns the recognized lines in reading order, newline separated
	Recognize(ctx context.Context, imageData []byte, contentType string) (string, error)
}

// Describer sends a page image plus instructions to a vision-capable model
type Describer interface {
	// Describe returns the model's raw response text
	Describe(ctx context.Context, imageData []byte, contentType string, prompt string) (string, error)
	// Close closes the describer and releases resources
	Close() error
}

// unavailable wraps a transport failure, reporting deadline expiry as ErrTimeout
func unavailable(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrBackendUnavailable, err)
}
