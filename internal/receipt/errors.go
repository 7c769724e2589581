package receipt

import (
	"context"
	"errors"
	"fmt"

	"github.com/zombor/receipt-ledger/internal/scanning"
)

// ErrorKind classifies why an extraction produced nothing
type ErrorKind string

const (
	KindRender             ErrorKind = "render"
	KindBackendUnavailable ErrorKind = "backend_unavailable"
	KindTimeout            ErrorKind = "timeout"
	KindEmptyResult        ErrorKind = "empty_result"
	KindUnparseable        ErrorKind = "unparseable"
	KindCancelled          ErrorKind = "cancelled"
	KindInternal           ErrorKind = "internal"
)

var (
	// ErrRender means the document could not be decoded into pages. It is not retried.
	ErrRender = errors.New("document could not be rendered")
	// ErrDuplicateProvenance aborts the batch: two records claimed the same source position.
	ErrDuplicateProvenance = errors.New("duplicate provenance")
	// ErrCancelled marks work skipped because the batch was cancelled
	ErrCancelled = errors.New("cancelled")
	// ErrNoStrategy means no configured backend can handle the document
	ErrNoStrategy = errors.New("no extraction strategy available")
	// ErrBatchNotFound is returned by DB lookups for unknown ids
	ErrBatchNotFound = errors.New("batch not found")
	// ErrUnsupportedFile rejects uploads that are neither a PDF nor a supported image
	ErrUnsupportedFile = errors.New("unsupported file type")
)

// ExtractionError is a failed strategy execution
type ExtractionError struct {
	Kind     ErrorKind
	Strategy Strategy
	Page     int
	Err      error
}

func newExtractionError(strategy Strategy, page int, err error) *ExtractionError {
	return &ExtractionError{Kind: classify(err), Strategy: strategy, Page: page, Err: err}
}

func (e *ExtractionError) Error() string {
	if e.Page < 0 {
		return fmt.Sprintf("%s: %v", e.Strategy, e.Err)
	}
	return fmt.Sprintf("%s page %d: %v", e.Strategy, e.Page, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// KindOf maps any error to its kind
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ee *ExtractionError
	if errors.As(err, &ee) && ee.Kind != "" {
		return ee.Kind
	}
	return classify(err)
}

func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrRender), errors.Is(err, scanning.ErrUndecodable):
		return KindRender
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, scanning.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, scanning.ErrBackendUnavailable):
		return KindBackendUnavailable
	case errors.Is(err, scanning.ErrEmptyResult):
		return KindEmptyResult
	case errors.Is(err, scanning.ErrUnparseable):
		return KindUnparseable
	default:
		return KindInternal
	}
}

// advances reports whether the fallback chain moves on to the next strategy after an error of this kind
func (k ErrorKind) advances() bool {
	switch k {
	case KindBackendUnavailable, KindTimeout, KindEmptyResult, KindUnparseable:
		return true
	}
	return false
}

func failureFrom(documentID string, page int, err error) Failure {
	return Failure{DocumentID: documentID, Page: page, Kind: KindOf(err), Message: err.Error()}
}
