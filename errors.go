package termsuggest

import (
	"errors"
	"fmt"
)

// Sentinel errors for build and query failures.

var (
	// ErrProviderNotFound is returned when a provider is not registered.
	// Usually means you forgot to import the provider package with an underscore.
	ErrProviderNotFound = errors.New("termsuggest provider not found")

	// ErrSourceUnavailable is returned by Build when the source corpus cannot be opened.
	// No writes are performed in that case.
	ErrSourceUnavailable = errors.New("source corpus unavailable")

	// ErrSegmentWriteFailed matches every *SegmentError.
	ErrSegmentWriteFailed = errors.New("segment write failed")

	// ErrInvalidQuery is returned by Suggest on caller misuse.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrEmptyQuery is returned when the partial term is empty.
	ErrEmptyQuery = fmt.Errorf("%w: empty partial term", ErrInvalidQuery)

	// ErrInvalidLimit is returned when maxResults is zero or negative.
	ErrInvalidLimit = fmt.Errorf("%w: max results must be positive", ErrInvalidQuery)

	// ErrLimitExceeded is returned when maxResults exceeds MaxLimit.
	ErrLimitExceeded = fmt.Errorf("%w: limit exceeded", ErrInvalidQuery)

	// ErrIndexClosed is returned by every Index method after Close.
	ErrIndexClosed = errors.New("index closed")
)

// SegmentError reports a field whose segment could not be finalized.
// The field's contribution is abandoned; other fields are unaffected.
type SegmentError struct {
	Field string
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment for field %q: %v", e.Field, e.Err)
}

// Unwrap lets errors.Is match both ErrSegmentWriteFailed and the underlying cause.
func (e *SegmentError) Unwrap() []error {
	return []error{ErrSegmentWriteFailed, e.Err}
}
