package core

import (
	"errors"
	"fmt"
)

// Retryable conditions surfaced to the lifecycle event intake. Callers are
// expected to back off and retry; events classified with these errors are
// never applied and never silently dropped.
var (
	// ErrQuotaRecordMissing means the target scope does not exist (yet).
	ErrQuotaRecordMissing = errors.New("quota record missing")

	// ErrOutOfOrderEvent means the event's sequence number is not exactly one
	// greater than the last applied sequence for the resource.
	ErrOutOfOrderEvent = errors.New("out of order event")
)

// ValidationError marks malformed input that must be rejected, not retried.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
