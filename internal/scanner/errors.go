package scanner

import (
	"errors"
	"fmt"
)

// ErrScanInProgress is returned when a scan is requested while another one
// has not been finalized yet. Concurrent requests are refused, not queued.
var ErrScanInProgress = errors.New("scan already in progress")

// ValidationError reports malformed input: a bad range specification, an
// invalid configuration value or an unacceptable manual name.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
