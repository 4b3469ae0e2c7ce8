package counter

import (
	"errors"
	"fmt"
)

// ErrAuthentication signals that no valid provider credential is available.
var ErrAuthentication = errors.New("analytics authentication required")

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// UpstreamRequestError wraps a transport or provider-reported failure on a
// live fetch. Message carries the upstream text verbatim.
type UpstreamRequestError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamRequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream request failed (status %d): %s", e.StatusCode, e.Message)
	}
	return "upstream request failed: " + e.Message
}

func (e *UpstreamRequestError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a missing or invalid setting, raised before any
// network call is attempted.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %s", e.Field, e.Reason)
}

// IsConfigurationError reports whether err wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// IsUpstreamError reports whether err wraps an *UpstreamRequestError.
func IsUpstreamError(err error) bool {
	var upErr *UpstreamRequestError
	return errors.As(err, &upErr)
}
