package adapter

import "fmt"

// ConfigError signals invalid caller input: malformed resume tokens,
// disallowed SoQL identifiers, non-finite numeric values. Never retried.
type ConfigError struct {
	Msg   string
	Cause error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config: %s: %v", e.Msg, e.Cause)
	}
	return "config: " + e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Cause }

func NewConfigError(msg string) *ConfigError { return &ConfigError{Msg: msg} }

func WrapConfigError(msg string, cause error) *ConfigError {
	return &ConfigError{Msg: msg, Cause: cause}
}

// TransientHTTPError covers 5xx, 429, and network failures. Retried with
// backoff; becomes RetryExhausted on exhaustion.
type TransientHTTPError struct {
	URL        string
	StatusCode int // 0 for network errors
	Cause      error
}

func (e *TransientHTTPError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient http %d for %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("transient network error for %s: %v", e.URL, e.Cause)
}

func (e *TransientHTTPError) Unwrap() error { return e.Cause }

// FatalHTTPError covers 4xx other than 429. Never retried.
type FatalHTTPError struct {
	URL        string
	StatusCode int
	Body       string // never contains Authorization material; callers must scrub before setting
}

func (e *FatalHTTPError) Error() string {
	return fmt.Sprintf("fatal http %d for %s", e.StatusCode, e.URL)
}

// IsV3Unavailable reports whether the status code indicates the v3 POST
// query surface is unavailable for this dataset, so the caller may fall
// back to v2 row pagination.
func (e *FatalHTTPError) IsV3Unavailable() bool {
	switch e.StatusCode {
	case 401, 403, 404, 501:
		return true
	default:
		return false
	}
}

// AuthError is surfaced as a FatalHTTPError; it never carries the
// authorization material itself.
type AuthError struct {
	*FatalHTTPError
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Reason, e.FatalHTTPError.Error())
}

// PersistenceError wraps a database transaction failure. The batch that
// produced it rolled back; the resume token is unchanged.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// CancellationError is surfaced when the caller's context is canceled, kept
// distinct from TransientHTTPError so callers can tell the two apart.
type CancellationError struct {
	Cause error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("canceled: %v", e.Cause)
}

func (e *CancellationError) Unwrap() error { return e.Cause }

// SchemaError is raised when a portal response does not conform to the
// declared JSON shape. Classified FATAL at the pipeline's iteration layer.
type SchemaError struct {
	Msg   string
	Cause error
}

func (e *SchemaError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("schema: %s: %v", e.Msg, e.Cause)
	}
	return "schema: " + e.Msg
}

func (e *SchemaError) Unwrap() error { return e.Cause }

// RetryExhausted is raised when the HTTP retry/backoff layer exhausts its
// attempt budget.
type RetryExhausted struct {
	URL      string
	Attempts int
	Cause    error
}

func (e *RetryExhausted) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts for %s: %v", e.Attempts, e.URL, e.Cause)
}

func (e *RetryExhausted) Unwrap() error { return e.Cause }
