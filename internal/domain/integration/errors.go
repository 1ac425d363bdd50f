package integration

import (
	"errors"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrInvalidTenantID       = errors.New("integration: invalid tenant ID")
	ErrInvalidMarketplace    = errors.New("integration: invalid marketplace")
	ErrInvalidResourceKind   = errors.New("integration: invalid resource kind")
	ErrCredentialNotFound    = errors.New("integration: credential not found")
	ErrCredentialInvalid     = errors.New("integration: credential is invalid and requires re-authorization")
	ErrCustomerIdentityEmpty = errors.New("integration: customer has neither email nor tax id")
	ErrInvalidNotification   = errors.New("integration: invalid webhook notification")
	ErrUnsupportedTopic      = errors.New("integration: unsupported webhook topic")
	ErrNotFound              = errors.New("integration: record not found")

	// Error taxonomy categories. Every typed error below matches exactly one of these with errors.Is.
	ErrAuthentication    = errors.New("integration: authentication failed")
	ErrRateLimitExceeded = errors.New("integration: rate limit exceeded")
	ErrTransientNetwork  = errors.New("integration: transient network failure")
	ErrMapping           = errors.New("integration: unmappable remote payload")
	ErrPersistence       = errors.New("integration: local store failure")
)

// ---------------------------------------------------------------------------
// Typed errors
// ---------------------------------------------------------------------------

// AuthenticationError means the credential is invalid or revoked.
// It is never retried beyond the single reactive refresh.
type AuthenticationError struct {
	Key    Key
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	msg := fmt.Sprintf("authentication failed for %s: %s", e.Key, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error        { return e.Err }
func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthentication }

// RateLimitExceededError is returned once provider throttling outlasted the retry budget.
type RateLimitExceededError struct {
	Key        Key
	Attempts   int
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s after %d attempts (retry after %s)", e.Key, e.Attempts, e.RetryAfter)
}

func (e *RateLimitExceededError) Is(target error) bool { return target == ErrRateLimitExceeded }

// TransientNetworkError wraps connectivity failures and 5xx responses after backoff is exhausted.
// It is retryable by the next scheduled run.
type TransientNetworkError struct {
	Key        Key
	Attempts   int
	StatusCode int
	Err        error
}

func (e *TransientNetworkError) Error() string {
	msg := fmt.Sprintf("transient network failure for %s after %d attempts", e.Key, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (last status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransientNetworkError) Unwrap() error        { return e.Err }
func (e *TransientNetworkError) Is(target error) bool { return target == ErrTransientNetwork }

// MappingError reports a malformed or unexpected payload for a single remote item.
type MappingError struct {
	Resource   ResourceKind
	ExternalID string
	Field      string
	Reason     string
	Payload    []byte
}

func (e *MappingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("cannot map %s %q: field %s: %s", e.Resource, e.ExternalID, e.Field, e.Reason)
	}
	return fmt.Sprintf("cannot map %s %q: %s", e.Resource, e.ExternalID, e.Reason)
}

func (e *MappingError) Is(target error) bool { return target == ErrMapping }

// PersistenceError wraps a local store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error        { return e.Err }
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// NewPersistenceError wraps err unless it is nil or already a PersistenceError.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// RequestError is a non-retryable 4xx response other than 401 and 429.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsRunAbort reports whether err must abort the current page and leave the cursor in place.
func IsRunAbort(err error) bool {
	return errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrRateLimitExceeded) ||
		errors.Is(err, ErrTransientNetwork)
}

// ErrorKind returns a short label for the taxonomy category of err.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrRateLimitExceeded):
		return "rate_limit"
	case errors.Is(err, ErrTransientNetwork):
		return "transient_network"
	case errors.Is(err, ErrMapping):
		return "mapping"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "unknown"
	}
}
