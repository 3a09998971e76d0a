package successfactors

import (
	"errors"
	"fmt"

	"lms_extractor/internal/domain"
)

// ErrUpstreamUnavailable is returned while the circuit breaker is open.
// Callers treat it like any other retriable API error.
var ErrUpstreamUnavailable = fmt.Errorf("lms api unavailable: %w", domain.ErrRetriable)

// ErrorKind separates errors worth retrying from those that abort a stream.
type ErrorKind int

const (
	KindRetriable ErrorKind = iota + 1
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindRetriable:
		return "retriable"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// APIError describes a non-success response. Path never carries the query
// string, so filters and identifiers in it are not leaked into logs.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Reason     string
	Path       string
}

// Class is "Client" for 4xx statuses and "Server" otherwise.
func (e *APIError) Class() string {
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return "Client"
	}
	return "Server"
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s Error: %s for path: %s", e.StatusCode, e.Class(), e.Reason, e.Path)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case domain.ErrRetriable:
		return e.Kind == KindRetriable
	case domain.ErrFatal:
		return e.Kind == KindFatal
	}
	return false
}

// TokenExchangeError means a client-credentials exchange failed. Nothing can
// be extracted without a token, so it ends the run.
type TokenExchangeError struct {
	Identity   domain.Identity
	StatusCode int
	Err        error
}

func (e *TokenExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token exchange for %s identity: status %d: %v", e.Identity, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("token exchange for %s identity: %v", e.Identity, e.Err)
}

func (e *TokenExchangeError) Unwrap() []error {
	return []error{domain.ErrTokenExchange, e.Err}
}

// IsRetriable reports whether err is a transient API failure.
func IsRetriable(err error) bool {
	return errors.Is(err, domain.ErrRetriable)
}

// IsFatal reports whether err is an API failure that must not be retried.
func IsFatal(err error) bool {
	return errors.Is(err, domain.ErrFatal)
}

// IsTokenExchange reports whether err came from a failed token exchange.
func IsTokenExchange(err error) bool {
	return errors.Is(err, domain.ErrTokenExchange)
}
