// internal/services/errors.go
package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/javajoker/vendormatch-backend/internal/gateway"
	"github.com/javajoker/vendormatch-backend/internal/inference"
)

var (
	ErrAuthenticationFailed   = errors.New("authentication failed")
	ErrNotFound               = errors.New("not found")
	ErrInvalidSelection       = errors.New("invalid selection")
	ErrRateLimited            = errors.New("rate limited")
	ErrUpstreamUnavailable    = errors.New("upstream unavailable")
	ErrDataIntegrityViolation = errors.New("data integrity violation")
	ErrMissingPurposeMetadata = errors.New("missing purpose metadata")
	ErrAlreadyPaid            = errors.New("already paid")
	ErrConcurrentUpdate       = errors.New("concurrent update")
)

// ServiceError carries a user-facing message alongside one of the sentinel kinds.
type ServiceError struct {
	Kind       error
	Message    string
	Resource   string
	RetryAfter time.Duration
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ServiceError) Is(target error) bool {
	return e.Kind == target
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func invalidSelection(format string, args ...interface{}) error {
	return &ServiceError{Kind: ErrInvalidSelection, Message: fmt.Sprintf(format, args...)}
}

// notFound names the missing resource; the first word is its message key
// prefix ("batch job" -> "batch").
func notFound(resource string) error {
	return &ServiceError{Kind: ErrNotFound, Message: resource + " not found", Resource: strings.Fields(resource)[0]}
}

func integrityViolation(format string, args ...interface{}) error {
	return &ServiceError{Kind: ErrDataIntegrityViolation, Message: fmt.Sprintf(format, args...)}
}

// classifyUpstream turns adapter errors into the service taxonomy.
func classifyUpstream(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case inference.IsRateLimited(err), gateway.IsRateLimited(err):
		return &ServiceError{Kind: ErrRateLimited, Message: op + " was rate limited", RetryAfter: 30 * time.Second, Err: err}
	case errors.Is(err, inference.ErrUnavailable), errors.Is(err, gateway.ErrUnavailable):
		return &ServiceError{Kind: ErrUpstreamUnavailable, Message: op + " is unavailable", Err: err}
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrUpstreamUnavailable):
		return err
	}
	return &ServiceError{Kind: ErrUpstreamUnavailable, Message: op + " failed", Err: err}
}
