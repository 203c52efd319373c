package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Checkout errors
	ErrEmptyItems         = errors.New("items array required and non-empty")
	ErrAmountOutOfRange   = errors.New("amount out of range")
	ErrUnsupportedPayload = errors.New("unsupported payload for provider")

	// Provider errors
	ErrProviderNotFound      = errors.New("payment provider not found")
	ErrProviderNotConfigured = errors.New("payment provider not configured")
	ErrProviderUnavailable   = errors.New("payment provider unavailable")
	ErrProviderUnreachable   = errors.New("payment provider unreachable")
	ErrProviderRejected      = errors.New("payment rejected by provider")
	ErrProviderTimeout       = errors.New("provider request timeout")
	ErrProviderNotFoundOrder = errors.New("order not found at provider")

	// Response shape errors
	ErrResponseShapeMismatch = errors.New("provider response shape mismatch")
	ErrUpstreamUnparseable   = errors.New("upstream response unparseable")
	ErrPaymentURLNotFound    = errors.New("payment URL not found in response")

	// OAuth errors
	ErrTokenNotFound           = errors.New("oauth token not found")
	ErrReauthorizationRequired = errors.New("reauthorization required")
	ErrInvalidOAuthState       = errors.New("invalid oauth state")

	// Integration errors
	ErrRecaptchaNotConfigured    = errors.New("recaptcha secret not configured")
	ErrRecaptchaVerifyFailed     = errors.New("recaptcha verification failed")
	ErrWebhookJournalUnavailable = errors.New("webhook journal unavailable")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Violation is a single field that failed validation.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError represents a validation error. Field/Message describe the
// first violation; Violations lists all of them.
type ValidationError struct {
	Field      string
	Message    string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:      field,
		Message:    message,
		Violations: []Violation{{Field: field, Message: message}},
	}
}

// NewValidationErrors builds a validation error with a summary message and
// every violated field.
func NewValidationErrors(summary string, violations []Violation) *ValidationError {
	e := &ValidationError{Message: summary, Violations: violations}
	if summary == "" && len(violations) > 0 {
		names := make([]string, 0, len(violations))
		for _, v := range violations {
			names = append(names, v.Field)
		}
		e.Message = "invalid fields: " + strings.Join(names, ", ")
	}
	return e
}

// UpstreamError carries what a provider answered when a call failed. Kind is
// one of the provider sentinels above and is what errors.Is matches against.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
	Kind       error
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Retryable reports whether the client may retry the same request unchanged.
func (e *UpstreamError) Retryable() bool {
	return errors.Is(e.Kind, ErrProviderTimeout) ||
		errors.Is(e.Kind, ErrProviderUnreachable) ||
		errors.Is(e.Kind, ErrProviderUnavailable)
}

// NewUpstreamError creates an upstream error for the given provider.
func NewUpstreamError(provider string, kind error, status int, body string, err error) *UpstreamError {
	return &UpstreamError{
		Provider:   provider,
		StatusCode: status,
		Body:       body,
		Kind:       kind,
		Err:        err,
	}
}

// Unparseable returns the error used when a provider body is not valid JSON.
// It matches both ErrResponseShapeMismatch and ErrUpstreamUnparseable.
func Unparseable(provider string, status int, body string, err error) *UpstreamError {
	return NewUpstreamError(provider, fmt.Errorf("%w: %w", ErrResponseShapeMismatch, ErrUpstreamUnparseable), status, body, err)
}

// IsRetryable reports whether err is a transient upstream failure.
func IsRetryable(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable()
	}
	return errors.Is(err, ErrProviderTimeout) ||
		errors.Is(err, ErrProviderUnreachable) ||
		errors.Is(err, ErrProviderUnavailable)
}
