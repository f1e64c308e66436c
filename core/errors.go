package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies the stage an error originated from.
type ErrorCode string

const (
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeRegistration ErrorCode = "REGISTRATION_ERROR"
	ErrCodeInvocation   ErrorCode = "INVOCATION_ERROR"
	ErrCodeDelegation   ErrorCode = "DELEGATION_ERROR"
)

// ValidationError reports a malformed agent graph or deployment descriptor.
// It is always produced locally, before any remote call is attempted.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field string, value any, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error for field %q: %s", e.Field, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *ValidationError) Unwrap() error { return e.Err }

// Code returns ErrCodeValidation.
func (e *ValidationError) Code() ErrorCode { return ErrCodeValidation }

// RegistrationError carries a rejection from the remote registration service.
// Status and Message are copied verbatim from the service response.
type RegistrationError struct {
	StatusCode int    `json:"status_code"`
	Status     string `json:"status,omitempty"`
	Message    string `json:"message"`
	Body       []byte `json:"-"`
	Err        error  `json:"-"`
}

func (e *RegistrationError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("registration failed: %s", e.Message)
	}
	status := e.Status
	if status == "" {
		status = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("registration failed (%d %s): %s", e.StatusCode, status, e.Message)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// Code returns ErrCodeRegistration.
func (e *RegistrationError) Code() ErrorCode { return ErrCodeRegistration }

// InvocationError is the terminal error of a remote query stream. It is
// raised before the first chunk (HTTP status, transport) or mid-stream
// (broken body, undecodable chunk).
type InvocationError struct {
	ResourceName string `json:"resource_name"`
	StatusCode   int    `json:"status_code,omitempty"`
	Message      string `json:"message"`
	Err          error  `json:"-"`
}

func (e *InvocationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("invocation of %s failed (%d): %s", e.ResourceName, e.StatusCode, msg)
	}
	return fmt.Sprintf("invocation of %s failed: %s", e.ResourceName, msg)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Code returns ErrCodeInvocation.
func (e *InvocationError) Code() ErrorCode { return ErrCodeInvocation }

// DelegationError reports that a sub-agent invoked through an agent
// delegation failed.
type DelegationError struct {
	Agent  string `json:"agent"`
	Target string `json:"target"`
	Err    error  `json:"-"`
}

func (e *DelegationError) Error() string {
	return fmt.Sprintf("agent %s: delegation to %s failed: %v", e.Agent, e.Target, e.Err)
}

func (e *DelegationError) Unwrap() error { return e.Err }

// Code returns ErrCodeDelegation.
func (e *DelegationError) Code() ErrorCode { return ErrCodeDelegation }

// CodeOf returns the ErrorCode of the first classified error in err's chain,
// or the empty code.
func CodeOf(err error) ErrorCode {
	var coded interface{ Code() ErrorCode }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
