package common

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports malformed input or a violated business precondition.
type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string { return e.Message }
func (e *ValidationError) Unwrap() error { return e.Cause }

// StateError reports an operation attempted from a state that does not allow it.
type StateError struct {
	Message string
}

func (e *StateError) Error() string { return e.Message }

type CapacityError struct {
	Message string
}

func (e *CapacityError) Error() string { return e.Message }

type InsufficientFundsError struct {
	Message string
}

func (e *InsufficientFundsError) Error() string { return e.Message }

type InvalidOTPError struct {
	Message string
}

func (e *InvalidOTPError) Error() string { return e.Message }

type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

// ConflictError reports a duplicate of something that must be unique.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func NewStateError(format string, args ...interface{}) error {
	return &StateError{Message: fmt.Sprintf(format, args...)}
}

func NewCapacityError(format string, args ...interface{}) error {
	return &CapacityError{Message: fmt.Sprintf(format, args...)}
}

func NewInsufficientFundsError(message string) error {
	return &InsufficientFundsError{Message: message}
}

func NewInvalidOTPError() error {
	return &InvalidOTPError{Message: "invalid or expired OTP"}
}

func NewNotFoundError(resource string) error {
	return &NotFoundError{Resource: resource}
}

func NewForbiddenError(message string) error {
	return &ForbiddenError{Message: message}
}

func NewConflictError(format string, args ...interface{}) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// StatusCode maps a service error to the HTTP status returned to clients.
func StatusCode(err error) int {
	var (
		validation   *ValidationError
		state        *StateError
		capacity     *CapacityError
		insufficient *InsufficientFundsError
		otp          *InvalidOTPError
		notFound     *NotFoundError
		forbidden    *ForbiddenError
		conflict     *ConflictError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &otp):
		return http.StatusBadRequest
	case errors.As(err, &state):
		return http.StatusConflict
	case errors.As(err, &capacity):
		return http.StatusConflict
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &insufficient):
		return http.StatusUnprocessableEntity
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage hides internal failures behind a generic message.
func PublicMessage(err error) string {
	if StatusCode(err) == http.StatusInternalServerError {
		return "Something went wrong, please try again"
	}
	return err.Error()
}
