package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/grantfinder/adverts/internal/models"
)

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorGuard        ErrorCode = "guard_violation"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorUnauthorized ErrorCode = "unauthorized"
	ErrorBadGateway   ErrorCode = "bad_gateway"
)

// ServiceError carries a machine-readable code so handlers can pick the right
// response without string matching. Field is set for field-level validation
// failures so the form can re-present with the message against the input.
type ServiceError struct {
	Code    ErrorCode
	Message string
	Field   string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error  { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewNotFoundError(msg string) error { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewGuardError(msg string) error    { return &ServiceError{Code: ErrorGuard, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}
func NewBadGatewayError(msg string) error {
	return &ServiceError{Code: ErrorBadGateway, Message: msg}
}
func NewFieldError(field, msg string) error {
	return &ServiceError{Code: ErrorInvalid, Message: msg, Field: field}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// ConflictError is the multi-editor conflict outcome: another editor changed
// the advert's status between this editor's read and write. It names who made
// the competing change, when, and the status the advert is actually in now,
// so the caller can explain why the save was rejected.
type ConflictError struct {
	LastUpdatedBy string
	LastUpdated   time.Time
	CurrentStatus models.AdvertStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("advert was changed by %s at %s (now %s)",
		e.LastUpdatedBy, e.LastUpdated.Format(time.RFC3339), e.CurrentStatus)
}

func AsConflictError(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
