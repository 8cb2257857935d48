package engine

import (
	"fmt"
	"sort"
	"strings"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

// Is matches any AppError with the same code, so callers can test
// errors.Is(err, ErrDuplicateName) without caring about the message.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

// Sentinels for errors.Is.
var (
	ErrDuplicateName     = &AppError{Code: "DUPLICATE_NAME", Status: 409}
	ErrInvalidSpec       = &AppError{Code: "INVALID_SPEC", Status: 422}
	ErrNotFound          = &AppError{Code: "NOT_FOUND", Status: 404}
	ErrEntityNotFound    = &AppError{Code: "ENTITY_NOT_FOUND", Status: 404}
	ErrUnknownEntityType = &AppError{Code: "UNKNOWN_ENTITY", Status: 404}
	ErrValidation        = &AppError{Code: "VALIDATION_FAILED", Status: 422}
	ErrUnauthorized      = &AppError{Code: "UNAUTHORIZED", Status: 401}
)

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func DuplicateNameError(entityType, name string) *AppError {
	return &AppError{
		Code:    ErrDuplicateName.Code,
		Status:  409,
		Message: fmt.Sprintf("A field named %s already exists on %s", name, entityType),
	}
}

func InvalidSpecError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    ErrInvalidSpec.Code,
		Status:  422,
		Message: "Invalid field definition",
		Details: details,
	}
}

func NotFoundError(kind, id string) *AppError {
	return &AppError{
		Code:    ErrNotFound.Code,
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", kind, id),
	}
}

func EntityNotFoundError(entityType, id string) *AppError {
	return &AppError{
		Code:    ErrEntityNotFound.Code,
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", entityType, id),
	}
}

func UnknownEntityError(name string) *AppError {
	return &AppError{
		Code:    ErrUnknownEntityType.Code,
		Status:  404,
		Message: fmt.Sprintf("Unknown entity: %s", name),
	}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    ErrValidation.Code,
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: ErrUnauthorized.Code, Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

func BadRequestError(msg string) *AppError {
	return &AppError{Code: "BAD_REQUEST", Status: 400, Message: msg}
}

// FieldErrorKind classifies a per-field failure.
type FieldErrorKind string

const (
	KindCoercion   FieldErrorKind = "coercion"
	KindRequired   FieldErrorKind = "required"
	KindValidation FieldErrorKind = "validation"
)

// FieldError is a problem with one submitted field value.
type FieldError struct {
	Field   string         `json:"field"`
	Kind    FieldErrorKind `json:"kind"`
	Rule    string         `json:"rule"`
	Message string         `json:"message"`
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldErrors maps field name to its error. A nil or empty map means the
// submission is valid.
type FieldErrors map[string]*FieldError

// Details returns the errors sorted by field name, in AppError form.
func (fe FieldErrors) Details() []ErrorDetail {
	names := make([]string, 0, len(fe))
	for name := range fe {
		names = append(names, name)
	}
	sort.Strings(names)
	details := make([]ErrorDetail, 0, len(names))
	for _, name := range names {
		e := fe[name]
		details = append(details, ErrorDetail{Field: e.Field, Rule: e.Rule, Message: e.Message})
	}
	return details
}

// Err returns a VALIDATION_FAILED AppError, or nil when there are no errors.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return ValidationError(fe.Details())
}

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, d := range fe.Details() {
		parts = append(parts, d.Field+": "+d.Message)
	}
	return strings.Join(parts, "; ")
}
