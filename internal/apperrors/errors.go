package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed business-rule failure that knows its HTTP status.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any *Error carrying the same code, so clones still compare
// equal to the sentinel they were derived from.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches a cause to a copy of kind.
func Wrap(kind *Error, err error) *Error {
	clone := *kind
	clone.Err = err
	return &clone
}

// Clone returns a copy of kind with an overridden message.
func Clone(kind *Error, message string) *Error {
	if kind == nil {
		return nil
	}
	clone := *kind
	if message != "" {
		clone.Message = message
	}
	return &clone
}

var (
	ErrUnauthorized      = New("UNAUTHORIZED", http.StatusUnauthorized, "device credential not recognized")
	ErrNoMatch           = New("NO_MATCH", http.StatusNotFound, "subject not recognized")
	ErrAmbiguousMatch    = New("AMBIGUOUS_MATCH", http.StatusConflict, "template matches more than one subject")
	ErrConflict          = New("CONFLICT", http.StatusConflict, "an active session already exists for this course")
	ErrDuplicateConflict = New("DUPLICATE_CONFLICT", http.StatusConflict, "attendance already marked")
	ErrNotEnrolled       = New("NOT_ENROLLED", http.StatusForbidden, "subject not enrolled in the session's course")
	ErrNoActiveSession   = New("NO_ACTIVE_SESSION", http.StatusNotFound, "no active session")
	ErrAmbiguousSession  = New("AMBIGUOUS_SESSION", http.StatusConflict, "more than one active session applies to this subject")
	ErrAlreadyEnded      = New("ALREADY_ENDED", http.StatusConflict, "session already ended")
	ErrAlreadyEnrolled   = New("ALREADY_ENROLLED", http.StatusConflict, "template already enrolled")
	ErrForbidden         = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrNotFound          = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation        = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal          = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(ErrInternal, err)
}
