package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"

	"lms-backend/pkg/logger"
)

// Error is a failure the HTTP layer renders as-is: Status plus {"detail": Detail}.
type Error struct {
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, detail string, err error) *Error {
	return &Error{Status: status, Detail: detail, Err: err}
}

func NotFound(detail string) *Error     { return New(http.StatusNotFound, detail, nil) }
func BadRequest(detail string) *Error   { return New(http.StatusBadRequest, detail, nil) }
func Conflict(detail string) *Error     { return New(http.StatusConflict, detail, nil) }
func Unauthorized(detail string) *Error { return New(http.StatusUnauthorized, detail, nil) }
func Forbidden(detail string) *Error    { return New(http.StatusForbidden, detail, nil) }
func Validation(detail string) *Error   { return New(http.StatusUnprocessableEntity, detail, nil) }

// StatusOf returns the HTTP status carried by err, 500 when it carries none.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// IsDuplicate reports whether err came from a unique index violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// Write renders err. Unknown errors are logged and masked.
func Write(w http.ResponseWriter, log *logger.Logger, err error) {
	var ae *Error
	if !errors.As(err, &ae) {
		if log != nil {
			log.Error("unhandled error", "error", err)
		}
		ae = New(http.StatusInternalServerError, "Internal server error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.Status)
	json.NewEncoder(w).Encode(map[string]string{"detail": ae.Detail})
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Message is the standard body for operations that return no resource.
type Message struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

func OK(msg string) Message { return Message{Message: msg, Success: true} }
