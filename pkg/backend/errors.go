package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kgcorpus/tagging-console/pkg/apperrors"
)

// ErrUnauthorized matches any 401 response.
var ErrUnauthorized = errors.New("not authenticated")

// TransportError is a failure to reach the backend or read its response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: backend unreachable: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable marks transport failures as transient.
func (e *TransportError) IsRetryable() bool { return true }

// StatusError is a non-2xx response.
type StatusError struct {
	Op     string
	Status int
	Detail string // backend "detail" message, if any
	Body   string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: backend returned status %d: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: backend returned status %d", e.Op, e.Status)
}

// IsRetryable reports false: only transport failures are retried.
func (e *StatusError) IsRetryable() bool { return false }

// Is maps statuses onto the shared sentinel errors.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized, apperrors.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case apperrors.ErrForbidden:
		return e.Status == http.StatusForbidden
	case apperrors.ErrNotFound:
		return e.Status == http.StatusNotFound
	case apperrors.ErrConflict:
		return e.Status == http.StatusConflict
	case apperrors.ErrValidation:
		return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity
	}
	return false
}

// Category classifies an error for user-facing notices.
type Category string

const (
	CategoryNone         Category = ""
	CategoryValidation   Category = "validation"
	CategoryTransport    Category = "transport"
	CategoryUnauthorized Category = "unauthorized"
	CategoryServer       Category = "server"
)

// CategoryOf classifies err. Errors that did not come from the backend are
// validation errors: they were raised before any request was sent.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryNone
	}
	var te *TransportError
	if errors.As(err, &te) {
		return CategoryTransport
	}
	if errors.Is(err, ErrUnauthorized) {
		return CategoryUnauthorized
	}
	var se *StatusError
	if errors.As(err, &se) {
		return CategoryServer
	}
	return CategoryValidation
}

// detail extracts the message of a {"detail": ...} error body. FastAPI
// validation errors carry a list; the first message is used.
func detail(body []byte) string {
	var v struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &v); err != nil || len(v.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v.Detail, &s); err == nil {
		return s
	}
	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(v.Detail, &list); err == nil && len(list) > 0 {
		return list[0].Msg
	}
	return ""
}
