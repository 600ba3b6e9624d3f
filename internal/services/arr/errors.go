package arr

import (
	"errors"
	"fmt"
)

// ApiErrorKind classifies remote API failures
type ApiErrorKind string

const (
	ErrKindTimeout      ApiErrorKind = "timeout"
	ErrKindUnauthorized ApiErrorKind = "unauthorized"
	ErrKindNotFound     ApiErrorKind = "not-found"
	ErrKindServerError  ApiErrorKind = "server-error"
)

// ApiError is the error type every Client call surfaces on transport or
// HTTP failure. The client never retries; retry policy belongs to callers.
type ApiError struct {
	Kind     ApiErrorKind
	Instance string
	Status   int
	Detail   string
}

func (e *ApiError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d): %s", e.Instance, e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", e.Instance, e.Kind, e.Detail)
}

// ErrAlreadyExists is returned by AddItem when the destination reports the
// item already present (HTTP 409). Callers treat it as a skip, not a
// failure.
var ErrAlreadyExists = errors.New("item already exists in destination")

// IsTimeout reports whether err is a timeout-kind ApiError
func IsTimeout(err error) bool {
	var ae *ApiError
	return errors.As(err, &ae) && ae.Kind == ErrKindTimeout
}
