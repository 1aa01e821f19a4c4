package backend

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when a 2xx body cannot be decoded.
var ErrMalformedResponse = errors.New("malformed backend response")

// RequestError is returned when the backend answers with a non-2xx status.
type RequestError struct {
	StatusCode int
	Message    string // error text from the response body, if any
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP error! status: %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

// UnreachableError is returned when the request never produced a response.
type UnreachableError struct {
	Op  string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("backend unreachable (%s): %v", e.Op, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// IsUnreachable reports whether err is a transport-level failure.
func IsUnreachable(err error) bool {
	var u *UnreachableError
	return errors.As(err, &u)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var r *RequestError
	if errors.As(err, &r) {
		return r.StatusCode
	}
	return 0
}
