package ixmanager

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// Error kinds. Match them with errors.Is.
var (
	ErrAuth     = errors.New("authentication failed")
	ErrNetwork  = errors.New("network failure")
	ErrAPI      = errors.New("unexpected api response")
	ErrParse    = errors.New("malformed api response")
	ErrRejected = errors.New("command rejected")
)

// Error describes a failed call against the iXmanager API.
type Error struct {
	Op         string
	Kind       error
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("ixmanager %s: %v", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsTransient reports whether a retry later may succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrAPI) || errors.Is(err, ErrParse)
}

const maxErrorBody = 200

// statusError classifies a non-2xx response.
func statusError(op string, code int, body []byte, command bool) *Error {
	e := &Error{Op: op, StatusCode: code}
	if len(body) > 0 {
		e.Err = errors.New(truncateBody(body, maxErrorBody))
	}

	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		e.Kind = ErrAuth
	case http.StatusConflict, http.StatusUnprocessableEntity, http.StatusLocked:
		if command {
			e.Kind = ErrRejected
		} else {
			e.Kind = ErrAPI
		}
	default:
		e.Kind = ErrAPI
	}
	return e
}

// truncateBody cuts body to at most limit bytes without splitting a UTF-8 sequence.
func truncateBody(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	i := limit
	for i > 0 && !utf8.RuneStart(body[i]) {
		i--
	}
	return string(body[:i])
}
