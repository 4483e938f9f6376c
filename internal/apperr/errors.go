// Package apperr defines the error taxonomy shared by the client and the dev server.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError is a failure before a usable response was obtained:
// network errors, unreadable bodies, undecodable JSON.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response, or a 2xx response whose payload failed
// schema validation. Detail is the human-readable reason from the body.
type ServerError struct {
	Status int
	Detail string
}

func (e *ServerError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
}

// ValidationError is raised on the client before any request is dispatched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Invalid returns a ValidationError for field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Malformed returns the ServerError used for payloads that fail schema validation.
func Malformed(status int, entity, reason string) error {
	return &ServerError{Status: status, Detail: fmt.Sprintf("malformed %s payload: %s", entity, reason)}
}

// Detail extracts the user-facing reason carried by err, or "" when the error
// has no meaningful detail (transport failures, unknown errors).
func Detail(err error) string {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Detail
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	return ""
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// IsValidation reports whether err is a client-side validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
