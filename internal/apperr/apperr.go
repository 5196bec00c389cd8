// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package apperr defines the typed error values that flow from services and
// handlers to the single JSON error translator.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for translation into an HTTP response.
type Kind int

// Error kinds. Client-caused kinds render as status "fail", server-caused
// kinds as status "error".
const (
	KindUnexpected Kind = iota
	KindValidation
	KindNotFound
	KindUnauthenticated
	KindForbidden
	KindConflict
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	default:
		return "unexpected"
	}
}

// StatusCode returns the HTTP status for the kind.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is an operational error with a message that is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	// Fields holds per-field validation messages, if any.
	Fields map[string]string
	// Status overrides Kind.StatusCode when non-zero.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status for the error.
func (e *Error) StatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	return e.Kind.StatusCode()
}

// Validation returns a 400 error.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Validationf returns a 400 error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

// NotFound returns a 404 error.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Unauthenticated returns a 401 error.
func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

// Forbidden returns a 403 error.
func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// Conflict returns a 409 error.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Upstream wraps a collaborator failure (store, mail) with a client-safe message.
func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err, Status: http.StatusInternalServerError}
}

// Wrap attaches a cause to an operational error.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// WithStatus overrides the HTTP status of the error.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// WithFields attaches per-field validation messages.
func (e *Error) WithFields(fields map[string]string) *Error {
	e.Fields = fields
	return e
}

// From extracts an *Error from err. Non-operational errors become KindUnexpected
// with a generic message; the original error is kept as the cause.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: KindUnexpected, Message: "Something went very wrong!", Err: err}
}

// IsKind reports whether err is an operational error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// IsOperational reports whether err carries a client-safe message.
func IsOperational(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind != KindUnexpected
}
