// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package handler provides the JSON response envelope, the error translator
// and the health endpoints shared by the API handlers and middleware.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/olegiv/natours-go/internal/apperr"
	"github.com/olegiv/natours-go/internal/docstore"
)

// Envelope statuses.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusError   = "error"
)

// Messages for store and body errors.
const (
	MsgNoDocument    = "No document found with that ID"
	MsgInvalidFilter = "Invalid query filter"
	MsgInvalidJSON   = "Invalid JSON in request body"
	MsgBodyTooLarge  = "Request body is too large"
)

// Envelope is the response body of every endpoint.
type Envelope struct {
	Status  string            `json:"status"`
	Token   string            `json:"token,omitempty"`
	Results *int              `json:"results,omitempty"`
	Data    any               `json:"data,omitempty"`
	Message string            `json:"message,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData writes a success envelope with data nested under key.
func WriteData(w http.ResponseWriter, statusCode int, key string, data any) {
	WriteJSON(w, statusCode, Envelope{Status: StatusSuccess, Data: map[string]any{key: data}})
}

// WriteList writes a success envelope carrying items and their count.
func WriteList[T any](w http.ResponseWriter, items []T) {
	n := len(items)
	if items == nil {
		items = []T{}
	}
	WriteJSON(w, http.StatusOK, Envelope{Status: StatusSuccess, Results: &n, Data: map[string]any{"data": items}})
}

// WriteMessage writes a success envelope with only a message.
func WriteMessage(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusOK, Envelope{Status: StatusSuccess, Message: message})
}

// WriteNoContent answers 204.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Errors translates errors into fail/error envelopes.
type Errors struct {
	// Development adds the underlying error text to responses.
	Development bool
}

// Write translates err and writes the envelope. Server-side failures are
// logged; non-operational errors expose only a generic message.
func (e Errors) Write(w http.ResponseWriter, r *http.Request, err error) {
	ae := Translate(err)
	status := ae.StatusCode()

	env := Envelope{Status: StatusFail, Message: ae.Message, Errors: ae.Fields}
	if status >= http.StatusInternalServerError {
		env.Status = StatusError
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimw.GetReqID(r.Context()),
			"kind", ae.Kind.String(),
			"error", err,
		)
	}
	if e.Development {
		env.Error = err.Error()
	}
	WriteJSON(w, status, env)
}

// NotFound answers unknown routes.
func (e Errors) NotFound(w http.ResponseWriter, r *http.Request) {
	e.Write(w, r, apperr.NotFound(fmt.Sprintf("Can't find %s on this server!", r.URL.Path)))
}

// MethodNotAllowed answers known routes with an unsupported method.
func (e Errors) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	e.Write(w, r, apperr.Validationf("Method %s is not allowed on %s", r.Method, r.URL.Path).WithStatus(http.StatusMethodNotAllowed))
}

// Translate maps store and decoding errors onto operational errors.
func Translate(err error) *apperr.Error {
	var (
		ae        *apperr.Error
		castErr   *docstore.CastError
		dupErr    *docstore.DuplicateKeyError
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		maxErr    *http.MaxBytesError
	)
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.As(err, &castErr):
		return apperr.Validation(castErr.Error()).Wrap(err)
	case errors.As(err, &dupErr):
		return apperr.Conflict(fmt.Sprintf("Duplicate field value: %q. Please use another value!", dupErr.Value)).Wrap(err)
	case docstore.IsNotFound(err):
		return apperr.NotFound(MsgNoDocument).Wrap(err)
	case errors.Is(err, docstore.ErrInvalidFilter):
		return apperr.Validation(MsgInvalidFilter).Wrap(err)
	case errors.As(err, &maxErr):
		return apperr.Validation(MsgBodyTooLarge).Wrap(err)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.ErrUnexpectedEOF):
		return apperr.Validation(MsgInvalidJSON).Wrap(err)
	}
	return apperr.From(err)
}

// DecodeBody decodes a JSON object body. An empty body decodes to an empty map.
func DecodeBody(r *http.Request) (map[string]any, error) {
	body := map[string]any{}
	if r.Body == nil {
		return body, nil
	}
	err := json.NewDecoder(r.Body).Decode(&body)
	if errors.Is(err, io.EOF) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}
