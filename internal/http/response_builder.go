// Package http exposes the order engine as a thin JSON API.
//
// This file implements a small builder for JSON responses and the mapping
// from engine errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"ordini/internal/core"
	applog "ordini/internal/log"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

// Error sets an error body with a machine-readable code.
func (b *JSONResponseBuilder) Error(code, message string) *JSONResponseBuilder {
	b.payload = errorBody{Error: errorDetail{Code: code, Message: message}}
	return b
}

// Write sends the response. The request ID, when present, is echoed in
// error bodies.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter, r *http.Request) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if eb, ok := b.payload.(errorBody); ok && r != nil {
		eb.Error.RequestID = applog.RequestID(r.Context())
		b.payload = eb
	}
	if b.statusCode == http.StatusNoContent || b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.payload); err != nil && r != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "JSON encode failed", applog.FieldError, err)
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// badRequest marks malformed input that never reached the engine.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

// classify maps an error to its status code and error type.
func classify(err error) (int, string) {
	var br *badRequest
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest, applog.ErrorTypeValidation
	case core.IsValidation(err):
		return http.StatusUnprocessableEntity, applog.ErrorTypeValidation
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, applog.ErrorTypeNotFound
	case errors.Is(err, core.ErrAmbiguousLineItem):
		return http.StatusConflict, applog.ErrorTypeConflict
	case core.IsTransaction(err):
		return http.StatusInternalServerError, applog.ErrorTypeTransaction
	default:
		return http.StatusInternalServerError, applog.ErrorTypeInternal
	}
}

// writeError logs err and writes its JSON form. Server errors never expose
// their cause.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, errType := classify(err)
	logger := applog.FromContext(r.Context())
	msg := err.Error()

	var ve *core.ValidationError
	switch {
	case status >= 500:
		logger.ErrorContext(r.Context(), "Request failed",
			applog.FieldOperation, op,
			applog.FieldErrorType, errType,
			applog.FieldError, err)
		msg = "internal error"
	case errors.As(err, &ve):
		msg = ve.Error()
		fallthrough
	default:
		logger.DebugContext(r.Context(), "Request rejected",
			applog.FieldOperation, op,
			applog.FieldErrorType, errType,
			applog.FieldError, err)
	}

	NewJSONResponse().Status(status).Error(errType, msg).Write(w, r)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	NewJSONResponse().Status(status).Data(v).Write(w, r)
}
