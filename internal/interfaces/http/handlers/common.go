// Package handlers implements the HTTP handlers of the patent search API:
// paged search, the assignee directory, CSV exports and health probes.
// Handlers translate between the HTTP surface and the application services;
// all selection rules live in the domain and application layers.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/turtacn/KeyIP-Explorer/pkg/errors"
)

// dataEnvelope wraps every successful response body.
type dataEnvelope struct {
	Data interface{} `json:"data"`
}

// ErrorResponse is the error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeData writes a successful response wrapped in the data envelope.
func writeData(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, dataEnvelope{Data: data})
}

// writeAppError maps an application error onto its HTTP status and error
// body. Client errors keep their message; server errors answer with the
// code's default message so internals never reach the caller.
func writeAppError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	msg := errors.DefaultMessageForCode(code)
	if errors.IsClientError(code) {
		var app *errors.AppError
		if stderrors.As(err, &app) && app.Message != "" {
			msg = app.Message
		}
	}
	writeJSON(w, errors.HTTPStatusForCode(code), ErrorResponse{
		Code:    code.String(),
		Message: msg,
	})
}

// parsePage reads the 1-based "page" query parameter, defaulting to 1 when
// absent.
func parsePage(r *http.Request) (int, error) {
	v := r.URL.Query().Get("page")
	if v == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(v)
	if err != nil || page < 1 {
		return 0, errors.Newf(errors.CodeInvalidParam, "page must be a positive integer, got %q", v)
	}
	return page, nil
}
