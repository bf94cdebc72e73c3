// Package handlers provides HTTP request handlers for the gvmbridge API.
// This file contains common utilities shared across handlers for consistent
// response shapes and error mapping.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/anstrom/gvmbridge/internal/api/middleware"
	"github.com/anstrom/gvmbridge/internal/errors"
	"github.com/anstrom/gvmbridge/internal/logging"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error("Failed to encode response", "error", err)
	}
}

// writeError maps a domain error onto the HTTP boundary: the status comes
// from the error code, the body carries the code so clients can branch
// without parsing messages.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	logging.Error("API error",
		"request_id", middleware.GetRequestID(r),
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err)

	writeJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		Code:      string(errors.GetCode(err)),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r),
	})
}

// decodeJSONBody decodes a JSON request body into dst, rejecting trailing
// garbage after the document.
func decodeJSONBody(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if decoder.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

// extractScanIDFromPath extracts the scan identifier path parameter.
func extractScanIDFromPath(r *http.Request) (string, error) {
	vars := mux.Vars(r)
	id, exists := vars["id"]
	if !exists || strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("scan id not provided")
	}
	return id, nil
}
