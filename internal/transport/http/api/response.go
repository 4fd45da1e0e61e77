// Package api holds the JSON envelope every endpoint answers with and the
// helpers for file downloads.
package api

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
)

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     *Error `json:"error,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Warn("write json failed", "err", err, "status", status)
	}
}

func Success(w http.ResponseWriter, data any, requestID string) {
	writeEnvelope(w, http.StatusOK, Envelope{Success: true, Data: data, RequestID: requestID})
}

func Created(w http.ResponseWriter, data any, requestID string) {
	writeEnvelope(w, http.StatusCreated, Envelope{Success: true, Data: data, RequestID: requestID})
}

func Fail(w http.ResponseWriter, status int, code, message, requestID string) {
	FailWithDetails(w, status, code, message, nil, requestID)
}

func FailWithDetails(w http.ResponseWriter, status int, code, message string, details any, requestID string) {
	writeEnvelope(w, status, Envelope{Error: &Error{Code: code, Message: message, Details: details}, RequestID: requestID})
}

// Attachment marks the response as a file download. Call it before the
// first write.
func Attachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
}
