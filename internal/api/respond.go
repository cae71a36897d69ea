// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sentinel/internal/logging"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata describes the response itself.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError is a machine-readable error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sanitizeLogValue escapes control characters so request data cannot forge log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// respondJSON sends a JSON response. Ops data is live, so nothing is cached.
func respondJSON(w http.ResponseWriter, status int, response *APIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondData(w http.ResponseWriter, r *http.Request, status int, statusText string, data interface{}) {
	respondJSON(w, status, &APIResponse{
		Status:   statusText,
		Data:     data,
		Metadata: newMetadata(r),
	})
}

// respondError sends an error response and logs err when present.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		logging.Ctx(r.Context()).Error().
			Str("code", sanitizeLogValue(code)).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("API Error")
	}

	respondJSON(w, status, &APIResponse{
		Status:   "error",
		Metadata: newMetadata(r),
		Error:    &APIError{Code: code, Message: message},
	})
}

func newMetadata(r *http.Request) Metadata {
	return Metadata{
		Timestamp: time.Now().UTC(),
		RequestID: requestID(r),
	}
}
