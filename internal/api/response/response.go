// Package response writes the JSON envelopes shared by every endpoint:
// {"data": ...} on success, {"data": [...], "meta": {...}} for pages and
// {"error": {...}} on failure.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type envelope struct {
	Data any `json:"data"`
}

type collectionEnvelope struct {
	Data any            `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// PaginationMeta describes one page of a collection response.
type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

// NewPaginationMeta fills HasNext from the page window and the total row count.
func NewPaginationMeta(page, limit, total int) PaginationMeta {
	return PaginationMeta{Page: page, Limit: limit, Total: total, HasNext: page*limit < total}
}

// JSON writes data with 200. A json.RawMessage is embedded as is, which is how
// cached views are served.
func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

func Collection(w http.ResponseWriter, data any, meta PaginationMeta) {
	writeJSON(w, http.StatusOK, collectionEnvelope{Data: data, Meta: meta})
}

// Error writes the error envelope. details is omitted when nil.
func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// fallbackBody is sent when a payload cannot be encoded.
var fallbackBody = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"An unexpected error occurred"}}` + "\n")

// writeJSON encodes v before the status line goes out, so an unencodable
// payload becomes a 500 rather than a truncated success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode response", "status", status, "error", err)
		status, body = http.StatusInternalServerError, fallbackBody
	} else {
		body = append(body, '\n')
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Debug("write response", "error", err)
	}
}
