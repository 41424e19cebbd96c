package handler

import (
	"errors"
	"log/slog"
	"net/http"

	mw "github.com/kiranshivaraju/crashd/internal/api/middleware"
	"github.com/kiranshivaraju/crashd/internal/api/response"
	"github.com/kiranshivaraju/crashd/internal/crash"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

func writeInvalidJSON(w http.ResponseWriter) {
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
}

// writeCoreError maps errors from the crash package onto the error envelope.
func writeCoreError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *crash.ValidationError
	if errors.As(err, &ve) {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", ve.Error(), map[string]string{
			"reason": ve.Reason,
			"field":  ve.Field,
		})
		return
	}
	writeInternalError(w, r, err)
}

func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	requestID, _ := mw.GetRequestID(r)
	slog.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", requestID,
		"error", err,
	)
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
}
