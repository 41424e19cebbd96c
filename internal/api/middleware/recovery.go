package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/kiranshivaraju/crashd/internal/api/response"
)

// Recovery turns a handler panic into a 500 envelope that carries the request
// id, so a client report can be matched with the logged stack.
// http.ErrAbortHandler is re-raised for net/http to abort the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(p)
			}

			requestID, _ := GetRequestID(r)
			slog.Error("handler panicked",
				"panic", p,
				"stack", string(debug.Stack()),
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", requestID,
			)

			var details any
			if requestID != "" {
				details = map[string]string{"request_id": requestID}
			}
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", details)
		}()
		next.ServeHTTP(w, r)
	})
}
