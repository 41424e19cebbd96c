package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func GetRequestID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(requestIDKey).(string)
	return id, ok
}

// RequestID propagates a caller-supplied X-Request-ID or assigns a new one,
// echoing it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(SetRequestID(r.Context(), id)))
	})
}
