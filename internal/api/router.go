package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/crashd/internal/api/middleware"
	"github.com/kiranshivaraju/crashd/internal/api/response"
)

// Dependencies holds all handler dependencies for the router.
type Dependencies struct {
	HealthHandler http.HandlerFunc

	CreateCrashReport http.HandlerFunc
	RegisterSession   http.HandlerFunc

	ListCrashGroups  http.HandlerFunc
	GetCrashGroup    http.HandlerFunc
	UpdateCrashGroup http.HandlerFunc
	ListGroupReports http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	// Client SDK endpoints
	r.Route("/api/v1/app", func(r chi.Router) {
		r.Get("/health", orNotImplemented(deps.HealthHandler))
		r.Post("/crash-reports/create", orNotImplemented(deps.CreateCrashReport))
		r.Post("/crash-reports/session", orNotImplemented(deps.RegisterSession))
	})

	// Crash group read model
	r.Route("/api/v1/crash-groups", func(r chi.Router) {
		r.Get("/", orNotImplemented(deps.ListCrashGroups))
		r.Get("/{groupID}", orNotImplemented(deps.GetCrashGroup))
		r.Patch("/{groupID}", orNotImplemented(deps.UpdateCrashGroup))
		r.Get("/{groupID}/reports", orNotImplemented(deps.ListGroupReports))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
