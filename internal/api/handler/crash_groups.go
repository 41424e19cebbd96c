package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/crashd/internal/api/response"
	"github.com/kiranshivaraju/crashd/internal/crash"
	"github.com/kiranshivaraju/crashd/internal/store"
	"github.com/kiranshivaraju/crashd/pkg/models"
)

// GroupReader is the read and maintenance side of the store used by the
// crash group endpoints.
type GroupReader interface {
	GetCrashGroup(ctx context.Context, id uuid.UUID) (*models.CrashGroup, error)
	ListCrashGroups(ctx context.Context, filter store.GroupFilter) ([]*models.CrashGroup, int, error)
	UpdateCrashGroupStatus(ctx context.Context, id uuid.UUID, status string, resolvedInVersion *string) (*models.CrashGroup, error)
	ListCrashReports(ctx context.Context, filter store.ReportFilter) ([]*models.CrashReport, int, error)
}

// GroupViewCache holds rendered crash group JSON keyed by group id.
// SetCrashGroup must refuse the write when the generation moved on since
// CrashGroupGeneration was read.
type GroupViewCache interface {
	GetCrashGroup(ctx context.Context, groupID uuid.UUID) ([]byte, bool, error)
	CrashGroupGeneration(ctx context.Context, groupID uuid.UUID) (int64, error)
	SetCrashGroup(ctx context.Context, groupID uuid.UUID, generation int64, body []byte, ttl time.Duration) (bool, error)
	InvalidateCrashGroup(ctx context.Context, groupID uuid.UUID) error
}

// CrashGroups serves the crash group read model.
type CrashGroups struct {
	store GroupReader
	cache GroupViewCache
	ttl   time.Duration
}

// NewCrashGroups creates the crash group handlers. cache may be nil.
func NewCrashGroups(st GroupReader, c GroupViewCache, ttl time.Duration) *CrashGroups {
	return &CrashGroups{store: st, cache: c, ttl: ttl}
}

// List handles GET /api/v1/crash-groups.
func (h *CrashGroups) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit, ok := parsePage(w, r)
	if !ok {
		return
	}

	status := q.Get("status")
	if status != "" && !models.ValidGroupStatus(status) {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"status must be one of: OPEN, RESOLVED, REGRESSED", nil)
		return
	}

	groups, total, err := h.store.ListCrashGroups(r.Context(), store.GroupFilter{
		Status:   status,
		Platform: q.Get("platform"),
		Type:     q.Get("type"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	views := make([]crashGroupView, len(groups))
	for i, g := range groups {
		views[i] = newCrashGroupView(g)
	}
	page, limit, _ = store.NormalizePage(page, limit)
	response.Collection(w, views, response.NewPaginationMeta(page, limit, total))
}

// Get handles GET /api/v1/crash-groups/{groupID}, reading through the cache.
func (h *CrashGroups) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseGroupID(w, r)
	if !ok {
		return
	}

	fill := h.cache != nil
	var generation int64
	if h.cache != nil {
		body, found, err := h.cache.GetCrashGroup(r.Context(), id)
		if err != nil {
			slog.Warn("crash group cache read failed", "group_id", id, "error", err)
		}
		if found {
			response.JSON(w, json.RawMessage(body))
			return
		}
		// The generation is read before the store so that an ingest committing
		// during the read invalidates this fill.
		if generation, err = h.cache.CrashGroupGeneration(r.Context(), id); err != nil {
			slog.Warn("crash group cache read failed", "group_id", id, "error", err)
			fill = false
		}
	}

	g, err := h.store.GetCrashGroup(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Crash group not found", nil)
		return
	}
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	body, err := json.Marshal(newCrashGroupView(g))
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if fill {
		stored, err := h.cache.SetCrashGroup(r.Context(), id, generation, body, h.ttl)
		if err != nil {
			slog.Warn("crash group cache write failed", "group_id", id, "error", err)
		} else if !stored {
			slog.Debug("crash group changed during read, cache fill skipped", "group_id", id)
		}
	}
	response.JSON(w, json.RawMessage(body))
}

type updateGroupRequest struct {
	Status            string  `json:"status"`
	ResolvedInVersion *string `json:"resolvedInVersion"`
}

// Update handles PATCH /api/v1/crash-groups/{groupID}: a triage status change.
// resolvedInVersion is stored only for RESOLVED and cleared otherwise.
func (h *CrashGroups) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseGroupID(w, r)
	if !ok {
		return
	}

	var req updateGroupRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeInvalidJSON(w)
		return
	}
	if req.Status == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "missing required field: status",
			map[string]string{"reason": crash.ReasonMissingField, "field": "status"})
		return
	}
	if !models.ValidGroupStatus(req.Status) {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "status must be one of: OPEN, RESOLVED, REGRESSED",
			map[string]string{"reason": "INVALID_STATUS", "field": "status"})
		return
	}

	resolvedIn := req.ResolvedInVersion
	if req.Status != models.GroupStatusResolved || (resolvedIn != nil && *resolvedIn == "") {
		resolvedIn = nil
	}

	g, err := h.store.UpdateCrashGroupStatus(r.Context(), id, req.Status, resolvedIn)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Crash group not found", nil)
		return
	}
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.InvalidateCrashGroup(r.Context(), id); err != nil {
			slog.Warn("crash group cache invalidation failed", "group_id", id, "error", err)
		}
	}

	slog.Info("crash group status changed", "group_id", id, "status", g.Status)
	response.JSON(w, newCrashGroupView(g))
}

// Reports handles GET /api/v1/crash-groups/{groupID}/reports, newest first.
func (h *CrashGroups) Reports(w http.ResponseWriter, r *http.Request) {
	id, ok := parseGroupID(w, r)
	if !ok {
		return
	}
	page, limit, ok := parsePage(w, r)
	if !ok {
		return
	}

	g, err := h.store.GetCrashGroup(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Crash group not found", nil)
		return
	}
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	reports, total, err := h.store.ListCrashReports(r.Context(), store.ReportFilter{
		Fingerprint: g.Fingerprint,
		Page:        page,
		Limit:       limit,
	})
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	views := make([]crashReportView, len(reports))
	for i, rep := range reports {
		views[i] = newCrashReportView(rep)
	}
	page, limit, _ = store.NormalizePage(page, limit)
	response.Collection(w, views, response.NewPaginationMeta(page, limit, total))
}

func parseGroupID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "groupID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "groupID must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

// parsePage reads optional page and limit query parameters. Clamping is left
// to store.NormalizePage.
func parsePage(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	q := r.URL.Query()
	page, limit := 0, 0
	var err error
	if v := q.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "page must be an integer", nil)
			return 0, 0, false
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be an integer", nil)
			return 0, 0, false
		}
	}
	return page, limit, true
}
