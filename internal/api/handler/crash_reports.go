package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/crashd/internal/api/response"
	"github.com/kiranshivaraju/crashd/internal/crash"
	"github.com/kiranshivaraju/crashd/pkg/models"
)

// Ingester defines the interface the create handler depends on.
type Ingester interface {
	Ingest(ctx context.Context, ev crash.Event) (*crash.Receipt, error)
}

// SessionRegistrar defines the interface the session handler depends on.
type SessionRegistrar interface {
	Register(ctx context.Context, reg crash.SessionRegistration) error
}

type createdReport struct {
	ID        uuid.UUID `json:"id"`
	GroupID   uuid.UUID `json:"groupId"`
	CreatedAt string    `json:"createdAt"`
}

// NewCreateCrashReportHandler returns an http.HandlerFunc for
// POST /api/v1/app/crash-reports/create.
func NewCreateCrashReportHandler(ing Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev crash.Event
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&ev); err != nil {
			writeInvalidJSON(w)
			return
		}

		receipt, err := ing.Ingest(r.Context(), ev)
		if err != nil {
			writeCoreError(w, r, err)
			return
		}

		response.Created(w, createdReport{
			ID:        receipt.ReportID,
			GroupID:   receipt.GroupID,
			CreatedAt: models.FormatTimestamp(receipt.CreatedAt),
		})
	}
}

// NewRegisterSessionHandler returns an http.HandlerFunc for
// POST /api/v1/app/crash-reports/session. New and repeated registrations get
// the same response.
func NewRegisterSessionHandler(reg SessionRegistrar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req crash.SessionRegistration
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeInvalidJSON(w)
			return
		}

		if err := reg.Register(r.Context(), req); err != nil {
			writeCoreError(w, r, err)
			return
		}

		response.JSON(w, map[string]string{"status": "ok"})
	}
}
