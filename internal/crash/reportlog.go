package crash

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/crashd/internal/store"
	"github.com/kiranshivaraju/crashd/pkg/models"
)

// ReportLog is the append-only record of every crash occurrence.
type ReportLog struct {
	cfg *settings
}

func newReportLog(cfg *settings) *ReportLog {
	return &ReportLog{cfg: cfg}
}

// Append writes r inside tx, assigning an ID and creation time when unset.
func (l *ReportLog) Append(ctx context.Context, tx store.Tx, r *models.CrashReport) (uuid.UUID, time.Time, error) {
	if r.ID == uuid.Nil {
		r.ID = l.cfg.newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = l.cfg.stamp()
	}

	if err := tx.InsertCrashReport(ctx, r); err != nil {
		return uuid.Nil, time.Time{}, &StorageError{Op: "append crash report", Err: err}
	}
	return r.ID, r.CreatedAt, nil
}

// CountDistinctUsers counts distinct non-null user ids across all reports with
// fingerprint, including reports appended earlier in tx.
func (l *ReportLog) CountDistinctUsers(ctx context.Context, tx store.Tx, fingerprint string) (int, error) {
	n, err := tx.CountDistinctUsers(ctx, fingerprint)
	if err != nil {
		return 0, &StorageError{Op: "count distinct users", Err: err}
	}
	return n, nil
}
