package crash

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/crashd/internal/store"
)

// Receipt identifies what one successful ingestion wrote.
type Receipt struct {
	ReportID  uuid.UUID
	GroupID   uuid.UUID
	CreatedAt time.Time
}

// Ingestor runs the crash pipeline: validate, append the report, upsert its
// group, flag the session. Everything after validation is one transaction.
type Ingestor struct {
	cfg      *settings
	store    store.Store
	reports  *ReportLog
	groups   *GroupStore
	sessions *SessionRegistry
}

// NewIngestor creates an Ingestor backed by st.
func NewIngestor(st store.Store, opts ...Option) *Ingestor {
	cfg := newSettings(opts)
	reports := newReportLog(cfg)
	return &Ingestor{
		cfg:      cfg,
		store:    st,
		reports:  reports,
		groups:   newGroupStore(cfg, reports),
		sessions: &SessionRegistry{cfg: cfg, store: st},
	}
}

// Sessions returns the registry sharing this Ingestor's store, clock and ids.
func (in *Ingestor) Sessions() *SessionRegistry {
	return in.sessions
}

// Ingest validates ev and persists it. A *ValidationError means nothing was
// written; a *StorageError means the whole unit of work was rolled back.
func (in *Ingestor) Ingest(ctx context.Context, ev Event) (*Receipt, error) {
	report, err := Validate(ev)
	if err != nil {
		return nil, err
	}

	var receipt Receipt
	err = in.store.WithTx(ctx, func(tx store.Tx) error {
		reportID, createdAt, err := in.reports.Append(ctx, tx, report)
		if err != nil {
			return err
		}

		groupID, err := in.groups.Upsert(ctx, tx, report, createdAt)
		if err != nil {
			return err
		}

		// Best-effort: a failed session flag never fails the ingest.
		if err := in.sessions.MarkCrashed(ctx, tx, report.SessionID); err != nil {
			in.cfg.logger.Warn("mark session crashed failed",
				"session_id", report.SessionID,
				"report_id", reportID,
				"error", err,
			)
		}

		receipt = Receipt{ReportID: reportID, GroupID: groupID, CreatedAt: createdAt}
		return nil
	})
	if err != nil {
		var se *StorageError
		if !errors.As(err, &se) {
			err = &StorageError{Op: "ingest transaction", Err: err}
		}
		return nil, err
	}

	in.invalidate(ctx, receipt.GroupID)
	return &receipt, nil
}

func (in *Ingestor) invalidate(ctx context.Context, groupID uuid.UUID) {
	if in.cfg.cache == nil {
		return
	}
	if err := in.cfg.cache.InvalidateCrashGroup(ctx, groupID); err != nil {
		in.cfg.logger.Warn("crash group cache invalidation failed", "group_id", groupID, "error", err)
	}
}
