package crash

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/crashd/internal/store"
	"github.com/kiranshivaraju/crashd/pkg/models"
)

// NewGroup builds the OPEN group created by the first report of a fingerprint.
func NewGroup(id uuid.UUID, r *models.CrashReport, now time.Time) *models.CrashGroup {
	users := 0
	if r.UserID != nil {
		users = 1
	}
	return &models.CrashGroup{
		ID:                id,
		Fingerprint:       r.Fingerprint,
		Title:             Title(r.Message),
		Status:            models.GroupStatusOpen,
		Type:              r.Type,
		FirstSeenAt:       now,
		LastSeenAt:        now,
		OccurrenceCount:   1,
		AffectedUserCount: users,
		AffectedVersions:  []string{r.AppVersion},
		LatestStackTrace:  r.StackTrace,
		Platform:          r.Platform,
	}
}

// ApplyOccurrence folds one more report into an existing group.
//
// distinctUsers is the recomputed affected-user count and is nil when the
// report carries no user id, in which case the stored count is kept. A
// RESOLVED group whose fix version is older than r.AppVersion becomes
// REGRESSED; every other status is left alone.
func ApplyOccurrence(g *models.CrashGroup, r *models.CrashReport, now time.Time, distinctUsers *int) {
	g.OccurrenceCount++
	// now is stamped before the row lock is taken, so a later committer may
	// carry an earlier time.
	if now.After(g.LastSeenAt) {
		g.LastSeenAt = now
	}
	if !g.HasVersion(r.AppVersion) {
		g.AffectedVersions = append(g.AffectedVersions, r.AppVersion)
	}
	g.LatestStackTrace = r.StackTrace
	if distinctUsers != nil {
		g.AffectedUserCount = *distinctUsers
	}

	if g.Status == models.GroupStatusResolved && g.ResolvedInVersion != nil &&
		CompareVersions(r.AppVersion, *g.ResolvedInVersion) > 0 {
		g.Status = models.GroupStatusRegressed
	}
}

// GroupStore owns crash group aggregates. It is the only writer of
// occurrence counts, affected users and versions, and status transitions
// caused by new crashes.
type GroupStore struct {
	cfg     *settings
	reports *ReportLog
}

func newGroupStore(cfg *settings, reports *ReportLog) *GroupStore {
	return &GroupStore{cfg: cfg, reports: reports}
}

// Upsert records r against its fingerprint's group inside tx and returns the
// group id. Creation is guarded by the unique fingerprint: the losing side of
// a concurrent create falls through to the update path on the winner's row,
// which is locked for the rest of tx.
func (s *GroupStore) Upsert(ctx context.Context, tx store.Tx, r *models.CrashReport, now time.Time) (uuid.UUID, error) {
	candidate := NewGroup(s.cfg.newID(), r, now)
	created, err := tx.InsertCrashGroup(ctx, candidate)
	if err != nil {
		return uuid.Nil, &StorageError{Op: "insert crash group", Err: err}
	}
	if created {
		s.cfg.logger.Info("crash group created",
			"group_id", candidate.ID,
			"fingerprint", r.Fingerprint,
			"type", r.Type,
		)
		return candidate.ID, nil
	}

	g, err := tx.LockCrashGroup(ctx, r.Fingerprint)
	if err != nil {
		return uuid.Nil, &StorageError{Op: "lock crash group", Err: err}
	}

	var distinctUsers *int
	if r.UserID != nil {
		n, err := s.reports.CountDistinctUsers(ctx, tx, r.Fingerprint)
		if err != nil {
			return uuid.Nil, err
		}
		distinctUsers = &n
	}

	previous := g.Status
	ApplyOccurrence(g, r, now, distinctUsers)

	if err := tx.UpdateCrashGroup(ctx, g); err != nil {
		return uuid.Nil, &StorageError{Op: "update crash group", Err: err}
	}

	if previous != g.Status {
		s.cfg.logger.Info("crash group regressed",
			"group_id", g.ID,
			"fingerprint", g.Fingerprint,
			"resolved_in_version", *g.ResolvedInVersion,
			"app_version", r.AppVersion,
		)
	}
	return g.ID, nil
}
