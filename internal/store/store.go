package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/crashd/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// WithTx runs fn inside one transaction. The transaction commits only if fn
	// returns nil; any error rolls back every write made through tx.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// CreateSession inserts s unless a session with the same SessionID exists.
	// Returns false, nil when the session was already registered.
	CreateSession(ctx context.Context, s *models.Session) (bool, error)
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)

	GetCrashGroup(ctx context.Context, id uuid.UUID) (*models.CrashGroup, error)
	GetCrashGroupByFingerprint(ctx context.Context, fingerprint string) (*models.CrashGroup, error)
	ListCrashGroups(ctx context.Context, filter GroupFilter) ([]*models.CrashGroup, int, error)
	UpdateCrashGroupStatus(ctx context.Context, id uuid.UUID, status string, resolvedInVersion *string) (*models.CrashGroup, error)

	ListCrashReports(ctx context.Context, filter ReportFilter) ([]*models.CrashReport, int, error)
}

// Tx is the set of writes the ingestion pipeline performs as one unit of work.
type Tx interface {
	InsertCrashReport(ctx context.Context, r *models.CrashReport) error
	CountDistinctUsers(ctx context.Context, fingerprint string) (int, error)

	// InsertCrashGroup inserts g unless a group with the same fingerprint exists.
	// Returns false, nil on a fingerprint conflict; callers then take the update path.
	InsertCrashGroup(ctx context.Context, g *models.CrashGroup) (bool, error)
	// LockCrashGroup loads the group for fingerprint and holds a row lock on it
	// until the transaction ends.
	LockCrashGroup(ctx context.Context, fingerprint string) (*models.CrashGroup, error)
	UpdateCrashGroup(ctx context.Context, g *models.CrashGroup) error

	// MarkSessionCrashed sets has_crash for sessionID. Returns false, nil when no
	// such session exists.
	MarkSessionCrashed(ctx context.Context, sessionID string) (bool, error)
}

type GroupFilter struct {
	Status   string
	Platform string
	Type     string
	Page     int
	Limit    int
}

type ReportFilter struct {
	Fingerprint string
	Page        int
	Limit       int
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// NormalizePage clamps page and limit to the supported pagination window and
// returns the resulting limit and offset.
func NormalizePage(page, limit int) (int, int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if page <= 0 {
		page = 1
	}
	return page, limit, (page - 1) * limit
}
