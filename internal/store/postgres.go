package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/crashd/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const groupColumns = `id, fingerprint, title, status, type, first_seen_at, last_seen_at,
	occurrence_count, affected_user_count, affected_versions, latest_stack_trace, platform, resolved_in_version`

const reportColumns = `id, type, message, stack_trace, fingerprint, app_version, sdk_version, platform,
	os, device_model, device_memory_mb, session_id, user_id, breadcrumbs, custom_keys, created_at`

const sessionColumns = `id, session_id, user_id, app_version, platform, has_crash, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanGroup(row scanner) (*models.CrashGroup, error) {
	var g models.CrashGroup
	if err := row.Scan(&g.ID, &g.Fingerprint, &g.Title, &g.Status, &g.Type, &g.FirstSeenAt, &g.LastSeenAt,
		&g.OccurrenceCount, &g.AffectedUserCount, &g.AffectedVersions, &g.LatestStackTrace,
		&g.Platform, &g.ResolvedInVersion); err != nil {
		return nil, err
	}
	g.FirstSeenAt = g.FirstSeenAt.UTC()
	g.LastSeenAt = g.LastSeenAt.UTC()
	if g.AffectedVersions == nil {
		g.AffectedVersions = []string{}
	}
	return &g, nil
}

func scanReport(row scanner) (*models.CrashReport, error) {
	var r models.CrashReport
	var breadcrumbs, customKeys []byte
	if err := row.Scan(&r.ID, &r.Type, &r.Message, &r.StackTrace, &r.Fingerprint, &r.AppVersion,
		&r.SDKVersion, &r.Platform, &r.OS, &r.DeviceModel, &r.DeviceMemoryMB, &r.SessionID, &r.UserID,
		&breadcrumbs, &customKeys, &r.CreatedAt); err != nil {
		return nil, err
	}
	if breadcrumbs != nil {
		r.Breadcrumbs = json.RawMessage(breadcrumbs)
	}
	if customKeys != nil {
		r.CustomKeys = json.RawMessage(customKeys)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func scanSession(row scanner) (*models.Session, error) {
	var sess models.Session
	if err := row.Scan(&sess.ID, &sess.SessionID, &sess.UserID, &sess.AppVersion, &sess.Platform,
		&sess.HasCrash, &sess.CreatedAt); err != nil {
		return nil, err
	}
	sess.CreatedAt = sess.CreatedAt.UTC()
	return &sess, nil
}

// jsonArg passes an opaque JSON payload through unchanged, or NULL when absent.
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// --- Sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context, sess *models.Session) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO crash_sessions (id, session_id, user_id, app_version, platform, has_crash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (session_id) DO NOTHING`,
		sess.ID, sess.SessionID, sess.UserID, sess.AppVersion, sess.Platform, sess.HasCrash, sess.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("create session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM crash_sessions WHERE session_id = $1`, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// --- Crash Groups ---

func (s *PostgresStore) GetCrashGroup(ctx context.Context, id uuid.UUID) (*models.CrashGroup, error) {
	g, err := scanGroup(s.pool.QueryRow(ctx,
		`SELECT `+groupColumns+` FROM crash_groups WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get crash group: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) GetCrashGroupByFingerprint(ctx context.Context, fingerprint string) (*models.CrashGroup, error) {
	g, err := scanGroup(s.pool.QueryRow(ctx,
		`SELECT `+groupColumns+` FROM crash_groups WHERE fingerprint = $1`, fingerprint))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get crash group by fingerprint: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) ListCrashGroups(ctx context.Context, filter GroupFilter) ([]*models.CrashGroup, int, error) {
	// Build WHERE clause dynamically
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Platform != "" {
		conditions = append(conditions, fmt.Sprintf("platform = $%d", argIdx))
		args = append(args, filter.Platform)
		argIdx++
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, filter.Type)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM crash_groups WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count crash groups: %w", err)
	}

	_, limit, offset := NormalizePage(filter.Page, filter.Limit)

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM crash_groups WHERE %s ORDER BY last_seen_at DESC, id LIMIT $%d OFFSET $%d`,
		groupColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list crash groups: %w", err)
	}
	defer rows.Close()

	groups := []*models.CrashGroup{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan crash group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, total, rows.Err()
}

func (s *PostgresStore) UpdateCrashGroupStatus(ctx context.Context, id uuid.UUID, status string, resolvedInVersion *string) (*models.CrashGroup, error) {
	g, err := scanGroup(s.pool.QueryRow(ctx,
		`UPDATE crash_groups SET status = $2, resolved_in_version = $3, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+groupColumns, id, status, resolvedInVersion))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update crash group status: %w", err)
	}
	return g, nil
}

// --- Crash Reports ---

func (s *PostgresStore) ListCrashReports(ctx context.Context, filter ReportFilter) ([]*models.CrashReport, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM crash_reports WHERE fingerprint = $1`, filter.Fingerprint).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count crash reports: %w", err)
	}

	_, limit, offset := NormalizePage(filter.Page, filter.Limit)

	rows, err := s.pool.Query(ctx,
		`SELECT `+reportColumns+` FROM crash_reports WHERE fingerprint = $1
		 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, filter.Fingerprint, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list crash reports: %w", err)
	}
	defer rows.Close()

	reports := []*models.CrashReport{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan crash report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, total, rows.Err()
}

// --- Ingestion transaction ---

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) InsertCrashReport(ctx context.Context, r *models.CrashReport) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO crash_reports (`+reportColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		r.ID, r.Type, r.Message, r.StackTrace, r.Fingerprint, r.AppVersion, r.SDKVersion, r.Platform,
		r.OS, r.DeviceModel, r.DeviceMemoryMB, r.SessionID, r.UserID,
		jsonArg(r.Breadcrumbs), jsonArg(r.CustomKeys), r.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert crash report: %w", err)
	}
	return nil
}

func (t *pgTx) CountDistinctUsers(ctx context.Context, fingerprint string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM crash_reports WHERE fingerprint = $1 AND user_id IS NOT NULL`,
		fingerprint).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count distinct users: %w", err)
	}
	return n, nil
}

func (t *pgTx) InsertCrashGroup(ctx context.Context, g *models.CrashGroup) (bool, error) {
	// A concurrent insert of the same fingerprint blocks here until the other
	// transaction finishes, then resolves to either a conflict or a fresh insert.
	var id uuid.UUID
	err := t.tx.QueryRow(ctx,
		`INSERT INTO crash_groups (`+groupColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (fingerprint) DO NOTHING
		 RETURNING id`,
		g.ID, g.Fingerprint, g.Title, g.Status, g.Type, g.FirstSeenAt, g.LastSeenAt,
		g.OccurrenceCount, g.AffectedUserCount, g.AffectedVersions, g.LatestStackTrace,
		g.Platform, g.ResolvedInVersion,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert crash group: %w", err)
	}
	return true, nil
}

func (t *pgTx) LockCrashGroup(ctx context.Context, fingerprint string) (*models.CrashGroup, error) {
	g, err := scanGroup(t.tx.QueryRow(ctx,
		`SELECT `+groupColumns+` FROM crash_groups WHERE fingerprint = $1 FOR UPDATE`, fingerprint))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock crash group: %w", err)
	}
	return g, nil
}

func (t *pgTx) UpdateCrashGroup(ctx context.Context, g *models.CrashGroup) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE crash_groups SET
		   status = $2, last_seen_at = $3, occurrence_count = $4, affected_user_count = $5,
		   affected_versions = $6, latest_stack_trace = $7, updated_at = NOW()
		 WHERE id = $1`,
		g.ID, g.Status, g.LastSeenAt, g.OccurrenceCount, g.AffectedUserCount,
		g.AffectedVersions, g.LatestStackTrace)
	if err != nil {
		return fmt.Errorf("update crash group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) MarkSessionCrashed(ctx context.Context, sessionID string) (bool, error) {
	// Savepoint: a failure here must leave the enclosing transaction usable.
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin savepoint: %w", err)
	}
	tag, err := sp.Exec(ctx,
		`UPDATE crash_sessions SET has_crash = TRUE WHERE session_id = $1`, sessionID)
	if err != nil {
		_ = sp.Rollback(ctx)
		return false, fmt.Errorf("mark session crashed: %w", err)
	}
	if err := sp.Commit(ctx); err != nil {
		return false, fmt.Errorf("release savepoint: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
