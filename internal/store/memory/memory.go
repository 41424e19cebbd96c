// Package memory provides an in-process store.Store for tests.
// Transactions are fully serialized and applied copy-on-commit, so a failed
// transaction leaves no trace.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/crashd/internal/store"
	"github.com/kiranshivaraju/crashd/pkg/models"
)

// Operation names accepted by Fail.
const (
	OpInsertCrashReport  = "InsertCrashReport"
	OpCountDistinctUsers = "CountDistinctUsers"
	OpInsertCrashGroup   = "InsertCrashGroup"
	OpLockCrashGroup     = "LockCrashGroup"
	OpUpdateCrashGroup   = "UpdateCrashGroup"
	OpMarkSessionCrashed = "MarkSessionCrashed"
	OpCreateSession      = "CreateSession"
	OpBeginTx            = "BeginTx"
	OpCommitTx           = "CommitTx"
)

type state struct {
	reports  []*models.CrashReport
	groups   map[string]*models.CrashGroup
	sessions map[string]*models.Session
}

func (s *state) clone() *state {
	c := &state{
		reports:  make([]*models.CrashReport, len(s.reports)),
		groups:   make(map[string]*models.CrashGroup, len(s.groups)),
		sessions: make(map[string]*models.Session, len(s.sessions)),
	}
	for i, r := range s.reports {
		c.reports[i] = copyReport(r)
	}
	for k, g := range s.groups {
		c.groups[k] = copyGroup(g)
	}
	for k, sess := range s.sessions {
		c.sessions[k] = copySession(sess)
	}
	return c
}

// Store is a goroutine-safe in-memory store.Store.
type Store struct {
	mu       sync.Mutex
	state    *state
	failures map[string]error
	pingErr  error
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		state: &state{
			groups:   map[string]*models.CrashGroup{},
			sessions: map[string]*models.Session{},
		},
		failures: map[string]error{},
	}
}

// Fail makes every later call of op return err. A nil err clears it.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) SetPingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

// Reports returns copies of every committed crash report in insert order.
func (s *Store) Reports() []*models.CrashReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.CrashReport, len(s.state.reports))
	for i, r := range s.state.reports {
		out[i] = copyReport(r)
	}
	return out
}

// Groups returns copies of every committed crash group.
func (s *Store) Groups() []*models.CrashGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.CrashGroup, 0, len(s.state.groups))
	for _, g := range s.state.groups {
		out = append(out, copyGroup(g))
	}
	sortGroups(out)
	return out
}

// Sessions returns copies of every committed session.
func (s *Store) Sessions() []*models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Session, 0, len(s.state.sessions))
	for _, sess := range s.state.sessions {
		out = append(out, copySession(sess))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func (s *Store) WithTx(_ context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failures[OpBeginTx]; err != nil {
		return err
	}

	staged := s.state.clone()
	if err := fn(&tx{state: staged, failures: s.failures}); err != nil {
		return err
	}
	if err := s.failures[OpCommitTx]; err != nil {
		return err
	}
	s.state = staged
	return nil
}

func (s *Store) CreateSession(_ context.Context, sess *models.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[OpCreateSession]; err != nil {
		return false, err
	}
	if _, ok := s.state.sessions[sess.SessionID]; ok {
		return false, nil
	}
	s.state.sessions[sess.SessionID] = copySession(sess)
	return true, nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.state.sessions[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copySession(sess), nil
}

func (s *Store) GetCrashGroup(_ context.Context, id uuid.UUID) (*models.CrashGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.state.groups {
		if g.ID == id {
			return copyGroup(g), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetCrashGroupByFingerprint(_ context.Context, fingerprint string) (*models.CrashGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.state.groups[fingerprint]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyGroup(g), nil
}

func (s *Store) ListCrashGroups(_ context.Context, filter store.GroupFilter) ([]*models.CrashGroup, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []*models.CrashGroup{}
	for _, g := range s.state.groups {
		if filter.Status != "" && g.Status != filter.Status {
			continue
		}
		if filter.Platform != "" && g.Platform != filter.Platform {
			continue
		}
		if filter.Type != "" && g.Type != filter.Type {
			continue
		}
		matched = append(matched, copyGroup(g))
	}
	sortGroups(matched)

	_, limit, offset := store.NormalizePage(filter.Page, filter.Limit)
	return window(matched, offset, limit), len(matched), nil
}

func (s *Store) UpdateCrashGroupStatus(_ context.Context, id uuid.UUID, status string, resolvedInVersion *string) (*models.CrashGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.state.groups {
		if g.ID == id {
			g.Status = status
			g.ResolvedInVersion = copyString(resolvedInVersion)
			return copyGroup(g), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListCrashReports(_ context.Context, filter store.ReportFilter) ([]*models.CrashReport, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []*models.CrashReport{}
	for i := len(s.state.reports) - 1; i >= 0; i-- {
		if r := s.state.reports[i]; r.Fingerprint == filter.Fingerprint {
			matched = append(matched, copyReport(r))
		}
	}

	_, limit, offset := store.NormalizePage(filter.Page, filter.Limit)
	return window(matched, offset, limit), len(matched), nil
}

type tx struct {
	state    *state
	failures map[string]error
}

func (t *tx) InsertCrashReport(_ context.Context, r *models.CrashReport) error {
	if err := t.failures[OpInsertCrashReport]; err != nil {
		return err
	}
	for _, existing := range t.state.reports {
		if existing.ID == r.ID {
			return store.ErrDuplicateKey
		}
	}
	t.state.reports = append(t.state.reports, copyReport(r))
	return nil
}

func (t *tx) CountDistinctUsers(_ context.Context, fingerprint string) (int, error) {
	if err := t.failures[OpCountDistinctUsers]; err != nil {
		return 0, err
	}
	seen := map[string]bool{}
	for _, r := range t.state.reports {
		if r.Fingerprint == fingerprint && r.UserID != nil {
			seen[*r.UserID] = true
		}
	}
	return len(seen), nil
}

func (t *tx) InsertCrashGroup(_ context.Context, g *models.CrashGroup) (bool, error) {
	if err := t.failures[OpInsertCrashGroup]; err != nil {
		return false, err
	}
	if _, ok := t.state.groups[g.Fingerprint]; ok {
		return false, nil
	}
	t.state.groups[g.Fingerprint] = copyGroup(g)
	return true, nil
}

func (t *tx) LockCrashGroup(_ context.Context, fingerprint string) (*models.CrashGroup, error) {
	if err := t.failures[OpLockCrashGroup]; err != nil {
		return nil, err
	}
	g, ok := t.state.groups[fingerprint]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyGroup(g), nil
}

func (t *tx) UpdateCrashGroup(_ context.Context, g *models.CrashGroup) error {
	if err := t.failures[OpUpdateCrashGroup]; err != nil {
		return err
	}
	existing, ok := t.state.groups[g.Fingerprint]
	if !ok || existing.ID != g.ID {
		return store.ErrNotFound
	}
	updated := copyGroup(existing)
	updated.Status = g.Status
	updated.LastSeenAt = g.LastSeenAt
	updated.OccurrenceCount = g.OccurrenceCount
	updated.AffectedUserCount = g.AffectedUserCount
	updated.AffectedVersions = append([]string(nil), g.AffectedVersions...)
	updated.LatestStackTrace = copyString(g.LatestStackTrace)
	t.state.groups[g.Fingerprint] = updated
	return nil
}

func (t *tx) MarkSessionCrashed(_ context.Context, sessionID string) (bool, error) {
	if err := t.failures[OpMarkSessionCrashed]; err != nil {
		return false, err
	}
	sess, ok := t.state.sessions[sessionID]
	if !ok {
		return false, nil
	}
	sess.HasCrash = true
	return true, nil
}

func sortGroups(groups []*models.CrashGroup) {
	sort.Slice(groups, func(i, j int) bool {
		if !groups[i].LastSeenAt.Equal(groups[j].LastSeenAt) {
			return groups[i].LastSeenAt.After(groups[j].LastSeenAt)
		}
		return groups[i].ID.String() < groups[j].ID.String()
	})
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func copyReport(r *models.CrashReport) *models.CrashReport {
	c := *r
	c.StackTrace = copyString(r.StackTrace)
	c.UserID = copyString(r.UserID)
	c.Breadcrumbs = copyRaw(r.Breadcrumbs)
	c.CustomKeys = copyRaw(r.CustomKeys)
	return &c
}

func copyGroup(g *models.CrashGroup) *models.CrashGroup {
	c := *g
	c.AffectedVersions = append([]string{}, g.AffectedVersions...)
	c.LatestStackTrace = copyString(g.LatestStackTrace)
	c.ResolvedInVersion = copyString(g.ResolvedInVersion)
	return &c
}

func copySession(s *models.Session) *models.Session {
	c := *s
	c.UserID = copyString(s.UserID)
	return &c
}
