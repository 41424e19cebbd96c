package crash

import (
	"context"

	"github.com/kiranshivaraju/crashd/internal/store"
	"github.com/kiranshivaraju/crashd/pkg/models"
)

// SessionRegistry records client app runs and flags the ones that crashed.
type SessionRegistry struct {
	cfg   *settings
	store store.Store
}

// NewSessionRegistry creates a SessionRegistry backed by st.
func NewSessionRegistry(st store.Store, opts ...Option) *SessionRegistry {
	return &SessionRegistry{cfg: newSettings(opts), store: st}
}

// Register creates the session once. Registering an existing session id again
// succeeds without writing anything.
func (r *SessionRegistry) Register(ctx context.Context, reg SessionRegistration) error {
	if err := ValidateSession(reg); err != nil {
		return err
	}
	reg = reg.withoutNUL()

	created, err := r.store.CreateSession(ctx, &models.Session{
		ID:         r.cfg.newID(),
		SessionID:  reg.SessionID,
		UserID:     optionalString(reg.UserID),
		AppVersion: reg.AppVersion,
		Platform:   reg.Platform,
		HasCrash:   false,
		CreatedAt:  r.cfg.stamp(),
	})
	if err != nil {
		return &StorageError{Op: "register session", Err: err}
	}
	if !created {
		r.cfg.logger.Debug("session already registered", "session_id", reg.SessionID)
	}
	return nil
}

// MarkCrashed flags sessionID as crashed inside tx. An unknown session is not
// an error: crashes are accepted even when registration never arrived.
func (r *SessionRegistry) MarkCrashed(ctx context.Context, tx store.Tx, sessionID string) error {
	found, err := tx.MarkSessionCrashed(ctx, sessionID)
	if err != nil {
		return &StorageError{Op: "mark session crashed", Err: err}
	}
	if !found {
		r.cfg.logger.Debug("crash references unknown session", "session_id", sessionID)
	}
	return nil
}
