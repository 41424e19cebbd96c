package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is one client app run. HasCrash only ever flips from false to true.
type Session struct {
	ID         uuid.UUID `db:"id"          json:"id"`
	SessionID  string    `db:"session_id"  json:"sessionId"`
	UserID     *string   `db:"user_id"     json:"userId"`
	AppVersion string    `db:"app_version" json:"appVersion"`
	Platform   string    `db:"platform"    json:"platform"`
	HasCrash   bool      `db:"has_crash"   json:"hasCrash"`
	CreatedAt  time.Time `db:"created_at"  json:"-"`
}
