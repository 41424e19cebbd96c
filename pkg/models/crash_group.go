package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	GroupStatusOpen      = "OPEN"
	GroupStatusResolved  = "RESOLVED"
	GroupStatusRegressed = "REGRESSED"
)

// CrashGroup is the aggregate of every crash report sharing one fingerprint.
// OccurrenceCount always equals the number of crash_reports rows with the same fingerprint.
type CrashGroup struct {
	ID                uuid.UUID `db:"id"                  json:"id"`
	Fingerprint       string    `db:"fingerprint"         json:"fingerprint"`
	Title             string    `db:"title"               json:"title"`
	Status            string    `db:"status"              json:"status"`
	Type              string    `db:"type"                json:"type"`
	FirstSeenAt       time.Time `db:"first_seen_at"       json:"-"`
	LastSeenAt        time.Time `db:"last_seen_at"        json:"-"`
	OccurrenceCount   int       `db:"occurrence_count"    json:"occurrenceCount"`
	AffectedUserCount int       `db:"affected_user_count" json:"affectedUserCount"`
	AffectedVersions  []string  `db:"affected_versions"   json:"affectedVersions"`
	LatestStackTrace  *string   `db:"latest_stack_trace"  json:"latestStackTrace"`
	Platform          string    `db:"platform"            json:"platform"`
	ResolvedInVersion *string   `db:"resolved_in_version" json:"resolvedInVersion"`
}

// HasVersion reports whether v is already recorded in AffectedVersions.
func (g *CrashGroup) HasVersion(v string) bool {
	for _, existing := range g.AffectedVersions {
		if existing == v {
			return true
		}
	}
	return false
}

// ValidGroupStatus reports whether s is one of the crash group lifecycle states.
func ValidGroupStatus(s string) bool {
	switch s {
	case GroupStatusOpen, GroupStatusResolved, GroupStatusRegressed:
		return true
	}
	return false
}
