package handler

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/crashd/pkg/models"
)

// crashGroupView is the wire shape of a crash group. Timestamps use
// models.TimestampLayout rather than RFC 3339.
type crashGroupView struct {
	ID                uuid.UUID `json:"id"`
	Fingerprint       string    `json:"fingerprint"`
	Title             string    `json:"title"`
	Status            string    `json:"status"`
	Type              string    `json:"type"`
	FirstSeenAt       string    `json:"firstSeenAt"`
	LastSeenAt        string    `json:"lastSeenAt"`
	OccurrenceCount   int       `json:"occurrenceCount"`
	AffectedUserCount int       `json:"affectedUserCount"`
	AffectedVersions  []string  `json:"affectedVersions"`
	LatestStackTrace  *string   `json:"latestStackTrace"`
	Platform          string    `json:"platform"`
	ResolvedInVersion *string   `json:"resolvedInVersion"`
}

func newCrashGroupView(g *models.CrashGroup) crashGroupView {
	versions := g.AffectedVersions
	if versions == nil {
		versions = []string{}
	}
	return crashGroupView{
		ID:                g.ID,
		Fingerprint:       g.Fingerprint,
		Title:             g.Title,
		Status:            g.Status,
		Type:              g.Type,
		FirstSeenAt:       models.FormatTimestamp(g.FirstSeenAt),
		LastSeenAt:        models.FormatTimestamp(g.LastSeenAt),
		OccurrenceCount:   g.OccurrenceCount,
		AffectedUserCount: g.AffectedUserCount,
		AffectedVersions:  versions,
		LatestStackTrace:  g.LatestStackTrace,
		Platform:          g.Platform,
		ResolvedInVersion: g.ResolvedInVersion,
	}
}

type crashReportView struct {
	ID             uuid.UUID       `json:"id"`
	Type           string          `json:"type"`
	Message        string          `json:"message"`
	StackTrace     *string         `json:"stackTrace"`
	Fingerprint    string          `json:"fingerprint"`
	AppVersion     string          `json:"appVersion"`
	SDKVersion     string          `json:"sdkVersion"`
	Platform       string          `json:"platform"`
	OS             string          `json:"os"`
	DeviceModel    string          `json:"deviceModel"`
	DeviceMemoryMB int             `json:"deviceMemoryMb"`
	SessionID      string          `json:"sessionId"`
	UserID         *string         `json:"userId"`
	Breadcrumbs    json.RawMessage `json:"breadcrumbs,omitempty"`
	CustomKeys     json.RawMessage `json:"customKeys,omitempty"`
	CreatedAt      string          `json:"createdAt"`
}

func newCrashReportView(r *models.CrashReport) crashReportView {
	return crashReportView{
		ID:             r.ID,
		Type:           r.Type,
		Message:        r.Message,
		StackTrace:     r.StackTrace,
		Fingerprint:    r.Fingerprint,
		AppVersion:     r.AppVersion,
		SDKVersion:     r.SDKVersion,
		Platform:       r.Platform,
		OS:             r.OS,
		DeviceModel:    r.DeviceModel,
		DeviceMemoryMB: r.DeviceMemoryMB,
		SessionID:      r.SessionID,
		UserID:         r.UserID,
		Breadcrumbs:    r.Breadcrumbs,
		CustomKeys:     r.CustomKeys,
		CreatedAt:      models.FormatTimestamp(r.CreatedAt),
	}
}
