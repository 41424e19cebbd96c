// Package models contains shared data models used across the crashd codebase.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	CrashTypeCrash    = "CRASH"
	CrashTypeNonFatal = "NON_FATAL"
	CrashTypeANR      = "ANR"
)

// TimestampLayout is the wire format for every timestamp this service emits:
// ISO-8601, UTC, second precision, no offset.
const TimestampLayout = "2006-01-02T15:04:05"

// CrashReport is one crash occurrence sent by a client device.
// Rows are append-only and never mutated after insert.
type CrashReport struct {
	ID             uuid.UUID       `db:"id"               json:"id"`
	Type           string          `db:"type"             json:"type"`
	Message        string          `db:"message"          json:"message"`
	StackTrace     *string         `db:"stack_trace"      json:"stackTrace"`
	Fingerprint    string          `db:"fingerprint"      json:"fingerprint"`
	AppVersion     string          `db:"app_version"      json:"appVersion"`
	SDKVersion     string          `db:"sdk_version"      json:"sdkVersion"`
	Platform       string          `db:"platform"         json:"platform"`
	OS             string          `db:"os"               json:"os"`
	DeviceModel    string          `db:"device_model"     json:"deviceModel"`
	DeviceMemoryMB int             `db:"device_memory_mb" json:"deviceMemoryMb"`
	SessionID      string          `db:"session_id"       json:"sessionId"`
	UserID         *string         `db:"user_id"          json:"userId"`
	Breadcrumbs    json.RawMessage `db:"breadcrumbs"      json:"breadcrumbs,omitempty"`
	CustomKeys     json.RawMessage `db:"custom_keys"      json:"customKeys,omitempty"`
	CreatedAt      time.Time       `db:"created_at"       json:"-"`
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
