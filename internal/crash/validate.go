package crash

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/crashd/pkg/models"
)

// Event is the inbound crash payload as sent by client SDKs.
type Event struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Fingerprint string `json:"fingerprint"`
	AppVersion  string `json:"appVersion"`
	SDKVersion  string `json:"sdkVersion"`
	Platform    string `json:"platform"`
	OS          string `json:"os"`
	DeviceModel string `json:"deviceModel"`
	SessionID   string `json:"sessionId"`

	StackTrace     *string         `json:"stackTrace"`
	DeviceMemoryMB json.RawMessage `json:"deviceMemoryMb"`
	UserID         *string         `json:"userId"`
	Breadcrumbs    json.RawMessage `json:"breadcrumbs"`
	CustomKeys     json.RawMessage `json:"customKeys"`

	malformed string
}

// SessionRegistration is the inbound payload registering one app run.
type SessionRegistration struct {
	SessionID  string  `json:"sessionId"`
	AppVersion string  `json:"appVersion"`
	Platform   string  `json:"platform"`
	UserID     *string `json:"userId"`

	malformed string
}

var validTypes = map[string]bool{
	models.CrashTypeCrash:    true,
	models.CrashTypeNonFatal: true,
	models.CrashTypeANR:      true,
}

type field struct {
	name  string
	value string
}

// Validate checks ev and converts it into an unsaved CrashReport.
// Required fields are checked in wire order and the first empty one is reported.
// A required field that arrived as an object or array fails first.
func Validate(ev Event) (*models.CrashReport, error) {
	if ev.malformed != "" {
		return nil, &ValidationError{Reason: ReasonInvalidValue, Field: ev.malformed}
	}
	for _, s := range []*string{
		&ev.Type, &ev.Message, &ev.Fingerprint, &ev.AppVersion, &ev.SDKVersion,
		&ev.Platform, &ev.OS, &ev.DeviceModel, &ev.SessionID,
	} {
		*s = stripNUL(*s)
	}
	required := []field{
		{"type", ev.Type},
		{"message", ev.Message},
		{"fingerprint", ev.Fingerprint},
		{"appVersion", ev.AppVersion},
		{"sdkVersion", ev.SDKVersion},
		{"platform", ev.Platform},
		{"os", ev.OS},
		{"deviceModel", ev.DeviceModel},
		{"sessionId", ev.SessionID},
	}
	if err := checkRequired(required); err != nil {
		return nil, err
	}

	if !validTypes[ev.Type] {
		return nil, &ValidationError{Reason: ReasonInvalidType, Field: "type"}
	}

	return &models.CrashReport{
		Type:           ev.Type,
		Message:        ev.Message,
		StackTrace:     optionalString(ev.StackTrace),
		Fingerprint:    ev.Fingerprint,
		AppVersion:     ev.AppVersion,
		SDKVersion:     ev.SDKVersion,
		Platform:       ev.Platform,
		OS:             ev.OS,
		DeviceModel:    ev.DeviceModel,
		DeviceMemoryMB: coerceMemory(ev.DeviceMemoryMB),
		SessionID:      ev.SessionID,
		UserID:         optionalString(ev.UserID),
		Breadcrumbs:    opaque(ev.Breadcrumbs),
		CustomKeys:     opaque(ev.CustomKeys),
	}, nil
}

// ValidateSession checks the fields every session registration must carry.
func ValidateSession(reg SessionRegistration) error {
	if reg.malformed != "" {
		return &ValidationError{Reason: ReasonInvalidValue, Field: reg.malformed}
	}
	reg = reg.withoutNUL()
	return checkRequired([]field{
		{"sessionId", reg.SessionID},
		{"appVersion", reg.AppVersion},
		{"platform", reg.Platform},
	})
}

func checkRequired(fields []field) error {
	for _, f := range fields {
		if f.value == "" {
			return &ValidationError{Reason: ReasonMissingField, Field: f.name}
		}
	}
	return nil
}

// optionalString treats an empty value the same as an absent one.
func optionalString(s *string) *string {
	if s == nil {
		return nil
	}
	v := stripNUL(*s)
	if v == "" {
		return nil
	}
	return &v
}

// stripNUL removes U+0000, which text columns cannot store. Native crash
// messages and stack traces routinely carry it.
func stripNUL(s string) string {
	if strings.IndexByte(s, 0) < 0 {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}

func (reg SessionRegistration) withoutNUL() SessionRegistration {
	reg.SessionID = stripNUL(reg.SessionID)
	reg.AppVersion = stripNUL(reg.AppVersion)
	reg.Platform = stripNUL(reg.Platform)
	reg.UserID = optionalString(reg.UserID)
	return reg
}

// opaque keeps a structured payload byte-for-byte. JSON null means absent.
func opaque(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	out := make(json.RawMessage, len(trimmed))
	copy(out, trimmed)
	return out
}

// coerceMemory accepts a JSON number or a numeric string and truncates it to a
// non-negative int. Anything else is zero.
func coerceMemory(raw json.RawMessage) int {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}

	var text string
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return 0
		}
		text = strings.TrimSpace(text)
	} else {
		text = string(trimmed)
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}

// Title derives a group title from the first report's message: the first
// maxTitleRunes Unicode scalars, never splitting a multi-byte sequence.
func Title(message string) string {
	return truncateRunes(message, maxTitleRunes)
}

const maxTitleRunes = 200

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
