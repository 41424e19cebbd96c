package crash

import (
	"bytes"
	"encoding/json"
)

// UnmarshalJSON decodes a crash payload leniently. Scalar values of any JSON
// type are kept as their text, so a numeric userId or appVersion is accepted.
// null means absent. An object or array in a required field is remembered and
// reported by Validate.
func (ev *Event) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type           json.RawMessage `json:"type"`
		Message        json.RawMessage `json:"message"`
		Fingerprint    json.RawMessage `json:"fingerprint"`
		AppVersion     json.RawMessage `json:"appVersion"`
		SDKVersion     json.RawMessage `json:"sdkVersion"`
		Platform       json.RawMessage `json:"platform"`
		OS             json.RawMessage `json:"os"`
		DeviceModel    json.RawMessage `json:"deviceModel"`
		SessionID      json.RawMessage `json:"sessionId"`
		StackTrace     json.RawMessage `json:"stackTrace"`
		DeviceMemoryMB json.RawMessage `json:"deviceMemoryMb"`
		UserID         json.RawMessage `json:"userId"`
		Breadcrumbs    json.RawMessage `json:"breadcrumbs"`
		CustomKeys     json.RawMessage `json:"customKeys"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*ev = Event{
		DeviceMemoryMB: wire.DeviceMemoryMB,
		Breadcrumbs:    wire.Breadcrumbs,
		CustomKeys:     wire.CustomKeys,
		StackTrace:     optionalText(wire.StackTrace),
		UserID:         optionalText(wire.UserID),
	}
	ev.malformed = decodeRequired([]rawField{
		{"type", wire.Type, &ev.Type},
		{"message", wire.Message, &ev.Message},
		{"fingerprint", wire.Fingerprint, &ev.Fingerprint},
		{"appVersion", wire.AppVersion, &ev.AppVersion},
		{"sdkVersion", wire.SDKVersion, &ev.SDKVersion},
		{"platform", wire.Platform, &ev.Platform},
		{"os", wire.OS, &ev.OS},
		{"deviceModel", wire.DeviceModel, &ev.DeviceModel},
		{"sessionId", wire.SessionID, &ev.SessionID},
	})
	return nil
}

// UnmarshalJSON decodes a session registration with the same leniency as Event.
func (reg *SessionRegistration) UnmarshalJSON(data []byte) error {
	var wire struct {
		SessionID  json.RawMessage `json:"sessionId"`
		AppVersion json.RawMessage `json:"appVersion"`
		Platform   json.RawMessage `json:"platform"`
		UserID     json.RawMessage `json:"userId"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*reg = SessionRegistration{UserID: optionalText(wire.UserID)}
	reg.malformed = decodeRequired([]rawField{
		{"sessionId", wire.SessionID, &reg.SessionID},
		{"appVersion", wire.AppVersion, &reg.AppVersion},
		{"platform", wire.Platform, &reg.Platform},
	})
	return nil
}

type rawField struct {
	name string
	raw  json.RawMessage
	dst  *string
}

// decodeRequired fills every destination and returns the name of the first
// field that held no scalar value.
func decodeRequired(fields []rawField) string {
	malformed := ""
	for _, f := range fields {
		v, ok := scalarText(f.raw)
		if !ok && malformed == "" {
			malformed = f.name
		}
		*f.dst = v
	}
	return malformed
}

// optionalText coerces an optional scalar. Empty strings, null and
// structured values are all absent.
func optionalText(raw json.RawMessage) *string {
	v, ok := scalarText(raw)
	if !ok || v == "" {
		return nil
	}
	return &v
}

// scalarText returns the text of a JSON string, number or boolean. The second
// result is false for objects and arrays.
func scalarText(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", true
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false
		}
		return s, true
	case '{', '[':
		return "", false
	default:
		return string(trimmed), true
	}
}
