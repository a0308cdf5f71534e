package tgui

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Data joins callback data as "feature:action:payload", or "feature:action"
// when there is no payload. The payload is passed through untouched;
// structured values should go through PackJSON first so ':' cannot leak in.
func Data(feature, action, payload string) string {
	d := strings.TrimSpace(feature) + ":" + strings.TrimSpace(action)
	if payload != "" {
		d += ":" + payload
	}
	return d
}

// PackJSON marshals v and base64url-encodes it (unpadded) for use as a
// callback payload.
func PackJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// UnpackJSON reverses PackJSON into v.
func UnpackJSON(payload string, v any) error {
	b, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
