package transform

import (
	"bytes"
	"encoding/json"
	"time"
)

// BuiltinData returns the fields every message starts with.
func BuiltinData(topic string, payload []byte, now time.Time) map[string]any {
	local := now.Local()
	return map[string]any{
		"topic":     topic,
		"payload":   string(payload),
		"_dtepoch":  now.Unix(),
		"_dtiso":    now.UTC().Format("2006-01-02T15:04:05.000000Z"),
		"_ltiso":    local.Format("2006-01-02T15:04:05.000000"),
		"_dthhmm":   local.Format("15:04"),
		"_dthhmmss": local.Format("15:04:05"),
	}
}

// DecodeJSON returns the payload's top-level object, ignoring trailing NUL
// bytes. Anything that is not a JSON object yields nil.
func DecodeJSON(payload []byte) map[string]any {
	payload = bytes.TrimRight(payload, "\x00")
	if len(bytes.TrimSpace(payload)) == 0 || bytes.TrimSpace(payload)[0] != '{' {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil
	}
	return out
}

// Merge copies src into dst, later keys winning.
func Merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
