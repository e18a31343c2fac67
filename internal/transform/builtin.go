package transform

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const powerTimeLayout = "2006-01-02T15:04:05"

var homieTopic = regexp.MustCompile(`^(?P<realm>.+?)/(?P<device>.+?)/(?P<node>.+?)/(?P<property>.+?)$`)

// DecodeHomieTopic splits realm/device/node/property topics.
func DecodeHomieTopic(in Input) (map[string]any, error) {
	m := homieTopic.FindStringSubmatch(in.Topic)
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, homieTopic.String())
	}
	out := make(map[string]any, 4)
	for i, name := range homieTopic.SubexpNames() {
		if name != "" {
			out[name] = m[i]
		}
	}
	return out, nil
}

// DecodeForZabbix maps tele/<client>/<key> topics. Shorter topics panic
// on the index access; the registry reports that as a failed transform.
func DecodeForZabbix(in Input) (map[string]any, error) {
	parts := strings.Split(in.Topic, "/")
	client := parts[1]
	key := parts[2]
	return map[string]any{
		"client":     client,
		"key":        key,
		"status_key": nil,
	}, nil
}

// PowerBin reinterprets a Tasmota-style state payload. Time becomes a local
// epoch under payload.Time; POWER_BIN is derived only when POWER is present.
func PowerBin(in Input) (map[string]any, error) {
	var payload map[string]any
	if err := yaml.Unmarshal(in.Payload, &payload); err != nil {
		return nil, fmt.Errorf("cannot parse payload literal: %w", err)
	}
	if payload == nil {
		return nil, errors.New("payload is not a mapping")
	}

	out := map[string]any{}
	if raw, ok := payload["Time"]; ok {
		var ts time.Time
		switch v := raw.(type) {
		case string:
			var err error
			ts, err = time.ParseInLocation(powerTimeLayout, v, time.Local)
			if err != nil {
				return nil, fmt.Errorf("cannot parse Time: %w", err)
			}
		case time.Time:
			// unquoted YAML timestamps arrive decoded as UTC
			ts = time.Date(v.Year(), v.Month(), v.Day(), v.Hour(), v.Minute(), v.Second(), 0, time.Local)
		default:
			return nil, fmt.Errorf("Time is %T, not a string", raw)
		}
		out["payload"] = map[string]any{"Time": float64(ts.Unix())}
	}

	if power, ok := payload["POWER"]; ok {
		if fmt.Sprint(power) == "ON" {
			out["POWER_BIN"] = 1
		} else {
			out["POWER_BIN"] = 0
		}
	}
	return out, nil
}
