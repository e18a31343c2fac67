// Package item defines the records that flow through the mqw pipeline.
//
// An Event is a single upstream message as received from an input. The
// dispatcher turns each (event, target) pair into an Item that is handed to
// exactly one service plugin.
package item

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// ErrMissingAddress is returned by Addr when the target has fewer addresses
// than the service expects.
var ErrMissingAddress = errors.New("missing address")

// Event is one upstream (topic, payload) message.
type Event struct {
	Topic    string    `json:"topic"`
	Payload  []byte    `json:"payload"`
	Retained bool      `json:"retained,omitempty"`
	Received time.Time `json:"-"`
}

// Item is the notification handed to a service plugin. It is built once per
// target and must be treated as read-only by plugins.
type Item struct {
	Service string
	Target  string
	Section string

	Topic   string
	Payload []byte

	// Message is the formatted text. Empty means "not formatted", in which
	// case Text falls back to the raw payload.
	Message string

	// Data holds the enrichment fields; never nil.
	Data map[string]any

	Title    string
	Priority int
	Format   string

	Addrs  []string
	Config map[string]any
}

// Text returns the message to deliver.
func (i *Item) Text() string {
	if i.Message != "" {
		return i.Message
	}
	return string(i.Payload)
}

// Addr returns the address at idx.
func (i *Item) Addr(idx int) (string, error) {
	if idx < 0 || idx >= len(i.Addrs) {
		return "", fmt.Errorf("%w: index %d of %d for %s:%s", ErrMissingAddress, idx, len(i.Addrs), i.Service, i.Target)
	}
	return i.Addrs[idx], nil
}

// ConfigString returns a config value as string, or def when unset.
func (i *Item) ConfigString(key, def string) string {
	v, ok := i.Config[key]
	if !ok || v == nil {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return s
}

// ConfigInt coerces string and numeric values alike.
func (i *Item) ConfigInt(key string, def int) int {
	v, ok := i.Config[key]
	if !ok || v == nil {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

func (i *Item) ConfigBool(key string, def bool) bool {
	v, ok := i.Config[key]
	if !ok || v == nil {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// ConfigDuration reads a duration option. Bare numbers, numeric or string,
// are seconds; strings with a unit go through time.ParseDuration.
func (i *Item) ConfigDuration(key string, def time.Duration) time.Duration {
	v, ok := i.Config[key]
	if !ok || v == nil {
		return def
	}
	if d, ok := v.(time.Duration); ok {
		return d
	}
	if secs, err := cast.ToFloat64E(v); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return def
	}
	return d
}

// ConfigStrings returns a list option; a scalar becomes a single entry.
func (i *Item) ConfigStrings(key string) []string {
	v, ok := i.Config[key]
	if !ok || v == nil {
		return nil
	}
	return cast.ToStringSlice(v)
}
