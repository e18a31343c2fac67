// Package router maps event topics to the section bindings subscribed to
// them.
package router

import (
	"log/slog"
	"sync/atomic"

	"mqw.szuro.net/internal/config"
	"mqw.szuro.net/internal/dispatch"
	"mqw.szuro.net/internal/logger"
	"mqw.szuro.net/internal/topic"
)

type Router struct {
	bindings atomic.Pointer[[]dispatch.Binding]
}

func New(conf *config.MQWConf) *Router {
	r := &Router{}
	r.Swap(conf)
	return r
}

// Swap replaces the routing table with the sections of conf. Sections with
// an invalid topic filter are dropped.
func (r *Router) Swap(conf *config.MQWConf) {
	all := dispatch.Bindings(conf)
	valid := make([]dispatch.Binding, 0, len(all))
	for _, b := range all {
		if !topic.Valid(b.Topic) {
			logger.Error("Invalid topic filter, section ignored",
				slog.String("section", b.Section),
				slog.String("topic", b.Topic))
			continue
		}
		valid = append(valid, b)
	}
	r.bindings.Store(&valid)
	logger.Info("Routing table loaded", slog.Int("sections", len(valid)))
}

// Route returns the bindings whose topic filter matches t, in config order.
func (r *Router) Route(t string) []dispatch.Binding {
	var out []dispatch.Binding
	for _, b := range *r.bindings.Load() {
		if topic.Matches(b.Topic, t) {
			out = append(out, b)
		}
	}
	return out
}

// Subscriptions lists every section topic filter, deduplicated.
func (r *Router) Subscriptions() []string {
	seen := map[string]bool{}
	var out []string
	for _, b := range *r.bindings.Load() {
		if !seen[b.Topic] {
			seen[b.Topic] = true
			out = append(out, b.Topic)
		}
	}
	return out
}
