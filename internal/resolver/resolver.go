// Package resolver computes the effective configuration and addresses of a
// single service target.
package resolver

import (
	"errors"
	"fmt"
	"maps"
	"sort"

	"mqw.szuro.net/internal/config"
)

var (
	ErrConfigResolution = errors.New("config resolution failed")
	ErrUnknownService   = errors.New("unknown service")
	ErrUnknownTarget    = errors.New("unknown target")
	ErrMissingAddrs     = errors.New("no addrs configured")
)

// ConfigResolutionError reports a target that cannot be dispatched to.
type ConfigResolutionError struct {
	Service string
	Target  string
	Err     error
}

func (e *ConfigResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %s:%s: %v", e.Service, e.Target, e.Err)
}

func (e *ConfigResolutionError) Unwrap() []error {
	return []error{ErrConfigResolution, e.Err}
}

// Resolution is the effective view of one target.
type Resolution struct {
	Type   string
	Config map[string]any
	Addrs  []string
}

// Resolve merges defaults.options, the service options and the target
// options (later wins, key by key) and returns the target's addresses.
// A target without addresses does not resolve.
func Resolve(global *config.MQWConf, service, target string) (Resolution, error) {
	fail := func(err error) (Resolution, error) {
		return Resolution{}, &ConfigResolutionError{Service: service, Target: target, Err: err}
	}

	svc, ok := global.GetService(service)
	if !ok {
		return fail(ErrUnknownService)
	}
	tc, ok := svc.Targets[target]
	if !ok {
		return fail(ErrUnknownTarget)
	}
	if len(tc.Addrs) == 0 {
		return fail(ErrMissingAddrs)
	}

	merged := make(map[string]any, len(global.Defaults.Options)+len(svc.Options)+len(tc.Options))
	maps.Copy(merged, global.Defaults.Options)
	maps.Copy(merged, svc.Options)
	maps.Copy(merged, tc.Options)

	return Resolution{
		Type:   svc.Type,
		Config: merged,
		Addrs:  append([]string(nil), tc.Addrs...),
	}, nil
}

// Expand lists all targets of a service in name order.
func Expand(global *config.MQWConf, service string) ([]string, error) {
	svc, ok := global.GetService(service)
	if !ok {
		return nil, &ConfigResolutionError{Service: service, Err: ErrUnknownService}
	}
	targets := make([]string, 0, len(svc.Targets))
	for t := range svc.Targets {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	return targets, nil
}

// Hints are the formatting values handed to an item. Title is the plain
// "<name>: <topic>" title; TitleFormat, when set, is rendered over it.
type Hints struct {
	Title       string
	TitleFormat string
	Format      string
	Template    string
	Priority    int
}

// ResolveHints applies section value, then the global default, then the
// hardcoded constant.
func ResolveHints(global *config.MQWConf, sec *config.Section, topic string) Hints {
	h := Hints{
		Title:    global.Defaults.Title + ": " + topic,
		Format:   global.Defaults.Format,
		Priority: global.Defaults.Priority,
	}
	if sec == nil {
		return h
	}
	h.TitleFormat = sec.Title
	if sec.Format != "" {
		h.Format = sec.Format
	}
	if sec.Priority != nil {
		h.Priority = *sec.Priority
	}
	h.Template = sec.Template
	return h
}
