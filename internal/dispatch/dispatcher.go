// Package dispatch turns one (topic, payload) event into notification items
// and hands each of them to its service, isolating every target from the
// failures of the others.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mqw.szuro.net/internal/config"
	"mqw.szuro.net/internal/logger"
	"mqw.szuro.net/internal/resolver"
	"mqw.szuro.net/internal/transform"
	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

// FailoverTopic is the topic of items produced by Failover.
const FailoverTopic = "mqw/failover"

var (
	ErrServiceNotLoaded = errors.New("service not loaded")
	ErrTimeout          = errors.New("delivery timed out")
	ErrPanic            = errors.New("service panicked")
	ErrBadTarget        = errors.New("cannot interpolate target")
)

type Dispatcher struct {
	conf       atomic.Pointer[config.MQWConf]
	services   map[string]plugin.Service
	transforms *transform.Registry
	templates  *transform.Templates
	now        func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	guards sync.Map // "service:target" -> *guard
}

type Option func(*Dispatcher)

func WithTransforms(r *transform.Registry) Option {
	return func(d *Dispatcher) { d.transforms = r }
}

func WithTemplates(t *transform.Templates) Option {
	return func(d *Dispatcher) { d.templates = t }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a dispatcher over initialised services keyed by service name.
func New(conf *config.MQWConf, services map[string]plugin.Service, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		services:   services,
		transforms: transform.NewDefaultRegistry(),
		templates:  transform.NewTemplates(conf.TemplatesDir),
		now:        time.Now,
		locks:      map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.conf.Store(conf)
	return d
}

// UpdateConfig swaps the configuration used for resolution. Services are
// not recreated.
func (d *Dispatcher) UpdateConfig(conf *config.MQWConf) {
	d.conf.Store(conf)
}

func (d *Dispatcher) Config() *config.MQWConf {
	return d.conf.Load()
}

// Dispatch delivers one event to every target of the given bindings.
// Targets of a binding are invoked in declared order. No error escapes:
// every target ends up in the returned outcomes.
func (d *Dispatcher) Dispatch(ctx context.Context, topic string, payload []byte, bindings []Binding) Outcomes {
	var outcomes Outcomes
	for i := range bindings {
		outcomes = append(outcomes, d.dispatchBinding(ctx, topic, payload, &bindings[i], nil)...)
	}
	return outcomes
}

// Failover reports a problem (lost upstream, silent topic) to the failover
// targets, if any are configured.
func (d *Dispatcher) Failover(ctx context.Context, reason, message string) Outcomes {
	conf := d.conf.Load()
	if conf.Failover == nil {
		logger.Warn("Failover requested but not configured", slog.String("reason", reason), slog.String("message", message))
		return nil
	}
	b := BindingFromSection(*conf.Failover)
	if b.Title == "" {
		b.Title = conf.Defaults.Title + ": " + reason
	}
	return d.dispatchBinding(ctx, FailoverTopic, []byte(message), &b, map[string]any{"reason": reason})
}

func (d *Dispatcher) dispatchBinding(ctx context.Context, topic string, payload []byte, b *Binding, extra map[string]any) Outcomes {
	data := d.enrich(topic, payload, b)
	maps.Copy(data, extra)

	if b.Filter != nil && !b.Filter.Evaluate(data) {
		logger.Debug("Filter dropped message", slog.String("section", b.Section), slog.String("topic", topic))
		return nil
	}

	refs, pattern, ok := b.targetsFor(topic)
	if !ok {
		logger.Debug("No dispatch pattern matches", slog.String("section", b.Section), slog.String("topic", topic))
		return nil
	}
	if pattern != "" {
		logger.Debug("Most specific match", slog.String("pattern", pattern), slog.Any("targets", refs))
	}

	conf := d.conf.Load()
	var outcomes Outcomes
	for _, ref := range refs {
		for _, tr := range d.expand(conf, ref, data) {
			to := TargetOutcome{Section: b.Section, Target: tr.ref, Err: tr.err}
			if tr.err == nil {
				to.Outcome, to.Err = d.deliverTarget(ctx, conf, b, tr.service, tr.target, topic, payload, data)
			} else {
				to.Outcome = SkippedConfig
			}
			d.report(tr.service, tr.target, topic, to)
			outcomes = append(outcomes, to)
		}
	}
	return outcomes
}

// enrich builds the data map: builtin fields, then datamap, then alldata,
// then the keys of a JSON object payload.
func (d *Dispatcher) enrich(topic string, payload []byte, b *Binding) map[string]any {
	data := transform.BuiltinData(topic, payload, d.now())
	if b.DataMap != "" {
		out, _ := d.transforms.Transform(b.DataMap, transform.Input{Topic: topic, Payload: payload, Data: data})
		transform.Merge(data, out)
	}
	if b.AllData != "" {
		out, _ := d.transforms.Transform(b.AllData, transform.Input{Topic: topic, Payload: payload, Data: data})
		transform.Merge(data, out)
	}
	transform.Merge(data, transform.DecodeJSON(payload))
	return data
}

type targetRef struct {
	ref     string
	service string
	target  string
	err     error
}

// expand interpolates placeholders and turns a bare service name into all
// of its targets.
func (d *Dispatcher) expand(conf *config.MQWConf, ref string, data map[string]any) []targetRef {
	if strings.Contains(ref, "{") {
		resolved, err := transform.Format(ref, data)
		if err != nil {
			return []targetRef{{ref: ref, err: fmt.Errorf("%w %q: %v", ErrBadTarget, ref, err)}}
		}
		ref = resolved
	}
	service, target := config.SplitTarget(ref)
	if target != "" {
		return []targetRef{{ref: ref, service: service, target: target}}
	}

	targets, err := resolver.Expand(conf, service)
	if err != nil {
		return []targetRef{{ref: ref, service: service, err: err}}
	}
	out := make([]targetRef, 0, len(targets))
	for _, t := range targets {
		out = append(out, targetRef{ref: service + ":" + t, service: service, target: t})
	}
	return out
}

func (d *Dispatcher) deliverTarget(ctx context.Context, conf *config.MQWConf, b *Binding, service, target, topic string, payload []byte, data map[string]any) (Outcome, error) {
	res, err := resolver.Resolve(conf, service, target)
	if err != nil {
		return SkippedConfig, err
	}
	svc, ok := d.services[service]
	if !ok {
		return SkippedConfig, &resolver.ConfigResolutionError{Service: service, Target: target, Err: ErrServiceNotLoaded}
	}

	it := d.buildItem(conf, b, service, target, topic, payload, data, res)

	start := time.Now()
	err = d.deliver(ctx, conf, svc, it)
	deliveryDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
	if err != nil {
		return Failed, err
	}
	return Delivered, nil
}

func (d *Dispatcher) buildItem(conf *config.MQWConf, b *Binding, service, target, topic string, payload []byte, data map[string]any, res resolver.Resolution) *item.Item {
	hints := resolver.ResolveHints(conf, b.section(), topic)

	it := &item.Item{
		Service:  service,
		Target:   target,
		Section:  b.Section,
		Topic:    topic,
		Payload:  payload,
		Data:     maps.Clone(data),
		Priority: hints.Priority,
		Format:   hints.Format,
		Addrs:    res.Addrs,
		Config:   res.Config,
	}

	it.Title = hints.Title
	if hints.TitleFormat != "" {
		it.Title = d.render(hints.TitleFormat, data, hints.Title, "title", it)
	}
	if hints.Format != "" {
		it.Message = d.render(hints.Format, data, "", "format", it)
	}
	if hints.Template != "" {
		text, err := d.templates.Render(hints.Template, data)
		if err != nil {
			logger.Warn("Cannot render template",
				slog.String("template", hints.Template),
				slog.String("service", service),
				slog.String("target", target),
				slog.Any("error", err))
		} else {
			it.Message = text
		}
	}
	return it
}

func (d *Dispatcher) render(tmpl string, data map[string]any, fallback, what string, it *item.Item) string {
	out, err := transform.Format(tmpl, data)
	if err != nil {
		logger.Warn("Formatting failed",
			slog.String("field", what),
			slog.String("service", it.Service),
			slog.String("target", it.Target),
			slog.String("topic", it.Topic),
			slog.Any("error", err))
		return fallback
	}
	return out
}

func (d *Dispatcher) report(service, target, topic string, to TargetOutcome) {
	deliveries.WithLabelValues(service, target, string(to.Outcome)).Inc()
	switch to.Outcome {
	case Delivered:
		logger.Debug("Delivered",
			slog.String("section", to.Section),
			slog.String("service", service),
			slog.String("target", target),
			slog.String("topic", topic))
	case Failed:
		logger.Warn("Delivery failed",
			slog.String("section", to.Section),
			slog.String("service", service),
			slog.String("target", target),
			slog.String("topic", topic),
			slog.Any("error", to.Err))
	case SkippedConfig:
		logger.Error("Target skipped",
			slog.String("section", to.Section),
			slog.String("service", service),
			slog.String("target", target),
			slog.String("topic", topic),
			slog.Any("error", to.Err))
	}
}

// Cleanup releases every service.
func (d *Dispatcher) Cleanup() {
	for name, svc := range d.services {
		logger.Debug("Cleaning up service", slog.String("service", name))
		svc.Cleanup()
	}
}
