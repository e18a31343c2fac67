// Package transform holds the named decode functions that turn a topic and
// payload into enrichment data, plus the formatting helpers that render a
// message from that data.
package transform

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"mqw.szuro.net/internal/logger"
)

var (
	ErrUnknownTransform = errors.New("unknown transform")
	ErrNoMatch          = errors.New("topic does not match")
)

var transformFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mqw_transform_failures_total",
		Help: "Total number of failed transform invocations",
	},
	[]string{"transform"},
)

// Input is what a transform sees. Data is a copy of the enrichment data
// collected so far and may be read freely.
type Input struct {
	Topic   string
	Payload []byte
	Data    map[string]any
}

// Func decodes one message. Returning an error or panicking yields an
// empty mapping for the caller.
type Func func(in Input) (map[string]any, error)

// Error describes a failed transform invocation.
type Error struct {
	Name  string
	Topic string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transform %s on %q: %v", e.Name, e.Topic, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Registry struct {
	funcs map[string]Func
	mutex sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// NewDefaultRegistry returns a registry holding the reference transforms.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("decode_homie_topic", DecodeHomieTopic)
	r.Register("decode_for_zabbix", DecodeForZabbix)
	r.Register("power_bin", PowerBin)
	r.Register("powerBinFunc", PowerBin)
	return r
}

// Register adds or replaces fn under name.
func (r *Registry) Register(name string, fn Func) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.funcs[name] = fn
}

func (r *Registry) Has(name string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Call invokes the named transform and converts every failure, panics
// included, into an *Error.
func (r *Registry) Call(name string, in Input) (out map[string]any, err error) {
	r.mutex.RLock()
	fn, ok := r.funcs[name]
	r.mutex.RUnlock()
	if !ok {
		return nil, &Error{Name: name, Topic: in.Topic, Err: ErrUnknownTransform}
	}

	in.Data = maps.Clone(in.Data)
	if in.Data == nil {
		in.Data = map[string]any{}
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Debug("Transform panicked",
				slog.String("transform", name),
				slog.String("stack", string(debug.Stack())))
			out = nil
			err = &Error{Name: name, Topic: in.Topic, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	out, err = fn(in)
	if err != nil {
		return nil, &Error{Name: name, Topic: in.Topic, Err: err}
	}
	return out, nil
}

// Transform invokes the named transform. On any failure it logs a warning
// and returns an empty, non-nil mapping with ok=false.
func (r *Registry) Transform(name string, in Input) (map[string]any, bool) {
	out, err := r.Call(name, in)
	if err != nil {
		transformFailures.WithLabelValues(name).Inc()
		logger.Warn("Transform failed",
			slog.String("transform", name),
			slog.String("topic", in.Topic),
			slog.Any("error", err))
		return map[string]any{}, false
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, true
}
