package input

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
	"mqw.szuro.net/internal/dispatch"
	"mqw.szuro.net/internal/logger"
	"mqw.szuro.net/pkg/item"
)

var (
	eventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqw_events_total",
			Help: "Total number of events accepted per input",
		},
		[]string{"source"},
	)

	eventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqw_events_dropped_total",
			Help: "Events dropped before routing",
		},
		[]string{"reason"},
	)

	bufferUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mqw_buffer_usage",
		Help: "Events waiting in the internal funnel",
	})
)

// Router selects the section bindings of a topic.
type Router interface {
	Route(topic string) []dispatch.Binding
}

// Dispatcher delivers routed events.
type Dispatcher interface {
	Dispatch(ctx context.Context, topic string, payload []byte, bindings []dispatch.Binding) dispatch.Outcomes
	Failover(ctx context.Context, reason, message string) dispatch.Outcomes
}

// Observer is notified of every event taken from the funnel.
type Observer interface {
	Seen(topic string)
}

// Subject funnels events from all inputs to a pool of dispatch workers.
type Subject struct {
	Funnel       chan item.Event
	router       Router
	dispatcher   Dispatcher
	workers      int
	skipRetained bool
	observers    []Observer
}

func NewSubject(router Router, dispatcher Dispatcher, workers, buffer int, skipRetained bool) *Subject {
	if workers <= 0 {
		workers = 1
	}
	return &Subject{
		Funnel:       make(chan item.Event, buffer),
		router:       router,
		dispatcher:   dispatcher,
		workers:      workers,
		skipRetained: skipRetained,
	}
}

func (s *Subject) Register(o Observer) {
	if o == nil {
		return
	}
	s.observers = append(s.observers, o)
}

// Publish queues ev, blocking while the funnel is full. It returns false
// when ctx ends first.
func (s *Subject) Publish(ctx context.Context, source string, ev item.Event) bool {
	if ev.Received.IsZero() {
		ev.Received = time.Now()
	}
	select {
	case s.Funnel <- ev:
		eventsReceived.WithLabelValues(source).Inc()
		bufferUsage.Set(float64(len(s.Funnel)))
		return true
	case <-ctx.Done():
		return false
	}
}

// AcceptValues runs the workers until ctx is done or the funnel is closed.
func (s *Subject) AcceptValues(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-s.Funnel:
					if !ok {
						return nil
					}
					bufferUsage.Set(float64(len(s.Funnel)))
					s.handle(ctx, ev)
				}
			}
		})
	}
	return g.Wait()
}

func (s *Subject) handle(ctx context.Context, ev item.Event) {
	if ev.Retained && s.skipRetained {
		eventsDropped.WithLabelValues("retained").Inc()
		logger.Debug("Skipping retained event", slog.String("topic", ev.Topic))
		return
	}
	for _, o := range s.observers {
		o.Seen(ev.Topic)
	}

	bindings := s.router.Route(ev.Topic)
	if len(bindings) == 0 {
		eventsDropped.WithLabelValues("unrouted").Inc()
		logger.Debug("No section for topic", slog.String("topic", ev.Topic))
		return
	}
	out := s.dispatcher.Dispatch(ctx, ev.Topic, ev.Payload, bindings)
	logger.Debug("Event dispatched",
		slog.String("topic", ev.Topic),
		slog.Int("delivered", out.Count(dispatch.Delivered)),
		slog.Int("failed", out.Count(dispatch.Failed)),
		slog.Int("skipped", out.Count(dispatch.SkippedConfig)))
}
