package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
	"mqw.szuro.net/internal/config"
	"mqw.szuro.net/internal/logger"
	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

// The breaker is off unless a target sets breaker_failures.
const (
	defaultBreakerFailures = 0
	defaultBreakerTimeout  = 30 * time.Second
)

// guard holds the per-target circuit breaker and optional rate limiter.
type guard struct {
	breaker *gobreaker.CircuitBreaker[struct{}]
	limiter *rate.Limiter
}

func (d *Dispatcher) guard(key string, it *item.Item) *guard {
	if g, ok := d.guards.Load(key); ok {
		return g.(*guard)
	}

	failures := it.ConfigInt("breaker_failures", defaultBreakerFailures)
	g := &guard{}
	if failures > 0 {
		g.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        key,
			MaxRequests: 1,
			Timeout:     it.ConfigDuration("breaker_timeout", defaultBreakerTimeout),
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(failures)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker state changed",
					slog.String("target", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
				open := 0.0
				if to == gobreaker.StateOpen {
					open = 1
				}
				breakerState.WithLabelValues(name).Set(open)
			},
		})
	}
	if rps := it.ConfigInt("rate_limit", 0); rps > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	}

	actual, _ := d.guards.LoadOrStore(key, g)
	return actual.(*guard)
}

// deliver runs one item through its target's guard and the service.
func (d *Dispatcher) deliver(ctx context.Context, conf *config.MQWConf, svc plugin.Service, it *item.Item) error {
	g := d.guard(it.Service+":"+it.Target, it)
	timeout := it.ConfigDuration("timeout", conf.Defaults.Timeout)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return plugin.NewDeliveryError(it, fmt.Errorf("rate limit: %w", err))
		}
	}

	if g.breaker == nil {
		return d.invoke(ctx, svc, it, timeout)
	}
	_, err := g.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, d.invoke(ctx, svc, it, timeout)
	})
	return plugin.NewDeliveryError(it, err)
}

// invoke calls the service with a bounded context. A service that does not
// return in time is abandoned and its result discarded.
func (d *Dispatcher) invoke(ctx context.Context, svc plugin.Service, it *item.Item, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Debug("Service panicked",
					slog.String("service", it.Service),
					slog.String("stack", string(debug.Stack())))
				done <- fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		if !plugin.IsReentrant(svc) {
			mu := d.serviceLock(it.Service)
			mu.Lock()
			defer mu.Unlock()
		}
		done <- svc.Deliver(ctx, it)
	}()

	select {
	case err := <-done:
		return plugin.NewDeliveryError(it, err)
	case <-ctx.Done():
		return plugin.NewDeliveryError(it, fmt.Errorf("%w after %s: %v", ErrTimeout, timeout, ctx.Err()))
	}
}

func (d *Dispatcher) serviceLock(service string) *sync.Mutex {
	d.locksMu.Lock()
	defer d.locksMu.Unlock()
	mu, ok := d.locks[service]
	if !ok {
		mu = &sync.Mutex{}
		d.locks[service] = mu
	}
	return mu
}
