package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

var metricName = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)

// Pushgateway pushes a numeric message as gauge addrs[1] under job addrs[0]
// to the Pushgateway at the "url" option. The topic is a grouping label.
type Pushgateway struct {
	plugin.BaseService
}

func (p *Pushgateway) Reentrant() bool { return true }

func (p *Pushgateway) Deliver(ctx context.Context, it *item.Item) error {
	job, err := it.Addr(0)
	if err != nil {
		return err
	}
	metric, err := it.Addr(1)
	if err != nil {
		return err
	}
	if !metricName.MatchString(metric) {
		return fmt.Errorf("%w: metric name %q", plugin.ErrInvalidAddress, metric)
	}
	gatewayURL := it.ConfigString("url", "")
	if gatewayURL == "" {
		return fmt.Errorf("%w: pushgateway url not configured", plugin.ErrInvalidAddress)
	}
	value, err := numericText(it)
	if err != nil {
		return err
	}

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: metric,
		Help: "Value published by mqw",
	})
	gauge.Set(value)

	err = push.New(gatewayURL, job).
		Collector(gauge).
		Grouping("topic", it.Topic).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("cannot push to %s: %w", gatewayURL, err)
	}
	return nil
}

func numericText(it *item.Item) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(it.Text()), 64)
	if err != nil {
		return 0, fmt.Errorf("message %q is not numeric: %w", it.Text(), err)
	}
	return value, nil
}
