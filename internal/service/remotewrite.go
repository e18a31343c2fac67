package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/m3db/prometheus_remote_client_golang/promremote"
	"github.com/prometheus/prometheus/prompb"
	"github.com/spf13/cast"
	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

const remoteWriteUserAgent = "mqw - remote_write " + version

// RemoteWrite sends a numeric message as one sample of series addrs[0] to
// the Prometheus remote-write endpoint at the "url" option. The series is
// labelled with topic, section and any extra "labels" option.
type RemoteWrite struct {
	plugin.BaseService

	mu      sync.Mutex
	clients map[string]promremote.Client
}

func (rw *RemoteWrite) Reentrant() bool { return true }

func (rw *RemoteWrite) client(writeURL string, timeout time.Duration) (promremote.Client, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if c, ok := rw.clients[writeURL]; ok {
		return c, nil
	}
	cfg := promremote.NewConfig(
		promremote.WriteURLOption(writeURL),
		promremote.HTTPClientTimeoutOption(timeout),
		promremote.UserAgent(remoteWriteUserAgent),
	)
	c, err := promremote.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", plugin.ErrInvalidAddress, err)
	}
	if rw.clients == nil {
		rw.clients = map[string]promremote.Client{}
	}
	rw.clients[writeURL] = c
	return c, nil
}

func (rw *RemoteWrite) Deliver(ctx context.Context, it *item.Item) error {
	metric, err := it.Addr(0)
	if err != nil {
		return err
	}
	if !metricName.MatchString(metric) {
		return fmt.Errorf("%w: metric name %q", plugin.ErrInvalidAddress, metric)
	}
	writeURL := it.ConfigString("url", "")
	if writeURL == "" {
		return fmt.Errorf("%w: remote write url not configured", plugin.ErrInvalidAddress)
	}
	value, err := numericText(it)
	if err != nil {
		return err
	}
	client, err := rw.client(writeURL, it.ConfigDuration("timeout", 10*time.Second))
	if err != nil {
		return err
	}

	wr := &prompb.WriteRequest{Timeseries: []prompb.TimeSeries{{
		Labels:  seriesLabels(metric, it),
		Samples: []prompb.Sample{{Value: value, Timestamp: time.Now().UnixMilli()}},
	}}}
	if _, werr := client.WriteProto(ctx, wr, promremote.WriteOptions{}); werr != nil {
		return fmt.Errorf("remote write to %s failed (status %d): %w", writeURL, werr.StatusCode(), werr)
	}
	return nil
}

// seriesLabels builds the label set, sorted by name as remote write requires.
func seriesLabels(metric string, it *item.Item) []prompb.Label {
	labels := map[string]string{
		"__name__": metric,
		"topic":    it.Topic,
	}
	if it.Section != "" {
		labels["section"] = it.Section
	}
	for k, v := range cast.ToStringMapString(it.Config["labels"]) {
		if metricName.MatchString(k) {
			labels[k] = v
		}
	}

	out := make([]prompb.Label, 0, len(labels))
	for k, v := range labels {
		out = append(out, prompb.Label{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (rw *RemoteWrite) Cleanup() {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.clients = nil
}
