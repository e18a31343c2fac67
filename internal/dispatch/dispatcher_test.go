package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"mqw.szuro.net/internal/config"
	"mqw.szuro.net/internal/resolver"
	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

type recorder struct {
	plugin.BaseService
	mu    sync.Mutex
	items []*item.Item
	calls []string

	fail  map[string]error
	panic map[string]bool
	block map[string]bool
}

func newRecorder() *recorder {
	return &recorder{
		BaseService: *plugin.NewBaseService("", "recorder"),
		fail:        map[string]error{},
		panic:       map[string]bool{},
		block:       map[string]bool{},
	}
}

func (r *recorder) Deliver(ctx context.Context, it *item.Item) error {
	r.mu.Lock()
	r.calls = append(r.calls, it.Service+":"+it.Target)
	r.items = append(r.items, it)
	r.mu.Unlock()

	if r.panic[it.Target] {
		panic("boom")
	}
	if r.block[it.Target] {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil
	}
	return r.fail[it.Target]
}

func (r *recorder) last() *item.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[len(r.items)-1]
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

const dispatchConfig = `
defaults:
  title: mqttwarn
  timeout: 200ms
services:
  file:
    targets:
      f01: ["/tmp/f01"]
      f02: ["/tmp/f02"]
  log:
    targets:
      info: [info]
      crit: [crit]
      empty: []
  zabbix:
    targets:
      t1: [zabbix.local]
sections:
  - name: homie
    topic: homie/#
    datamap: decode_homie_topic
    format: "{device}/{property}: {payload}"
    title: "Homie {device}"
    targets: [file:f01, log:info, file:f02]
`

func setup(t *testing.T, yamlConf string) (*Dispatcher, map[string]*recorder) {
	t.Helper()
	conf, err := config.Parse([]byte(yamlConf))
	require.NoError(t, err)

	recs := map[string]*recorder{}
	services := map[string]plugin.Service{}
	for name := range conf.Services {
		r := newRecorder()
		require.NoError(t, r.Initialize(name, nil))
		recs[name] = r
		services[name] = r
	}
	clock := func() time.Time { return time.Date(2014, 2, 17, 10, 38, 43, 0, time.UTC) }
	return New(conf, services, WithClock(clock)), recs
}

func TestDispatchDeclaredOrder(t *testing.T) {
	d, recs := setup(t, dispatchConfig)

	out := d.Dispatch(context.Background(), "homie/alpha/temp/value", []byte("21.5"), Bindings(d.Config()))

	require.Equal(t, []string{"file:f01", "log:info", "file:f02"}, out.Targets())
	require.Equal(t, 3, out.Count(Delivered))
	require.Equal(t, []string{"file:f01", "file:f02"}, recs["file"].Calls())

	it := recs["log"].last()
	require.Equal(t, "alpha/temp: 21.5", it.Message)
	require.Equal(t, "Homie alpha", it.Title)
	require.Equal(t, []string{"info"}, it.Addrs)
	require.Equal(t, "homie", it.Section)
	require.Equal(t, "alpha", it.Data["device"])
	require.Equal(t, "2014-02-17T10:38:43.000000Z", it.Data["_dtiso"])
}

func TestDispatchIsolatesFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*recorder)
		want   Outcome
		errIs  error
	}{
		{
			name:   "error",
			mutate: func(r *recorder) { r.fail["info"] = errors.New("disk full") },
			want:   Failed,
			errIs:  plugin.ErrDelivery,
		},
		{
			name:   "panic",
			mutate: func(r *recorder) { r.panic["info"] = true },
			want:   Failed,
			errIs:  ErrPanic,
		},
		{
			name:   "timeout",
			mutate: func(r *recorder) { r.block["info"] = true },
			want:   Failed,
			errIs:  ErrTimeout,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, recs := setup(t, dispatchConfig)
			tc.mutate(recs["log"])

			out := d.Dispatch(context.Background(), "homie/alpha/temp/value", []byte("1"), Bindings(d.Config()))

			require.Equal(t, map[string]Outcome{
				"file:f01": Delivered,
				"log:info": tc.want,
				"file:f02": Delivered,
			}, out.Map())
			require.ErrorIs(t, out[1].Err, tc.errIs)
			require.Len(t, recs["file"].Calls(), 2)
		})
	}
}

func TestDispatchSkippedConfig(t *testing.T) {
	d, recs := setup(t, dispatchConfig+`
  - name: broken
    topic: broken/#
    targets: [log:empty, log:missing, nope:x, log:info]
`)

	out := d.Dispatch(context.Background(), "broken/1", []byte("x"), Bindings(d.Config())[1:])

	require.Equal(t, []Outcome{SkippedConfig, SkippedConfig, SkippedConfig, Delivered},
		[]Outcome{out[0].Outcome, out[1].Outcome, out[2].Outcome, out[3].Outcome})
	require.ErrorIs(t, out[0].Err, resolver.ErrMissingAddrs)
	require.ErrorIs(t, out[1].Err, resolver.ErrUnknownTarget)
	require.ErrorIs(t, out[2].Err, resolver.ErrUnknownService)
	require.Equal(t, []string{"log:info"}, recs["log"].Calls())
}

func TestDispatchServiceNotLoaded(t *testing.T) {
	conf, err := config.Parse([]byte(dispatchConfig))
	require.NoError(t, err)
	d := New(conf, map[string]plugin.Service{})

	out := d.Dispatch(context.Background(), "homie/a/b/c", []byte("x"), Bindings(conf))

	require.Equal(t, 3, out.Count(SkippedConfig))
	require.ErrorIs(t, out[0].Err, ErrServiceNotLoaded)
	require.ErrorIs(t, out[0].Err, resolver.ErrConfigResolution)
}

func TestDispatchMostSpecificPattern(t *testing.T) {
	d, recs := setup(t, dispatchConfig+`
  - name: tasmota
    topic: tele/#
    dispatch:
      "tele/#": [log:info]
      "tele/+/SENSOR": [log:crit]
      "tele/kitchen/SENSOR": [file:f01]
`)
	b := Bindings(d.Config())[1:]

	out := d.Dispatch(context.Background(), "tele/kitchen/SENSOR", []byte("{}"), b)
	require.Equal(t, []string{"file:f01"}, out.Targets())

	out = d.Dispatch(context.Background(), "tele/hall/SENSOR", []byte("{}"), b)
	require.Equal(t, []string{"log:crit"}, out.Targets())

	out = d.Dispatch(context.Background(), "tele/hall/STATE", []byte("{}"), b)
	require.Equal(t, []string{"log:info"}, out.Targets())

	require.Equal(t, []string{"log:crit", "log:info"}, recs["log"].Calls())
}

func TestDispatchBareServiceAndPlaceholder(t *testing.T) {
	d, recs := setup(t, dispatchConfig+`
  - name: fanout
    topic: fan/#
    targets: [file, "log:{level}"]
`)
	out := d.Dispatch(context.Background(), "fan/out", []byte(`{"level": "crit"}`), Bindings(d.Config())[1:])

	require.Equal(t, []string{"file:f01", "file:f02", "log:crit"}, out.Targets())
	require.Equal(t, 3, out.Count(Delivered))
	require.Equal(t, []string{"log:crit"}, recs["log"].Calls())

	out = d.Dispatch(context.Background(), "fan/out", []byte(`nope`), Bindings(d.Config())[1:])
	require.Equal(t, SkippedConfig, out[2].Outcome)
	require.ErrorIs(t, out[2].Err, ErrBadTarget)
}

func TestDispatchFilter(t *testing.T) {
	d, recs := setup(t, dispatchConfig+`
  - name: filtered
    topic: f/#
    filter:
      rejected:
        - key: state
          value: "OFF"
    targets: [log:info]
`)
	b := Bindings(d.Config())[1:]

	require.Empty(t, d.Dispatch(context.Background(), "f/1", []byte(`{"state":"OFF"}`), b))
	require.Len(t, d.Dispatch(context.Background(), "f/1", []byte(`{"state":"ON"}`), b), 1)
	require.Len(t, recs["log"].Calls(), 1)
}

func TestDispatchFormatFallback(t *testing.T) {
	d, recs := setup(t, dispatchConfig+`
  - name: plain
    topic: plain/#
    format: "{missing} degrees"
    priority: 3
    targets: [log:info]
  - name: untitled
    topic: plain/#
    targets: [log:crit]
`)
	out := d.Dispatch(context.Background(), "plain/x", []byte("raw"), Bindings(d.Config())[1:])
	require.Equal(t, 2, out.Count(Delivered))

	calls := recs["log"].items
	require.Equal(t, "", calls[0].Message)
	require.Equal(t, "raw", calls[0].Text())
	require.Equal(t, 3, calls[0].Priority)
	require.Equal(t, "mqttwarn: plain/x", calls[1].Title)
	require.Equal(t, 0, calls[1].Priority)
}

func TestDispatchTargetConfigMerge(t *testing.T) {
	d, recs := setup(t, `
defaults:
  options:
    a: default
    b: default
services:
  log:
    options:
      b: service
      c: service
    targets:
      info:
        addrs: [info]
        options:
          c: target
sections:
  - name: s
    topic: "#"
    targets: [log:info]
`)
	d.Dispatch(context.Background(), "x", []byte("1"), Bindings(d.Config()))

	require.Equal(t, map[string]any{"a": "default", "b": "service", "c": "target"}, recs["log"].last().Config)
}

func TestFailover(t *testing.T) {
	d, recs := setup(t, dispatchConfig+`
failover:
  targets: [log:crit]
`)
	out := d.Failover(context.Background(), "upstream", "lost connection")

	require.Equal(t, []string{"log:crit"}, out.Targets())
	it := recs["log"].last()
	require.Equal(t, FailoverTopic, it.Topic)
	require.Equal(t, "lost connection", it.Text())
	require.Equal(t, "upstream", it.Data["reason"])
	require.Equal(t, "mqttwarn: upstream", it.Title)
}

func TestFailoverNotConfigured(t *testing.T) {
	d, _ := setup(t, dispatchConfig)
	require.Nil(t, d.Failover(context.Background(), "upstream", "lost"))
}

func TestBreakerOpens(t *testing.T) {
	d, recs := setup(t, `
services:
  log:
    options:
      breaker_failures: 2
      breaker_timeout: 1h
    targets:
      info: [info]
sections:
  - name: s
    topic: "#"
    targets: [log:info]
`)
	recs["log"].fail["info"] = errors.New("down")
	b := Bindings(d.Config())

	for range 3 {
		out := d.Dispatch(context.Background(), "x", []byte("1"), b)
		require.Equal(t, Failed, out[0].Outcome)
	}
	require.Len(t, recs["log"].Calls(), 2)
}

func TestDispatchTitleFallback(t *testing.T) {
	d, recs := setup(t, dispatchConfig+`
  - name: titled
    topic: titled/#
    title: "Sensor {missing}"
    targets: [log:info]
`)
	out := d.Dispatch(context.Background(), "titled/x", []byte("1"), Bindings(d.Config())[1:])

	require.Equal(t, Delivered, out[0].Outcome)
	require.Equal(t, "mqttwarn: titled/x", recs["log"].last().Title)
}

func TestDispatchNumericTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout string
	}{
		{"integer seconds", "5"},
		{"quoted seconds", `"5"`},
		{"with unit", "5s"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, recs := setup(t, `
services:
  log:
    targets:
      info:
        addrs: [info]
        options:
          timeout: `+tc.timeout+`
sections:
  - name: s
    topic: "#"
    targets: [log:info]
`)
			b := Bindings(d.Config())
			for range 10 {
				out := d.Dispatch(context.Background(), "x", []byte("1"), b)
				require.Equal(t, Delivered, out[0].Outcome)
			}
			require.Len(t, recs["log"].Calls(), 10)
		})
	}
}

func TestBreakerOffByDefault(t *testing.T) {
	d, recs := setup(t, dispatchConfig)
	recs["log"].fail["info"] = errors.New("down")
	b := Bindings(d.Config())

	for range 10 {
		out := d.Dispatch(context.Background(), "homie/a/b/c", []byte("1"), b)
		require.Equal(t, Failed, out[1].Outcome)
		require.ErrorIs(t, out[1].Err, plugin.ErrDelivery)
	}
	require.Len(t, recs["log"].Calls(), 10)
}
