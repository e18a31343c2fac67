package input

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"mqw.szuro.net/internal/config"
	"mqw.szuro.net/internal/dispatch"
	"mqw.szuro.net/pkg/item"
)

type routeAll struct{}

func (routeAll) Route(topic string) []dispatch.Binding {
	if topic == "unrouted" {
		return nil
	}
	return []dispatch.Binding{{Section: "s", Topic: "#"}}
}

type fakeDispatcher struct {
	mu        sync.Mutex
	events    []item.Event
	failovers []string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, topic string, payload []byte, _ []dispatch.Binding) dispatch.Outcomes {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, item.Event{Topic: topic, Payload: payload})
	return dispatch.Outcomes{{Target: "log:info", Outcome: dispatch.Delivered}}
}

func (f *fakeDispatcher) Failover(_ context.Context, reason, message string) dispatch.Outcomes {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failovers = append(f.failovers, reason+": "+message)
	return nil
}

func (f *fakeDispatcher) Events() []item.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]item.Event(nil), f.events...)
}

func runSubject(t *testing.T, skipRetained bool) (*Subject, *fakeDispatcher) {
	t.Helper()
	d := &fakeDispatcher{}
	s := NewSubject(routeAll{}, d, 2, 10, skipRetained)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.AcceptValues(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, d
}

func TestParseEventLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		topic    string
		payload  string
		retained bool
		wantErr  bool
	}{
		{name: "string payload", line: `{"topic":"a/b","payload":"21.5"}`, topic: "a/b", payload: "21.5"},
		{name: "object payload", line: `{"topic":"a","payload":{"x":1},"retained":true}`, topic: "a", payload: `{"x":1}`, retained: true},
		{name: "null payload", line: `{"topic":"a","payload":null}`, topic: "a"},
		{name: "missing topic", line: `{"payload":"x"}`, wantErr: true},
		{name: "garbage", line: `nope`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			topic, payload, retained, err := parseEventLine([]byte(tc.line))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.topic, topic)
			require.Equal(t, tc.payload, string(payload))
			require.Equal(t, tc.retained, retained)
		})
	}
}

func TestSubjectSkipsRetained(t *testing.T) {
	s, d := runSubject(t, true)
	ctx := context.Background()

	require.True(t, s.Publish(ctx, "test", item.Event{Topic: "a", Payload: []byte("1"), Retained: true}))
	require.True(t, s.Publish(ctx, "test", item.Event{Topic: "unrouted", Payload: []byte("2")}))
	require.True(t, s.Publish(ctx, "test", item.Event{Topic: "b", Payload: []byte("3")}))

	require.Eventually(t, func() bool { return len(d.Events()) == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, "b", d.Events()[0].Topic)
}

func TestHTTPInput(t *testing.T) {
	s, d := runSubject(t, false)
	mux := http.NewServeMux()
	hi := NewHTTPInput(s, mux)
	require.NoError(t, hi.Start(context.Background()))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte("{\"topic\":\"a/1\",\"payload\":\"x\"}\nbroken\n\n{\"topic\":\"a/2\",\"payload\":{\"v\":2}}"))
	require.NoError(t, gz.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/events", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Encoding", "gzip")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/publish?topic=a/3", "text/plain", bytes.NewBufferString("raw"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/publish", "text/plain", bytes.NewBufferString("raw"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/events")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	require.Eventually(t, func() bool { return len(d.Events()) == 3 }, time.Second, 10*time.Millisecond)
	got := map[string]string{}
	for _, e := range d.Events() {
		got[e.Topic] = string(e.Payload)
	}
	require.Equal(t, map[string]string{"a/1": "x", "a/2": `{"v":2}`, "a/3": "raw"}, got)
}

func TestHTTPInputUnsupportedEncoding(t *testing.T) {
	s, _ := runSubject(t, false)
	mux := http.NewServeMux()
	require.NoError(t, NewHTTPInput(s, mux).Start(context.Background()))

	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Encoding", "br")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestFileInputResumes(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "events.ndjson")
	require.NoError(t, os.WriteFile(events, []byte("{\"topic\":\"f/1\",\"payload\":\"one\"}\n"), 0o644))

	s, d := runSubject(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	fi, err := NewFileInput(s, dir, []string{events})
	require.NoError(t, err)
	require.NoError(t, fi.Start(ctx))
	require.Eventually(t, func() bool { return len(d.Events()) == 1 }, 5*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, fi.Stop())

	f, err := os.OpenFile(events, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{\"topic\":\"f/2\",\"payload\":\"two\"}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	fi, err = NewFileInput(s, dir, []string{events})
	require.NoError(t, err)
	require.NoError(t, fi.Start(context.Background()))
	defer fi.Stop()

	require.Eventually(t, func() bool { return len(d.Events()) == 2 }, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, "f/2", d.Events()[1].Topic)
}

func TestSubjectToTopic(t *testing.T) {
	require.Equal(t, "tele/kitchen/SENSOR", SubjectToTopic("tele.kitchen.SENSOR"))
	require.Equal(t, "tele/+/SENSOR", SubjectToTopic("tele.*.SENSOR"))
	require.Equal(t, "tele/#", SubjectToTopic("tele.>"))
}

func TestNATSInputStartFails(t *testing.T) {
	s := NewSubject(nil, &fakeDispatcher{}, 1, 1, false)

	ni := NewNATSInput(s, &fakeDispatcher{}, config.NATSInputConf{})
	require.False(t, ni.IsReady())

	ni = NewNATSInput(s, &fakeDispatcher{}, config.NATSInputConf{URL: "nats://127.0.0.1:1", Subjects: []string{"tele.>"}})
	require.True(t, ni.IsReady())
	require.False(t, ni.Connected())
	require.Error(t, ni.Start(context.Background()))
}

func TestTopicWatchdog(t *testing.T) {
	d := &fakeDispatcher{}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewTopicWatchdog(d, []config.Section{
		{Name: "sensors", Topic: "tele/+/SENSOR", Timeout: time.Minute},
		{Name: "untimed", Topic: "other/#"},
	}, time.Second)
	w.now = func() time.Time { return now }
	w.watched[0].lastSeen = now

	now = now.Add(30 * time.Second)
	require.Equal(t, 0, w.Check(context.Background()))

	now = now.Add(time.Minute)
	require.Equal(t, 1, w.Check(context.Background()))
	require.Equal(t, 0, w.Check(context.Background()))
	require.Len(t, d.failovers, 1)
	require.Contains(t, d.failovers[0], "timeout: Timeout for topic tele/+/SENSOR after")

	now = now.Add(30 * time.Second)
	w.Seen("tele/hall/SENSOR")
	now = now.Add(45 * time.Second)
	require.Equal(t, 0, w.Check(context.Background()))

	now = now.Add(30 * time.Second)
	require.Equal(t, 1, w.Check(context.Background()))

	now = now.Add(61 * time.Second)
	require.Equal(t, 1, w.Check(context.Background()))
	require.Len(t, d.failovers, 3)
}
