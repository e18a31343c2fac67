package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
log_level: DEBUG
defaults:
  title: hive
  options:
    append_newline: true
services:
  file:
    options:
      overwrite: false
    targets:
      f01: ["/tmp/f01.log"]
      f02:
        addrs: ["/tmp/f02.log"]
        options:
          overwrite: true
  log:
    targets:
      info: [info]
  redis:
    type: redispub
    options:
      host: redis.local
      port: "6380"
    targets:
      bees: [hive]
sections:
  - name: homie
    topic: homie/#
    datamap: decode_homie_topic
    format: "{device}: {payload}"
    targets: [log:info, file:f01]
  - name: tasmota
    topic: tele/#
    priority: 2
    dispatch:
      "tele/+/SENSOR": [redis:bees]
      "tele/#": [log:info]
failover:
  targets: [log:info]
cron:
  - name: heartbeat
    schedule: "@every 1m"
    topic: mqw/heartbeat
`

func TestParse(t *testing.T) {
	conf, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	require.Equal(t, DefaultBuffer, conf.BufferSize)
	require.Equal(t, DefaultWorkers, conf.NumWorkers)
	require.Equal(t, DefaultListenPort, conf.Http.ListenPort)
	require.Equal(t, DefaultTimeout, conf.Defaults.Timeout)
	require.Equal(t, "hive", conf.Defaults.Title)

	file, ok := conf.GetService("file")
	require.True(t, ok)
	require.Equal(t, "file", file.Type)
	require.Equal(t, []string{"/tmp/f01.log"}, file.Targets["f01"].Addrs)
	require.Equal(t, []string{"/tmp/f02.log"}, file.Targets["f02"].Addrs)
	require.Equal(t, true, file.Targets["f02"].Options["overwrite"])

	redis, _ := conf.GetService("redis")
	require.Equal(t, "redispub", redis.Type)

	require.Len(t, conf.Sections, 2)
	require.Equal(t, 2, *conf.Sections[1].Priority)
	require.Nil(t, conf.Sections[0].Priority)
	require.ElementsMatch(t, []string{"redis:bees", "log:info"}, conf.Sections[1].AllTargets())

	require.NotNil(t, conf.Failover)
	require.Equal(t, "failover", conf.Failover.Name)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"Section without topic", "sections:\n  - name: x\n    targets: [log:info]\n"},
		{"Section without targets", "sections:\n  - name: x\n    topic: a/b\n"},
		{"Bad log format", "log_format: xml\n"},
		{"Cron without schedule", "cron:\n  - name: x\n    topic: a\n"},
		{"Not yaml", "::: ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)
		})
	}
}

func TestSetPort(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"Zero Port", 0, DefaultListenPort},
		{"Non-Zero Port", 8080, 8080},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := MQWConf{Http: HTTPConf{ListenPort: tt.input}}
			conf.setPort()
			require.Equal(t, tt.expected, conf.Http.ListenPort)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MQW_LOG_LEVEL", "ERROR")
	t.Setenv("MQW_LISTEN_PORT", "9999")
	t.Setenv("MQW_NUM_WORKERS", "4")

	conf, err := Parse([]byte("log_level: DEBUG\n"))
	require.NoError(t, err)
	require.Equal(t, "ERROR", conf.LogLevel)
	require.Equal(t, 9999, conf.Http.ListenPort)
	require.Equal(t, 4, conf.NumWorkers)
}

func TestSplitTarget(t *testing.T) {
	tests := []struct {
		ref, service, target string
	}{
		{"file:f01", "file", "f01"},
		{"log", "log", ""},
		{" log : info ", "log", "info"},
		{"http:a:b", "http", "a:b"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			s, tg := SplitTarget(tt.ref)
			require.Equal(t, tt.service, s)
			require.Equal(t, tt.target, tg)
		})
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mqwd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("num_workers: 1\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *MQWConf, 4)
	go func() {
		_ = Watch(ctx, path, func(c *MQWConf) { got <- c })
	}()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("num_workers: 3\n"), 0o644))

	select {
	case c := <-got:
		require.Equal(t, 3, c.NumWorkers)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}
