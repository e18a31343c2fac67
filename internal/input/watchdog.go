package input

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mqw.szuro.net/internal/config"
	"mqw.szuro.net/internal/logger"
	"mqw.szuro.net/internal/topic"
)

// TopicWatchdog reports sections whose topic stayed silent for longer than
// the section timeout. After a report the timer re-arms, so a topic that
// stays silent is reported once per timeout period.
type TopicWatchdog struct {
	dispatcher Dispatcher
	interval   time.Duration
	now        func() time.Time

	mu      sync.Mutex
	watched []*watched
}

type watched struct {
	section  string
	filter   string
	timeout  time.Duration
	lastSeen time.Time
}

func NewTopicWatchdog(dispatcher Dispatcher, sections []config.Section, interval time.Duration) *TopicWatchdog {
	w := &TopicWatchdog{dispatcher: dispatcher, interval: interval, now: time.Now}
	start := w.now()
	for _, s := range sections {
		if s.Timeout <= 0 {
			continue
		}
		w.watched = append(w.watched, &watched{section: s.Name, filter: s.Topic, timeout: s.Timeout, lastSeen: start})
	}
	return w
}

func (w *TopicWatchdog) Seen(t string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range w.watched {
		if topic.Matches(e.filter, t) {
			e.lastSeen = w.now()
		}
	}
}

// Check reports every section that went silent since the last check.
func (w *TopicWatchdog) Check(ctx context.Context) int {
	w.mu.Lock()
	now := w.now()
	var silent []*watched
	for _, e := range w.watched {
		if now.Sub(e.lastSeen) > e.timeout {
			e.lastSeen = now
			silent = append(silent, e)
		}
	}
	w.mu.Unlock()

	for _, e := range silent {
		msg := fmt.Sprintf("Timeout for topic %s after %s (section %s)", e.filter, e.timeout, e.section)
		logger.Warn("Topic went silent", slog.String("section", e.section), slog.String("topic", e.filter))
		w.dispatcher.Failover(ctx, "timeout", msg)
	}
	return len(silent)
}

// Run checks on every interval until ctx ends.
func (w *TopicWatchdog) Run(ctx context.Context) error {
	if len(w.watched) == 0 {
		return nil
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}
