package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"mqw.szuro.net/internal/config"
	"mqw.szuro.net/pkg/item"
)

type collector struct {
	mu     sync.Mutex
	events []item.Event
}

func (c *collector) Publish(_ context.Context, source string, ev item.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return true
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestSchedulerRunsJobs(t *testing.T) {
	c := &collector{}
	s := New(c, []config.CronJob{
		{Name: "now", Schedule: "@every 1h", Topic: "mqw/boot", Payload: "up", Now: true},
		{Name: "tick", Schedule: "@every 1s", Topic: "mqw/tick"},
	})
	require.NoError(t, s.Validate())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Equal(t, "mqw/boot", c.events[0].Topic)
	require.Equal(t, "up", string(c.events[0].Payload))
	require.Eventually(t, func() bool { return c.count() >= 2 }, 3*time.Second, 50*time.Millisecond)
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := New(&collector{}, []config.CronJob{{Name: "bad", Schedule: "every day", Topic: "x"}})
	require.Error(t, s.Validate())
	require.Error(t, s.Start(context.Background()))
}
