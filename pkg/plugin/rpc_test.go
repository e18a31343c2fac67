package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goplugin "github.com/hashicorp/go-plugin"
	"github.com/stretchr/testify/require"
	"mqw.szuro.net/pkg/item"
)

type recordingService struct {
	BaseService
	mu   sync.Mutex
	last item.Item
}

func (r *recordingService) Deliver(ctx context.Context, it *item.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = *it
	if it.Text() == "fail" {
		return errors.New("backend refused")
	}
	if it.Text() == "slow" {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func dispense(t *testing.T, impl Service) Service {
	client, _ := goplugin.TestPluginRPCConn(t, map[string]goplugin.Plugin{
		PluginKey: &ServicePlugin{Impl: impl},
	}, nil)
	t.Cleanup(func() { client.Close() })

	raw, err := client.Dispense(PluginKey)
	require.NoError(t, err)
	svc, ok := raw.(Service)
	require.True(t, ok)
	return svc
}

func TestRPCRoundTrip(t *testing.T) {
	impl := &recordingService{}
	svc := dispense(t, impl)

	require.NoError(t, svc.Initialize("remote", map[string]any{"out": "stdout"}))
	require.Equal(t, "remote", svc.GetName())
	require.Equal(t, "stdout", impl.Option("out", ""))

	it := &item.Item{
		Service: "remote",
		Target:  "t1",
		Topic:   "homie/bee1/weight/value",
		Payload: []byte("42.42"),
		Data:    map[string]any{"device": "bee1", "nested": map[string]any{"a": 1}},
		Addrs:   []string{"x"},
	}
	require.NoError(t, svc.Deliver(context.Background(), it))

	impl.mu.Lock()
	require.Equal(t, "homie/bee1/weight/value", impl.last.Topic)
	require.Equal(t, "bee1", impl.last.Data["device"])
	impl.mu.Unlock()

	err := svc.Deliver(context.Background(), &item.Item{Message: "fail"})
	require.EqualError(t, err, "backend refused")
}

func TestRPCDeliverHonoursDeadline(t *testing.T) {
	svc := dispense(t, &recordingService{})
	require.NoError(t, svc.Initialize("remote", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := svc.Deliver(ctx, &item.Item{Message: "slow"})
	require.Error(t, err)
}
