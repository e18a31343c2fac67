package service

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

// redisClients caches one client per address. go-redis clients are safe
// for concurrent use and reconnect on their own.
type redisClients struct {
	mu      sync.Mutex
	clients map[string]*redis.Client
}

func (rc *redisClients) get(addr string, db int) *redis.Client {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	key := addr + "/" + strconv.Itoa(db)
	if c, ok := rc.clients[key]; ok {
		return c
	}
	if rc.clients == nil {
		rc.clients = map[string]*redis.Client{}
	}
	c := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	rc.clients[key] = c
	return c
}

func (rc *redisClients) close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for k, c := range rc.clients {
		_ = c.Close()
		delete(rc.clients, k)
	}
}

// RedisPub publishes the message on the channel addrs[0] of the server at
// host/port.
type RedisPub struct {
	plugin.BaseService
	redisClients
}

func (r *RedisPub) Reentrant() bool { return true }

func (r *RedisPub) Deliver(ctx context.Context, it *item.Item) error {
	channel, err := it.Addr(0)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(it.ConfigString("host", "localhost"), strconv.Itoa(it.ConfigInt("port", 6379)))
	client := r.get(addr, it.ConfigInt("db", 0))

	if err := client.Publish(ctx, channel, it.Text()).Err(); err != nil {
		return fmt.Errorf("cannot publish to redis on %s: %w", addr, err)
	}
	r.Logger.Debug("Published to redis", slog.String("addr", addr), slog.String("channel", channel))
	return nil
}

func (r *RedisPub) Cleanup() {
	r.close()
}
