package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

const celeryDefaultQueue = "celery"

// Celery enqueues one task per address on a Redis broker, using the Celery
// message protocol version 2. The message is the single positional
// argument; with message_format "json" it is decoded first.
type Celery struct {
	plugin.BaseService
	redisClients
}

func (c *Celery) Reentrant() bool { return true }

func (c *Celery) Deliver(ctx context.Context, it *item.Item) error {
	if len(it.Addrs) == 0 {
		return item.ErrMissingAddress
	}
	broker := it.ConfigString("broker_url", "")
	addr, db, err := parseRedisURL(broker)
	if err != nil {
		return err
	}
	queue := it.ConfigString("queue", celeryDefaultQueue)

	var arg any = it.Text()
	if it.ConfigString("message_format", "") == "json" {
		if err := json.Unmarshal([]byte(it.Text()), &arg); err != nil {
			return fmt.Errorf("message is not JSON: %w", err)
		}
	}

	client := c.get(addr, db)
	for _, task := range it.Addrs {
		msg, err := celeryMessage(it.ConfigString("app_name", "mqw"), task, queue, arg)
		if err != nil {
			return err
		}
		if err := client.LPush(ctx, queue, msg).Err(); err != nil {
			return fmt.Errorf("cannot enqueue task %s on %s: %w", task, addr, err)
		}
		c.Logger.Debug("Enqueued task", slog.String("task", task), slog.String("queue", queue))
	}
	return nil
}

func (c *Celery) Cleanup() {
	c.close()
}

// parseRedisURL accepts redis://[:password@]host[:port][/db].
func parseRedisURL(raw string) (addr string, db int, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "redis" || u.Host == "" {
		return "", 0, fmt.Errorf("%w: broker_url %q must be redis://host:port/db", plugin.ErrInvalidAddress, raw)
	}
	addr = u.Host
	if u.Port() == "" {
		addr += ":6379"
	}
	if p := strings.Trim(u.Path, "/"); p != "" {
		if db, err = strconv.Atoi(p); err != nil {
			return "", 0, fmt.Errorf("%w: redis db %q", plugin.ErrInvalidAddress, p)
		}
	}
	return addr, db, nil
}

func celeryMessage(app, task, queue string, arg any) (string, error) {
	id := uuid.NewString()
	body, err := json.Marshal([]any{
		[]any{arg},
		map[string]any{},
		map[string]any{"callbacks": nil, "errbacks": nil, "chain": nil, "chord": nil},
	})
	if err != nil {
		return "", err
	}
	argsRepr, _ := json.Marshal([]any{arg})

	envelope := map[string]any{
		"body":             base64.StdEncoding.EncodeToString(body),
		"content-encoding": "utf-8",
		"content-type":     "application/json",
		"headers": map[string]any{
			"lang":       "py",
			"task":       task,
			"id":         id,
			"root_id":    id,
			"parent_id":  nil,
			"group":      nil,
			"retries":    0,
			"eta":        nil,
			"expires":    nil,
			"argsrepr":   string(argsRepr),
			"kwargsrepr": "{}",
			"origin":     app,
		},
		"properties": map[string]any{
			"correlation_id": id,
			"reply_to":       "",
			"delivery_mode":  2,
			"delivery_info":  map[string]any{"exchange": "", "routing_key": queue},
			"priority":       0,
			"body_encoding":  "base64",
			"delivery_tag":   uuid.NewString(),
		},
	}
	out, err := json.Marshal(envelope)
	return string(out), err
}
