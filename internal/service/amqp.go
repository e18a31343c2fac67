package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

// AMQP publishes the message to exchange addrs[0] with routing key
// addrs[1]. The connection is opened lazily and reopened after it closes.
type AMQP struct {
	plugin.BaseService
	mu    sync.Mutex
	conns map[string]*amqp.Connection
}

func (a *AMQP) connection(uri string) (*amqp.Connection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.conns[uri]; ok && !c.IsClosed() {
		return c, nil
	}
	c, err := amqp.Dial(uri)
	if err != nil {
		return nil, err
	}
	if a.conns == nil {
		a.conns = map[string]*amqp.Connection{}
	}
	a.conns[uri] = c
	return c, nil
}

func (a *AMQP) Deliver(ctx context.Context, it *item.Item) error {
	exchange, err := it.Addr(0)
	if err != nil {
		return err
	}
	routingKey, err := it.Addr(1)
	if err != nil {
		return err
	}
	uri := it.ConfigString("uri", "")
	if uri == "" {
		return fmt.Errorf("%w: amqp uri not configured", plugin.ErrInvalidAddress)
	}

	conn, err := a.connection(uri)
	if err != nil {
		return fmt.Errorf("cannot connect to AMQP broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("cannot open AMQP channel: %w", err)
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Transient,
		Headers:      amqp.Table{"x-agent": "mqw"},
		Body:         []byte(it.Text()),
	})
	if err != nil {
		return fmt.Errorf("error on AMQP publish to %s/%s: %w", exchange, routingKey, err)
	}
	a.Logger.Debug("Published AMQP notification", slog.String("exchange", exchange), slog.String("routing_key", routingKey))
	return nil
}

func (a *AMQP) Cleanup() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for uri, c := range a.conns {
		_ = c.Close()
		delete(a.conns, uri)
	}
}
