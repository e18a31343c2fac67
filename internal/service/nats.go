package service

import (
	"context"
	"fmt"
	"sync"

	natspkg "github.com/nats-io/nats.go"
	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

// NATS publishes the message on subject addrs[0]. The title travels in the
// Mqw-Title header.
type NATS struct {
	plugin.BaseService
	mu    sync.Mutex
	conns map[string]*natspkg.Conn
}

func (n *NATS) Reentrant() bool { return true }

func (n *NATS) connection(url string) (*natspkg.Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if c, ok := n.conns[url]; ok && !c.IsClosed() {
		return c, nil
	}
	c, err := natspkg.Connect(url, natspkg.Name("mqwd"))
	if err != nil {
		return nil, err
	}
	if n.conns == nil {
		n.conns = map[string]*natspkg.Conn{}
	}
	n.conns[url] = c
	return c, nil
}

func (n *NATS) Deliver(ctx context.Context, it *item.Item) error {
	subject, err := it.Addr(0)
	if err != nil {
		return err
	}
	subject, err = interpolate(it, subject)
	if err != nil {
		return err
	}
	url := it.ConfigString("url", natspkg.DefaultURL)
	conn, err := n.connection(url)
	if err != nil {
		return fmt.Errorf("cannot connect to NATS at %s: %w", url, err)
	}

	msg := natspkg.NewMsg(subject)
	msg.Data = []byte(it.Text())
	msg.Header.Set("Mqw-Title", it.Title)
	msg.Header.Set("Mqw-Topic", it.Topic)
	if err := conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("cannot publish to %s: %w", subject, err)
	}
	if it.ConfigBool("flush", false) {
		return conn.FlushWithContext(ctx)
	}
	return nil
}

func (n *NATS) Cleanup() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for url, c := range n.conns {
		c.Close()
		delete(n.conns, url)
	}
}
