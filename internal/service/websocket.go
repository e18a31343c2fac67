package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

// Websocket opens a connection to addrs[0], sends the message as one text
// frame and closes.
type Websocket struct {
	plugin.BaseService
}

func (w *Websocket) Reentrant() bool { return true }

func (w *Websocket) Deliver(ctx context.Context, it *item.Item) error {
	raw, err := it.Addr(0)
	if err != nil {
		return err
	}
	uri, err := interpolate(it, raw)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, uri, nil)
	if err != nil {
		return fmt.Errorf("cannot connect to websocket %s: %w", uri, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(it.Text())); err != nil {
		return fmt.Errorf("cannot write to websocket %s: %w", uri, err)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return nil
}
