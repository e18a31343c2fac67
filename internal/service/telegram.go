package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tele "gopkg.in/telebot.v4"
	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

// Telegram sends the message to chat addrs[0] (numeric id or @channel).
type Telegram struct {
	plugin.BaseService
	mu   sync.Mutex
	bots map[string]*tele.Bot
}

func (t *Telegram) Reentrant() bool { return true }

func (t *Telegram) bot(token, apiURL string) (*tele.Bot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.bots[token]; ok {
		return b, nil
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		URL:     apiURL,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	if t.bots == nil {
		t.bots = map[string]*tele.Bot{}
	}
	t.bots[token] = b
	return b, nil
}

type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

func (t *Telegram) Deliver(ctx context.Context, it *item.Item) error {
	chat, err := it.Addr(0)
	if err != nil {
		return err
	}
	if _, err := strconv.ParseInt(chat, 10, 64); err != nil && (len(chat) < 2 || chat[0] != '@') {
		return fmt.Errorf("%w: telegram chat %q", plugin.ErrInvalidAddress, chat)
	}
	token := it.ConfigString("token", "")
	if token == "" {
		return fmt.Errorf("%w: telegram token not configured", plugin.ErrInvalidAddress)
	}
	b, err := t.bot(token, it.ConfigString("api_url", ""))
	if err != nil {
		return fmt.Errorf("cannot create telegram bot: %w", err)
	}

	opts := &tele.SendOptions{DisableNotification: it.Priority < 0}
	if mode := it.ConfigString("parse_mode", ""); mode != "" {
		opts.ParseMode = tele.ParseMode(mode)
	}
	if _, err := b.Send(chatRecipient(chat), it.Text(), opts); err != nil {
		return fmt.Errorf("cannot send to telegram chat %s: %w", chat, err)
	}
	return nil
}
