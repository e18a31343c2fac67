package service

import (
	"context"
	"fmt"
	"log/slog"

	"mqw.szuro.net/internal/logger"
	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

// LevelCritical sits above slog's error level, as "crit" does in the
// configuration.
const LevelCritical = slog.LevelError + 4

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
	"crit":  LevelCritical,
}

// Log writes the message to the daemon log at the level named by addrs[0].
type Log struct {
	plugin.BaseService
}

func (l *Log) Reentrant() bool { return true }

func (l *Log) Deliver(ctx context.Context, it *item.Item) error {
	name, err := it.Addr(0)
	if err != nil {
		return err
	}
	level, ok := logLevels[name]
	if !ok {
		return fmt.Errorf("%w: unknown log level %q", plugin.ErrInvalidAddress, name)
	}
	logger.Slog().Log(ctx, level, it.Text(),
		slog.String("service", it.Service),
		slog.String("target", it.Target),
		slog.String("topic", it.Topic))
	return nil
}

// Noop accepts everything.
type Noop struct {
	plugin.BaseService
}

func (n *Noop) Reentrant() bool { return true }

func (n *Noop) Deliver(ctx context.Context, it *item.Item) error {
	n.Logger.Debug("Dropping message", slog.String("target", it.Target), slog.String("topic", it.Topic))
	return nil
}
