package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"mqw.szuro.net/internal/logger"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the file at path on change and hands every successfully
// parsed configuration to apply. Invalid edits are logged and ignored. The
// directory is watched instead of the file so editors that replace the file
// are picked up. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, apply func(*MQWConf)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch init failed: %w", err)
	}
	defer w.Close()

	dir, file := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config watch add failed for %s: %w", dir, err)
	}
	logger.Debug("Config watcher started", slog.String("path", path))

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		conf, err := Load(path)
		if err != nil {
			logger.Warn("Config reload rejected", slog.String("path", path), slog.Any("error", err))
			ConfigReloads.WithLabelValues("rejected").Inc()
			return
		}
		ConfigReloads.WithLabelValues("applied").Inc()
		logger.Info("Config reloaded", slog.String("path", path))
		apply(conf)
	}
	debounce := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, reload)
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Config watch error", slog.String("path", path), slog.Any("error", err))
		}
	}
}
