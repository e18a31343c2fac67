package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

// File writes the message to addrs[0]. The path may hold {field}
// placeholders and $TMPDIR.
type File struct {
	plugin.BaseService
	mu sync.Mutex
}

func (f *File) Reentrant() bool { return true }

func (f *File) Deliver(ctx context.Context, it *item.Item) error {
	raw, err := it.Addr(0)
	if err != nil {
		return err
	}
	path, err := interpolate(it, raw)
	if err != nil {
		return err
	}
	if strings.Contains(path, "$TMPDIR") {
		path = strings.ReplaceAll(path, "$TMPDIR", filepath.Clean(os.TempDir()))
	}

	text := it.Text()
	if it.ConfigBool("append_newline", false) {
		text += "\n"
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if it.ConfigBool("overwrite", false) {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}

	f.Logger.Debug("Writing to file", slog.String("target", it.Target), slog.String("path", path))

	f.mu.Lock()
	defer f.mu.Unlock()
	fh, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open file %s: %w", path, err)
	}
	if _, err := fh.WriteString(text); err != nil {
		fh.Close()
		return fmt.Errorf("cannot write to file %s: %w", path, err)
	}
	return fh.Close()
}
