package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"

	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

// Desktop shows a desktop notification through notify-send or osascript.
// A JSON object message may carry its own "title" and "message".
type Desktop struct {
	plugin.BaseService
	goos string
}

func (d *Desktop) Deliver(ctx context.Context, it *item.Item) error {
	title, message := desktopContent(it)
	sound := it.ConfigBool("sound", true)

	name, args, err := d.command(title, message, sound)
	if err != nil {
		return err
	}
	if out, err := exec.CommandContext(ctx, name, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("invoking %s failed: %w: %s", name, err, out)
	}
	return nil
}

func desktopContent(it *item.Item) (title, message string) {
	title = it.ConfigString("title", it.Title)
	if title == "" {
		title = it.Topic
	}
	message = it.Text()

	var m struct {
		Title   *string `json:"title"`
		Message *string `json:"message"`
	}
	if err := json.Unmarshal([]byte(message), &m); err == nil && m.Message != nil {
		message = *m.Message
		if m.Title != nil {
			title = *m.Title
		}
	}
	return title, message
}

func (d *Desktop) command(title, message string, sound bool) (string, []string, error) {
	goos := d.goos
	if goos == "" {
		goos = runtime.GOOS
	}
	switch goos {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", strconv.Quote(message), strconv.Quote(title))
		if sound {
			script += ` sound name "default"`
		}
		return "osascript", []string{"-e", script}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "notify-send", []string{"--app-name=mqw", title, message}, nil
	default:
		return "", nil, fmt.Errorf("%w: %s", plugin.ErrUnsupported, goos)
	}
}
