package service

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

var bareInteger = regexp.MustCompile(`^\d+$`)

// RRDTool runs "rrdtool update" with addrs as arguments. A bare integer
// message is sent as "N:<value>"; anything else is split on whitespace and
// appended to the argument list.
type RRDTool struct {
	plugin.BaseService
}

func (r *RRDTool) Reentrant() bool { return true }

func (r *RRDTool) Deliver(ctx context.Context, it *item.Item) error {
	if len(it.Addrs) == 0 {
		return item.ErrMissingAddress
	}
	args := rrdArgs(it.Addrs, it.Text())

	cmd := exec.CommandContext(ctx, it.ConfigString("binary", "rrdtool"), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("rrdtool update failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func rrdArgs(addrs []string, text string) []string {
	args := append([]string{"update"}, addrs...)
	text = strings.TrimSpace(text)
	if bareInteger.MatchString(text) {
		return append(args, "N:"+text)
	}
	return append(args, strings.Fields(text)...)
}
