package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"mqw.szuro.net/pkg/item"
	pluginPkg "mqw.szuro.net/pkg/plugin"
)

const (
	STDOUT      = "stdout"
	STDERR      = "stderr"
	PLUGIN_NAME = "print"
)

// PrintService writes every item to stdout or stderr. It runs as an
// external process and is registered via external_plugins.
type PrintService struct {
	pluginPkg.BaseService
	out io.Writer
}

func NewPrintService() *PrintService {
	return &PrintService{
		BaseService: *pluginPkg.NewBaseService("", PLUGIN_NAME),
	}
}

// Initialize picks the default stream from the "stream" option.
func (p *PrintService) Initialize(name string, options map[string]any) error {
	if err := p.BaseService.Initialize(name, options); err != nil {
		return err
	}
	p.out = writerFor(p.Option("stream", STDOUT))

	p.Logger.Info("Print plugin initialized", "stream", p.Option("stream", STDOUT))
	return nil
}

// Deliver prints "title: text". The first target address, when present,
// overrides the stream.
func (p *PrintService) Deliver(ctx context.Context, it *item.Item) error {
	out := p.out
	if out == nil {
		out = os.Stdout
	}
	if addr, err := it.Addr(0); err == nil && addr != "" {
		out = writerFor(addr)
	}

	msg := it.Text()
	if it.Title != "" {
		msg = fmt.Sprintf("%s: %s", it.Title, msg)
	}
	_, err := fmt.Fprintln(out, msg)
	return err
}

func (p *PrintService) Cleanup() {
	p.Logger.Info("Cleaning up Print plugin")
}

func writerFor(stream string) io.Writer {
	switch stream {
	case STDERR:
		return os.Stderr
	default:
		return os.Stdout
	}
}

func main() {
	pluginPkg.Serve(NewPrintService())
	log.Println("Plugin exited")
}
