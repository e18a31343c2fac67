package plugin

import (
	"context"
	"encoding/gob"
	"errors"
	"net/rpc"
	"time"

	goplugin "github.com/hashicorp/go-plugin"
	"mqw.szuro.net/pkg/item"
)

// Handshake is the shared configuration between mqwd and external plugins.
// This must match exactly between the main application and all plugins
// to ensure compatibility.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "MQW_PLUGIN",
	MagicCookieValue: "notification_item_pipeline",
}

// PluginKey is the name external plugins serve their service under.
const PluginKey = "service"

func init() {
	// item.Data and item.Config carry decoded YAML/JSON values
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(time.Time{})
}

// ServicePlugin implements goplugin.Plugin for the net/rpc protocol.
type ServicePlugin struct {
	// Impl is the concrete service, only set on the plugin side
	Impl Service
}

// Server is called by go-plugin inside the plugin process.
func (p *ServicePlugin) Server(*goplugin.MuxBroker) (any, error) {
	return &ServiceRPCServer{Impl: p.Impl}, nil
}

// Client is called by go-plugin inside mqwd.
func (p *ServicePlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (any, error) {
	return &ServiceRPCClient{client: c}, nil
}

// Serve runs impl as an external plugin; it blocks until mqwd disconnects.
func Serve(impl Service) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			PluginKey: &ServicePlugin{Impl: impl},
		},
	})
}

// Ack is the placeholder argument and reply of calls without data;
// gob refuses structs without exported fields.
type Ack struct {
	OK bool
}

type InitializeArgs struct {
	Name    string
	Options map[string]any
}

type DeliverArgs struct {
	Item    item.Item
	Timeout time.Duration
}

// ServiceRPCServer exposes a Service over net/rpc.
type ServiceRPCServer struct {
	Impl Service
}

func (s *ServiceRPCServer) Initialize(args InitializeArgs, resp *Ack) error {
	if err := s.Impl.Initialize(args.Name, args.Options); err != nil {
		return err
	}
	resp.OK = true
	return nil
}

func (s *ServiceRPCServer) GetName(_ Ack, resp *string) error {
	*resp = s.Impl.GetName()
	return nil
}

func (s *ServiceRPCServer) Deliver(args DeliverArgs, resp *Ack) error {
	ctx := context.Background()
	if args.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, args.Timeout)
		defer cancel()
	}
	if err := s.Impl.Deliver(ctx, &args.Item); err != nil {
		return err
	}
	resp.OK = true
	return nil
}

func (s *ServiceRPCServer) Cleanup(_ Ack, resp *Ack) error {
	s.Impl.Cleanup()
	resp.OK = true
	return nil
}

// ServiceRPCClient is the host side of an external plugin.
type ServiceRPCClient struct {
	client *rpc.Client
	name   string
}

func (c *ServiceRPCClient) Initialize(name string, options map[string]any) error {
	c.name = name
	return c.client.Call("Plugin.Initialize", InitializeArgs{Name: name, Options: options}, &Ack{})
}

func (c *ServiceRPCClient) GetName() string {
	if c.name != "" {
		return c.name
	}
	var name string
	if err := c.client.Call("Plugin.GetName", Ack{}, &name); err != nil {
		return ""
	}
	return name
}

// Deliver forwards the item; the remaining ctx budget travels as a timeout.
func (c *ServiceRPCClient) Deliver(ctx context.Context, it *item.Item) error {
	args := DeliverArgs{Item: *it}
	if dl, ok := ctx.Deadline(); ok {
		args.Timeout = time.Until(dl)
	}
	call := c.client.Go("Plugin.Deliver", args, &Ack{}, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-call.Done:
		if res.Error != nil {
			var se rpc.ServerError
			if errors.As(res.Error, &se) {
				return errors.New(string(se))
			}
			return res.Error
		}
		return nil
	}
}

func (c *ServiceRPCClient) Cleanup() {
	_ = c.client.Call("Plugin.Cleanup", Ack{}, &Ack{})
}
