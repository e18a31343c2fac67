package plugin

import (
	"log/slog"

	"github.com/spf13/cast"
)

// BaseService provides the name and logging plumbing shared by all services.
// Embed it in plugin implementations and override Initialize when options
// need parsing; call BaseService.Initialize first.
type BaseService struct {
	// name is the configured name of this service instance
	name string

	// plugin is the plugin type unique identifier
	plugin string

	// Options holds the service-level options passed to Initialize.
	Options map[string]any

	// Logger is pre-populated with service and plugin attributes.
	Logger *slog.Logger
}

// NewBaseService creates a new BaseService instance.
// This function is typically not needed by plugins since they should embed
// BaseService directly in their struct.
func NewBaseService(name, plugin string) *BaseService {
	b := &BaseService{plugin: plugin}
	_ = b.Initialize(name, nil)
	return b
}

// Initialize stores name and options.
func (b *BaseService) Initialize(name string, options map[string]any) error {
	b.name = name
	if options == nil {
		options = map[string]any{}
	}
	b.Options = options
	b.Logger = slog.Default().With(slog.String("service", name), slog.String("plugin", b.plugin))
	return nil
}

// GetName returns the configured name of this service instance.
func (b *BaseService) GetName() string {
	return b.name
}

// SetPluginType records the plugin type used in log attributes.
func (b *BaseService) SetPluginType(plugin string) {
	b.plugin = plugin
}

// PluginType returns the plugin type identifier.
func (b *BaseService) PluginType() string {
	return b.plugin
}

// Option returns a service-level option as string.
func (b *BaseService) Option(key, def string) string {
	v, ok := b.Options[key]
	if !ok || v == nil {
		return def
	}
	return cast.ToString(v)
}

// Cleanup is a no-op; services holding connections override it.
func (b *BaseService) Cleanup() {}
