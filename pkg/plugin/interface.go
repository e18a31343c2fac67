// Package plugin provides interfaces and types for creating mqw service plugins.
//
// A service plugin delivers a notification item to exactly one kind of
// external sink (a file, a redis channel, a push API, ...). The daemon ships a
// set of built-in services and can load more at runtime, either as Go shared
// libraries (.so files) or as standalone executables speaking the net/rpc
// protocol of hashicorp/go-plugin.
//
// Creating an in-process plugin:
//
// 1. Implement the Service interface
// 2. Embed BaseService for the name and logger plumbing
// 3. Export PluginInfo variable and NewService() function
// 4. Compile as shared library: go build -buildmode=plugin
//
// Example plugin structure:
//
//	package main
//
//	import (
//	    "context"
//
//	    "mqw.szuro.net/pkg/item"
//	    "mqw.szuro.net/pkg/plugin"
//	)
//
//	var PluginInfo = plugin.PluginInfo{
//	    Name:    "my-plugin",
//	    Version: "1.0.0",
//	}
//
//	type MyService struct {
//	    plugin.BaseService
//	}
//
//	func NewService() plugin.Service {
//	    return &MyService{}
//	}
//
//	func (s *MyService) Deliver(ctx context.Context, it *item.Item) error {
//	    // write it.Text() somewhere
//	    return nil
//	}
package plugin

import (
	"context"

	"mqw.szuro.net/pkg/item"
)

// PluginInfo contains metadata about a plugin.
// Plugins should export a variable of this type named "PluginInfo" to provide
// information about the plugin to mqw and users.
type PluginInfo struct {
	// Name is the service type used in configuration (services.<name>.type).
	Name string

	// Version is the semantic version of the plugin (e.g., "1.0.0").
	Version string

	// Description provides a brief description of what the plugin does.
	Description string

	// Author identifies who created or maintains the plugin.
	Author string

	// Type is "builtin", "plugin" (shared library) or "external".
	Type string
}

// Service is the contract every delivery backend implements.
//
// Deliver must not panic; a nil error means the item was delivered, any
// other value marks the delivery as failed. Implementations must honour ctx
// cancellation where the backend API allows it.
type Service interface {
	// Initialize is called once with the service name and its options from
	// configuration. Options are the service-level defaults; per-target
	// overrides arrive merged in item.Config.
	Initialize(name string, options map[string]any) error

	// GetName returns the configured service name.
	GetName() string

	// Deliver attempts delivery of one item.
	Deliver(ctx context.Context, it *item.Item) error

	// Cleanup releases connections and handles.
	Cleanup()
}

// Reentrant is implemented by services that can handle concurrent Deliver
// calls. Services that do not implement it are serialised by the dispatcher.
type Reentrant interface {
	Reentrant() bool
}

// ServiceFactory creates a fresh, uninitialised service.
type ServiceFactory func() Service

// IsReentrant reports whether s declared itself safe for concurrent use.
func IsReentrant(s Service) bool {
	r, ok := s.(Reentrant)
	return ok && r.Reentrant()
}
