package plugin

import (
	"fmt"
	"log/slog"
	"os/exec"

	goplugin "github.com/hashicorp/go-plugin"
	"mqw.szuro.net/internal/logger"
	pluginPkg "mqw.szuro.net/pkg/plugin"
)

// LoadExternal registers an executable speaking the go-plugin net/rpc
// protocol as service type name. The process is started on first use.
func (pr *PluginRegistry) LoadExternal(name, path string) error {
	logger.Info("Loading external plugin", slog.String("name", name), slog.String("path", path))

	if name == "" {
		name = nameFromPath(path)
	}
	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: pluginPkg.Handshake,
		Plugins: map[string]goplugin.Plugin{
			pluginPkg.PluginKey: &pluginPkg.ServicePlugin{},
		},
		Cmd:              exec.Command(path),
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
		Logger:           logger.NewHCLogAdapter(name),
	})

	pr.store(&LoadedPlugin{
		Info:   pluginPkg.PluginInfo{Name: name, Version: "unknown", Type: "external"},
		Path:   path,
		client: client,
		create: func() (pluginPkg.Service, error) {
			return dispense(name, client)
		},
	})
	return nil
}

func dispense(name string, client *goplugin.Client) (pluginPkg.Service, error) {
	rpcClient, err := client.Client()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to plugin %s: %w", name, err)
	}

	raw, err := rpcClient.Dispense(pluginPkg.PluginKey)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense service from plugin %s: %w", name, err)
	}

	svc, ok := raw.(pluginPkg.Service)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin %s did not return a valid service client", name)
	}
	return svc, nil
}

// CleanupAll shuts down all external plugin processes.
func (pr *PluginRegistry) CleanupAll() {
	pr.mutex.Lock()
	defer pr.mutex.Unlock()

	for name, p := range pr.plugins {
		if p.client == nil {
			continue
		}
		logger.Info("Killing external plugin", slog.String("name", name))
		p.client.Kill()
	}
}
