// Package plugin keeps the table of service types the daemon can create:
// built-in services, Go shared-library plugins and external plugin
// processes.
package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"plugin"
	"sort"
	"strings"
	"sync"

	goplugin "github.com/hashicorp/go-plugin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"mqw.szuro.net/internal/logger"
	pluginPkg "mqw.szuro.net/pkg/plugin"
)

var ErrPluginNotFound = errors.New("plugin not found")

var pluginInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "mqw_plugin_info",
		Help: "Information about loaded plugins",
	},
	[]string{"plugin_name", "plugin_type", "plugin_version"},
)

type PluginRegistry struct {
	plugins map[string]*LoadedPlugin
	mutex   sync.RWMutex
}

type LoadedPlugin struct {
	Info   pluginPkg.PluginInfo
	Path   string
	create func() (pluginPkg.Service, error)
	client *goplugin.Client
}

var registry = NewRegistry()

func GetRegistry() *PluginRegistry {
	return registry
}

func NewRegistry() *PluginRegistry {
	return &PluginRegistry{plugins: make(map[string]*LoadedPlugin)}
}

// Register adds an in-process service type. A later registration under the
// same name replaces the earlier one.
func (pr *PluginRegistry) Register(info pluginPkg.PluginInfo, factory pluginPkg.ServiceFactory) {
	if info.Type == "" {
		info.Type = "builtin"
	}
	pr.store(&LoadedPlugin{
		Info: info,
		create: func() (pluginPkg.Service, error) {
			return factory(), nil
		},
	})
}

func (pr *PluginRegistry) store(lp *LoadedPlugin) {
	pr.mutex.Lock()
	if old, ok := pr.plugins[lp.Info.Name]; ok && old.client != nil {
		old.client.Kill()
	}
	pr.plugins[lp.Info.Name] = lp
	pr.mutex.Unlock()

	pluginInfo.WithLabelValues(lp.Info.Name, lp.Info.Type, lp.Info.Version).Set(1)
}

// LoadPlugin opens a Go shared library exporting NewService and,
// optionally, PluginInfo.
func (pr *PluginRegistry) LoadPlugin(pluginPath string) error {
	logger.Info("Loading plugin", slog.String("path", pluginPath))

	p, err := plugin.Open(pluginPath)
	if err != nil {
		return fmt.Errorf("failed to open plugin %s: %w", pluginPath, err)
	}

	factorySym, err := p.Lookup("NewService")
	if err != nil {
		return fmt.Errorf("plugin %s does not export NewService function: %w", pluginPath, err)
	}

	factory, ok := factorySym.(func() pluginPkg.Service)
	if !ok {
		return fmt.Errorf("plugin %s NewService function has wrong signature", pluginPath)
	}

	var info pluginPkg.PluginInfo
	if infoSym, err := p.Lookup("PluginInfo"); err == nil {
		if pi, ok := infoSym.(*pluginPkg.PluginInfo); ok {
			info = *pi
		}
	}

	// If no info provided, generate basic info from path
	if info.Name == "" {
		info.Name = nameFromPath(pluginPath)
		info.Version = "unknown"
	}
	info.Type = "plugin"

	pr.store(&LoadedPlugin{
		Info: info,
		Path: pluginPath,
		create: func() (pluginPkg.Service, error) {
			return factory(), nil
		},
	})

	logger.Info("Successfully loaded plugin",
		slog.String("name", info.Name),
		slog.String("version", info.Version),
		slog.String("type", info.Type))
	return nil
}

// LoadPluginsFromDir loads all .so files from the specified directory
func (pr *PluginRegistry) LoadPluginsFromDir(pluginDir string) error {
	logger.Info("Loading plugins from directory", slog.String("dir", pluginDir))

	pluginPaths, err := filepath.Glob(filepath.Join(pluginDir, "*.so"))
	if err != nil {
		return fmt.Errorf("failed to list plugin files in %s: %w", pluginDir, err)
	}

	var loadErrors []string
	for _, pluginPath := range pluginPaths {
		if err := pr.LoadPlugin(pluginPath); err != nil {
			logger.Error("Failed to load plugin", slog.String("path", pluginPath), slog.Any("error", err))
			loadErrors = append(loadErrors, fmt.Sprintf("%s: %v", pluginPath, err))
		}
	}

	if len(loadErrors) > 0 {
		return fmt.Errorf("failed to load some plugins: %s", strings.Join(loadErrors, "; "))
	}
	logger.Info("Successfully loaded plugins", slog.Int("count", len(pluginPaths)))
	return nil
}

// GetPlugin returns a plugin by name
func (pr *PluginRegistry) GetPlugin(name string) (*LoadedPlugin, bool) {
	pr.mutex.RLock()
	defer pr.mutex.RUnlock()

	p, exists := pr.plugins[name]
	return p, exists
}

// CreateService creates a new, uninitialised service of the given type.
func (pr *PluginRegistry) CreateService(serviceType string) (pluginPkg.Service, error) {
	p, exists := pr.GetPlugin(serviceType)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, serviceType)
	}

	svc, err := p.create()
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", serviceType, err)
	}
	if svc == nil {
		return nil, fmt.Errorf("plugin %s factory returned nil service", serviceType)
	}
	return svc, nil
}

// ListPlugins returns information about all loaded plugins, sorted by name.
func (pr *PluginRegistry) ListPlugins() []pluginPkg.PluginInfo {
	pr.mutex.RLock()
	defer pr.mutex.RUnlock()

	infos := make([]pluginPkg.PluginInfo, 0, len(pr.plugins))
	for _, p := range pr.plugins {
		infos = append(infos, p.Info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func nameFromPath(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
