package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"mqw.szuro.net/pkg/item"
	pluginPkg "mqw.szuro.net/pkg/plugin"
)

type nopService struct {
	pluginPkg.BaseService
}

func (n *nopService) Deliver(context.Context, *item.Item) error { return nil }

func TestRegisterAndCreate(t *testing.T) {
	pr := NewRegistry()
	pr.Register(pluginPkg.PluginInfo{Name: "nop", Version: "1.0.0"}, func() pluginPkg.Service { return &nopService{} })
	pr.Register(pluginPkg.PluginInfo{Name: "a"}, func() pluginPkg.Service { return &nopService{} })

	svc, err := pr.CreateService("nop")
	require.NoError(t, err)
	require.NoError(t, svc.Initialize("n1", nil))
	require.Equal(t, "n1", svc.GetName())

	other, err := pr.CreateService("nop")
	require.NoError(t, err)
	require.NotSame(t, svc, other)

	infos := pr.ListPlugins()
	require.Len(t, infos, 2)
	require.Equal(t, "a", infos[0].Name)
	require.Equal(t, "builtin", infos[1].Type)
}

func TestCreateUnknown(t *testing.T) {
	_, err := NewRegistry().CreateService("missing")
	require.ErrorIs(t, err, ErrPluginNotFound)
}

func TestRegisterNilFactory(t *testing.T) {
	pr := NewRegistry()
	pr.Register(pluginPkg.PluginInfo{Name: "nil"}, func() pluginPkg.Service { return nil })
	_, err := pr.CreateService("nil")
	require.Error(t, err)
}

func TestLoadPluginsFromEmptyDir(t *testing.T) {
	require.NoError(t, NewRegistry().LoadPluginsFromDir(t.TempDir()))
}

func TestExternalNotStarted(t *testing.T) {
	pr := NewRegistry()
	require.NoError(t, pr.LoadExternal("", "/nonexistent/mqw-print"))

	p, ok := pr.GetPlugin("mqw-print")
	require.True(t, ok)
	require.Equal(t, "external", p.Info.Type)

	_, err := pr.CreateService("mqw-print")
	require.Error(t, err)
	pr.CleanupAll()
}
