// Package service holds the built-in delivery backends.
package service

import (
	"fmt"

	"mqw.szuro.net/internal/plugin"
	"mqw.szuro.net/internal/transform"
	"mqw.szuro.net/pkg/item"
	pluginPkg "mqw.szuro.net/pkg/plugin"
)

const version = "1.0.0"

type builtin struct {
	info    pluginPkg.PluginInfo
	factory pluginPkg.ServiceFactory
}

var builtins = []builtin{
	{pluginPkg.PluginInfo{Name: "file", Description: "Append or write messages to files"}, func() pluginPkg.Service { return &File{} }},
	{pluginPkg.PluginInfo{Name: "log", Description: "Write messages to the daemon log"}, func() pluginPkg.Service { return &Log{} }},
	{pluginPkg.PluginInfo{Name: "noop", Description: "Accept and discard messages"}, func() pluginPkg.Service { return &Noop{} }},
	{pluginPkg.PluginInfo{Name: "redispub", Description: "Publish messages to a Redis channel"}, func() pluginPkg.Service { return &RedisPub{} }},
	{pluginPkg.PluginInfo{Name: "rrdtool", Description: "Update round-robin databases"}, func() pluginPkg.Service { return &RRDTool{} }},
	{pluginPkg.PluginInfo{Name: "prowl", Description: "Push notifications through Prowl"}, func() pluginPkg.Service { return &Prowl{} }},
	{pluginPkg.PluginInfo{Name: "desktop", Description: "Desktop notifications"}, func() pluginPkg.Service { return &Desktop{} }},
	{pluginPkg.PluginInfo{Name: "celery", Description: "Enqueue Celery tasks over a Redis broker"}, func() pluginPkg.Service { return &Celery{} }},
	{pluginPkg.PluginInfo{Name: "amqp", Description: "Publish messages to an AMQP exchange"}, func() pluginPkg.Service { return &AMQP{} }},
	{pluginPkg.PluginInfo{Name: "nats", Description: "Publish messages to a NATS subject"}, func() pluginPkg.Service { return &NATS{} }},
	{pluginPkg.PluginInfo{Name: "sqs", Description: "Send messages to an AWS SQS queue"}, func() pluginPkg.Service { return &SQS{} }},
	{pluginPkg.PluginInfo{Name: "telegram", Description: "Send messages to a Telegram chat"}, func() pluginPkg.Service { return &Telegram{} }},
	{pluginPkg.PluginInfo{Name: "sqlite", Description: "Insert messages into a SQLite table"}, func() pluginPkg.Service { return &SQLite{} }},
	{pluginPkg.PluginInfo{Name: "postgres", Description: "Insert messages into a PostgreSQL table"}, func() pluginPkg.Service { return &Postgres{} }},
	{pluginPkg.PluginInfo{Name: "http", Description: "Send messages as HTTP requests"}, func() pluginPkg.Service { return &HTTP{} }},
	{pluginPkg.PluginInfo{Name: "websocket", Description: "Send messages over a websocket"}, func() pluginPkg.Service { return &Websocket{} }},
	{pluginPkg.PluginInfo{Name: "pushgateway", Description: "Push numeric payloads to a Prometheus Pushgateway"}, func() pluginPkg.Service { return &Pushgateway{} }},
	{pluginPkg.PluginInfo{Name: "remote_write", Description: "Send numeric payloads through Prometheus remote write"}, func() pluginPkg.Service { return &RemoteWrite{} }},
	{pluginPkg.PluginInfo{Name: "azure_table", Description: "Add messages as Azure Table Storage entities"}, func() pluginPkg.Service { return &AzureTable{} }},
}

// RegisterBuiltins adds every built-in service type to pr.
func RegisterBuiltins(pr *plugin.PluginRegistry) {
	for _, b := range builtins {
		info := b.info
		info.Version = version
		info.Author = "mqw"
		info.Type = "builtin"
		factory := b.factory
		name := info.Name
		pr.Register(info, func() pluginPkg.Service {
			svc := factory()
			if t, ok := svc.(interface{ SetPluginType(string) }); ok {
				t.SetPluginType(name)
			}
			return svc
		})
	}
}

// interpolate fills {field} placeholders of an address from item data.
func interpolate(it *item.Item, s string) (string, error) {
	out, err := transform.Format(s, it.Data)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", pluginPkg.ErrInvalidAddress, s, err)
	}
	return out, nil
}
