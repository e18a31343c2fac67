package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
	"mqw.szuro.net/internal/plugin"
	plug "mqw.szuro.net/pkg/plugin"
)

// ServiceConf configures one named service instance and its targets.
type ServiceConf struct {
	Type    string                `yaml:"type"`
	Options map[string]any        `yaml:"options"`
	Targets map[string]TargetConf `yaml:"targets"`
}

// TargetConf is one destination of a service. In YAML it is either a list
// of addresses or a mapping with addrs and options.
type TargetConf struct {
	Addrs   []string       `yaml:"addrs"`
	Options map[string]any `yaml:"options"`
}

func (t *TargetConf) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		return node.Decode(&t.Addrs)
	case yaml.ScalarNode:
		var addr string
		if err := node.Decode(&addr); err != nil {
			return err
		}
		if addr != "" {
			t.Addrs = []string{addr}
		}
		return nil
	default:
		type plain TargetConf
		return node.Decode((*plain)(t))
	}
}

// ToService creates and initialises the service backing this configuration.
func (s *ServiceConf) ToService(name string) (svc plug.Service, err error) {
	svc, err = plugin.GetRegistry().CreateService(s.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to create service %s (%s): %w", name, s.Type, err)
	}

	if err := svc.Initialize(name, s.Options); err != nil {
		svc.Cleanup()
		return nil, fmt.Errorf("failed to initialize service %s (%s): %w", name, s.Type, err)
	}
	return svc, nil
}

// SplitTarget splits "service:target". A bare "service" yields an empty
// target name.
func SplitTarget(ref string) (service, target string) {
	service, target, _ = strings.Cut(ref, ":")
	return strings.TrimSpace(service), strings.TrimSpace(target)
}

func containsPlaceholder(s string) bool {
	return strings.Contains(s, "{")
}
