package config

import (
	"time"

	"golang.org/x/exp/slices"
	"mqw.szuro.net/internal/filter"
)

// Section binds a topic subscription to its targets and formatting hints.
type Section struct {
	Name  string `yaml:"name" validate:"required"`
	Topic string `yaml:"topic" validate:"required"`

	// Targets is a flat list of "service:target" references. Dispatch maps
	// topic patterns to target lists; the most specific pattern wins.
	Targets  []string            `yaml:"targets"`
	Dispatch map[string][]string `yaml:"dispatch"`

	DataMap  string        `yaml:"datamap"`
	AllData  string        `yaml:"alldata"`
	Filter   filter.Filter `yaml:"filter"`
	Format   string        `yaml:"format"`
	Template string        `yaml:"template"`
	Title    string        `yaml:"title"`
	Priority *int          `yaml:"priority"`

	// Timeout arms a watchdog that reports topics gone silent.
	Timeout time.Duration `yaml:"timeout"`
}

// AllTargets lists every target reference of the section, deduplicated.
func (s *Section) AllTargets() []string {
	out := slices.Clone(s.Targets)
	keys := make([]string, 0, len(s.Dispatch))
	for k := range s.Dispatch {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		for _, t := range s.Dispatch[k] {
			if !slices.Contains(out, t) {
				out = append(out, t)
			}
		}
	}
	return out
}
