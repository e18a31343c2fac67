package dispatch

import (
	"mqw.szuro.net/internal/config"
	"mqw.szuro.net/internal/filter"
	"mqw.szuro.net/internal/topic"
)

// Binding is the precomputed dispatch plan of one section.
type Binding struct {
	Section  string
	Topic    string
	Targets  []string
	Dispatch map[string][]string

	DataMap string
	AllData string
	Filter  *filter.Filter

	Title    string
	Format   string
	Template string
	Priority *int
}

func BindingFromSection(s config.Section) Binding {
	f := s.Filter
	return Binding{
		Section:  s.Name,
		Topic:    s.Topic,
		Targets:  append([]string(nil), s.Targets...),
		Dispatch: s.Dispatch,
		DataMap:  s.DataMap,
		AllData:  s.AllData,
		Filter:   &f,
		Title:    s.Title,
		Format:   s.Format,
		Template: s.Template,
		Priority: s.Priority,
	}
}

// Bindings builds one binding per configured section, in config order.
func Bindings(conf *config.MQWConf) []Binding {
	out := make([]Binding, 0, len(conf.Sections))
	for _, s := range conf.Sections {
		out = append(out, BindingFromSection(s))
	}
	return out
}

// section returns the binding as a config section for hint resolution.
func (b *Binding) section() *config.Section {
	return &config.Section{
		Name:     b.Section,
		Topic:    b.Topic,
		Title:    b.Title,
		Format:   b.Format,
		Template: b.Template,
		Priority: b.Priority,
	}
}

// targetsFor returns the target list for topic t. A dispatch map picks the
// list of its most specific matching pattern.
func (b *Binding) targetsFor(t string) ([]string, string, bool) {
	if len(b.Dispatch) == 0 {
		return b.Targets, "", true
	}
	patterns := make([]string, 0, len(b.Dispatch))
	for p := range b.Dispatch {
		patterns = append(patterns, p)
	}
	match, ok := topic.MostSpecific(patterns, t)
	if !ok {
		return nil, "", false
	}
	return b.Dispatch[match], match, true
}
