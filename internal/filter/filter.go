package filter

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Pair is one key:value condition matched against the enrichment data.
type Pair struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type Filter struct {
	Accepted []Pair `yaml:"accepted"`
	Rejected []Pair `yaml:"rejected"`
	active   bool
}

func (f *Filter) Activate() {
	if len(f.Accepted) != 0 || len(f.Rejected) != 0 {
		f.active = true
	}
}

func (f *Filter) IsActive() bool {
	return f.active
}

// Check if a message should be accepted or not
// No pairs specified -> everything is accepted
// only Accepted are provided -> only messages carrying a matching pair are allowed
// only Rejected are specified -> everything is allowed except for matching pairs
// both Accepted and Rejected are provided -> only accepted messages that were not rejected later are accepted
func (f *Filter) Evaluate(data map[string]any) (accepted bool) {
	if !f.active {
		return true
	}
	pairs := toPairs(data)

	if len(f.Accepted) == 0 {
		accepted = true
	}
	for _, p := range pairs {
		if slices.Contains(f.Accepted, p) {
			accepted = true
			break
		}
	}

	for _, p := range pairs {
		if slices.Contains(f.Rejected, p) {
			accepted = false
		}
	}
	return
}

func toPairs(data map[string]any) []Pair {
	pairs := make([]Pair, 0, len(data))
	for k, v := range data {
		switch v.(type) {
		case map[string]any, []any:
			continue
		}
		pairs = append(pairs, Pair{Key: k, Value: fmt.Sprint(v)})
	}
	return pairs
}
