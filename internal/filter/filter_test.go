package filter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilter(t *testing.T) {
	tests := []struct {
		name     string
		filter   Filter
		data     map[string]any
		expected bool
	}{
		{
			name:     "No pairs specified, everything accepted",
			filter:   Filter{},
			data:     map[string]any{},
			expected: true,
		},
		{
			name:     "Only accepted pairs provided, matching pair",
			filter:   Filter{Accepted: []Pair{{Key: "device", Value: "bee1"}}},
			data:     map[string]any{"device": "bee1", "node": "weight"},
			expected: true,
		},
		{
			name:     "Only accepted pairs provided, non-matching pair",
			filter:   Filter{Accepted: []Pair{{Key: "device", Value: "bee1"}}},
			data:     map[string]any{"device": "bee2"},
			expected: false,
		},
		{
			name:     "Only rejected pairs provided, non-matching pair",
			filter:   Filter{Rejected: []Pair{{Key: "device", Value: "bee1"}}},
			data:     map[string]any{"device": "bee2"},
			expected: true,
		},
		{
			name:     "Only rejected pairs provided, matching pair",
			filter:   Filter{Rejected: []Pair{{Key: "device", Value: "bee1"}}},
			data:     map[string]any{"device": "bee1"},
			expected: false,
		},
		{
			name: "Accepted and rejected, matching accepted pair only",
			filter: Filter{
				Accepted: []Pair{{Key: "device", Value: "bee1"}},
				Rejected: []Pair{{Key: "node", Value: "battery"}},
			},
			data:     map[string]any{"device": "bee1", "node": "weight"},
			expected: true,
		},
		{
			name: "Accepted and rejected, both matching",
			filter: Filter{
				Accepted: []Pair{{Key: "device", Value: "bee1"}},
				Rejected: []Pair{{Key: "node", Value: "battery"}},
			},
			data:     map[string]any{"device": "bee1", "node": "battery"},
			expected: false,
		},
		{
			name:     "Numeric values compare by text",
			filter:   Filter{Accepted: []Pair{{Key: "POWER_BIN", Value: "1"}}},
			data:     map[string]any{"POWER_BIN": 1},
			expected: true,
		},
	}

	t.Log("Testing unactivated filters")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.filter.Evaluate(tt.data))
		})
	}

	t.Log("Testing activated filters")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.filter
			f.Activate()
			require.Equal(t, tt.expected, f.Evaluate(tt.data))
		})
	}
}
