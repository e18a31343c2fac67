package topic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		sub, topic string
		expected   bool
	}{
		{"homie/#", "homie/bee1/weight/value", true},
		{"homie/#", "homie", true},
		{"homie/+/weight/value", "homie/bee1/weight/value", true},
		{"homie/+/weight", "homie/bee1/weight/value", false},
		{"homie/+", "homie", false},
		{"#", "anything/at/all", true},
		{"#", "$SYS/broker", false},
		{"tele/sensorA/temperature", "tele/sensorA/temperature", true},
		{"tele/sensorA/temperature", "tele/sensorB/temperature", false},
		{"a/b", "a/b/c", false},
		{"+/+", "/x", true},
		{"", "a", false},
	}

	for _, tt := range tests {
		t.Run(tt.sub+"|"+tt.topic, func(t *testing.T) {
			require.Equal(t, tt.expected, Matches(tt.sub, tt.topic))
		})
	}
}

func TestValid(t *testing.T) {
	require.True(t, Valid("a/+/c/#"))
	require.False(t, Valid("a/#/c"))
	require.False(t, Valid("a/b+"))
	require.False(t, Valid(""))
}

func TestSortBySpecificity(t *testing.T) {
	in := []string{"#", "tele/#", "tele/+/SENSOR", "tele/sensorA/SENSOR", "tele/+/+"}
	out := SortBySpecificity(in)
	require.Equal(t, []string{"tele/sensorA/SENSOR", "tele/+/SENSOR", "tele/+/+", "tele/#", "#"}, out)
}

func TestMostSpecific(t *testing.T) {
	subs := []string{"tele/#", "tele/+/SENSOR"}

	m, ok := MostSpecific(subs, "tele/sensorA/SENSOR")
	require.True(t, ok)
	require.Equal(t, "tele/+/SENSOR", m)

	m, ok = MostSpecific(subs, "tele/sensorA/STATE")
	require.True(t, ok)
	require.Equal(t, "tele/#", m)

	_, ok = MostSpecific(subs, "homie/x")
	require.False(t, ok)
}
