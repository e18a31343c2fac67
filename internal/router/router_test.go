package router

import (
	"testing"

	"github.com/stretchr/testify/require"
	"mqw.szuro.net/internal/config"
)

func TestRoute(t *testing.T) {
	conf := &config.MQWConf{Sections: []config.Section{
		{Name: "all", Topic: "#"},
		{Name: "tele", Topic: "tele/+/SENSOR"},
		{Name: "bad", Topic: "tele/#/x"},
		{Name: "homie", Topic: "homie/#"},
	}}
	r := New(conf)

	names := func(t string) []string {
		var out []string
		for _, b := range r.Route(t) {
			out = append(out, b.Section)
		}
		return out
	}

	require.Equal(t, []string{"all", "tele"}, names("tele/kitchen/SENSOR"))
	require.Equal(t, []string{"all", "homie"}, names("homie/a/b/c"))
	require.Equal(t, []string{"all"}, names("other"))
	require.Nil(t, names("$SYS/broker"))
	require.Equal(t, []string{"#", "tele/+/SENSOR", "homie/#"}, r.Subscriptions())
}

func TestSwap(t *testing.T) {
	r := New(&config.MQWConf{Sections: []config.Section{{Name: "a", Topic: "a/#"}}})
	require.Len(t, r.Route("a/1"), 1)

	r.Swap(&config.MQWConf{Sections: []config.Section{{Name: "b", Topic: "b/#"}}})
	require.Empty(t, r.Route("a/1"))
	require.Len(t, r.Route("b/1"), 1)
}
