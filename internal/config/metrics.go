package config

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Version, Commit, BuildDate string
)

var (
	MqwInfo = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mqw_build_info",
		Help: "mqw build information",
		ConstLabels: map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_date": BuildDate,
		},
	})

	ConfigReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mqw_config_reloads_total",
		Help: "Configuration reload attempts by result",
	}, []string{"result"})
)
