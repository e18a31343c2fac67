package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every environment override, e.g. MQW_LOG_LEVEL.
const EnvPrefix = "MQW"

type envOverrides struct {
	LogLevel      string `envconfig:"LOG_LEVEL"`
	LogFormat     string `envconfig:"LOG_FORMAT"`
	ListenAddress string `envconfig:"LISTEN_ADDRESS"`
	ListenPort    int    `envconfig:"LISTEN_PORT"`
	NumWorkers    int    `envconfig:"NUM_WORKERS"`
	PluginsDir    string `envconfig:"PLUGINS_DIR"`
	WorkingDir    string `envconfig:"WORKING_DIR"`
	TemplatesDir  string `envconfig:"TEMPLATES_DIR"`
}

// applyEnv loads .env (if present) and lets MQW_* variables override the
// file values.
func (mc *MQWConf) applyEnv() error {
	_ = godotenv.Load()

	var ov envOverrides
	if err := envconfig.Process(EnvPrefix, &ov); err != nil {
		return fmt.Errorf("failed to process environment overrides: %w", err)
	}

	if ov.LogLevel != "" {
		mc.LogLevel = ov.LogLevel
	}
	if ov.LogFormat != "" {
		mc.LogFormat = ov.LogFormat
	}
	if ov.ListenAddress != "" {
		mc.Http.ListenAddress = ov.ListenAddress
	}
	if ov.ListenPort != 0 {
		mc.Http.ListenPort = ov.ListenPort
	}
	if ov.NumWorkers != 0 {
		mc.NumWorkers = ov.NumWorkers
	}
	if ov.PluginsDir != "" {
		mc.PluginsDir = ov.PluginsDir
	}
	if ov.WorkingDir != "" {
		mc.WorkingDir = ov.WorkingDir
	}
	if ov.TemplatesDir != "" {
		mc.TemplatesDir = ov.TemplatesDir
	}
	return nil
}
