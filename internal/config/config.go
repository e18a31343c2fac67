package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
	"mqw.szuro.net/internal/logger"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultBuffer     = 100
	DefaultWorkers    = 1
	DefaultListenPort = 2021
	DefaultTitle      = "mqw"
)

type MQWConf struct {
	Defaults        Defaults               `yaml:"defaults"`
	Services        map[string]ServiceConf `yaml:"services" validate:"dive"`
	Sections        []Section              `yaml:"sections" validate:"dive"`
	Failover        *Section               `yaml:"failover" validate:"-"`
	Inputs          InputsConf             `yaml:"inputs"`
	Cron            []CronJob              `yaml:"cron" validate:"dive"`
	Http            HTTPConf               `yaml:"http"`
	PluginsDir      string                 `yaml:"plugins_dir"`
	ExternalPlugins map[string]string      `yaml:"external_plugins"`
	TemplatesDir    string                 `yaml:"templates_dir"`
	WorkingDir      string                 `yaml:"working_dir"`
	NumWorkers      int                    `yaml:"num_workers" validate:"gte=0"`
	BufferSize      int                    `yaml:"buffer_size" validate:"gte=0"`
	LogLevel        string                 `yaml:"log_level"`
	LogFormat       string                 `yaml:"log_format" validate:"omitempty,oneof=console json"`
	slogLevel       slog.Level
}

// Defaults hold the system-wide fallbacks for per-section hints and the
// options every target inherits.
type Defaults struct {
	Title        string         `yaml:"title"`
	Priority     int            `yaml:"priority"`
	Format       string         `yaml:"format"`
	Timeout      time.Duration  `yaml:"timeout"`
	SkipRetained bool           `yaml:"skip_retained"`
	Options      map[string]any `yaml:"options"`
}

type HTTPConf struct {
	ListenPort    int    `yaml:"listen_port" validate:"gte=0,lte=65535"`
	ListenAddress string `yaml:"listen_address"`
}

type InputsConf struct {
	HTTP  bool          `yaml:"http"`
	Files []string      `yaml:"files"`
	NATS  NATSInputConf `yaml:"nats"`
}

type NATSInputConf struct {
	URL      string   `yaml:"url" validate:"required_with=Subjects"`
	Subjects []string `yaml:"subjects"`
	Queue    string   `yaml:"queue"`
}

// CronJob publishes a synthetic event on a schedule.
type CronJob struct {
	Name     string `yaml:"name" validate:"required"`
	Schedule string `yaml:"schedule" validate:"required"`
	Topic    string `yaml:"topic" validate:"required"`
	Payload  string `yaml:"payload"`
	Now      bool   `yaml:"now"`
}

func (mc *MQWConf) setLogLevel() {
	mc.slogLevel = logger.ParseLevel(mc.LogLevel)
}

func (mc *MQWConf) GetLogLevel() slog.Level {
	return mc.slogLevel
}

// Load reads, defaults and validates the configuration file.
func Load(path string) (*MQWConf, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	return Parse(file)
}

func Parse(raw []byte) (*MQWConf, error) {
	conf := &MQWConf{}
	if err := yaml.Unmarshal(raw, conf); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}

	if err := conf.applyEnv(); err != nil {
		return nil, err
	}

	conf.setBuffer()
	conf.setWorkers()
	conf.setPort()
	conf.setTimeout()
	conf.setTitle()
	conf.setServices()
	conf.setSections()
	conf.setLogLevel()

	if err := validator.New().Struct(conf); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if err := conf.checkReferences(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (mc *MQWConf) setBuffer() {
	if mc.BufferSize <= 0 {
		mc.BufferSize = DefaultBuffer
	}
}

func (mc *MQWConf) setWorkers() {
	if mc.NumWorkers <= 0 {
		mc.NumWorkers = DefaultWorkers
	}
}

func (mc *MQWConf) setPort() {
	if mc.Http.ListenPort == 0 {
		mc.Http.ListenPort = DefaultListenPort
	}
}

func (mc *MQWConf) setTimeout() {
	if mc.Defaults.Timeout <= 0 {
		mc.Defaults.Timeout = DefaultTimeout
	}
}

func (mc *MQWConf) setTitle() {
	if mc.Defaults.Title == "" {
		mc.Defaults.Title = DefaultTitle
	}
}

func (mc *MQWConf) setServices() {
	if mc.Services == nil {
		mc.Services = map[string]ServiceConf{}
	}
	for name, s := range mc.Services {
		if s.Type == "" {
			s.Type = name
		}
		mc.Services[name] = s
	}
}

func (mc *MQWConf) setSections() {
	for i := range mc.Sections {
		mc.Sections[i].Filter.Activate()
	}
	if mc.Failover != nil {
		if mc.Failover.Name == "" {
			mc.Failover.Name = "failover"
		}
		mc.Failover.Filter.Activate()
	}
}

// checkReferences warns about targets whose service is missing. It only
// rejects sections that have neither targets nor a dispatch map.
func (mc *MQWConf) checkReferences() error {
	for _, s := range mc.Sections {
		if len(s.Targets) == 0 && len(s.Dispatch) == 0 {
			return fmt.Errorf("section %s: no targets configured", s.Name)
		}
		for _, t := range s.AllTargets() {
			svc, _ := SplitTarget(t)
			if _, ok := mc.Services[svc]; !ok && !containsPlaceholder(svc) {
				logger.Warn("Section references unknown service",
					slog.String("section", s.Name),
					slog.String("service", svc))
			}
		}
	}
	return nil
}

// GetService returns the named service configuration.
func (mc *MQWConf) GetService(name string) (ServiceConf, bool) {
	s, ok := mc.Services[name]
	return s, ok
}
