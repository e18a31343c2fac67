package logger

import (
	"io"
	"log"
	"log/slog"

	"github.com/hashicorp/go-hclog"
)

// HCLogAdapter adapts MQWLogger to implement hashicorp/go-hclog.Logger interface.
// go-plugin uses it for the host side of external service plugins and to
// forward the plugin process' stderr.
type HCLogAdapter struct {
	logger *MQWLogger
	name   string
	args   []any
}

// NewHCLogAdapter creates a new HCLog adapter wrapping the default logger.
func NewHCLogAdapter(name string) hclog.Logger {
	if name == "" {
		name = "plugin"
	}
	return &HCLogAdapter{
		logger: Default().With(slog.String("plugin", name)),
		name:   name,
	}
}

func (h *HCLogAdapter) Log(level hclog.Level, msg string, args ...any) {
	switch level {
	case hclog.Trace, hclog.Debug:
		h.Debug(msg, args...)
	case hclog.Info:
		h.Info(msg, args...)
	case hclog.Warn:
		h.Warn(msg, args...)
	case hclog.Error:
		h.Error(msg, args...)
	}
}

func (h *HCLogAdapter) Trace(msg string, args ...any) {
	h.logger.Debug(msg, h.merge(args)...)
}

func (h *HCLogAdapter) Debug(msg string, args ...any) {
	h.logger.Debug(msg, h.merge(args)...)
}

func (h *HCLogAdapter) Info(msg string, args ...any) {
	h.logger.Info(msg, h.merge(args)...)
}

func (h *HCLogAdapter) Warn(msg string, args ...any) {
	h.logger.Warn(msg, h.merge(args)...)
}

func (h *HCLogAdapter) Error(msg string, args ...any) {
	h.logger.Error(msg, h.merge(args)...)
}

func (h *HCLogAdapter) merge(args []any) []any {
	if len(h.args) == 0 {
		return args
	}
	return append(append([]any{}, h.args...), args...)
}

func (h *HCLogAdapter) IsTrace() bool {
	return false
}

func (h *HCLogAdapter) IsDebug() bool {
	return GetLogLevel() <= slog.LevelDebug
}

func (h *HCLogAdapter) IsInfo() bool {
	return GetLogLevel() <= slog.LevelInfo
}

func (h *HCLogAdapter) IsWarn() bool {
	return GetLogLevel() <= slog.LevelWarn
}

func (h *HCLogAdapter) IsError() bool {
	return true
}

func (h *HCLogAdapter) ImpliedArgs() []any {
	return h.args
}

func (h *HCLogAdapter) With(args ...any) hclog.Logger {
	return &HCLogAdapter{
		logger: h.logger,
		name:   h.name,
		args:   h.merge(args),
	}
}

func (h *HCLogAdapter) Name() string {
	return h.name
}

func (h *HCLogAdapter) Named(name string) hclog.Logger {
	return &HCLogAdapter{
		logger: h.logger,
		name:   h.name + "." + name,
		args:   h.args,
	}
}

func (h *HCLogAdapter) ResetNamed(name string) hclog.Logger {
	return &HCLogAdapter{
		logger: h.logger,
		name:   name,
		args:   h.args,
	}
}

// SetLevel is a no-op; the process level is owned by SetLogLevel.
func (h *HCLogAdapter) SetLevel(level hclog.Level) {}

func (h *HCLogAdapter) GetLevel() hclog.Level {
	switch l := GetLogLevel(); {
	case l <= slog.LevelDebug:
		return hclog.Debug
	case l <= slog.LevelInfo:
		return hclog.Info
	case l <= slog.LevelWarn:
		return hclog.Warn
	default:
		return hclog.Error
	}
}

func (h *HCLogAdapter) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(h.StandardWriter(opts), "", 0)
}

func (h *HCLogAdapter) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	return hclog.NewNullLogger().StandardWriter(opts)
}
