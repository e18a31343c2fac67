package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

var (
	mqwLogger atomic.Pointer[MQWLogger]
	level     = new(slog.LevelVar)
)

func init() {
	Configure(os.Stderr, "console")
}

type MQWLogger struct {
	slogger *slog.Logger
}

// Configure replaces the process logger. format is "console" or "json".
// The new logger also becomes slog's default so plugins embedding
// BaseService log through it.
func Configure(out io.Writer, format string) {
	var w io.Writer = out
	if strings.ToLower(format) != "json" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: consoleTimeFormat, NoColor: !isTerminal(out)}
	}
	zl := zerolog.New(w).Level(zerolog.TraceLevel).With().Timestamp().Logger()
	sl := slog.New(newZerologHandler(zl, level))
	slog.SetDefault(sl)
	mqwLogger.Store(&MQWLogger{slogger: sl})
}

func NewMQWLogger(h slog.Handler) *MQWLogger {
	return &MQWLogger{slogger: slog.New(h)}
}

func Default() *MQWLogger {
	return mqwLogger.Load()
}

// Slog exposes the underlying *slog.Logger.
func Slog() *slog.Logger {
	return mqwLogger.Load().slogger
}

func SetLogLevel(l slog.Level) {
	level.Set(l)
}

func GetLogLevel() slog.Level {
	return level.Level()
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR names; unknown names yield INFO.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR", "CRIT", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	st, err := f.Stat()
	return err == nil && st.Mode()&os.ModeCharDevice != 0
}

// slog wrapper

func Debug(msg string, args ...any) {
	mqwLogger.Load().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	mqwLogger.Load().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	mqwLogger.Load().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	mqwLogger.Load().Error(msg, args...)
}

func (l *MQWLogger) Debug(msg string, args ...any) {
	l.slogger.Debug(msg, args...)
}

func (l *MQWLogger) Info(msg string, args ...any) {
	l.slogger.Info(msg, args...)
}

func (l *MQWLogger) Warn(msg string, args ...any) {
	l.slogger.Warn(msg, args...)
}

func (l *MQWLogger) Error(msg string, args ...any) {
	l.slogger.Error(msg, args...)
}

// With returns a logger carrying the extra attributes.
func (l *MQWLogger) With(args ...any) *MQWLogger {
	return &MQWLogger{slogger: l.slogger.With(args...)}
}

// badger.Logger

func (l *MQWLogger) Errorf(format string, args ...any) {
	l.slogger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *MQWLogger) Warningf(format string, args ...any) {
	l.slogger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *MQWLogger) Infof(format string, args ...any) {
	l.slogger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *MQWLogger) Debugf(format string, args ...any) {
	l.slogger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// tail.logger

func (l *MQWLogger) Fatal(v ...any) {
	l.slogger.Error("tail failure", genericPairs(v...)...)
}

func (l *MQWLogger) Fatalf(format string, v ...any) {
	l.slogger.Error(fmt.Sprintf(format, v...))
}

func (l *MQWLogger) Fatalln(v ...any) {
	l.slogger.Error(fmt.Sprint(v...))
}

func (l *MQWLogger) Panic(v ...any) {
	l.slogger.Error("tail panic", genericPairs(v...)...)
}

func (l *MQWLogger) Panicf(format string, v ...any) {
	l.slogger.Error(fmt.Sprintf(format, v...))
}

func (l *MQWLogger) Panicln(v ...any) {
	l.slogger.Error(fmt.Sprint(v...))
}

func (l *MQWLogger) Print(v ...any) {
	l.slogger.Debug(fmt.Sprint(v...))
}

func (l *MQWLogger) Printf(format string, v ...any) {
	l.slogger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *MQWLogger) Println(v ...any) {
	l.slogger.Debug(fmt.Sprint(v...))
}

func genericPairs(v ...any) []any {
	pairs := make([]any, 0, len(v)/2)
	for i := 0; i < len(v)-1; i += 2 {
		key, ok := v[i].(string)
		if !ok {
			key = fmt.Sprintf("arg_%d", i)
		}
		pairs = append(pairs, slog.Any(key, v[i+1]))
	}
	return pairs
}
