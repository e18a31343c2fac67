package logger

import (
	"context"
	"log/slog"
	"time"

	"github.com/rs/zerolog"
)

// zerologHandler renders slog records through zerolog.
type zerologHandler struct {
	zl     zerolog.Logger
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func newZerologHandler(zl zerolog.Logger, level slog.Leveler) *zerologHandler {
	return &zerologHandler{zl: zl, level: level}
}

func (h *zerologHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *zerologHandler) Handle(_ context.Context, r slog.Record) error {
	var ev *zerolog.Event
	switch {
	case r.Level > slog.LevelError:
		ev = h.zl.Error().Str("severity", "critical")
	case r.Level >= slog.LevelError:
		ev = h.zl.Error()
	case r.Level >= slog.LevelWarn:
		ev = h.zl.Warn()
	case r.Level >= slog.LevelInfo:
		ev = h.zl.Info()
	default:
		ev = h.zl.Debug()
	}
	prefix := groupPrefix(h.groups)
	for _, a := range h.attrs {
		addAttr(ev, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(ev, prefix, a)
		return true
	})
	ev.Msg(r.Message)
	return nil
}

func (h *zerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	prefix := groupPrefix(h.groups)
	nh.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	nh.attrs = append(nh.attrs, h.attrs...)
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + a.Key
		}
		nh.attrs = append(nh.attrs, a)
	}
	return &nh
}

func (h *zerologHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.groups = append(append([]string{}, h.groups...), name)
	return &nh
}

func groupPrefix(groups []string) string {
	p := ""
	for _, g := range groups {
		p += g + "."
	}
	return p
}

func addAttr(ev *zerolog.Event, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := prefix + a.Key
	switch a.Value.Kind() {
	case slog.KindString:
		ev.Str(key, a.Value.String())
	case slog.KindInt64:
		ev.Int64(key, a.Value.Int64())
	case slog.KindUint64:
		ev.Uint64(key, a.Value.Uint64())
	case slog.KindFloat64:
		ev.Float64(key, a.Value.Float64())
	case slog.KindBool:
		ev.Bool(key, a.Value.Bool())
	case slog.KindDuration:
		ev.Dur(key, a.Value.Duration())
	case slog.KindTime:
		ev.Str(key, a.Value.Time().Format(time.RFC3339Nano))
	case slog.KindGroup:
		gp := prefix
		if a.Key != "" {
			gp = key + "."
		}
		for _, ga := range a.Value.Group() {
			addAttr(ev, gp, ga)
		}
	default:
		if err, ok := a.Value.Any().(error); ok {
			ev.AnErr(key, err)
			return
		}
		ev.Interface(key, a.Value.Any())
	}
}
