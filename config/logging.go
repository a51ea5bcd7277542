package config

import (
	"context"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BuildLogger constructs the process-wide zap logger, grounded on
// arkeep-io-arkeep's buildLogger: development encoding with debug
// level for "debug", production (JSON) encoding otherwise.
func BuildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config
	if level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// slogHandler adapts a zap.Logger's core to the slog.Handler
// interface, so component code can keep calling slog.Logger (the
// convention used throughout this module) while the process itself
// wires structured output through zap's encoders and sinks.
type slogHandler struct {
	core zapcore.Core
	attr []zapcore.Field
}

// NewSlogHandler wraps logger's core for use with slog.New.
func NewSlogHandler(logger *zap.Logger) slog.Handler {
	return &slogHandler{core: logger.Core()}
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.core.Enabled(toZapLevel(level))
}

func (h *slogHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]zapcore.Field, 0, record.NumAttrs()+len(h.attr))
	fields = append(fields, h.attr...)
	record.Attrs(func(a slog.Attr) bool {
		fields = append(fields, slogAttrToZap(a))
		return true
	})
	entry := zapcore.Entry{
		Level:   toZapLevel(record.Level),
		Time:    record.Time,
		Message: record.Message,
	}
	if ce := h.core.Check(entry, nil); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make([]zapcore.Field, 0, len(attrs))
	for _, a := range attrs {
		fields = append(fields, slogAttrToZap(a))
	}
	return &slogHandler{core: h.core, attr: append(append([]zapcore.Field{}, h.attr...), fields...)}
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	return &slogHandler{core: h.core.With([]zapcore.Field{zap.Namespace(name)}), attr: h.attr}
}

func slogAttrToZap(a slog.Attr) zapcore.Field {
	return zap.Any(a.Key, a.Value.Any())
}

func toZapLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zap.ErrorLevel
	case level >= slog.LevelWarn:
		return zap.WarnLevel
	case level >= slog.LevelInfo:
		return zap.InfoLevel
	default:
		return zap.DebugLevel
	}
}
