package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// AppLogger is the structured logger passed to every component.
type AppLogger interface {
	Debug(msg string, args ...slog.Attr)
	Info(msg string, args ...slog.Attr)
	Warn(msg string, args ...slog.Attr)
	Error(msg string, err error, args ...slog.Attr)
	Fatal(msg string, err error, args ...slog.Attr)
	With(args ...slog.Attr) AppLogger
}

type AppSLogger struct {
	log *slog.Logger
}

var _ AppLogger = (*AppSLogger)(nil)

// NewAppSLogger writes JSON lines to stdout, tagged with the build hash.
func NewAppSLogger(appHash string) *AppSLogger {
	return NewAppSLoggerWithLevel(appHash, "info")
}

func NewAppSLoggerWithLevel(appHash, level string) *AppSLogger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)})
	return &AppSLogger{
		log: slog.New(handler).With(slog.String("app_hash", appHash)),
	}
}

// NewDiscard drops everything. Used in tests.
func NewDiscard() *AppSLogger {
	return &AppSLogger{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (l *AppSLogger) Debug(msg string, args ...slog.Attr) {
	l.log.LogAttrs(context.Background(), slog.LevelDebug, msg, args...)
}

func (l *AppSLogger) Info(msg string, args ...slog.Attr) {
	l.log.LogAttrs(context.Background(), slog.LevelInfo, msg, args...)
}

func (l *AppSLogger) Warn(msg string, args ...slog.Attr) {
	l.log.LogAttrs(context.Background(), slog.LevelWarn, msg, args...)
}

func (l *AppSLogger) Error(msg string, err error, args ...slog.Attr) {
	l.log.LogAttrs(context.Background(), slog.LevelError, msg, append(args, errAttr(err))...)
}

func (l *AppSLogger) Fatal(msg string, err error, args ...slog.Attr) {
	l.Error(msg, err, args...)
	os.Exit(1)
}

func (l *AppSLogger) With(args ...slog.Attr) AppLogger {
	anyArgs := make([]any, 0, len(args))
	for _, arg := range args {
		anyArgs = append(anyArgs, arg)
	}
	return &AppSLogger{log: l.log.With(anyArgs...)}
}

func errAttr(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
