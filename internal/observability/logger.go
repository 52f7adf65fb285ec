// Package observability provides the structured logging and metrics
// facades the ingest pipeline reports through.
package observability

import (
	"strings"

	"go.uber.org/zap"
)

// Level is a logging severity, ordered low to high.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a case-insensitive level name to Level, defaulting to
// LevelInfo for anything unrecognized.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Fields is an event's structured context.
type Fields map[string]any

// Logger is the event-plus-context facade the pipeline and drivers log
// through. A disabled level is a no-op at the facade, not merely filtered
// downstream, so callers never pay for field construction they don't need.
type Logger interface {
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warn(msg string, fields Fields)
	Error(msg string, fields Fields)
}

// zapLogger adapts *zap.SugaredLogger to Logger, filtering by level before
// ever touching the underlying logger.
type zapLogger struct {
	sugar *zap.SugaredLogger
	level Level
}

// NewZapLogger wraps a *zap.SugaredLogger, suppressing events below level.
func NewZapLogger(sugar *zap.SugaredLogger, level Level) Logger {
	return &zapLogger{sugar: sugar, level: level}
}

func (l *zapLogger) Debug(msg string, fields Fields) { l.emit(LevelDebug, msg, fields) }
func (l *zapLogger) Info(msg string, fields Fields)  { l.emit(LevelInfo, msg, fields) }
func (l *zapLogger) Warn(msg string, fields Fields)  { l.emit(LevelWarn, msg, fields) }
func (l *zapLogger) Error(msg string, fields Fields) { l.emit(LevelError, msg, fields) }

func (l *zapLogger) emit(level Level, msg string, fields Fields) {
	if level < l.level {
		return
	}
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	switch level {
	case LevelDebug:
		l.sugar.Debugw(msg, args...)
	case LevelInfo:
		l.sugar.Infow(msg, args...)
	case LevelWarn:
		l.sugar.Warnw(msg, args...)
	case LevelError:
		l.sugar.Errorw(msg, args...)
	}
}

// noopLogger discards every event.
type noopLogger struct{}

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger { return noopLogger{} }

func (noopLogger) Debug(string, Fields) {}
func (noopLogger) Info(string, Fields)  {}
func (noopLogger) Warn(string, Fields)  {}
func (noopLogger) Error(string, Fields) {}

// Event is one recorded log call, captured by RecordingLogger.
type Event struct {
	Level  Level
	Msg    string
	Fields Fields
}

// RecordingLogger captures every event in order instead of emitting it,
// for tests that assert on log content without a real zap core.
type RecordingLogger struct {
	Events []Event
}

func NewRecordingLogger() *RecordingLogger { return &RecordingLogger{} }

func (l *RecordingLogger) Debug(msg string, fields Fields) { l.record(LevelDebug, msg, fields) }
func (l *RecordingLogger) Info(msg string, fields Fields)  { l.record(LevelInfo, msg, fields) }
func (l *RecordingLogger) Warn(msg string, fields Fields)  { l.record(LevelWarn, msg, fields) }
func (l *RecordingLogger) Error(msg string, fields Fields) { l.record(LevelError, msg, fields) }

func (l *RecordingLogger) record(level Level, msg string, fields Fields) {
	l.Events = append(l.Events, Event{Level: level, Msg: msg, Fields: fields})
}

// Last returns the most recent event with the given message, or nil.
func (l *RecordingLogger) Last(msg string) *Event {
	for i := len(l.Events) - 1; i >= 0; i-- {
		if l.Events[i].Msg == msg {
			return &l.Events[i]
		}
	}
	return nil
}
