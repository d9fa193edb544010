// Package logging defines the logger contract used by the event runtime and
// the formatter that turns dispatch outcomes into log records.
package logging

import (
	"log/slog"
	"reflect"

	"github.com/ThreeDotsLabs/watermill"
)

// LogFields holds structured key/value pairs attached to a log record.
type LogFields map[string]any

// ServiceLogger is the logging contract consumed by the dispatcher, the
// service and its transports.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// EntryLoggerAdapter describes entry style loggers such as logrus.Entry whose
// methods return their own type.
type EntryLoggerAdapter[T any] interface {
	Error(args ...any)
	Info(args ...any)
	Debug(args ...any)
	Trace(args ...any)
	WithError(err error) T
	WithField(key string, value any) T
}

var slogLevels = map[slog.Level]slog.Level{
	slog.LevelDebug: slog.LevelDebug,
	slog.LevelInfo:  slog.LevelInfo,
	slog.LevelWarn:  slog.LevelWarn,
	slog.LevelError: slog.LevelError,
}

// NewSlogServiceLogger adapts a slog.Logger.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("protoevents: slog logger cannot be nil")
	}
	return NewWatermillServiceLogger(watermill.NewSlogLoggerWithLevelMapping(log, slogLevels))
}

// NewWatermillServiceLogger adapts a Watermill LoggerAdapter.
func NewWatermillServiceLogger(logger watermill.LoggerAdapter) ServiceLogger {
	if logger == nil {
		panic("protoevents: watermill logger cannot be nil")
	}
	return watermillLogger{inner: logger}
}

// NewEntryServiceLogger adapts an entry style logger.
func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	if isNil(entry) {
		panic("protoevents: entry logger cannot be nil")
	}
	return entryLogger[T]{entry: entry}
}

// NopLogger discards every record.
func NopLogger() ServiceLogger {
	return watermillLogger{inner: watermill.NopLogger{}}
}

type watermillLogger struct {
	inner watermill.LoggerAdapter
}

func (w watermillLogger) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return w
	}
	return watermillLogger{inner: w.inner.With(watermill.LogFields(fields))}
}

func (w watermillLogger) Debug(msg string, fields LogFields) {
	w.inner.Debug(msg, toWatermill(fields))
}

func (w watermillLogger) Info(msg string, fields LogFields) {
	w.inner.Info(msg, toWatermill(fields))
}

func (w watermillLogger) Error(msg string, err error, fields LogFields) {
	w.inner.Error(msg, err, toWatermill(fields))
}

func (w watermillLogger) Trace(msg string, fields LogFields) {
	w.inner.Trace(msg, toWatermill(fields))
}

type entryLogger[T EntryLoggerAdapter[T]] struct {
	entry T
}

func (e entryLogger[T]) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return e
	}
	return entryLogger[T]{entry: withEntryFields(e.entry, fields)}
}

func (e entryLogger[T]) Debug(msg string, fields LogFields) {
	withEntryFields(e.entry, fields).Debug(msg)
}

func (e entryLogger[T]) Info(msg string, fields LogFields) {
	withEntryFields(e.entry, fields).Info(msg)
}

func (e entryLogger[T]) Error(msg string, err error, fields LogFields) {
	entry := withEntryFields(e.entry, fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(msg)
}

func (e entryLogger[T]) Trace(msg string, fields LogFields) {
	withEntryFields(e.entry, fields).Trace(msg)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}

func withEntryFields[T EntryLoggerAdapter[T]](entry T, fields LogFields) T {
	for key, value := range fields {
		entry = entry.WithField(key, value)
	}
	return entry
}

// NewWatermillAdapter exposes a ServiceLogger to Watermill routers and
// pub/subs so they log through the same sink as the dispatcher.
func NewWatermillAdapter(log ServiceLogger) watermill.LoggerAdapter {
	if log == nil {
		panic("protoevents: service logger cannot be nil")
	}
	return watermillBridge{base: log}
}

type watermillBridge struct {
	base ServiceLogger
}

func (b watermillBridge) Error(msg string, err error, fields watermill.LogFields) {
	b.base.Error(msg, err, fromWatermill(fields))
}

func (b watermillBridge) Info(msg string, fields watermill.LogFields) {
	b.base.Info(msg, fromWatermill(fields))
}

func (b watermillBridge) Debug(msg string, fields watermill.LogFields) {
	b.base.Debug(msg, fromWatermill(fields))
}

func (b watermillBridge) Trace(msg string, fields watermill.LogFields) {
	b.base.Trace(msg, fromWatermill(fields))
}

func (b watermillBridge) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillBridge{base: b.base.With(fromWatermill(fields))}
}

func toWatermill(fields LogFields) watermill.LogFields {
	if len(fields) == 0 {
		return nil
	}
	return watermill.LogFields(fields)
}

func fromWatermill(fields watermill.LogFields) LogFields {
	if len(fields) == 0 {
		return nil
	}
	return LogFields(fields)
}
