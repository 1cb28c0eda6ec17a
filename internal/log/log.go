// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package log is a small leveled-logging facade used throughout jinif for
// soft-failure diagnostics. Its shape — a Logger interface, a NewHelper
// wrapper exposing Debugf/Infof/Warnf/Errorf, and a level-filtering
// NewFilter/FilterLevel pair — mirrors the call sites the teacher codebase
// exercises against its own internal github.com/saferwall/pe/log package
// (see file.go's `log.NewHelper(log.NewFilter(logger,
// log.FilterLevel(log.LevelError)))`), but is backed by go.uber.org/zap as
// the concrete sink instead of a bespoke writer.
package log

import (
	"fmt"

	"go.uber.org/zap"
)

// Level is a logging severity, ordered least to most severe.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is the minimal sink every Helper writes through.
type Logger interface {
	Log(level Level, keyvals ...interface{}) error
}

// zapLogger adapts a *zap.SugaredLogger to the Logger interface.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewStdLogger builds a Logger backed by a production zap logger. The w
// parameter is accepted for symmetry with the teacher's NewStdLogger(io.Writer)
// constructor but zap manages its own sinks; passing nil selects zap's
// default stderr-backed production config.
func NewStdLogger(_ interface{}) Logger {
	zl, err := zap.NewProduction()
	if err != nil {
		zl = zap.NewNop()
	}
	return &zapLogger{sugar: zl.Sugar()}
}

// NewNopLogger builds a Logger that discards everything, used as the
// zero-value default when no Options.Logger is supplied.
func NewNopLogger() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

func (z *zapLogger) Log(level Level, keyvals ...interface{}) error {
	msg := fmt.Sprint(keyvals...)
	switch level {
	case LevelDebug:
		z.sugar.Debug(msg)
	case LevelInfo:
		z.sugar.Info(msg)
	case LevelWarn:
		z.sugar.Warn(msg)
	case LevelError:
		z.sugar.Error(msg)
	}
	return nil
}

// filter wraps a Logger, dropping any record below its minimum level.
type filter struct {
	next Logger
	min  Level
}

// FilterOption configures a filter built by NewFilter.
type FilterOption func(*filter)

// FilterLevel sets the minimum level a record must meet to pass through the
// filter.
func FilterLevel(min Level) FilterOption {
	return func(f *filter) { f.min = min }
}

// NewFilter wraps next with level filtering, the counterpart to the
// teacher's log.NewFilter(logger, log.FilterLevel(...)).
func NewFilter(next Logger, opts ...FilterOption) Logger {
	f := &filter{next: next, min: LevelDebug}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *filter) Log(level Level, keyvals ...interface{}) error {
	if level < f.min {
		return nil
	}
	return f.next.Log(level, keyvals...)
}

// Helper is the leveled-logging facade call sites use directly, mirroring
// the teacher's *log.Helper (pe.logger.Errorf(...), pe.logger.Debugf(...)).
type Helper struct {
	logger Logger
}

// NewHelper wraps logger in a Helper. A nil logger is replaced with a no-op
// sink so callers never need a nil check.
func NewHelper(logger Logger) *Helper {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Helper{logger: logger}
}

func (h *Helper) Debugf(format string, args ...interface{}) {
	_ = h.logger.Log(LevelDebug, fmt.Sprintf(format, args...))
}

func (h *Helper) Infof(format string, args ...interface{}) {
	_ = h.logger.Log(LevelInfo, fmt.Sprintf(format, args...))
}

func (h *Helper) Warnf(format string, args ...interface{}) {
	_ = h.logger.Log(LevelWarn, fmt.Sprintf(format, args...))
}

func (h *Helper) Errorf(format string, args ...interface{}) {
	_ = h.logger.Log(LevelError, fmt.Sprintf(format, args...))
}
