// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import "github.com/binlab/jinif/internal/log"

// newLoggerSink builds the Logger every subcommand threads into
// jinif.Options and classpathfs.Options, filtered to Debug when verbose is
// set and to Warn otherwise, mirroring the teacher's file.go construction
// `log.NewHelper(log.NewFilter(logger, log.FilterLevel(log.LevelError)))`.
func newLoggerSink(verbose bool) log.Logger {
	min := log.LevelWarn
	if verbose {
		min = log.LevelDebug
	}
	return log.NewFilter(log.NewStdLogger(nil), log.FilterLevel(min))
}
