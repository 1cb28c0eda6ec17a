// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Command jinspect is a class-file inspection and instrumentation tool,
// structured the way the teacher's cmd/pedumper.go structures a PE dumper:
// a cobra root command, a version subcommand, and a dump subcommand driven
// by boolean section flags, plus an instrument subcommand this spec adds.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
