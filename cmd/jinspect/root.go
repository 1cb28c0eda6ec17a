// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped at release time; left as a plain literal the way the
// teacher's own cmd/pedumper.go hardcodes "You are using version 0.0.1"
// rather than threading it through -ldflags.
const version = "0.1.0"

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "jinspect",
		Short: "A JVM class file parser, disassembler, and instrumenter",
		Long:  "jinspect inspects and rewrites JVM class files built for constant-pool and bytecode level tooling.",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to jinspect.yaml (default: ./jinspect.yaml or $HOME/jinspect.yaml)")
	root.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")
	root.PersistentFlags().StringSlice("classpath", nil, "directory or .jar classpath root (repeatable)")
	root.PersistentFlags().String("output-dir", "", "directory instrumented classes are written to (default: alongside input)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newDumpCmd())
	root.AddCommand(newInstrumentCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the jinspect version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("jinspect version %s\n", version)
		},
	}
}
