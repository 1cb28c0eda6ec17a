// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/binlab/jinif"
	"github.com/binlab/jinif/classpathfs"
	"github.com/binlab/jinif/internal/config"
	"github.com/binlab/jinif/internal/log"
)

func newDumpCmd() *cobra.Command {
	var wantPool, wantMethods, wantCode, wantFrames bool

	cmd := &cobra.Command{
		Use:   "dump <class-file>...",
		Short: "Dumps the constant pool, members, and bytecode of one or more class files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Root(), cfgFile)
			if err != nil {
				return err
			}
			sink := newLoggerSink(cfg.Verbose)
			logger := log.NewHelper(sink)

			for _, path := range args {
				if err := dumpOne(path, cfg, sink, logger, wantPool, wantMethods, wantCode, wantFrames); err != nil {
					logger.Errorf("dumping %s: %v", path, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wantPool, "pool", false, "dump the constant pool")
	cmd.Flags().BoolVar(&wantMethods, "methods", false, "dump the class listing (fields, methods, and bytecode)")
	cmd.Flags().BoolVar(&wantCode, "code", false, "dump full bytecode listing")
	cmd.Flags().BoolVar(&wantFrames, "frames", false, "compute stack-map frames for every method, logging failures (frames are not printed)")
	return cmd
}

func dumpOne(path string, cfg config.Config, sink log.Logger, logger *log.Helper, wantPool, wantMethods, wantCode, wantFrames bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	cf, err := jinif.Parse(data, &jinif.Options{Logger: sink})
	if err != nil {
		return err
	}

	thisName, err := cf.ThisClassName()
	if err != nil {
		return err
	}
	fmt.Printf("=== %s (%s) ===\n", path, thisName)

	if wantPool {
		cf.Pool.Each(func(index int, tag jinif.CPTag) {
			fmt.Printf("  #%d = %v\n", index, tag)
		})
	}

	if wantFrames {
		fcfg := jinif.FrameComputerConfig{SkipBootstrapClasses: true}
		if cp := buildClassPath(cfg, sink); cp != nil {
			defer cp.Close()
			fcfg.ClassPath = cp
		}
		for _, m := range cf.Methods {
			if err := cf.ComputeMethodFrames(m, fcfg); err != nil {
				logger.Warnf("%s: frame computation failed: %v", path, err)
			}
		}
	}

	if wantMethods || wantCode {
		return jinif.Disassemble(cf, os.Stdout)
	}
	return nil
}

// buildClassPath wires classpathfs into a jinif.ClassPath using cfg's
// configured roots, returning nil when none are configured so frame
// computation still runs (with every reference join falling back to
// java/lang/Object).
func buildClassPath(cfg config.Config, sink log.Logger) *classpathfs.ClassPath {
	if len(cfg.ClasspathRoots) == 0 {
		return nil
	}
	roots := make([]classpathfs.Root, 0, len(cfg.ClasspathRoots))
	for _, r := range cfg.ClasspathRoots {
		if filepath.Ext(r) == ".jar" {
			roots = append(roots, classpathfs.Root{Jar: r})
		} else {
			roots = append(roots, classpathfs.Root{Dir: r})
		}
	}
	return classpathfs.New(roots, &classpathfs.Options{Logger: sink})
}
