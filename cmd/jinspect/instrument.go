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
	"github.com/binlab/jinif/internal/config"
	"github.com/binlab/jinif/internal/log"
)

func newInstrumentCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "instrument <class-file>...",
		Short: "Applies a named instrumentation and rewrites the class file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != "object-init" {
				return fmt.Errorf("jinspect: unknown instrumentation %q (known: object-init)", kind)
			}
			cfg, err := config.Load(cmd.Root(), cfgFile)
			if err != nil {
				return err
			}
			sink := newLoggerSink(cfg.Verbose)
			logger := log.NewHelper(sink)

			for _, path := range args {
				if err := instrumentOne(path, cfg, sink); err != nil {
					logger.Errorf("instrumenting %s: %v", path, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "object-init", "which instrumentation to apply")
	return cmd
}

func instrumentOne(path string, cfg config.Config, sink log.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	cf, err := jinif.Parse(data, &jinif.Options{Logger: sink})
	if err != nil {
		return err
	}

	if err := cf.InstrumentObjectInit(); err != nil {
		return err
	}

	for _, m := range cf.Methods {
		if err := cf.ComputeMethodFrames(m, jinif.FrameComputerConfig{SkipBootstrapClasses: true}); err != nil {
			return fmt.Errorf("recomputing frames: %w", err)
		}
	}

	out, err := jinif.Write(cf, nil)
	if err != nil {
		return err
	}

	dest := path
	if cfg.OutputDir != "" {
		dest = filepath.Join(cfg.OutputDir, filepath.Base(path))
	}
	if err := os.WriteFile(dest, out, 0o644); err != nil {
		return err
	}
	fmt.Printf("%s -> %s\n", path, dest)
	return nil
}
