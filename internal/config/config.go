// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package config is the jinspect CLI's persistent-defaults layer: a small
// struct of classpath roots, output directory, and log verbosity, loaded
// through github.com/spf13/viper so a user can drop a jinspect.yaml next to
// their project instead of repeating flags on every invocation, while still
// letting an explicit flag on the command line win.
//
// Grounded in the teacher's cmd/main.go config struct (a flat bag of want*
// booleans threaded from flags into the dumper), generalized from flag-only
// sourcing to layered file+flag sourcing the way viper-using repos in this
// corpus bind a cobra command's flag set into a viper instance.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds jinspect's resolved settings: the classpath search roots
// used by classpathfs, where instrumented output is written, and how
// chatty the structured logger should be.
type Config struct {
	// ClasspathRoots is an ordered list of directories and/or .jar files
	// passed to classpathfs.New.
	ClasspathRoots []string `mapstructure:"classpath"`

	// OutputDir is where the instrument subcommand writes rewritten
	// .class files. Empty means next to the input file.
	OutputDir string `mapstructure:"output-dir"`

	// Verbose raises the structured logger's minimum level from Warn to
	// Debug.
	Verbose bool `mapstructure:"verbose"`
}

// Default returns the zero-configuration Config: no classpath roots, output
// alongside the input, warn-level logging.
func Default() Config {
	return Config{}
}

// Load resolves a Config from, in increasing priority: a config file (named
// jinspect.yaml, searched for in the current directory and $HOME), JINSPECT_-
// prefixed environment variables, and finally any flag the caller has set on
// cmd explicitly. cmd's persistent flags must already be registered under
// the same names as Config's mapstructure tags before Load is called.
func Load(cmd *cobra.Command, explicitFile string) (Config, error) {
	v := viper.New()
	v.SetConfigName("jinspect")
	v.SetConfigType("yaml")
	if explicitFile != "" {
		v.SetConfigFile(explicitFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix("jinspect")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config: reading jinspect.yaml: %w", err)
		}
	}

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("config: binding flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshaling: %w", err)
	}
	return cfg, nil
}
