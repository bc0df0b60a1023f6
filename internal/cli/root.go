// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hecrj/icebreaker-sub000/internal/config"
)

// Version is stamped by the build; "dev" otherwise.
var Version = "dev"

// rootFlags holds flag values shared by all commands.
type rootFlags struct {
	configPath string
	modelPath  string
	modelURL   string
	backend    string
	port       int
	gpuLayers  int
	image      string
	verbose    bool
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:     "icebreaker",
		Short:   "Chat with a local LLM that can research the web",
		Long:    "icebreaker boots a local llama.cpp inference server (native binary or container) and drops into an interactive chat. /plan runs a multi-step web-research plan for a question.",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup()
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), cfg, logger)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file path")
	pf.StringVarP(&flags.modelPath, "model", "m", "", "GGUF model file")
	pf.StringVar(&flags.modelURL, "model-url", "", "model download URL")
	pf.StringVarP(&flags.backend, "backend", "b", "", "compute backend: cpu, cuda, rocm")
	pf.IntVarP(&flags.port, "port", "p", 0, "inference server port")
	pf.IntVar(&flags.gpuLayers, "gpu-layers", 0, "layers offloaded to the GPU")
	pf.StringVar(&flags.image, "image", "", "container image family")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newAskCommand(flags))
	root.AddCommand(newConfigCommand(flags))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// setup loads the config, layers the command line over it, and builds
// the logger.
func (f *rootFlags) setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	if f.modelPath != "" {
		cfg.Model.Path = f.modelPath
	}
	if f.modelURL != "" {
		cfg.Model.URL = f.modelURL
	}
	if f.backend != "" {
		cfg.Server.Backend = f.backend
	}
	if f.port != 0 {
		cfg.Server.Port = f.port
	}
	if f.gpuLayers != 0 {
		cfg.Server.GPULayers = f.gpuLayers
	}
	if f.image != "" {
		cfg.Server.Image = f.image
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if f.verbose {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()

	return cfg, logger, nil
}

// newConfigCommand prints the effective configuration as TOML.
func newConfigCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.setup()
			if err != nil {
				return err
			}
			return printTOML(cmd.OutOrStdout(), cfg)
		},
	}
}

func printTOML(w io.Writer, cfg *config.Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}
