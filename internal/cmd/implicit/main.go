// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Command implicit compiles scenes of implicit curves to WGSL and runs the
// point extraction on the CPU.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"honnef.co/go/implicit"
	"honnef.co/go/implicit/compiler"
)

type options struct {
	configPath string
	verbose    bool

	cfg *implicit.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "implicit",
		Short:         "Compile and inspect implicit curve scenes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			implicit.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

			if opts.configPath == "" {
				opts.cfg = implicit.DefaultConfig()
				return nil
			}
			cfg, err := implicit.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a TOML configuration `file`")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newCompileCmd(opts),
		newCheckCmd(opts),
		newExtractCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

// loadProgram loads and compiles a scene.
func (opts *options) loadProgram(ctx context.Context, path string) (*implicit.Scene, *compiler.Program, error) {
	scene, err := implicit.LoadScene(path)
	if err != nil {
		return nil, nil, err
	}
	prog, err := scene.Compile(ctx, opts.cfg)
	if err != nil {
		return nil, nil, err
	}
	return scene, prog, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
