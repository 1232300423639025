// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"honnef.co/go/implicit"
	"honnef.co/go/implicit/engine/wgpu_engine/shaders"
	"honnef.co/go/implicit/internal/logging"
)

const watchDebounce = 200 * time.Millisecond

func newWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <scene>",
		Short: "Recompile a scene whenever it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			out := cmd.OutOrStdout()
			rebuild := func(ctx context.Context) {
				if err := opts.rebuild(ctx, out, path); err != nil {
					fmt.Fprintf(out, "error: %s\n", err)
				}
			}
			rebuild(cmd.Context())
			return watchFile(cmd.Context(), path, watchDebounce, rebuild)
		},
	}
}

func (opts *options) rebuild(ctx context.Context, w io.Writer, path string) error {
	start := time.Now()
	_, prog, err := opts.loadProgram(ctx, path)
	if err != nil {
		return err
	}
	reportDegenerate(w, prog)
	if _, err := implicit.BuildShaders(prog, opts.cfg, shaders.BuildOptions{}); err != nil {
		return err
	}
	degenerate := 0
	for _, f := range prog.Formulas {
		if f.Degenerate {
			degenerate++
		}
	}
	fmt.Fprintf(w, "compiled %d formulas (%d degenerate) in %s\n",
		prog.Len(), degenerate, time.Since(start).Round(time.Microsecond))
	return nil
}

// watchFile calls fn after path has been written to, until ctx is done.
// Bursts of events within debounce of each other cause a single call. The
// directory is watched rather than the file so that editors replacing the
// file by renaming are noticed.
func watchFile(ctx context.Context, path string, debounce time.Duration, fn func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("couldn't watch %s: %w", path, err)
	}
	logging.Logger().Info("watching scene", "path", path)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			logging.Logger().Debug("scene changed", "op", event.Op.String())
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Logger().Warn("watch error", "error", err)

		case <-timer.C:
			fn(ctx)
		}
	}
}
