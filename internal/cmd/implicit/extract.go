// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package main

import (
	"bufio"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"honnef.co/go/implicit"
	"honnef.co/go/implicit/engine/cpu_engine"
	"honnef.co/go/implicit/engine/wgpu_engine/shaders/cpu"
	"honnef.co/go/implicit/profiler"
	"honnef.co/go/implicit/renderer"
)

func newExtractCmd(opts *options) *cobra.Command {
	var (
		maxPoints int
		cells     bool
	)
	cmd := &cobra.Command{
		Use:   "extract <scene>",
		Short: "Run the point extraction on the CPU and print the points",
		Long: `Extract runs the marching squares pipeline on the CPU and prints one
line per point: the world coordinates and the index of the formula.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scene, prog, err := opts.loadProgram(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			reportDegenerate(cmd.ErrOrStderr(), prog)
			view := scene.RendererView(opts.cfg)

			var pgroup profiler.ProfilerGroup = profiler.Nop
			if opts.verbose {
				pgroup = profiler.NewSlog(implicit.Logger(), slog.LevelDebug)
			}

			eng := cpu_engine.New()
			ids := eng.LoadProgram(cpu.NewProgram(prog, opts.cfg.CompilerOptions()))
			sizes, err := renderer.NewBufferSizes(view.Width, view.Height,
				opts.cfg.PointMultiplier, opts.cfg.DispatchWidth, opts.cfg.RendererLimits())
			if err != nil {
				return err
			}
			ex := renderer.NewExtraction(ids, sizes, opts.cfg.DispatchWidth)
			var rec renderer.Recording
			if err := ex.Record(&rec, view, uint32(prog.Len()), pgroup); err != nil {
				return err
			}
			eng.RunRecording(&rec, "extract", pgroup)

			w := bufio.NewWriter(cmd.OutOrStdout())
			if cells {
				for _, c := range eng.ActiveCells(ex) {
					fmt.Fprintf(w, "%d %d\n", c.X, c.Y)
				}
			} else {
				points := eng.Points(ex)
				if maxPoints > 0 && len(points) > maxPoints {
					points = points[:maxPoints]
				}
				for _, p := range points {
					fmt.Fprintf(w, "%g %g %d\n", p.Position[0], p.Position[1], p.FunctionIndex)
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d active cells, %d points\n",
				len(eng.ActiveCells(ex)), len(eng.Points(ex)))
			return nil
		},
	}
	cmd.Flags().IntVar(&maxPoints, "max-points", 0, "Print at most `n` points (0 for all)")
	cmd.Flags().BoolVar(&cells, "cells", false, "Print the active cells instead of the points")
	return cmd
}
