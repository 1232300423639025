// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"honnef.co/go/implicit"
	"honnef.co/go/implicit/compiler"
	"honnef.co/go/implicit/engine/wgpu_engine/shaders"
)

func newCompileCmd(opts *options) *cobra.Command {
	var (
		shader string
		debug  bool
	)
	cmd := &cobra.Command{
		Use:   "compile <scene>",
		Short: "Print the assembled WGSL of a scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, prog, err := opts.loadProgram(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			reportDegenerate(cmd.ErrOrStderr(), prog)
			c, err := implicit.BuildShaders(prog, opts.cfg, shaders.BuildOptions{Debug: debug})
			if err != nil {
				return err
			}
			for _, name := range shaderNames(shader) {
				src, ok := shaderSource(c, name)
				if !ok {
					return fmt.Errorf("unknown shader %q", name)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "// %s.wgsl\n%s\n", name, src)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&shader, "shader", "curve", "Shader to print, or \"all\"")
	cmd.Flags().BoolVar(&debug, "debug", false, "Build the debug variant")
	return cmd
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check <scene>",
		Short: "Validate the assembled shaders of a scene with naga",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, prog, err := opts.loadProgram(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			reportDegenerate(cmd.ErrOrStderr(), prog)
			c, err := shaders.Build(prog, shaders.BuildOptions{})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var failed []error
			for _, name := range shaderNames("all") {
				src, _ := shaderSource(c, name)
				_, err := shaders.Validate(name, src)
				switch {
				case err == nil:
					fmt.Fprintf(out, "%s: ok\n", name)
				case shaders.IsValidatorLimitation(err):
					fmt.Fprintf(out, "%s: skipped (%s)\n", name, err)
				default:
					fmt.Fprintf(out, "%s: %s\n", name, err)
					failed = append(failed, err)
				}
			}
			return errors.Join(failed...)
		},
	}
}

var allShaders = []string{"coarse", "prepare_dispatch", "fine", "prepare_draw", "curve", "points"}

func shaderNames(sel string) []string {
	if sel == "all" {
		return allShaders
	}
	return []string{sel}
}

func shaderSource(c *shaders.Collection, name string) ([]byte, bool) {
	for _, cs := range c.Compute() {
		if cs.Name == name {
			return cs.WGSL.Code, true
		}
	}
	for _, rs := range c.Render() {
		if rs.Name == name {
			return rs.WGSL.Code, true
		}
	}
	return nil, false
}

func reportDegenerate(w io.Writer, prog *compiler.Program) {
	for _, f := range prog.Formulas {
		if f.Degenerate {
			fmt.Fprintf(w, "warning: %s\n", f.Err)
		}
	}
}
