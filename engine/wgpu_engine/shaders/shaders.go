// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package shaders holds the WGSL sources of the extraction kernels and the
// render pipelines, and assembles them with a compiled program.
package shaders

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"honnef.co/go/implicit/compiler"
	"honnef.co/go/implicit/internal/logging"
)

//go:embed wgsl
var sources embed.FS

type BindType int

const (
	Buffer BindType = iota + 1
	BufReadOnly
	Uniform
)

func (typ BindType) IsMutable() bool {
	return typ == Buffer
}

// ComputeShader describes a compute kernel. Its entry point is main.
type ComputeShader struct {
	Name          string
	WorkgroupSize [3]uint32
	Bindings      []BindType
	WGSL          WGSLSource
}

// RenderShader describes a render pipeline's shaders. Its entry points are
// vs_main and fs_main.
type RenderShader struct {
	Name string
	WGSL WGSLSource
}

type WGSLSource struct {
	Code []byte
}

// Collection holds all shaders, specialized for one program.
type Collection struct {
	Coarse          ComputeShader
	PrepareDispatch ComputeShader
	Fine            ComputeShader
	PrepareDraw     ComputeShader

	Curve  RenderShader
	Points RenderShader
}

// BuildOptions selects shader variants.
type BuildOptions struct {
	// Debug adds a second color target to the curve shader that receives
	// the discriminant of the distance estimate.
	Debug bool
}

var computeShaders = []ComputeShader{
	{
		Name:          "coarse",
		WorkgroupSize: [3]uint32{16, 16, 1},
		Bindings:      []BindType{Uniform, Buffer, Buffer},
	},
	{
		Name:          "prepare_dispatch",
		WorkgroupSize: [3]uint32{1, 1, 1},
		Bindings:      []BindType{Uniform, BufReadOnly, BufReadOnly, Buffer},
	},
	{
		Name:          "fine",
		WorkgroupSize: [3]uint32{2, 2, 1},
		Bindings:      []BindType{Uniform, BufReadOnly, BufReadOnly, Buffer, Buffer},
	},
	{
		Name:          "prepare_draw",
		WorkgroupSize: [3]uint32{1, 1, 1},
		Bindings:      []BindType{BufReadOnly, BufReadOnly, Buffer},
	},
}

// Build preprocesses all shaders, inserting the program's definitions,
// evaluation block and dispatch cases.
func Build(prog *compiler.Program, opts BuildOptions) (*Collection, error) {
	shared, err := fs.Sub(sources, "wgsl/shared")
	if err != nil {
		panic(err)
	}
	p := &Preprocessor{
		Imports: shared,
		Defines: map[string]struct{}{},
		Inserts: map[string]string{
			"definitions": prog.Definitions,
			"evaluation":  prog.Evaluation,
			"cases":       prog.Cases,
		},
	}
	if opts.Debug {
		p.Defines["debug"] = struct{}{}
	}

	build := func(name string) ([]byte, error) {
		src, err := fs.ReadFile(sources, path.Join("wgsl", name+".wgsl"))
		if err != nil {
			return nil, err
		}
		out, err := p.Preprocess(src, name)
		if err != nil {
			return nil, fmt.Errorf("preprocessing %s: %w", name, err)
		}
		return out, nil
	}

	var out Collection
	dsts := []*ComputeShader{&out.Coarse, &out.PrepareDispatch, &out.Fine, &out.PrepareDraw}
	for i, cs := range computeShaders {
		code, err := build(cs.Name)
		if err != nil {
			return nil, err
		}
		*dsts[i] = cs
		dsts[i].WGSL = WGSLSource{Code: code}
	}
	for _, rs := range []*RenderShader{{Name: "curve"}, {Name: "points"}} {
		code, err := build(rs.Name)
		if err != nil {
			return nil, err
		}
		rs.WGSL = WGSLSource{Code: code}
		switch rs.Name {
		case "curve":
			out.Curve = *rs
		case "points":
			out.Points = *rs
		}
	}

	logging.Logger().Debug("built shaders", "formulas", prog.Len(), "debug", opts.Debug)
	return &out, nil
}

// Compute returns the compute shaders in dispatch order.
func (c *Collection) Compute() []*ComputeShader {
	return []*ComputeShader{&c.Coarse, &c.PrepareDispatch, &c.Fine, &c.PrepareDraw}
}

// Render returns the render shaders.
func (c *Collection) Render() []*RenderShader {
	return []*RenderShader{&c.Curve, &c.Points}
}
