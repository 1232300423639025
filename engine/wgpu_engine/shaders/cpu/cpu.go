// Copyright 2023 the Vello Authors
// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package cpu provides CPU implementations of the compute shaders and of the
// curve fragment program's evaluation block.
//
// These shaders intentionally replicate the WGSL, float32 arithmetic
// included, instead of using more CPU-friendly alternatives. They're a debug
// and test tool, not a viable fallback.
package cpu

import (
	"fmt"
	"unsafe"

	"honnef.co/go/safeish"

	"honnef.co/go/implicit/renderer"
)

type CPUBinding interface {
	// One of CPUBuffer
}

type CPUBuffer []byte

// Shader is a CPU compute shader. wgs is the number of workgroups that were
// dispatched.
type Shader func(wgs renderer.WorkgroupSize, resources []CPUBinding)

// Evaluator evaluates formula index at world position (x, y). It mirrors
// F_multi, including its default arm.
type Evaluator func(index uint32, x, y float32) float32

// XXX move this into safeish
func fromBytes[E any, T *E](b []byte) T {
	if uintptr(len(b)) < unsafe.Sizeof(*new(E)) {
		panic(fmt.Sprintf(
			"buffer of size %d cannot represent object of size %d", len(b), unsafe.Sizeof(*new(E))))
	}

	return safeish.Cast[T](&b[0])
}

func sliceOf[E any](b CPUBuffer) []E {
	return safeish.SliceCast[[]E]([]byte(b))
}

type vec2 struct {
	x, y float32
}

func (v vec2) add(o vec2) vec2 { return vec2{v.x + o.x, v.y + o.y} }

func mix(a, b vec2, t float32) vec2 {
	return vec2{a.x*(1-t) + b.x*t, a.y*(1-t) + b.y*t}
}

// screenToWorld mirrors screen_to_world in shared/view.wgsl.
func screenToWorld(p vec2, u *renderer.Uniforms) vec2 {
	dx, dy := u.ScreenDimensions[0], u.ScreenDimensions[1]
	n := vec2{p.x/dx - 0.5, p.y/dy - 0.5}
	n.x = n.x * (dx / dy)
	n.y = -n.y
	return vec2{n.x/u.Zoom + u.Offset[0], n.y/u.Zoom + u.Offset[1]}
}
