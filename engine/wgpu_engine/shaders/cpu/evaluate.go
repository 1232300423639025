// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package cpu

import (
	"math"

	"github.com/chewxy/math32"

	"honnef.co/go/implicit/compiler"
	"honnef.co/go/implicit/expr"
	"honnef.co/go/implicit/gfx"
	"honnef.co/go/implicit/jmath"
)

// degenerateValue is what F_multi returns for unknown indices and what
// degenerate formulas evaluate to.
const degenerateValue = 1.0e38

// Func is a function of world coordinates.
type Func func(x, y float32) float32

// Formula holds the CPU versions of a formula's evaluator functions.
type Formula struct {
	F, Fx, Fy, Fxx, Fyy, Fxy Func
	// Intervals restrict x. Empty means unrestricted.
	Intervals []compiler.Interval
	Color     [4]float32
}

// Program is the CPU version of a compiled program.
type Program struct {
	Formulas []Formula
	Options  compiler.Options
}

func constant(v float32) Func {
	return func(x, y float32) float32 { return v }
}

func nodeFunc(n expr.Node) Func {
	return func(x, y float32) float32 {
		v, err := expr.Eval(n, float64(x), float64(y))
		if err != nil {
			return float32(math.NaN())
		}
		return float32(v)
	}
}

// NewProgram evaluates prog's derivative trees. The results differ from the
// shaders only in precision.
func NewProgram(prog *compiler.Program, opts compiler.Options) *Program {
	out := &Program{
		Formulas: make([]Formula, len(prog.Formulas)),
		Options:  opts,
	}
	for i, cf := range prog.Formulas {
		f := Formula{Intervals: cf.Intervals, Color: cf.Color}
		if cf.Degenerate || cf.Nodes == nil {
			f.F = constant(degenerateValue)
			f.Fx, f.Fy, f.Fxx, f.Fyy, f.Fxy = constant(0), constant(0), constant(0), constant(0), constant(0)
		} else {
			d := cf.Nodes
			f.F, f.Fx, f.Fy = nodeFunc(d.F), nodeFunc(d.Fx), nodeFunc(d.Fy)
			f.Fxx, f.Fyy, f.Fxy = nodeFunc(d.Fxx), nodeFunc(d.Fyy), nodeFunc(d.Fxy)
		}
		out.Formulas[i] = f
	}
	return out
}

// Evaluator returns the F_multi twin of the program.
func (p *Program) Evaluator() Evaluator {
	return func(index uint32, x, y float32) float32 {
		if int(index) >= len(p.Formulas) {
			return degenerateValue
		}
		return p.Formulas[index].F(x, y)
	}
}

// Coverage is the CPU version of one formula's part of the evaluation
// block. It returns the formula's alpha at (x, y) and the discriminant of
// the distance estimate. ok is false if the pixel was rejected before the
// discriminant was computed.
func (p *Program) Coverage(index int, x, y, pixelWorldWidth float32) (alpha, disc float32, ok bool) {
	f := &p.Formulas[index]
	v := f.F(x, y)
	fx := f.Fx(x, y)
	fy := f.Fy(x, y)
	if jmath.NonFinite(v) || jmath.NonFinite(fx) || jmath.NonFinite(fy) {
		return 0, 0, false
	}
	gradSq := fx*fx + fy*fy
	if !(gradSq > float32(p.Options.GradientEpsilon)) {
		return 0, 0, false
	}
	fxx := f.Fxx(x, y)
	fyy := f.Fyy(x, y)
	fxy := f.Fxy(x, y)
	if jmath.NonFinite(fxx) || jmath.NonFinite(fyy) || jmath.NonFinite(fxy) {
		return 0, 0, false
	}
	k := (fxx*fx*fx + 2*fxy*fx*fy + fyy*fy*fy) / gradSq
	disc = gradSq - 2*k*v
	if !(disc >= 0) {
		return 0, disc, true
	}
	denom := math32.Sqrt(gradSq) + math32.Sqrt(disc)
	dist := jmath.Abs32(float32(p.Options.DistanceScale) * v / max(jmath.Abs32(denom), float32(p.Options.DenominatorEpsilon)))
	alpha = 1 - jmath.Smoothstep(0, pixelWorldWidth, dist)
	if len(f.Intervals) > 0 {
		alpha *= DomainMask(f.Intervals, x, pixelWorldWidth)
	}
	return alpha, disc, true
}

// Shade is the CPU version of the curve fragment program. It returns the
// premultiplied color of the pixel at world position (x, y).
func (p *Program) Shade(x, y, pixelWorldWidth, clipY float32) [4]float32 {
	var out [4]float32
	if p.Options.ClipOffscreen && y > clipY {
		return out
	}
	for i := range p.Formulas {
		alpha, _, _ := p.Coverage(i, x, y, pixelWorldWidth)
		if alpha > 0 {
			c := p.Formulas[i].Color
			out = gfx.Over(out, [4]float32{c[0], c[1], c[2], c[3] * alpha})
		}
	}
	return out
}

// DomainMask mirrors the generated domain_mask functions: 1 inside the
// intervals, fading to 0 over two pixel widths towards each finite bound.
func DomainMask(intervals []compiler.Interval, x, w float32) float32 {
	lo := intervals[0].Min
	hi := intervals[len(intervals)-1].Max
	if (!math.IsInf(lo, -1) && x < float32(lo)) || (!math.IsInf(hi, 1) && x > float32(hi)) {
		return 0
	}
	var mask float32
	for _, iv := range intervals {
		rampLo := float32(1)
		if !math.IsInf(iv.Min, -1) {
			rampLo = jmath.Smoothstep(0, 2*w, x-float32(iv.Min))
		}
		rampHi := float32(1)
		if !math.IsInf(iv.Max, 1) {
			rampHi = jmath.Smoothstep(0, 2*w, float32(iv.Max)-x)
		}
		mask = max(mask, min(rampLo, rampHi))
	}
	return mask
}
