// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package compiler

import (
	"fmt"
	"math"
	"strings"
)

// Program is the generated WGSL, split into the pieces that get inserted
// into the shader templates.
//
// Definitions declares eval_F_i, eval_dFdx_i, eval_dFdy_i, eval_d2Fdx2_i,
// eval_d2Fdy2_i and eval_d2Fxy_i for every formula i, plus domain_mask_i for
// formulas with a restricted domain.
//
// Evaluation is a statement list for the curve fragment shader. It reads the
// f32 values x, y and pixel_world_width and the storage array colors, and
// updates the vec4<f32> variable final_color. With DebugDiscriminant it also
// assigns the f32 variable debug_value. With ClipOffscreen it reads
// uniforms.clip_params.
//
// Cases holds the cases of the switch in F_multi(index: u32, p: vec2<f32>).
type Program struct {
	Definitions string
	Evaluation  string
	Cases       string
	// Colors holds one straight linear RGBA color per formula. It is uploaded
	// as the colors array and is indexed by formula index.
	Colors   [][4]float32
	Formulas []CompiledFormula
}

// Len returns the number of formulas in the program.
func (p *Program) Len() int { return len(p.Colors) }

var evaluatorNames = [...]string{
	"eval_F_%d",
	"eval_dFdx_%d",
	"eval_dFdy_%d",
	"eval_d2Fdx2_%d",
	"eval_d2Fdy2_%d",
	"eval_d2Fxy_%d",
}

// Generate assembles the program for formulas. formulas[i].Index must be i.
func Generate(formulas []CompiledFormula, opts Options) *Program {
	var defs, eval, cases strings.Builder
	prog := &Program{
		Colors:   make([][4]float32, len(formulas)),
		Formulas: formulas,
	}

	if opts.ClipOffscreen {
		eval.WriteString("\tif (y > uniforms.clip_params.x) {\n\t\tdiscard;\n\t}\n")
	}

	for i, f := range formulas {
		if f.Index != i {
			panic(fmt.Sprintf("formula at position %d has index %d", i, f.Index))
		}
		prog.Colors[i] = f.Color

		src := f.Source
		if f.Degenerate {
			src = degenerateSources
		}
		bodies := [...]string{src.F, src.Fx, src.Fy, src.Fxx, src.Fyy, src.Fxy}
		for j, name := range evaluatorNames {
			fmt.Fprintf(&defs, "fn "+name+"(x: f32, y: f32) -> f32 {\n\treturn %s;\n}\n\n", i, bodies[j])
		}
		if len(f.Intervals) > 0 {
			writeDomainMask(&defs, i, f.Intervals)
		}

		writeEvaluation(&eval, i, len(f.Intervals) > 0, opts)
		fmt.Fprintf(&cases, "\t\tcase %du: {\n\t\t\treturn eval_F_%d(p.x, p.y);\n\t\t}\n", i, i)
	}

	prog.Definitions = defs.String()
	prog.Evaluation = eval.String()
	prog.Cases = cases.String()
	return prog
}

// writeDomainMask emits a function that is 1 inside the intervals and fades
// to 0 over two pixel widths towards each finite bound.
func writeDomainMask(sb *strings.Builder, i int, intervals []Interval) {
	fmt.Fprintf(sb, "fn domain_mask_%d(x: f32, w: f32) -> f32 {\n", i)

	lo := intervals[0].Min
	hi := intervals[len(intervals)-1].Max
	var outside []string
	if !math.IsInf(lo, -1) {
		outside = append(outside, "x < "+formatFloat(lo))
	}
	if !math.IsInf(hi, 1) {
		outside = append(outside, "x > "+formatFloat(hi))
	}
	if len(outside) > 0 {
		fmt.Fprintf(sb, "\tif (%s) {\n\t\treturn 0.0;\n\t}\n", strings.Join(outside, " || "))
	}

	sb.WriteString("\tvar mask = 0.0;\n")
	for _, iv := range intervals {
		rampLo := "1.0"
		if !math.IsInf(iv.Min, -1) {
			rampLo = fmt.Sprintf("smoothstep(0.0, 2.0 * w, x - %s)", parenNeg(iv.Min))
		}
		rampHi := "1.0"
		if !math.IsInf(iv.Max, 1) {
			rampHi = fmt.Sprintf("smoothstep(0.0, 2.0 * w, %s - x)", parenNeg(iv.Max))
		}
		fmt.Fprintf(sb, "\tmask = max(mask, min(%s, %s));\n", rampLo, rampHi)
	}
	sb.WriteString("\treturn mask;\n}\n\n")
}

func parenNeg(v float64) string {
	if v < 0 {
		return "(" + formatFloat(v) + ")"
	}
	return formatFloat(v)
}

func writeEvaluation(sb *strings.Builder, i int, masked bool, opts Options) {
	w := &indentWriter{sb: sb, depth: 1}
	w.line("// formula %d", i)
	w.open("{")
	w.line("let f = eval_F_%d(x, y);", i)
	w.line("let fx = eval_dFdx_%d(x, y);", i)
	w.line("let fy = eval_dFdy_%d(x, y);", i)
	w.open("if (!(non_finite(f) || non_finite(fx) || non_finite(fy))) {")
	w.line("let grad_sq = fx * fx + fy * fy;")
	w.open("if (grad_sq > %s) {", formatFloat(opts.GradientEpsilon))
	w.line("let fxx = eval_d2Fdx2_%d(x, y);", i)
	w.line("let fyy = eval_d2Fdy2_%d(x, y);", i)
	w.line("let fxy = eval_d2Fxy_%d(x, y);", i)
	w.open("if (!(non_finite(fxx) || non_finite(fyy) || non_finite(fxy))) {")
	w.line("let k = (fxx * fx * fx + 2.0 * fxy * fx * fy + fyy * fy * fy) / grad_sq;")
	w.line("let disc = grad_sq - 2.0 * k * f;")
	if opts.DebugDiscriminant {
		w.line("debug_value = disc;")
	}
	w.open("if (disc >= 0.0) {")
	w.line("let denom = sqrt(grad_sq) + sqrt(disc);")
	w.line("let dist = abs(%s * f / max(abs(denom), %s));",
		formatFloat(opts.DistanceScale), formatFloat(opts.DenominatorEpsilon))
	w.line("var alpha = 1.0 - smoothstep(0.0, pixel_world_width, dist);")
	if masked {
		w.line("alpha = alpha * domain_mask_%d(x, pixel_world_width);", i)
	}
	w.open("if (alpha > 0.0) {")
	w.line("let c = colors[%d];", i)
	w.line("final_color = blend_over(final_color, vec4<f32>(c.rgb, c.a * alpha));")
	for range 5 {
		w.close()
	}
	w.close()
}

type indentWriter struct {
	sb    *strings.Builder
	depth int
}

func (w *indentWriter) line(format string, args ...any) {
	w.sb.WriteString(strings.Repeat("\t", w.depth))
	fmt.Fprintf(w.sb, format, args...)
	w.sb.WriteByte('\n')
}

func (w *indentWriter) open(format string, args ...any) {
	w.line(format, args...)
	w.depth++
}

func (w *indentWriter) close() {
	w.depth--
	w.line("}")
}
