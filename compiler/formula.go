// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package compiler turns formulas into WGSL.
//
// A formula is normalized into the implicit form F(x, y), differentiated
// twice with the help of an [Oracle], lowered to WGSL expressions and finally
// assembled into a [Program]: one set of evaluator functions per formula, an
// evaluation block that estimates the distance to the curve per pixel, and
// the cases of a dispatch switch used by the extraction kernels.
//
// Formulas that fail to parse or differentiate are replaced with a
// degenerate function that draws nothing. Only translator defects abort
// compilation.
package compiler

import (
	"errors"
	"fmt"

	"honnef.co/go/color"
	"honnef.co/go/implicit/expr"
)

// ErrEmptyExpression is the cause of a [FormulaError] for enabled formulas
// without an expression.
var ErrEmptyExpression = errors.New("empty expression")

// Formula is a formula as entered by the user.
type Formula struct {
	ID         string
	Expression string
	// Domain holds clauses restricting x, such as "0 < x < 2" or "x >= -1".
	Domain  []string
	Enabled bool
	// Color is converted to linear sRGB. A nil color is opaque black.
	Color *color.Color
}

// Oracle parses and symbolically differentiates expressions.
// [*algebra.Engine] implements it.
type Oracle interface {
	Parse(input string) (expr.Node, error)
	Differentiate(n expr.Node, variable string) (expr.Node, error)
}

// Derivatives holds F and its first and second partial derivatives.
type Derivatives struct {
	F, Fx, Fy, Fxx, Fyy, Fxy expr.Node
}

// Sources holds the WGSL expressions of a formula's derivatives.
type Sources struct {
	F, Fx, Fy, Fxx, Fyy, Fxy string
}

// Degenerate values emitted for formulas that failed to compile. A huge F
// with a zero gradient never passes the gradient test of the evaluation
// block.
const (
	degenerateValue      = "1.0e38"
	degenerateDerivative = "0.0"
)

var degenerateSources = Sources{
	F:   degenerateValue,
	Fx:  degenerateDerivative,
	Fy:  degenerateDerivative,
	Fxx: degenerateDerivative,
	Fyy: degenerateDerivative,
	Fxy: degenerateDerivative,
}

type CompiledFormula struct {
	// Index is the formula's position in the program.
	Index int
	ID    string
	// Normalized is the implicit form that was differentiated.
	Normalized string
	Source     Sources
	// Nodes is nil for degenerate formulas.
	Nodes     *Derivatives
	Intervals []Interval
	// Color is straight, not premultiplied, linear sRGB.
	Color      [4]float32
	Degenerate bool
	// Err is the reason the formula is degenerate.
	Err error
}

// FormulaError is a failure confined to a single formula.
type FormulaError struct {
	Index int
	ID    string
	Err   error
}

func (e *FormulaError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("formula %d (%s): %s", e.Index, e.ID, e.Err)
	}
	return fmt.Sprintf("formula %d: %s", e.Index, e.Err)
}

func (e *FormulaError) Unwrap() error { return e.Err }

// Options controls normalization and code generation.
type Options struct {
	// DistanceScale is the leading constant of the curvature corrected
	// distance estimate.
	DistanceScale float64
	// GradientEpsilon is the squared gradient magnitude below which a pixel
	// contributes nothing.
	GradientEpsilon float64
	// DenominatorEpsilon bounds the denominator of the distance estimate
	// away from zero.
	DenominatorEpsilon float64
	// ClipOffscreen discards fragments above uniforms.clip_params.x.
	ClipOffscreen bool
	// RewriteExponential rewrites y = b^e with a literal positive base into
	// logarithmic form.
	RewriteExponential bool
	// DebugDiscriminant writes the discriminant of the distance estimate to
	// debug_value.
	DebugDiscriminant bool
}

func DefaultOptions() Options {
	return Options{
		DistanceScale:      2.0,
		GradientEpsilon:    1e-19,
		DenominatorEpsilon: 1e-9,
	}
}
