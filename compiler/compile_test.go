// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package compiler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"honnef.co/go/implicit/algebra"
	"honnef.co/go/implicit/expr"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDifferentiate(t *testing.T) {
	d, err := Differentiate(algebra.New(), "x^2*y^3 + sin(x)")
	require.NoError(t, err)

	const x, y = 0.5, 1.5
	check := func(n expr.Node, want float64) {
		t.Helper()
		got, err := expr.Eval(n, x, y)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-9, "%s", n)
	}
	check(d.Fx, 2*x*y*y*y+math.Cos(x))
	check(d.Fy, 3*x*x*y*y)
	check(d.Fxx, 2*y*y*y-math.Sin(x))
	check(d.Fyy, 6*x*x*y)
	check(d.Fxy, 6*x*y*y)
}

type fakeOracle struct {
	parse func(string) (expr.Node, error)
	diff  func(expr.Node, string) (expr.Node, error)
}

func (o fakeOracle) Parse(s string) (expr.Node, error) { return o.parse(s) }
func (o fakeOracle) Differentiate(n expr.Node, v string) (expr.Node, error) {
	return o.diff(n, v)
}

func TestDifferentiateRecordsOrder(t *testing.T) {
	var calls []string
	o := fakeOracle{
		parse: func(s string) (expr.Node, error) { return expr.Sym("F"), nil },
		diff: func(n expr.Node, v string) (expr.Node, error) {
			calls = append(calls, n.String()+"/"+v)
			return expr.Sym(n.String() + v), nil
		},
	}
	d, err := Differentiate(o, "whatever")
	require.NoError(t, err)
	assert.Equal(t, []string{"F/x", "F/y", "Fx/x", "Fy/y", "Fx/y"}, calls)
	assert.Equal(t, "Fxy", d.Fxy.String())
	assert.Equal(t, "Fyy", d.Fyy.String())
}

func TestCompile(t *testing.T) {
	formulas := []Formula{
		{ID: "parabola", Expression: "y = x^2", Domain: []string{"0<x<1", "junk"}, Enabled: true},
		{ID: "hidden", Expression: "x^2 + y^2 = 9", Enabled: false},
		{ID: "circle", Expression: "x^2+y^2-1", Enabled: true},
		{ID: "broken", Expression: "sin(", Enabled: true},
		{ID: "empty", Expression: "   ", Enabled: true},
	}
	prog, err := Compile(context.Background(), algebra.New(), formulas, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 4, prog.Len())
	require.Len(t, prog.Formulas, 4)

	ids := make([]string, len(prog.Formulas))
	for i, f := range prog.Formulas {
		ids[i] = f.ID
		assert.Equal(t, i, f.Index)
	}
	assert.Equal(t, []string{"parabola", "circle", "broken", "empty"}, ids)

	parabola := prog.Formulas[0]
	assert.False(t, parabola.Degenerate)
	assert.Equal(t, "(y) - (x^2)", parabola.Normalized)
	assert.Equal(t, []Interval{{0, 1}}, parabola.Intervals)
	assert.Equal(t, "((y) - (pow(abs(x), 2.0)))", parabola.Source.F)
	assert.Equal(t, [4]float32{0, 0, 0, 1}, parabola.Color)

	broken := prog.Formulas[2]
	assert.True(t, broken.Degenerate)
	assert.Nil(t, broken.Nodes)
	var ferr *FormulaError
	require.ErrorAs(t, broken.Err, &ferr)
	assert.Equal(t, 2, ferr.Index)
	assert.Equal(t, "broken", ferr.ID)
	var serr *algebra.SyntaxError
	assert.ErrorAs(t, broken.Err, &serr)

	assert.ErrorIs(t, prog.Formulas[3].Err, ErrEmptyExpression)

	assert.Contains(t, prog.Definitions, "fn eval_F_2(x: f32, y: f32) -> f32 {\n\treturn 1.0e38;\n}\n")
	assert.Contains(t, prog.Definitions, "fn eval_d2Fxy_3(x: f32, y: f32) -> f32 {\n\treturn 0.0;\n}\n")
	assert.Contains(t, prog.Definitions, "fn domain_mask_0(x: f32, w: f32) -> f32 {")
	assert.Contains(t, prog.Definitions, "if (x < 0.0 || x > 1.0) {")
	assert.Contains(t, prog.Definitions, "mask = max(mask, min(smoothstep(0.0, 2.0 * w, x - 0.0), smoothstep(0.0, 2.0 * w, 1.0 - x)));")
	assert.NotContains(t, prog.Definitions, "domain_mask_1")
	assert.Contains(t, prog.Evaluation, "alpha = alpha * domain_mask_0(x, pixel_world_width);")
	assert.NotContains(t, prog.Evaluation, "discard")
	assert.NotContains(t, prog.Evaluation, "debug_value")
	assert.Contains(t, prog.Evaluation, "let dist = abs(2.0 * f / max(abs(denom), 1e-09));")
	assert.Contains(t, prog.Evaluation, "if (grad_sq > 1e-19) {")

	for i := range 4 {
		assert.Contains(t, prog.Cases, fmt.Sprintf("case %du: {\n\t\t\treturn eval_F_%d(p.x, p.y);\n\t\t}\n", i, i))
	}

	// The program only references colors that exist.
	refs := regexp.MustCompile(`colors\[(\d+)\]`).FindAllStringSubmatch(prog.Evaluation, -1)
	require.Len(t, refs, 4)
	for _, ref := range refs {
		idx, err := strconv.Atoi(ref[1])
		require.NoError(t, err)
		assert.Less(t, idx, len(prog.Colors))
	}
}

func TestCompileOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.DistanceScale = 23
	opts.ClipOffscreen = true
	opts.DebugDiscriminant = true
	prog, err := Compile(context.Background(), algebra.New(), []Formula{
		{Expression: "y = x", Enabled: true},
	}, opts)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(prog.Evaluation, "\tif (y > uniforms.clip_params.x) {\n\t\tdiscard;\n\t}\n"))
	assert.Contains(t, prog.Evaluation, "let dist = abs(23.0 * f / max(abs(denom), 1e-09));")
	assert.Contains(t, prog.Evaluation, "debug_value = disc;")
	assert.Equal(t, strings.Count(prog.Evaluation, "{"), strings.Count(prog.Evaluation, "}"))
}

func TestCompileEmpty(t *testing.T) {
	prog, err := Compile(context.Background(), algebra.New(), nil, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, prog.Len())
	assert.Empty(t, prog.Cases)
}

func TestCompileKeepsOrder(t *testing.T) {
	var formulas []Formula
	for i := range 64 {
		formulas = append(formulas, Formula{
			ID:         strconv.Itoa(i),
			Expression: fmt.Sprintf("x^2 + y^2 - %d", i+1),
			Enabled:    true,
		})
	}
	prog, err := Compile(context.Background(), algebra.New(), formulas, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 64, prog.Len())
	for i, f := range prog.Formulas {
		assert.Equal(t, strconv.Itoa(i), f.ID)
		assert.Contains(t, f.Source.F, fmt.Sprintf("%d.0", i+1))
	}
}

func TestCompileCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Compile(ctx, algebra.New(), []Formula{{Expression: "x", Enabled: true}}, DefaultOptions())
	require.ErrorIs(t, err, context.Canceled)
}

func TestCompileDifferentiationFailure(t *testing.T) {
	errBoom := errors.New("boom")
	o := fakeOracle{
		parse: func(string) (expr.Node, error) { return expr.Sym("x"), nil },
		diff:  func(expr.Node, string) (expr.Node, error) { return nil, errBoom },
	}
	prog, err := Compile(context.Background(), o, []Formula{{Expression: "x", Enabled: true}}, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, prog.Formulas[0].Degenerate)
	assert.ErrorIs(t, prog.Formulas[0].Err, errBoom)
}

func TestCompileTranslatorDefect(t *testing.T) {
	bad := &expr.Operator{Op: "%", Args: []expr.Node{expr.Sym("x"), expr.Sym("y")}}
	o := fakeOracle{
		parse: func(string) (expr.Node, error) { return bad, nil },
		diff:  func(expr.Node, string) (expr.Node, error) { return expr.Num(0), nil },
	}
	_, err := Compile(context.Background(), o, []Formula{
		{Expression: "x", Enabled: true},
		{Expression: "y", Enabled: true},
	}, DefaultOptions())
	var uerr *UnsupportedNodeError
	require.ErrorAs(t, err, &uerr)
}
