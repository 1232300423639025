// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package algebra

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honnef.co/go/implicit/expr"
)

func TestParsePrinting(t *testing.T) {
	e := New()
	tests := []struct {
		in   string
		want string
	}{
		{"x^2 + y^2 - 4", "x ^ 2 + y ^ 2 - 4"},
		{"-x^2", "-x ^ 2"},
		{"2x", "2 * x"},
		{"2 x y", "2 * x * y"},
		{"(x+1)*y", "(x + 1) * y"},
		{"x^-2", "x ^ (-2)"},
		{"2^3^2", "2 ^ 3 ^ 2"},
		{"x**3", "x ^ 3"},
		{".5x", "0.5 * x"},
		{"1e-3*y", "0.001 * y"},
		{"2e", "2 * e"},
		{"PI*x", "pi * x"},
		{"π*x", "pi * x"},
		{"Sin(x)", "sin(x)"},
		{"log(x, 2)", "log(x, 2)"},
		{"atan2(y, x)", "atan2(y, x)"},
		{"x − y", "x - y"},
		{"+x", "x"},
	}
	for _, tt := range tests {
		n, err := e.Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, n.String(), "Parse(%q)", tt.in)
	}
}

func TestParseErrors(t *testing.T) {
	e := New()
	for _, in := range []string{
		"",
		"   ",
		"x +",
		"(x",
		"x)",
		"z + 1",
		"foo(x)",
		"sin(x, y)",
		"x $ y",
		"1 +* 2",
		".",
	} {
		_, err := e.Parse(in)
		var serr *SyntaxError
		require.ErrorAs(t, err, &serr, "Parse(%q)", in)
	}
}

func TestParseCustomVariables(t *testing.T) {
	e := New("t")
	assert.Equal(t, []string{"t"}, e.Variables())
	_, err := e.Parse("t^2")
	require.NoError(t, err)
	_, err = e.Parse("x")
	require.Error(t, err)
}

func TestDifferentiateSimplified(t *testing.T) {
	e := New()
	tests := []struct {
		in   string
		v    string
		want string
	}{
		{"x^2", "x", "2 * x"},
		{"x^2 + y^2 - 4", "y", "2 * y"},
		{"y - x^2", "x", "-(2 * x)"},
		{"y - x^2", "y", "1"},
		{"sin(x)", "x", "cos(x)"},
		{"2*x", "x", "2"},
		{"x*y", "x", "y"},
		{"pi", "x", "0"},
		{"sign(x)", "x", "0"},
		{"abs(x)", "x", "sign(x)"},
	}
	for _, tt := range tests {
		n, err := e.Parse(tt.in)
		require.NoError(t, err)
		d, err := e.Differentiate(n, tt.v)
		require.NoError(t, err)
		assert.Equal(t, tt.want, d.String(), "d/d%s %s", tt.v, tt.in)
	}
}

func TestDifferentiateNumerically(t *testing.T) {
	e := New()
	formulas := []string{
		"x^2 + y^2 - 4",
		"sin(x)*y",
		"x^3 - y",
		"exp(x*y)",
		"log(x, 2) + y",
		"atan2(y, x)",
		"sqrt(x^2 + y^2)",
		"x^y",
		"tan(x) - y",
		"cbrt(x) - y",
		"x / (y + 2)",
		"log10(x) * log2(y)",
		"asin(x/2) + acos(y/2) + atan(x*y)",
		"sinh(x) + cosh(y) + tanh(x*y)",
		"2^x - y",
		"ln(x*y)",
	}
	points := [][2]float64{{0.7, 1.3}, {1.2, 0.4}}
	const h = 1e-6

	for _, f := range formulas {
		n, err := e.Parse(f)
		require.NoError(t, err, f)
		for vi, v := range []string{"x", "y"} {
			d, err := e.Differentiate(n, v)
			require.NoError(t, err, f)
			for _, p := range points {
				lo, hi := p, p
				lo[vi] -= h
				hi[vi] += h
				flo, err := expr.Eval(n, lo[0], lo[1])
				require.NoError(t, err)
				fhi, err := expr.Eval(n, hi[0], hi[1])
				require.NoError(t, err)
				want := (fhi - flo) / (2 * h)
				got, err := expr.Eval(d, p[0], p[1])
				require.NoError(t, err)
				assert.InDelta(t, want, got, 1e-4*math.Max(1, math.Abs(want)),
					"d/d%s %s at %v (derivative %s)", v, f, p, d)
			}
		}
	}
}

func TestDifferentiateTwice(t *testing.T) {
	e := New()
	n, err := e.Parse("x^2*y^3")
	require.NoError(t, err)
	fx, err := e.Differentiate(n, "x")
	require.NoError(t, err)
	fxy, err := e.Differentiate(fx, "y")
	require.NoError(t, err)
	// 6xy^2
	got, err := expr.Eval(fxy, 2, 3)
	require.NoError(t, err)
	assert.InDelta(t, 108.0, got, 1e-9)
}

func TestDifferentiateUnknownVariable(t *testing.T) {
	e := New()
	n, err := e.Parse("x")
	require.NoError(t, err)
	_, err = e.Differentiate(n, "z")
	require.Error(t, err)
}
