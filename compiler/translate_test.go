// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package compiler

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honnef.co/go/implicit/algebra"
	"honnef.co/go/implicit/expr"
)

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0"},
		{2, "2.0"},
		{-3, "-3.0"},
		{0.1, "0.1"},
		{1e-7, "1e-07"},
		{1e20, "1e+20"},
		{123456.75, "123456.75"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatFloat(tt.in))
	}
}

func TestTranslate(t *testing.T) {
	eng := algebra.New()
	tests := []struct {
		in   string
		want string
	}{
		{"x^3", "(sign(x) * pow(abs(x), 3.0))"},
		{"x^2", "pow(abs(x), 2.0)"},
		{"x^(1/3)", "(sign(x) * pow(abs(x), ((1.0 / 3.0))))"},
		{"x^0.2", "(sign(x) * pow(abs(x), 0.2))"},
		{"x^0.5", "pow(abs(x), 0.5)"},
		{"x^y", "pow(abs(x), y)"},
		{"x^-1", "(sign(x) * pow(abs(x), -1.0))"},
		{"(x+1)^3", "(sign(((x + 1.0))) * pow(abs(((x + 1.0))), 3.0))"},
		{"x^pi", "pow(abs(x), 3.1415926535)"},
		{"2", "2.0"},
		{"0.25*y", "(0.25 * y)"},
		{"pi*x", "(3.1415926535 * x)"},
		{"e^x", "pow(abs(2.718281828), x)"},
		{"log(x, 3)", "(log(x) / log(3.0))"},
		{"log10(x)", "(log(x) / log(10.0))"},
		{"log2(y)", "(log(y) / log(2.0))"},
		{"ln(x)", "log(x)"},
		{"log(x)", "log(x)"},
		{"cbrt(x)", "(sign(x) * pow(abs(x), 0.3333333333))"},
		{"sin(x) + y", "(sin(x) + y)"},
		{"atan2(y, x)", "atan2(y, x)"},
		{"-x", "(-x)"},
		{"x - y / 2", "(x - (y / 2.0))"},
		{"(x)", "(x)"},
	}
	for _, tt := range tests {
		n, err := eng.Parse(tt.in)
		require.NoError(t, err, tt.in)
		got, err := Translate(n)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, "Translate(%q)", tt.in)
	}
}

func TestTranslateNegativeConstant(t *testing.T) {
	got, err := Translate(expr.Sub(expr.Sym("x"), expr.Num(-2)))
	require.NoError(t, err)
	assert.Equal(t, "(x - (-2.0))", got)
}

func TestTranslateUnsupported(t *testing.T) {
	for _, n := range []expr.Node{
		nil,
		&expr.Operator{Op: "%", Args: []expr.Node{expr.Sym("x"), expr.Sym("y")}},
		&expr.Operator{Op: "!", Args: []expr.Node{expr.Sym("x")}},
		&expr.Operator{Op: "+", Args: []expr.Node{expr.Sym("x"), expr.Sym("y"), expr.Sym("x")}},
		expr.Fn("sin", &expr.Operator{Op: "%", Args: []expr.Node{expr.Sym("x"), expr.Sym("y")}}),
	} {
		_, err := Translate(n)
		var uerr *UnsupportedNodeError
		assert.ErrorAs(t, err, &uerr, "Translate(%v)", n)
	}

	_, err := Translate(expr.Num(math.Inf(1)))
	require.Error(t, err)
	var uerr *UnsupportedNodeError
	assert.False(t, errors.As(err, &uerr), "non-finite constants are formula errors")
}
