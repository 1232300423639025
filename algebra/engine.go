// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package algebra parses infix formulas into [expr] trees and differentiates
// them symbolically.
//
// It is deliberately small: the only simplification performed is the one
// needed to keep derivatives readable. An [Engine] is immutable once
// constructed and may be shared between goroutines.
package algebra

import (
	"fmt"
	"maps"
	"slices"

	"honnef.co/go/implicit/expr"
)

type Engine struct {
	vars map[string]bool
}

// New returns an engine that accepts the given variable names. Without
// arguments, the variables are x and y.
func New(vars ...string) *Engine {
	if len(vars) == 0 {
		vars = []string{"x", "y"}
	}
	e := &Engine{vars: make(map[string]bool, len(vars))}
	for _, v := range vars {
		e.vars[v] = true
	}
	return e
}

// Variables returns the sorted variable names the engine accepts.
func (e *Engine) Variables() []string {
	return slices.Sorted(maps.Keys(e.vars))
}

// Parse parses an infix expression. Unknown variables and functions are
// syntax errors.
func (e *Engine) Parse(input string) (expr.Node, error) {
	return parse(input, e.vars)
}

// Differentiate returns the partial derivative of n with respect to
// variable, simplified.
func (e *Engine) Differentiate(n expr.Node, variable string) (expr.Node, error) {
	if !e.vars[variable] {
		return nil, fmt.Errorf("differentiate with respect to %q: not a variable", variable)
	}
	d, err := deriver{v: variable}.derive(n)
	if err != nil {
		return nil, err
	}
	return simplify(d), nil
}

// Simplify applies the same light simplification Differentiate does.
func (e *Engine) Simplify(n expr.Node) expr.Node {
	return simplify(n)
}
