// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package algebra

import (
	"math"

	"honnef.co/go/implicit/expr"
)

// simplify removes the clutter the derivative rules leave behind: it folds
// constant subtrees and applies the identities of 0 and 1. It does not
// attempt anything beyond that.
func simplify(n expr.Node) expr.Node {
	switch n := n.(type) {
	case *expr.Constant, *expr.Symbol:
		return n

	case *expr.Group:
		return simplify(n.Content)

	case *expr.Call:
		args := make([]expr.Node, len(n.Args))
		for i, arg := range n.Args {
			args[i] = simplify(arg)
		}
		out := expr.Fn(n.Name, args...)
		if c, ok := fold(out); ok {
			return c
		}
		return out

	case *expr.Operator:
		args := make([]expr.Node, len(n.Args))
		for i, arg := range n.Args {
			args[i] = simplify(arg)
		}
		if len(args) == 1 {
			return simplifyUnary(n.Op, args[0])
		}
		return simplifyBinary(n.Op, args[0], args[1])

	default:
		return n
	}
}

// fold evaluates n if it is constant and the result is finite. Symbols for
// named constants are left alone so that pi stays pi.
func fold(n expr.Node) (expr.Node, bool) {
	hasSymbol := false
	expr.Walk(n, func(n expr.Node) bool {
		if _, ok := n.(*expr.Symbol); ok {
			hasSymbol = true
		}
		return !hasSymbol
	})
	if hasSymbol {
		return nil, false
	}
	v, ok := expr.ConstantValue(n)
	if !ok || math.IsInf(v, 0) {
		return nil, false
	}
	return expr.Num(v), true
}

func constant(n expr.Node) (float64, bool) {
	c, ok := n.(*expr.Constant)
	if !ok {
		return 0, false
	}
	return c.Value, true
}

func isConstant(n expr.Node, v float64) bool {
	c, ok := constant(n)
	return ok && c == v
}

func simplifyUnary(op string, a expr.Node) expr.Node {
	if op == "+" {
		return a
	}
	if c, ok := constant(a); ok {
		return expr.Num(-c)
	}
	if inner, ok := a.(*expr.Operator); ok && inner.Op == "-" && len(inner.Args) == 1 {
		return inner.Args[0]
	}
	return expr.Neg(a)
}

func isNeg(n expr.Node) (expr.Node, bool) {
	op, ok := n.(*expr.Operator)
	if ok && op.Op == "-" && len(op.Args) == 1 {
		return op.Args[0], true
	}
	return nil, false
}

func simplifyBinary(op string, a, b expr.Node) expr.Node {
	out := &expr.Operator{Op: op, Args: []expr.Node{a, b}}
	if c, ok := fold(out); ok {
		return c
	}

	switch op {
	case "+":
		switch {
		case isConstant(a, 0):
			return b
		case isConstant(b, 0):
			return a
		}
		if nb, ok := isNeg(b); ok {
			return simplifyBinary("-", a, nb)
		}
	case "-":
		switch {
		case isConstant(b, 0):
			return a
		case isConstant(a, 0):
			return simplifyUnary("-", b)
		}
		if nb, ok := isNeg(b); ok {
			return simplifyBinary("+", a, nb)
		}
	case "*":
		switch {
		case isConstant(a, 0), isConstant(b, 0):
			return expr.Num(0)
		case isConstant(a, 1):
			return b
		case isConstant(b, 1):
			return a
		case isConstant(a, -1):
			return simplifyUnary("-", b)
		case isConstant(b, -1):
			return simplifyUnary("-", a)
		}
		// Move constants to the left and merge them.
		if _, ok := constant(b); ok {
			if _, ok := constant(a); !ok {
				a, b = b, a
			}
		}
		if ca, ok := constant(a); ok {
			if inner, ok := b.(*expr.Operator); ok && inner.Op == "*" && len(inner.Args) == 2 {
				if cb, ok := constant(inner.Args[0]); ok {
					return simplifyBinary("*", expr.Num(ca*cb), inner.Args[1])
				}
			}
		}
		out = expr.Mul(a, b)
	case "/":
		switch {
		case isConstant(a, 0):
			return expr.Num(0)
		case isConstant(b, 1):
			return a
		}
	case "^":
		switch {
		case isConstant(b, 0):
			return expr.Num(1)
		case isConstant(b, 1):
			return a
		}
	}
	return out
}
