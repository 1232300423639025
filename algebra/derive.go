// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package algebra

import (
	"errors"
	"fmt"
	"math"

	"honnef.co/go/implicit/expr"
)

// ErrNotDifferentiable is returned for constructs that have no derivative
// rule.
var ErrNotDifferentiable = errors.New("not differentiable")

type deriver struct {
	v string
}

func (d deriver) isConst(n expr.Node) bool {
	return !expr.HasSymbol(n, d.v)
}

func (d deriver) derive(n expr.Node) (expr.Node, error) {
	switch n := n.(type) {
	case *expr.Constant:
		return expr.Num(0), nil

	case *expr.Symbol:
		if n.Name == d.v {
			return expr.Num(1), nil
		}
		return expr.Num(0), nil

	case *expr.Group:
		return d.derive(n.Content)

	case *expr.Operator:
		return d.operator(n)

	case *expr.Call:
		return d.call(n)

	default:
		return nil, fmt.Errorf("%w: node %T", ErrNotDifferentiable, n)
	}
}

func (d deriver) operator(n *expr.Operator) (expr.Node, error) {
	if len(n.Args) == 1 {
		da, err := d.derive(n.Args[0])
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case "-":
			return expr.Neg(da), nil
		case "+":
			return da, nil
		}
		return nil, fmt.Errorf("%w: unary %q", ErrNotDifferentiable, n.Op)
	}

	a, b := n.Args[0], n.Args[1]
	if n.Op == "^" {
		return d.power(a, b)
	}
	da, err := d.derive(a)
	if err != nil {
		return nil, err
	}
	db, err := d.derive(b)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "+":
		return expr.Add(da, db), nil
	case "-":
		return expr.Sub(da, db), nil
	case "*":
		return expr.Add(expr.Mul(da, b), expr.Mul(a, db)), nil
	case "/":
		return expr.Div(
			expr.Sub(expr.Mul(da, b), expr.Mul(a, db)),
			expr.Pow(b, expr.Num(2)),
		), nil
	}
	return nil, fmt.Errorf("%w: operator %q", ErrNotDifferentiable, n.Op)
}

func (d deriver) power(base, exp expr.Node) (expr.Node, error) {
	switch {
	case d.isConst(exp):
		// b * a^(b-1) * a'
		da, err := d.derive(base)
		if err != nil {
			return nil, err
		}
		return expr.Mul(
			expr.Mul(exp, expr.Pow(base, expr.Sub(exp, expr.Num(1)))),
			da,
		), nil

	case d.isConst(base):
		// a^b * ln(a) * b'
		db, err := d.derive(exp)
		if err != nil {
			return nil, err
		}
		return expr.Mul(
			expr.Mul(expr.Pow(base, exp), expr.Fn("log", base)),
			db,
		), nil

	default:
		// a^b * (b' ln(a) + b a' / a)
		da, err := d.derive(base)
		if err != nil {
			return nil, err
		}
		db, err := d.derive(exp)
		if err != nil {
			return nil, err
		}
		return expr.Mul(
			expr.Pow(base, exp),
			expr.Add(
				expr.Mul(db, expr.Fn("log", base)),
				expr.Div(expr.Mul(exp, da), base),
			),
		), nil
	}
}

func (d deriver) call(n *expr.Call) (expr.Node, error) {
	switch {
	case n.Name == "log" && len(n.Args) == 2:
		return d.derive(expr.Div(expr.Fn("log", n.Args[0]), expr.Fn("log", n.Args[1])))
	case n.Name == "atan2" && len(n.Args) == 2:
		// atan2(u, w)' = (w u' - u w') / (u^2 + w^2)
		u, w := n.Args[0], n.Args[1]
		du, err := d.derive(u)
		if err != nil {
			return nil, err
		}
		dw, err := d.derive(w)
		if err != nil {
			return nil, err
		}
		return expr.Div(
			expr.Sub(expr.Mul(w, du), expr.Mul(u, dw)),
			expr.Add(expr.Pow(u, expr.Num(2)), expr.Pow(w, expr.Num(2))),
		), nil
	case len(n.Args) != 1:
		return nil, fmt.Errorf("%w: %s with %d arguments", ErrNotDifferentiable, n.Name, len(n.Args))
	}

	u := n.Args[0]
	du, err := d.derive(u)
	if err != nil {
		return nil, err
	}
	var outer expr.Node
	switch n.Name {
	case "sin":
		outer = expr.Fn("cos", u)
	case "cos":
		outer = expr.Neg(expr.Fn("sin", u))
	case "tan":
		outer = expr.Div(expr.Num(1), expr.Pow(expr.Fn("cos", u), expr.Num(2)))
	case "asin":
		outer = expr.Div(expr.Num(1), expr.Fn("sqrt", expr.Sub(expr.Num(1), expr.Pow(u, expr.Num(2)))))
	case "acos":
		outer = expr.Neg(expr.Div(expr.Num(1), expr.Fn("sqrt", expr.Sub(expr.Num(1), expr.Pow(u, expr.Num(2))))))
	case "atan":
		outer = expr.Div(expr.Num(1), expr.Add(expr.Num(1), expr.Pow(u, expr.Num(2))))
	case "sinh":
		outer = expr.Fn("cosh", u)
	case "cosh":
		outer = expr.Fn("sinh", u)
	case "tanh":
		outer = expr.Div(expr.Num(1), expr.Pow(expr.Fn("cosh", u), expr.Num(2)))
	case "exp":
		outer = expr.Fn("exp", u)
	case "log", "ln":
		outer = expr.Div(expr.Num(1), u)
	case "log10":
		outer = expr.Div(expr.Num(1), expr.Mul(u, expr.Num(math.Ln10)))
	case "log2":
		outer = expr.Div(expr.Num(1), expr.Mul(u, expr.Num(math.Ln2)))
	case "sqrt":
		outer = expr.Div(expr.Num(1), expr.Mul(expr.Num(2), expr.Fn("sqrt", u)))
	case "cbrt":
		outer = expr.Div(expr.Num(1), expr.Mul(expr.Num(3), expr.Pow(expr.Fn("cbrt", u), expr.Num(2))))
	case "abs":
		outer = expr.Fn("sign", u)
	case "sign":
		// Zero everywhere except at the jump.
		return expr.Num(0), nil
	default:
		return nil, fmt.Errorf("%w: unknown function %s", ErrNotDifferentiable, n.Name)
	}
	return expr.Mul(outer, du), nil
}
