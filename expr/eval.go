// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package expr

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var errFreeVariable = errors.New("expression has free variables")

// PowBranch selects how a power with a possibly negative base is evaluated.
// GPU pow is only defined for non-negative bases, so every power is computed
// on abs(base) and the sign is restored where a real odd branch exists.
type PowBranch int

const (
	// PowAbs evaluates pow(abs(base), exp), keeping only the non-negative
	// branch.
	PowAbs PowBranch = iota
	// PowSigned evaluates sign(base) * pow(abs(base), exp).
	PowSigned
)

// OddRootTolerance is how close 1/exp has to be to an odd integer for exp to
// be treated as an odd root.
const OddRootTolerance = 1e-3

// ClassifyExponent picks the branch for a constant exponent. integral
// reports whether exp is a finite integer.
func ClassifyExponent(exp float64) (branch PowBranch, integral bool) {
	if math.IsInf(exp, 0) || math.IsNaN(exp) {
		return PowAbs, false
	}
	if exp == math.Trunc(exp) {
		if math.Mod(exp, 2) != 0 {
			return PowSigned, true
		}
		return PowAbs, true
	}
	inv := 1 / exp
	r := math.Round(inv)
	if math.Abs(math.Mod(r, 2)) == 1 && math.Abs(inv-r) < OddRootTolerance {
		return PowSigned, false
	}
	return PowAbs, false
}

// ConstantValue evaluates n if it doesn't depend on any variable.
func ConstantValue(n Node) (float64, bool) {
	v, err := eval(n, nil)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Eval evaluates n at (x, y). Powers are evaluated the way the shader
// lowering evaluates them, see [ClassifyExponent].
func Eval(n Node, x, y float64) (float64, error) {
	return eval(n, &[2]float64{x, y})
}

func eval(n Node, vars *[2]float64) (float64, error) {
	switch n := n.(type) {
	case *Constant:
		return n.Value, nil
	case *Symbol:
		if IsNamedConstant(n.Name) {
			return namedConstant(n.Name), nil
		}
		if vars == nil {
			return 0, errFreeVariable
		}
		switch n.Name {
		case "x":
			return vars[0], nil
		case "y":
			return vars[1], nil
		}
		return 0, fmt.Errorf("unknown variable %q", n.Name)
	case *Group:
		return eval(n.Content, vars)
	case *Operator:
		args, err := evalArgs(n.Args, vars)
		if err != nil {
			return 0, err
		}
		if len(args) == 1 {
			switch n.Op {
			case "-":
				return -args[0], nil
			case "+":
				return args[0], nil
			}
			return 0, fmt.Errorf("unknown unary operator %q", n.Op)
		}
		a, b := args[0], args[1]
		switch n.Op {
		case "+":
			return a + b, nil
		case "-":
			return a - b, nil
		case "*":
			return a * b, nil
		case "/":
			return a / b, nil
		case "^":
			branch := PowAbs
			if exp, ok := ConstantValue(n.Args[1]); ok {
				branch, _ = ClassifyExponent(exp)
			}
			p := math.Pow(math.Abs(a), b)
			if branch == PowSigned {
				p *= sign(a)
			}
			return p, nil
		}
		return 0, fmt.Errorf("unknown operator %q", n.Op)
	case *Call:
		args, err := evalArgs(n.Args, vars)
		if err != nil {
			return 0, err
		}
		return call(n.Name, args)
	default:
		return 0, fmt.Errorf("unexpected node %T", n)
	}
}

func evalArgs(nodes []Node, vars *[2]float64) ([]float64, error) {
	out := make([]float64, len(nodes))
	for i, arg := range nodes {
		v, err := eval(arg, vars)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

var unaryFuncs = map[string]func(float64) float64{
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"asin":  math.Asin,
	"acos":  math.Acos,
	"atan":  math.Atan,
	"sinh":  math.Sinh,
	"cosh":  math.Cosh,
	"tanh":  math.Tanh,
	"exp":   math.Exp,
	"log":   math.Log,
	"ln":    math.Log,
	"log10": math.Log10,
	"log2":  math.Log2,
	"sqrt":  math.Sqrt,
	"cbrt":  math.Cbrt,
	"abs":   math.Abs,
	"sign":  sign,
}

// IsKnownFunction reports whether name is a function the evaluator, the
// differentiator and the shader lowering all understand, and with how many
// arguments.
func IsKnownFunction(name string, nargs int) bool {
	name = strings.ToLower(name)
	if _, ok := unaryFuncs[name]; ok && nargs == 1 {
		return true
	}
	switch name {
	case "log", "atan2":
		return nargs == 2
	}
	return false
}

func call(name string, args []float64) (float64, error) {
	if !IsKnownFunction(name, len(args)) {
		return 0, fmt.Errorf("unknown function %s/%d", name, len(args))
	}
	name = strings.ToLower(name)
	if len(args) == 2 {
		switch name {
		case "log":
			return math.Log(args[0]) / math.Log(args[1]), nil
		case "atan2":
			return math.Atan2(args[0], args[1]), nil
		}
	}
	return unaryFuncs[name](args[0]), nil
}
