// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package compiler

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"honnef.co/go/implicit/expr"
)

// UnsupportedNodeError reports a node the translator has no lowering for.
// It indicates a bug in the compiler, not in the formula.
type UnsupportedNodeError struct {
	Node expr.Node
}

func (e *UnsupportedNodeError) Error() string {
	if e.Node == nil {
		return "translate: nil node"
	}
	return fmt.Sprintf("translate: unsupported node %T (%s)", e.Node, e.Node)
}

var errNonFinite = errors.New("non-finite constant")

const (
	piLiteral = "3.1415926535"
	eLiteral  = "2.718281828"
)

// formatFloat formats v as a WGSL float literal. The result always contains
// a '.' or an exponent so that it is never an integer literal.
func formatFloat(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// Translate lowers n to a WGSL expression over the f32 variables x and y.
func Translate(n expr.Node) (string, error) {
	var sb strings.Builder
	if err := translate(&sb, n); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func translate(sb *strings.Builder, n expr.Node) error {
	switch n := n.(type) {
	case *expr.Constant:
		if math.IsInf(n.Value, 0) || math.IsNaN(n.Value) {
			return errNonFinite
		}
		if n.Value < 0 {
			sb.WriteString("(" + formatFloat(n.Value) + ")")
		} else {
			sb.WriteString(formatFloat(n.Value))
		}
		return nil

	case *expr.Symbol:
		switch strings.ToLower(n.Name) {
		case "pi":
			sb.WriteString(piLiteral)
		case "e":
			sb.WriteString(eLiteral)
		default:
			sb.WriteString(n.Name)
		}
		return nil

	case *expr.Group:
		sb.WriteByte('(')
		if err := translate(sb, n.Content); err != nil {
			return err
		}
		sb.WriteByte(')')
		return nil

	case *expr.Call:
		return translateCall(sb, n)

	case *expr.Operator:
		switch len(n.Args) {
		case 1:
			if n.Op != "-" && n.Op != "+" {
				return &UnsupportedNodeError{n}
			}
			sb.WriteString("(" + n.Op)
			if err := translate(sb, n.Args[0]); err != nil {
				return err
			}
			sb.WriteByte(')')
			return nil
		case 2:
			switch n.Op {
			case "^":
				return translatePow(sb, n.Args[0], n.Args[1])
			case "+", "-", "*", "/":
				sb.WriteByte('(')
				if err := translate(sb, n.Args[0]); err != nil {
					return err
				}
				sb.WriteString(" " + n.Op + " ")
				if err := translate(sb, n.Args[1]); err != nil {
					return err
				}
				sb.WriteByte(')')
				return nil
			}
		}
		return &UnsupportedNodeError{n}

	default:
		return &UnsupportedNodeError{n}
	}
}

func translateCall(sb *strings.Builder, n *expr.Call) error {
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		s, err := Translate(arg)
		if err != nil {
			return err
		}
		args[i] = s
	}

	name := strings.ToLower(n.Name)
	switch {
	case name == "log" && len(args) == 2:
		fmt.Fprintf(sb, "(log(%s) / log(%s))", args[0], args[1])
	case name == "log10" && len(args) == 1:
		fmt.Fprintf(sb, "(log(%s) / log(10.0))", args[0])
	case name == "log2" && len(args) == 1:
		fmt.Fprintf(sb, "(log(%s) / log(2.0))", args[0])
	case name == "ln" && len(args) == 1:
		fmt.Fprintf(sb, "log(%s)", args[0])
	case name == "cbrt" && len(args) == 1:
		fmt.Fprintf(sb, "(sign(%[1]s) * pow(abs(%[1]s), 0.3333333333))", args[0])
	default:
		sb.WriteString(n.Name + "(" + strings.Join(args, ", ") + ")")
	}
	return nil
}

// translatePow lowers base^exp. WGSL's pow is undefined for negative bases,
// so the power is always taken of abs(base), restoring the sign for odd
// integer exponents and odd roots. Other exponents only keep the
// non-negative branch.
func translatePow(sb *strings.Builder, base, exp expr.Node) error {
	b, err := Translate(base)
	if err != nil {
		return err
	}

	if v, ok := expr.ConstantValue(exp); ok && !math.IsInf(v, 0) {
		branch, integral := expr.ClassifyExponent(v)
		var e string
		if integral {
			e = formatFloat(v)
		} else {
			e, err = Translate(exp)
			if err != nil {
				return err
			}
		}
		if branch == expr.PowSigned {
			fmt.Fprintf(sb, "(sign(%[1]s) * pow(abs(%[1]s), %[2]s))", b, e)
		} else {
			fmt.Fprintf(sb, "pow(abs(%s), %s)", b, e)
		}
		return nil
	}

	e, err := Translate(exp)
	if err != nil {
		return err
	}
	fmt.Fprintf(sb, "pow(abs(%s), %s)", b, e)
	return nil
}
