// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package expr defines the syntax tree of mathematical expressions in two
// variables.
//
// The tree is a closed set of node types: [*Constant], [*Symbol],
// [*Operator], [*Call] and [*Group]. Code switching over nodes is expected
// to handle exactly these and to reject anything else.
package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Node interface {
	isNode()
	String() string
}

func (*Constant) isNode() {}
func (*Symbol) isNode() {}
func (*Operator) isNode() {}
func (*Call) isNode() {}
func (*Group) isNode() {}

// Constant is a numeric literal.
type Constant struct {
	Value float64
}

// Symbol is a variable or named constant such as x, y or pi.
type Symbol struct {
	Name string
}

// Operator is a binary operator if it has two arguments and a unary prefix
// operator if it has one. Op is one of + - * / ^.
type Operator struct {
	Op   string
	Args []Node
}

// Call is the application of a named function.
type Call struct {
	Name string
	Args []Node
}

// Group is an explicitly parenthesized expression.
type Group struct {
	Content Node
}

func Num(v float64) *Constant { return &Constant{Value: v} }
func Sym(name string) *Symbol { return &Symbol{Name: name} }
func Paren(n Node) *Group { return &Group{Content: n} }
func Neg(a Node) *Operator { return &Operator{Op: "-", Args: []Node{a}} }
func Add(a, b Node) *Operator { return &Operator{Op: "+", Args: []Node{a, b}} }
func Sub(a, b Node) *Operator { return &Operator{Op: "-", Args: []Node{a, b}} }
func Mul(a, b Node) *Operator { return &Operator{Op: "*", Args: []Node{a, b}} }
func Div(a, b Node) *Operator { return &Operator{Op: "/", Args: []Node{a, b}} }
func Pow(a, b Node) *Operator { return &Operator{Op: "^", Args: []Node{a, b}} }
func Fn(name string, args ...Node) *Call {
	return &Call{Name: name, Args: args}
}

// IsNamedConstant reports whether a symbol name denotes a mathematical
// constant rather than a variable.
func IsNamedConstant(name string) bool {
	switch strings.ToLower(name) {
	case "pi", "e":
		return true
	default:
		return false
	}
}

func namedConstant(name string) float64 {
	if strings.ToLower(name) == "pi" {
		return math.Pi
	}
	return math.E
}

func (c *Constant) String() string {
	return strconv.FormatFloat(c.Value, 'g', -1, 64)
}

func (s *Symbol) String() string { return s.Name }

func (g *Group) String() string { return "(" + g.Content.String() + ")" }

func (c *Call) String() string {
	var sb strings.Builder
	sb.WriteString(c.Name)
	sb.WriteByte('(')
	for i, arg := range c.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(arg.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// String prints the operator with the minimum of parentheses needed for the
// result to parse back into the same tree.
func (o *Operator) String() string {
	switch len(o.Args) {
	case 1:
		return o.Op + wrap(o.Args[0], precedence(o)+1, false)
	case 2:
		p := precedence(o)
		// ^ is right-associative, everything else left-associative.
		rightAssoc := o.Op == "^"
		lhs := wrap(o.Args[0], p, rightAssoc)
		rhs := wrap(o.Args[1], p, !rightAssoc)
		return lhs + " " + o.Op + " " + rhs
	default:
		return fmt.Sprintf("%s%v", o.Op, o.Args)
	}
}

func precedence(n Node) int {
	op, ok := n.(*Operator)
	if !ok {
		if c, ok := n.(*Constant); ok && c.Value < 0 {
			return 3
		}
		return 5
	}
	switch {
	case len(op.Args) == 1:
		return 3
	case op.Op == "^":
		return 4
	case op.Op == "*" || op.Op == "/":
		return 2
	default:
		return 1
	}
}

func wrap(n Node, parent int, strict bool) string {
	p := precedence(n)
	if p < parent || (strict && p == parent) {
		return "(" + n.String() + ")"
	}
	return n.String()
}

// Walk calls fn for n and all of its descendants, depth first. Walk stops
// descending into a node's children if fn returns false.
func Walk(n Node, fn func(Node) bool) {
	if !fn(n) {
		return
	}
	switch n := n.(type) {
	case *Operator:
		for _, arg := range n.Args {
			Walk(arg, fn)
		}
	case *Call:
		for _, arg := range n.Args {
			Walk(arg, fn)
		}
	case *Group:
		Walk(n.Content, fn)
	}
}

// HasSymbol reports whether the tree references the named variable.
func HasSymbol(n Node, name string) bool {
	found := false
	Walk(n, func(n Node) bool {
		if s, ok := n.(*Symbol); ok && s.Name == name {
			found = true
		}
		return !found
	})
	return found
}

// Unwrap strips any number of enclosing groups.
func Unwrap(n Node) Node {
	for {
		g, ok := n.(*Group)
		if !ok {
			return n
		}
		n = g.Content
	}
}
