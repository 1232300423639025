// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package algebra

import (
	"fmt"
	"strconv"
	"strings"

	"honnef.co/go/implicit/expr"
)

// Grammar, loosest binding first:
//
//	sum     = product { ("+" | "-") product }
//	product = unary { ("*" | "/") unary | unary }   (juxtaposition multiplies)
//	unary   = ("+" | "-") unary | power
//	power   = primary [ "^" unary ]
//	primary = number | name | name "(" sum { "," sum } ")" | "(" sum ")"
//
// ^ binds tighter than unary minus, so -x^2 is -(x^2), and is
// right-associative through the unary in its exponent.
type parser struct {
	input  string
	tokens []token
	pos    int
	vars   map[string]bool
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.typ != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Input: p.input, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) isOp(op string) bool {
	t := p.peek()
	return t.typ == tokOperator && t.text == op
}

func (p *parser) sum() (expr.Node, error) {
	lhs, err := p.product()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.next().text
		rhs, err := p.product()
		if err != nil {
			return nil, err
		}
		lhs = &expr.Operator{Op: op, Args: []expr.Node{lhs, rhs}}
	}
	return lhs, nil
}

func (p *parser) startsPrimary() bool {
	switch p.peek().typ {
	case tokNumber, tokIdent, tokLeftParen:
		return true
	default:
		return false
	}
}

func (p *parser) product() (expr.Node, error) {
	lhs, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.isOp("*") || p.isOp("/"):
			op = p.next().text
		case p.startsPrimary():
			op = "*"
		default:
			return lhs, nil
		}
		rhs, err := p.unary()
		if err != nil {
			return nil, err
		}
		lhs = &expr.Operator{Op: op, Args: []expr.Node{lhs, rhs}}
	}
}

func (p *parser) unary() (expr.Node, error) {
	if p.isOp("-") || p.isOp("+") {
		op := p.next().text
		arg, err := p.unary()
		if err != nil {
			return nil, err
		}
		if op == "+" {
			return arg, nil
		}
		return expr.Neg(arg), nil
	}
	return p.power()
}

func (p *parser) power() (expr.Node, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	if !p.isOp("^") {
		return base, nil
	}
	p.next()
	exp, err := p.unary()
	if err != nil {
		return nil, err
	}
	return expr.Pow(base, exp), nil
}

func (p *parser) primary() (expr.Node, error) {
	t := p.next()
	switch t.typ {
	case tokNumber:
		text := t.text
		if strings.HasPrefix(text, ".") {
			text = "0" + text
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, p.errorf(t, "malformed number %q", t.text)
		}
		return expr.Num(v), nil

	case tokIdent:
		if p.peek().typ == tokLeftParen {
			return p.call(t)
		}
		name := t.text
		if expr.IsNamedConstant(name) {
			return expr.Sym(strings.ToLower(name)), nil
		}
		if !p.vars[name] {
			return nil, p.errorf(t, "unknown variable %q", name)
		}
		return expr.Sym(name), nil

	case tokLeftParen:
		inner, err := p.sum()
		if err != nil {
			return nil, err
		}
		if rp := p.next(); rp.typ != tokRightParen {
			return nil, p.errorf(rp, "expected ')', found %s", rp.typ)
		}
		return expr.Paren(inner), nil

	default:
		return nil, p.errorf(t, "unexpected %s", t.typ)
	}
}

func (p *parser) call(name token) (expr.Node, error) {
	p.next() // (
	var args []expr.Node
	if p.peek().typ != tokRightParen {
		for {
			arg, err := p.sum()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().typ != tokComma {
				break
			}
			p.next()
		}
	}
	if rp := p.next(); rp.typ != tokRightParen {
		return nil, p.errorf(rp, "expected ')', found %s", rp.typ)
	}
	fn := strings.ToLower(name.text)
	if !expr.IsKnownFunction(fn, len(args)) {
		return nil, p.errorf(name, "unknown function %s with %d arguments", name.text, len(args))
	}
	return expr.Fn(fn, args...), nil
}

func parse(input string, vars map[string]bool) (expr.Node, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{input: input, tokens: tokens, vars: vars}
	if p.peek().typ == tokEOF {
		return nil, p.errorf(p.peek(), "empty expression")
	}
	n, err := p.sum()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.typ != tokEOF {
		return nil, p.errorf(t, "unexpected %s %q", t.typ, t.text)
	}
	return n, nil
}
