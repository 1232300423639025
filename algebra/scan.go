// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package algebra

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokNumber
	tokIdent
	tokOperator
	tokLeftParen
	tokRightParen
	tokComma
)

func (t tokenType) String() string {
	switch t {
	case tokEOF:
		return "end of input"
	case tokNumber:
		return "number"
	case tokIdent:
		return "identifier"
	case tokOperator:
		return "operator"
	case tokLeftParen:
		return "'('"
	case tokRightParen:
		return "')'"
	case tokComma:
		return "','"
	default:
		return fmt.Sprintf("tokenType(%d)", int(t))
	}
}

type token struct {
	typ  tokenType
	pos  int
	text string
}

// SyntaxError describes malformed input.
type SyntaxError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d in %q: %s", e.Pos, e.Input, e.Msg)
}

type scanner struct {
	input string
	pos   int
	start int
}

const eof = -1

func (s *scanner) next() rune {
	if s.pos >= len(s.input) {
		return eof
	}
	r, w := utf8.DecodeRuneInString(s.input[s.pos:])
	s.pos += w
	return r
}

func (s *scanner) peek() rune {
	if s.pos >= len(s.input) {
		return eof
	}
	r, _ := utf8.DecodeRuneInString(s.input[s.pos:])
	return r
}

func (s *scanner) peekAt(offset int) rune {
	if s.pos+offset >= len(s.input) {
		return eof
	}
	r, _ := utf8.DecodeRuneInString(s.input[s.pos+offset:])
	return r
}

func (s *scanner) emit(typ tokenType) token {
	t := token{typ: typ, pos: s.start, text: s.input[s.start:s.pos]}
	s.start = s.pos
	return t
}

func (s *scanner) errorf(format string, args ...any) error {
	return &SyntaxError{Input: s.input, Pos: s.start, Msg: fmt.Sprintf(format, args...)}
}

func isDigit(r rune) bool { return '0' <= r && r <= '9' }

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

// tokens splits the input. Unicode spellings of operators and of π are
// mapped to their ASCII forms.
func tokenize(input string) ([]token, error) {
	s := &scanner{input: input}
	var out []token
	for {
		for unicode.IsSpace(s.peek()) {
			s.next()
		}
		s.start = s.pos
		r := s.next()
		switch {
		case r == eof:
			out = append(out, s.emit(tokEOF))
			return out, nil
		case isDigit(r) || r == '.':
			if err := s.number(r); err != nil {
				return nil, err
			}
			out = append(out, s.emit(tokNumber))
		case r == 'π':
			t := s.emit(tokIdent)
			t.text = "pi"
			out = append(out, t)
		case isIdentStart(r):
			for r := s.peek(); isIdentStart(r) || isDigit(r); r = s.peek() {
				s.next()
			}
			out = append(out, s.emit(tokIdent))
		case r == '(':
			out = append(out, s.emit(tokLeftParen))
		case r == ')':
			out = append(out, s.emit(tokRightParen))
		case r == ',':
			out = append(out, s.emit(tokComma))
		case r == '*' && s.peek() == '*':
			s.next()
			t := s.emit(tokOperator)
			t.text = "^"
			out = append(out, t)
		case strings.ContainsRune("+-*/^", r):
			out = append(out, s.emit(tokOperator))
		case r == '·' || r == '×':
			t := s.emit(tokOperator)
			t.text = "*"
			out = append(out, t)
		case r == '−':
			t := s.emit(tokOperator)
			t.text = "-"
			out = append(out, t)
		default:
			return nil, s.errorf("unexpected character %q", r)
		}
	}
}

// number scans the rest of a decimal literal with an optional exponent. An
// 'e' is only part of the literal if digits follow, so that 2e reads as 2*e.
func (s *scanner) number(first rune) error {
	digits := isDigit(first)
	dot := first == '.'
	for {
		r := s.peek()
		switch {
		case isDigit(r):
			digits = true
			s.next()
		case r == '.' && !dot:
			dot = true
			s.next()
		default:
			if !digits {
				return s.errorf("malformed number %q", s.input[s.start:s.pos])
			}
			if r == 'e' || r == 'E' {
				n := 1
				if sgn := s.peekAt(1); sgn == '+' || sgn == '-' {
					n = 2
				}
				if isDigit(s.peekAt(n)) {
					for range n {
						s.next()
					}
					for isDigit(s.peek()) {
						s.next()
					}
				}
			}
			return nil
		}
	}
}
