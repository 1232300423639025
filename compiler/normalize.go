// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package compiler

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize turns user input into the implicit form F(x, y) whose zero set
// is the curve.
//
//   - "lhs = rhs" becomes "(lhs) - (rhs)".
//   - An expression mentioning y is used as is.
//   - Anything else is shorthand for y = f(x) and becomes "y - (f)".
//
// With opts.RewriteExponential, "y = b^e" with a literal positive base
// becomes "log(y) - ((e) * log(b))".
//
// Before that, decimals are completed (".5" to "0.5", "5." to "5.0") and
// runs of signs are folded ("x--y" to "x+y"). Normalize is purely textual
// and evaluates nothing.
func Normalize(raw string, opts Options) string {
	s := foldSigns(completeDecimals(raw))
	if lhs, rhs, ok := strings.Cut(s, "="); ok {
		lhs = strings.TrimSpace(lhs)
		rhs = strings.TrimSpace(rhs)
		if opts.RewriteExponential && lhs == "y" {
			if out, ok := rewriteExponential(rhs); ok {
				return out
			}
		}
		return "(" + lhs + ") - (" + rhs + ")"
	}
	s = strings.TrimSpace(s)
	if mentions(s, "y") {
		return s
	}
	return "y - (" + s + ")"
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// mentions reports whether ident occurs in s as a whole word.
func mentions(s, ident string) bool {
	for i := 0; i < len(s); {
		r, w := utf8.DecodeRuneInString(s[i:])
		if !isIdentRune(r) {
			i += w
			continue
		}
		j := i
		for j < len(s) {
			r, w := utf8.DecodeRuneInString(s[j:])
			if !isIdentRune(r) {
				break
			}
			j += w
		}
		if s[i:j] == ident {
			return true
		}
		i = j
	}
	return false
}

func isDigit(b byte) bool { return '0' <= b && b <= '9' }

func completeDecimals(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '.' {
			sb.WriteByte(c)
			continue
		}
		digitBefore := i > 0 && isDigit(s[i-1])
		digitAfter := i+1 < len(s) && isDigit(s[i+1])
		switch {
		case !digitBefore && digitAfter:
			if i > 0 {
				// Don't touch the tails of identifiers like a1.
				if r, _ := utf8.DecodeLastRuneInString(s[:i]); isIdentRune(r) {
					sb.WriteByte(c)
					continue
				}
			}
			sb.WriteString("0.")
		case digitBefore && !digitAfter:
			sb.WriteString(".0")
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// foldSigns replaces runs of + and - with a single sign according to the
// number of minus signs. A + that can only be unary is dropped.
func foldSigns(s string) string {
	var sb strings.Builder
	// unaryPos is true where an operator can't be binary.
	unaryPos := true
	for i := 0; i < len(s); {
		c := s[i]
		if c != '+' && c != '-' {
			sb.WriteByte(c)
			switch {
			case c == ' ' || c == '\t':
			case strings.IndexByte("(=,*/^", c) >= 0:
				unaryPos = true
			default:
				unaryPos = false
			}
			i++
			continue
		}

		minus := 0
		j := i
		for ; j < len(s); j++ {
			if s[j] == '-' {
				minus++
			} else if s[j] != '+' && s[j] != ' ' && s[j] != '\t' {
				break
			}
		}
		// Keep trailing whitespace of the run.
		k := j
		for k > i && (s[k-1] == ' ' || s[k-1] == '\t') {
			k--
		}
		switch {
		case minus%2 == 1:
			sb.WriteByte('-')
		case !unaryPos:
			sb.WriteByte('+')
		}
		sb.WriteString(s[k:j])
		unaryPos = true
		i = j
	}
	return sb.String()
}

// rewriteExponential rewrites b^e with a literal positive base b. The
// exponent must be a single operand so that the rewrite can't change
// precedence.
func rewriteExponential(rhs string) (string, bool) {
	base, exp, ok := strings.Cut(rhs, "^")
	if !ok {
		return "", false
	}
	base = strings.TrimSpace(base)
	exp = strings.TrimSpace(exp)
	b, err := strconv.ParseFloat(base, 64)
	if err != nil || !(b > 0) {
		return "", false
	}
	if !isSingleOperand(exp) {
		return "", false
	}
	return "log(y) - ((" + exp + ") * log(" + base + "))", true
}

func isSingleOperand(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '(' {
		depth := 0
		for i := 0; i < len(s); i++ {
			switch s[i] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 && i != len(s)-1 {
					return false
				}
			}
		}
		return depth == 0
	}
	for _, r := range s {
		if !isIdentRune(r) && r != '.' {
			return false
		}
	}
	return true
}
