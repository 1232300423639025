// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package compiler

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"

	"honnef.co/go/implicit/internal/logging"
)

// Interval is a closed range of x. Min may be -Inf and Max may be +Inf.
type Interval struct {
	Min, Max float64
}

func (iv Interval) Contains(x float64) bool {
	return iv.Min <= x && x <= iv.Max
}

type relation int

const (
	relLess relation = iota
	relGreater
)

var clauseReplacer = strings.NewReplacer(
	"≤", "<=",
	"≥", ">=",
	"−", "-",
	" ", "",
	"\t", "",
)

// splitClause splits a clause at its comparison operators.
func splitClause(s string) (parts []string, rels []relation) {
	start := 0
	for i := 0; i < len(s); i++ {
		var rel relation
		switch s[i] {
		case '<':
			rel = relLess
		case '>':
			rel = relGreater
		default:
			continue
		}
		parts = append(parts, s[start:i])
		rels = append(rels, rel)
		if i+1 < len(s) && s[i+1] == '=' {
			i++
		}
		start = i + 1
	}
	parts = append(parts, s[start:])
	return parts, rels
}

func parseBound(s string) (float64, bool) {
	neg := false
	if rest, ok := strings.CutPrefix(s, "-"); ok {
		neg = true
		s = rest
	} else {
		s = strings.TrimPrefix(s, "+")
	}
	var v float64
	switch strings.ToLower(s) {
	case "inf", "infinity", "∞":
		v = math.Inf(1)
	case "pi", "π":
		v = math.Pi
	case "e":
		v = math.E
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		v = f
	}
	if neg {
		v = -v
	}
	return v, true
}

// ParseClause parses a single restriction of x: a<x<b, a>x>b, x<a, x>a,
// a<x and a>x, with <= and >= accepted in place of < and >. Bounds may be
// numbers, inf, ∞, pi or e. The second return value is false for clauses
// that can't be parsed or describe an empty range.
func ParseClause(clause string) (Interval, bool) {
	parts, rels := splitClause(clauseReplacer.Replace(clause))
	var iv Interval
	switch len(parts) {
	case 2:
		switch {
		case parts[0] == "x":
			b, ok := parseBound(parts[1])
			if !ok {
				return Interval{}, false
			}
			if rels[0] == relLess {
				iv = Interval{math.Inf(-1), b}
			} else {
				iv = Interval{b, math.Inf(1)}
			}
		case parts[1] == "x":
			a, ok := parseBound(parts[0])
			if !ok {
				return Interval{}, false
			}
			if rels[0] == relLess {
				iv = Interval{a, math.Inf(1)}
			} else {
				iv = Interval{math.Inf(-1), a}
			}
		default:
			return Interval{}, false
		}
	case 3:
		if parts[1] != "x" || rels[0] != rels[1] {
			return Interval{}, false
		}
		a, ok1 := parseBound(parts[0])
		b, ok2 := parseBound(parts[2])
		if !ok1 || !ok2 {
			return Interval{}, false
		}
		if rels[0] == relLess {
			iv = Interval{a, b}
		} else {
			iv = Interval{b, a}
		}
	default:
		return Interval{}, false
	}
	if iv.Min > iv.Max {
		return Interval{}, false
	}
	return iv, true
}

// MergeIntervals returns the union of intervals as a sorted list of disjoint
// intervals. Intervals that touch are merged. The input is not modified.
func MergeIntervals(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}
	sorted := slices.Clone(intervals)
	slices.SortFunc(sorted, func(a, b Interval) int {
		return cmp.Compare(a.Min, b.Min)
	})

	out := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		run := &out[len(out)-1]
		if iv.Min <= run.Max {
			run.Max = max(run.Max, iv.Max)
		} else {
			out = append(out, iv)
		}
	}
	return out
}

// ParseDomain parses clauses and merges the resulting intervals. Clauses
// that don't parse are dropped. A nil result means x is unrestricted.
func ParseDomain(clauses []string) []Interval {
	var ivs []Interval
	for _, c := range clauses {
		if strings.TrimSpace(c) == "" {
			continue
		}
		iv, ok := ParseClause(c)
		if !ok {
			logging.Logger().Debug("dropping domain clause", "clause", c)
			continue
		}
		ivs = append(ivs, iv)
	}
	return MergeIntervals(ivs)
}
