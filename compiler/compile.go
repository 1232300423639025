// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package compiler

import (
	"context"
	"errors"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"honnef.co/go/implicit/expr"
	"honnef.co/go/implicit/gfx"
	"honnef.co/go/implicit/internal/logging"
)

// Compile compiles the enabled formulas into a program. Formulas are
// compiled concurrently; the program lists them in input order.
//
// A formula that can't be parsed or differentiated is compiled as a
// degenerate function and its error is recorded in the CompiledFormula.
// The returned error is non-nil only if ctx is canceled or the translator
// encounters a node it can't lower.
func Compile(ctx context.Context, o Oracle, formulas []Formula, opts Options) (*Program, error) {
	var enabled []Formula
	for _, f := range formulas {
		if f.Enabled {
			enabled = append(enabled, f)
		}
	}

	out := make([]CompiledFormula, len(enabled))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, f := range enabled {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cf, err := compileFormula(o, i, f, opts)
			if err != nil {
				return err
			}
			out[i] = cf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	prog := Generate(out, opts)
	logging.Logger().Debug("compiled program",
		"formulas", len(out),
		"definitions_bytes", len(prog.Definitions),
		"evaluation_bytes", len(prog.Evaluation))
	return prog, nil
}

func compileFormula(o Oracle, index int, f Formula, opts Options) (CompiledFormula, error) {
	cf := CompiledFormula{
		Index:     index,
		ID:        f.ID,
		Intervals: ParseDomain(f.Domain),
		Color:     [4]float32{0, 0, 0, 1},
	}
	if f.Color != nil {
		cf.Color = gfx.Straight32(f.Color)
	}

	degrade := func(err error) (CompiledFormula, error) {
		ferr := &FormulaError{Index: index, ID: f.ID, Err: err}
		logging.Logger().Warn("formula is degenerate", "index", index, "id", f.ID, "error", err)
		cf.Degenerate = true
		cf.Err = ferr
		cf.Source = degenerateSources
		cf.Nodes = nil
		return cf, nil
	}

	if strings.TrimSpace(f.Expression) == "" {
		return degrade(ErrEmptyExpression)
	}
	cf.Normalized = Normalize(f.Expression, opts)

	d, err := Differentiate(o, cf.Normalized)
	if err != nil {
		return degrade(err)
	}
	cf.Nodes = d

	nodes := [...]expr.Node{d.F, d.Fx, d.Fy, d.Fxx, d.Fyy, d.Fxy}
	dsts := [...]*string{&cf.Source.F, &cf.Source.Fx, &cf.Source.Fy, &cf.Source.Fxx, &cf.Source.Fyy, &cf.Source.Fxy}
	for i, n := range nodes {
		s, err := Translate(n)
		if err != nil {
			var uerr *UnsupportedNodeError
			if errors.As(err, &uerr) {
				return CompiledFormula{}, uerr
			}
			return degrade(err)
		}
		*dsts[i] = s
	}
	return cf, nil
}
