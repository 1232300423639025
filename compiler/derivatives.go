// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package compiler

import (
	"fmt"

	"honnef.co/go/implicit/expr"
)

// Differentiate parses the implicit form and computes its first and second
// partial derivatives. The mixed derivative is the derivative of Fx with
// respect to y.
func Differentiate(o Oracle, implicit string) (*Derivatives, error) {
	f, err := o.Parse(implicit)
	if err != nil {
		return nil, err
	}
	d := &Derivatives{F: f}
	steps := []struct {
		dst  *expr.Node
		src  *expr.Node
		v    string
		name string
	}{
		{&d.Fx, &d.F, "x", "Fx"},
		{&d.Fy, &d.F, "y", "Fy"},
		{&d.Fxx, &d.Fx, "x", "Fxx"},
		{&d.Fyy, &d.Fy, "y", "Fyy"},
		{&d.Fxy, &d.Fx, "y", "Fxy"},
	}
	for _, step := range steps {
		n, err := o.Differentiate(*step.src, step.v)
		if err != nil {
			return nil, fmt.Errorf("computing %s: %w", step.name, err)
		}
		*step.dst = n
	}
	return d, nil
}
