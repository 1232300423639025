// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package shaders

import (
	"fmt"
	"strings"

	"github.com/gogpu/naga"

	"honnef.co/go/implicit/internal/logging"
)

// Naga's WGSL frontend doesn't cover all of WGSL yet. Errors containing
// all strings of one of these entries are limitations of the validator, not
// of the source.
var nagaLimitations = [][]string{
	{"runtime-sized arrays not yet implemented"},
	{"not yet implemented"},
	// Atomics fail in the SPIR-V backend, not in the frontend.
	{"lowering error", "atomic"},
}

// IsValidatorLimitation reports whether err is caused by a feature the
// validator doesn't support.
func IsValidatorLimitation(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
outer:
	for _, lim := range nagaLimitations {
		for _, sub := range lim {
			if !strings.Contains(s, sub) {
				continue outer
			}
		}
		return true
	}
	return false
}

type ValidationError struct {
	Shader string
	Err    error
}

func (err *ValidationError) Error() string {
	return fmt.Sprintf("shader %s failed validation: %s", err.Shader, err.Err)
}

func (err *ValidationError) Unwrap() error { return err.Err }

// Validate compiles src to SPIR-V to check it. It returns the SPIR-V on
// success.
func Validate(name string, src []byte) ([]byte, error) {
	spirv, err := naga.Compile(string(src))
	if err != nil {
		logging.Logger().Warn("shader validation failed",
			"shader", name,
			"limitation", IsValidatorLimitation(err),
			"error", err)
		return nil, &ValidationError{Shader: name, Err: err}
	}
	logging.Logger().Debug("validated shader", "shader", name, "spirv_bytes", len(spirv))
	return spirv, nil
}

// ValidateAll validates every shader of the collection. Failures that are
// validator limitations are logged and skipped.
func (c *Collection) ValidateAll() error {
	check := func(name string, src []byte) error {
		_, err := Validate(name, src)
		if err != nil && !IsValidatorLimitation(err) {
			return err
		}
		return nil
	}
	for _, cs := range c.Compute() {
		if err := check(cs.Name, cs.WGSL.Code); err != nil {
			return err
		}
	}
	for _, rs := range c.Render() {
		if err := check(rs.Name, rs.WGSL.Code); err != nil {
			return err
		}
	}
	return nil
}
