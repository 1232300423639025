// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package implicit renders implicit curves F(x, y) = 0 on the GPU.
//
// Formulas are compiled to WGSL by package compiler, assembled into shaders
// by package shaders and drawn by the curve and point layers of package
// wgpu_engine. This package ties the pieces together: it loads
// configuration and scenes, and holds the logger shared by all packages.
package implicit

import (
	"log/slog"

	"honnef.co/go/implicit/internal/logging"
)

// SetLogger sets the logger used by all packages of the module. The default
// discards everything. Passing nil restores the default.
func SetLogger(l *slog.Logger) {
	logging.SetLogger(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return logging.Logger()
}
