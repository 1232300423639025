// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package gfx converts colors for the shaders and blends them the way the
// shaders do.
package gfx

import (
	"honnef.co/go/color"
)

// SRGB returns a color from gamma-encoded sRGB components in [0, 1].
func SRGB(r, g, b, a float64) *color.Color {
	c := color.Make(color.SRGB, r, g, b, a)
	return &c
}

// Premul32 returns c as premultiplied linear sRGB.
func Premul32(c *color.Color) [4]float32 {
	cc := c.Convert(color.LinearSRGB)
	r := cc.Values[0]
	g := cc.Values[1]
	b := cc.Values[2]
	a := cc.Values[3]

	return [4]float32{
		float32(r * a),
		float32(g * a),
		float32(b * a),
		float32(a),
	}
}

// Straight32 returns c as linear sRGB with straight alpha, which is what the
// curve shader's colors array holds.
func Straight32(c *color.Color) [4]float32 {
	cc := c.Convert(color.LinearSRGB)
	return [4]float32{
		float32(cc.Values[0]),
		float32(cc.Values[1]),
		float32(cc.Values[2]),
		float32(cc.Values[3]),
	}
}
