// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package gfx

// Premultiply converts a straight alpha color to premultiplied alpha.
func Premultiply(c [4]float32) [4]float32 {
	return [4]float32{c[0] * c[3], c[1] * c[3], c[2] * c[3], c[3]}
}

// Over composites the straight alpha color src over the premultiplied color
// dst and returns a premultiplied color. It mirrors blend_over in the
// shaders.
func Over(dst, src [4]float32) [4]float32 {
	s := Premultiply(src)
	inv := 1 - s[3]
	return [4]float32{
		s[0] + dst[0]*inv,
		s[1] + dst[1]*inv,
		s[2] + dst[2]*inv,
		s[3] + dst[3]*inv,
	}
}
