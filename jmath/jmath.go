// Package jmath contains float32 helpers that mirror WGSL built-ins, so
// that CPU code computes what the shaders compute.
package jmath

import (
	"github.com/chewxy/math32"
	"golang.org/x/exp/constraints"
)

func Abs32(f float32) float32 {
	return math32.Abs(f)
}

func Clamp(x, lo, hi float32) float32 {
	return min(max(x, lo), hi)
}

// Smoothstep is WGSL's smoothstep. low must be less than high.
func Smoothstep(low, high, x float32) float32 {
	t := Clamp((x-low)/(high-low), 0, 1)
	return t * t * (3 - 2*t)
}

// Mix is WGSL's mix.
func Mix(a, b, t float32) float32 {
	return a*(1-t) + b*t
}

// Sign is WGSL's sign: -1, 0 or 1.
func Sign(x float32) float32 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// NonFinite reports whether v is infinite, NaN or so large that adding one
// doesn't change it. It is the test the shaders use.
func NonFinite(v float32) bool {
	return v+1 == v || v != v
}

func Length(x, y float32) float32 {
	return math32.Hypot(x, y)
}

// AlignUp rounds n up to a multiple of alignment, which must be a power of
// two.
func AlignUp[T constraints.Unsigned](n, alignment T) T {
	return (n + alignment - 1) &^ (alignment - 1)
}

// DivCeil returns ceil(a / b).
func DivCeil[T constraints.Integer](a, b T) T {
	return (a + b - 1) / b
}
