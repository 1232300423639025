// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"honnef.co/go/curve"
)

// View maps between screen pixels and world coordinates. Screen y grows
// downwards, world y grows upwards. The canvas center shows Offset and the
// visible world height is 1/Zoom.
type View struct {
	Width  uint32
	Height uint32
	Offset curve.Point
	Zoom   float64
}

// DefaultView shows 10 world units vertically, centered on the origin.
func DefaultView(width, height uint32) View {
	return View{Width: width, Height: height, Zoom: 0.1}
}

func (v View) aspect() float64 {
	return float64(v.Width) / float64(v.Height)
}

// ScreenToWorld must match screen_to_world in the extraction shaders.
func (v View) ScreenToWorld(p curve.Point) curve.Point {
	nx := p.X/float64(v.Width) - 0.5
	ny := p.Y/float64(v.Height) - 0.5
	nx *= v.aspect()
	ny = -ny
	return curve.Point{X: nx/v.Zoom + v.Offset.X, Y: ny/v.Zoom + v.Offset.Y}
}

func (v View) WorldToScreen(p curve.Point) curve.Point {
	nx := (p.X - v.Offset.X) * v.Zoom / v.aspect()
	ny := (p.Y - v.Offset.Y) * v.Zoom
	return curve.Point{
		X: (nx + 0.5) * float64(v.Width),
		Y: (0.5 - ny) * float64(v.Height),
	}
}

// PixelWorldWidth is the world length of one pixel.
func (v View) PixelWorldWidth() float64 {
	return 1 / (v.Zoom * float64(v.Height))
}

// Bounds returns the bottom left and top right corners of the visible world
// rectangle.
func (v View) Bounds() (lo, hi curve.Point) {
	tl := v.ScreenToWorld(curve.Point{})
	br := v.ScreenToWorld(curve.Point{X: float64(v.Width), Y: float64(v.Height)})
	return curve.Point{X: tl.X, Y: br.Y}, curve.Point{X: br.X, Y: tl.Y}
}

func (v View) Uniforms(numFunctions, dispatchWidth uint32) Uniforms {
	return Uniforms{
		ScreenDimensions: [2]float32{float32(v.Width), float32(v.Height)},
		Zoom:             float32(v.Zoom),
		Offset:           [2]float32{float32(v.Offset.X), float32(v.Offset.Y)},
		NumFunctions:     numFunctions,
		DispatchWidth:    dispatchWidth,
	}
}

// CurveUniforms clips at the top edge of the view.
func (v View) CurveUniforms() CurveUniforms {
	lo, hi := v.Bounds()
	return CurveUniforms{
		ScreenDimensions: [2]float32{float32(v.Width), float32(v.Height)},
		Zoom:             float32(v.Zoom),
		Offset:           [2]float32{float32(v.Offset.X), float32(v.Offset.Y)},
		ClipParams:       [4]float32{float32(hi.Y), float32(lo.Y), float32(lo.X), float32(hi.X)},
	}
}
