// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package cpu

import (
	"context"
	"math"
	"math/bits"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honnef.co/go/implicit/algebra"
	"honnef.co/go/implicit/compiler"
	"honnef.co/go/implicit/renderer"
)

func bufferOf[T any](n int) (CPUBuffer, []T) {
	s := make([]T, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*int(unsafe.Sizeof(s[0])))
	return CPUBuffer(b), s
}

func TestCaseIndex(t *testing.T) {
	for want := range uint32(16) {
		v := func(bit uint32) float32 {
			if want&bit != 0 {
				return 1
			}
			return -1
		}
		got := CaseIndex(v(CaseTL), v(CaseTR), v(CaseBR), v(CaseBL))
		assert.Equal(t, want, got)
	}
	// Zero counts as outside.
	assert.Equal(t, uint32(0), CaseIndex(0, 0, 0, 0))
}

func TestCellCrossingsCases(t *testing.T) {
	for c := range uint32(16) {
		v := func(bit uint32) float32 {
			if c&bit != 0 {
				return 1
			}
			return -1
		}
		got := CellCrossings([2]float32{0, 1}, [2]float32{1, 0}, v(CaseTL), v(CaseTR), v(CaseBR), v(CaseBL))

		// One crossing per edge whose endpoints differ.
		edges := c ^ (c>>1 | c<<3&8)
		want := bits.OnesCount32(edges & 15)
		assert.Len(t, got, want, "case %d", c)
		switch c {
		case 0, 15:
			assert.Empty(t, got)
		case 5, 10:
			assert.Len(t, got, 4, "saddle case %d", c)
		default:
			assert.Len(t, got, 2, "case %d", c)
		}
		for _, p := range got {
			// Symmetric values cross at edge midpoints.
			onVertical := p.X == 0 || p.X == 1
			onHorizontal := p.Y == 0 || p.Y == 1
			assert.True(t, onVertical != onHorizontal, "case %d: %v", c, p)
			if onVertical {
				assert.InDelta(t, 0.5, p.Y, 1e-6)
			} else {
				assert.InDelta(t, 0.5, p.X, 1e-6)
			}
		}
	}
}

func TestCellCrossingsParabola(t *testing.T) {
	f := func(x, y float32) float32 { return y - x*x }
	tests := []struct {
		name   string
		tl, br [2]float32
		want   []Crossing
	}{
		// Zeros on two corners: crossings at exactly those corners.
		{"zero corners right", [2]float32{0, 1}, [2]float32{1, 0}, []Crossing{{1, 1}, {0, 0}}},
		{"zero corners left", [2]float32{-1, 1}, [2]float32{0, 0}, []Crossing{{-1, 1}, {0, 0}}},
		{"interpolated", [2]float32{0.5, 0.5}, [2]float32{1, 0}, []Crossing{{0.5 + 0.5/3, 0.5}, {0.5, 0.25}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl, br := tt.tl, tt.br
			got := CellCrossings(tl, br, f(tl[0], tl[1]), f(br[0], tl[1]), f(br[0], br[1]), f(tl[0], br[1]))
			require.Len(t, got, len(tt.want))
			for i, want := range tt.want {
				assert.InDelta(t, want.X, got[i].X, 1e-6)
				assert.InDelta(t, want.Y, got[i].Y, 1e-6)
			}
		})
	}
}

func TestCrossingDiagonal(t *testing.T) {
	// F(0,1) = 1 and F(-1,0) = -1 for y - x², so the zero is halfway.
	p1, p2 := vec2{0, 1}, vec2{-1, 0}
	v1, v2 := float32(1), float32(-1)
	tt := -v1 / (v2 - v1)
	assert.Equal(t, float32(0.5), tt)
	assert.Equal(t, vec2{-0.5, 0.5}, crossing(p1, p2, v1, v2))
}

func circle(index uint32, x, y float32) float32 {
	if index != 0 {
		return degenerateValue
	}
	return x*x + y*y - 1
}

type extraction struct {
	uniforms     CPUBuffer
	cellCounter  CPUBuffer
	activeCells  CPUBuffer
	pointCounter CPUBuffer
	points       CPUBuffer
	staging      CPUBuffer

	cells      []renderer.ActiveCell
	pointSlice []renderer.PointRecord
	params     []renderer.IndirectParams
}

func newExtraction(view renderer.View, numFunctions, dispatchWidth uint32, maxCells, maxPoints int) *extraction {
	var ex extraction
	var u []renderer.Uniforms
	ex.uniforms, u = bufferOf[renderer.Uniforms](1)
	u[0] = view.Uniforms(numFunctions, dispatchWidth)
	ex.cellCounter, _ = bufferOf[uint32](1)
	ex.pointCounter, _ = bufferOf[uint32](1)
	ex.activeCells, ex.cells = bufferOf[renderer.ActiveCell](maxCells)
	ex.points, ex.pointSlice = bufferOf[renderer.PointRecord](maxPoints)
	ex.staging, ex.params = bufferOf[renderer.IndirectParams](1)
	return &ex
}

func (ex *extraction) run(f Evaluator, view renderer.View) {
	wg := renderer.NewWorkgroupCounts(view.Width, view.Height)
	Coarse(f)(wg.Coarse, []CPUBinding{ex.uniforms, ex.cellCounter, ex.activeCells})
	PrepareDispatch(wg.PrepareDispatch, []CPUBinding{ex.uniforms, ex.cellCounter, ex.activeCells, ex.staging})
	p := ex.params[0]
	Fine(f)(renderer.WorkgroupSize{p.DispatchX, p.DispatchY, p.DispatchZ},
		[]CPUBinding{ex.uniforms, ex.cellCounter, ex.activeCells, ex.pointCounter, ex.points})
	PrepareDraw(wg.PrepareDraw, []CPUBinding{ex.pointCounter, ex.points, ex.staging})
}

func TestExtractUnitCircle(t *testing.T) {
	view := renderer.View{Width: 64, Height: 64, Zoom: 0.25}
	ex := newExtraction(view, 1, 8, 64*64, 64*64*4)
	ex.run(circle, view)

	numCells := *fromBytes[uint32](ex.cellCounter)
	numPoints := *fromBytes[uint32](ex.pointCounter)
	// The circle has a radius of 16 pixels.
	assert.Greater(t, numCells, uint32(50))
	assert.Less(t, numCells, uint32(400))
	assert.Greater(t, numPoints, uint32(50))

	params := ex.params[0]
	assert.Equal(t, uint32(8), params.DispatchX)
	assert.Equal(t, (numCells+7)/8, params.DispatchY)
	assert.Equal(t, uint32(1), params.DispatchZ)
	assert.Equal(t, numPoints*3, params.VertexCount)
	assert.Equal(t, uint32(1), params.InstanceCount)

	seen := map[renderer.ActiveCell]bool{}
	for _, c := range ex.cells[:numCells] {
		assert.False(t, seen[c], "cell %v appended twice", c)
		seen[c] = true
		assert.Less(t, c.X, view.Width)
		assert.Less(t, c.Y, view.Height)
	}

	pixel := float32(view.PixelWorldWidth())
	for _, p := range ex.pointSlice[:numPoints] {
		r := math.Hypot(float64(p.Position[0]), float64(p.Position[1]))
		assert.InDelta(t, 1, r, float64(pixel), "point %v", p.Position)
		assert.Equal(t, uint32(0), p.FunctionIndex)
	}
}

func TestExtractMultipleFormulas(t *testing.T) {
	view := renderer.View{Width: 32, Height: 32, Zoom: 0.25}
	both := func(index uint32, x, y float32) float32 {
		switch index {
		case 0:
			return x*x + y*y - 1
		case 1:
			return y - x
		default:
			return degenerateValue
		}
	}
	ex := newExtraction(view, 2, 4, 32*32, 32*32*8)
	ex.run(both, view)

	numPoints := *fromBytes[uint32](ex.pointCounter)
	counts := map[uint32]int{}
	for _, p := range ex.pointSlice[:numPoints] {
		counts[p.FunctionIndex]++
	}
	assert.NotZero(t, counts[0])
	assert.NotZero(t, counts[1])
	assert.Len(t, counts, 2)
}

// line crosses screen row 31 between two pixel centers, so each of the 64
// cells of that row yields one crossing on the left edge of each of its
// lower sub-cells.
func line(index uint32, x, y float32) float32 {
	if index != 0 {
		return degenerateValue
	}
	return y - 0.01
}

func TestExtractLine(t *testing.T) {
	view := renderer.View{Width: 64, Height: 64, Zoom: 0.25}
	ex := newExtraction(view, 1, 8, 64*64, 64*64*4)
	ex.run(line, view)

	require.Equal(t, uint32(64), *fromBytes[uint32](ex.cellCounter))
	require.Equal(t, uint32(128), *fromBytes[uint32](ex.pointCounter))
	assert.Equal(t, uint32(8), ex.params[0].DispatchY)
	assert.Equal(t, uint32(384), ex.params[0].VertexCount)
	for i, c := range ex.cells[:64] {
		assert.Equal(t, renderer.ActiveCell{X: uint32(i), Y: 31}, c)
	}
	for _, p := range ex.pointSlice[:128] {
		assert.InDelta(t, 0.01, p.Position[1], 1e-6)
	}
}

func TestExtractOverflow(t *testing.T) {
	view := renderer.View{Width: 64, Height: 64, Zoom: 0.25}
	ex := newExtraction(view, 1, 8, 4, 3)
	ex.run(line, view)

	// Counters keep counting past the end of the buffers, the writes and
	// the indirect arguments don't.
	assert.Equal(t, uint32(64), *fromBytes[uint32](ex.cellCounter))
	assert.Equal(t, uint32(4), ex.params[0].DispatchX)
	assert.Equal(t, uint32(1), ex.params[0].DispatchY)
	assert.Equal(t, uint32(8), *fromBytes[uint32](ex.pointCounter))
	assert.Equal(t, uint32(9), ex.params[0].VertexCount)
}

func TestExtractNonFinite(t *testing.T) {
	view := renderer.View{Width: 16, Height: 16, Zoom: 0.25}
	inf := func(uint32, float32, float32) float32 { return float32(math.Inf(1)) }
	ex := newExtraction(view, 1, 8, 16*16, 16*16)
	ex.run(inf, view)
	assert.Zero(t, *fromBytes[uint32](ex.cellCounter))
	assert.Zero(t, ex.params[0].DispatchX)
	assert.Zero(t, ex.params[0].DispatchY)
	assert.Zero(t, ex.params[0].VertexCount)
}

func TestExtractNonFiniteNeighbor(t *testing.T) {
	// Formula 0 activates the cells along x = 0. Formula 1 is NaN left of
	// them and positive everywhere else, so it has no zero set in view.
	view := renderer.View{Width: 64, Height: 64, Zoom: 0.25}
	f := func(index uint32, x, y float32) float32 {
		switch index {
		case 0:
			return x
		case 1:
			return float32(math.Sqrt(float64(x))) - y + 3
		default:
			return degenerateValue
		}
	}
	ex := newExtraction(view, 2, 8, 64*64, 64*64*8)
	ex.run(f, view)

	numPoints := *fromBytes[uint32](ex.pointCounter)
	require.NotZero(t, numPoints)
	for _, p := range ex.pointSlice[:numPoints] {
		assert.False(t, math.IsNaN(float64(p.Position[0])) || math.IsNaN(float64(p.Position[1])),
			"non-finite point %v of formula %d", p.Position, p.FunctionIndex)
		assert.Equal(t, uint32(0), p.FunctionIndex)
	}
}

func circleProgram() *Program {
	return &Program{
		Options: compiler.DefaultOptions(),
		Formulas: []Formula{{
			F:     func(x, y float32) float32 { return x*x + y*y - 1 },
			Fx:    func(x, y float32) float32 { return 2 * x },
			Fy:    func(x, y float32) float32 { return 2 * y },
			Fxx:   constant(2),
			Fyy:   constant(2),
			Fxy:   constant(0),
			Color: [4]float32{1, 0, 0, 1},
		}},
	}
}

func TestCoverage(t *testing.T) {
	p := circleProgram()

	alpha, disc, ok := p.Coverage(0, 1, 0, 0.1)
	require.True(t, ok)
	assert.InDelta(t, 1, alpha, 1e-6)
	assert.InDelta(t, 4, disc, 1e-6)

	// Along the x axis the estimate is the exact distance |x - 1|.
	alpha, _, ok = p.Coverage(0, 1.5, 0, 1)
	require.True(t, ok)
	assert.InDelta(t, 0.5, alpha, 1e-6)

	alpha, _, _ = p.Coverage(0, 3, 0, 0.1)
	assert.Zero(t, alpha)

	// The gradient vanishes at the center.
	_, _, ok = p.Coverage(0, 0, 0, 0.1)
	assert.False(t, ok)
}

func TestCoverageNonFinite(t *testing.T) {
	p := circleProgram()
	p.Formulas[0].Fxx = constant(float32(math.NaN()))
	alpha, _, ok := p.Coverage(0, 1, 0, 0.1)
	assert.False(t, ok)
	assert.Zero(t, alpha)
}

func TestShade(t *testing.T) {
	p := circleProgram()
	assert.Equal(t, [4]float32{1, 0, 0, 1}, p.Shade(0, 1, 0.1, 10))
	assert.Equal(t, [4]float32{}, p.Shade(0, 0, 0.1, 10))

	p.Options.ClipOffscreen = true
	assert.Equal(t, [4]float32{}, p.Shade(0, 1, 0.1, 0.5))
}

func TestDomainMask(t *testing.T) {
	ivs := []compiler.Interval{{Min: 0, Max: 1}}
	assert.InDelta(t, 1, DomainMask(ivs, 0.5, 0.1), 1e-6)
	assert.Zero(t, DomainMask(ivs, -0.1, 0.1))
	assert.Zero(t, DomainMask(ivs, 1.1, 0.1))
	assert.InDelta(t, 0.5, DomainMask(ivs, 0.1, 0.1), 1e-6)

	open := []compiler.Interval{{Min: math.Inf(-1), Max: 0}, {Min: 2, Max: math.Inf(1)}}
	assert.InDelta(t, 1, DomainMask(open, -100, 0.1), 1e-6)
	assert.InDelta(t, 1, DomainMask(open, 100, 0.1), 1e-6)
	assert.Zero(t, DomainMask(open, 1, 0.1))
}

func TestNewProgram(t *testing.T) {
	prog, err := compiler.Compile(context.Background(), algebra.New(), []compiler.Formula{
		{Expression: "x^2 + y^2 = 1", Enabled: true},
		{Expression: "", Enabled: true},
	}, compiler.DefaultOptions())
	require.NoError(t, err)

	p := NewProgram(prog, compiler.DefaultOptions())
	f := p.Evaluator()
	assert.InDelta(t, 0, f(0, 1, 0), 1e-6)
	assert.InDelta(t, 1, math.Abs(float64(f(0, 0, 0))), 1e-6)
	assert.Equal(t, float32(degenerateValue), f(1, 0, 0))
	assert.Equal(t, float32(degenerateValue), f(7, 0, 0))

	alpha, _, ok := p.Coverage(0, 0, 1, 0.01)
	require.True(t, ok)
	assert.InDelta(t, 1, alpha, 1e-6)
	_, _, ok = p.Coverage(1, 0, 1, 0.01)
	assert.False(t, ok)
}
