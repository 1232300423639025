// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package cpu

import (
	"honnef.co/go/implicit/jmath"
	"honnef.co/go/implicit/renderer"
)

const (
	coarseWGSize = renderer.CoarseWorkgroupSize
	subdivision  = renderer.FineSubdivision
)

// Corner bits of the marching squares case index.
const (
	CaseTL = 1 << iota
	CaseTR
	CaseBR
	CaseBL
)

// Coarse returns the CPU version of coarse.wgsl.
//
// Bindings: uniforms, cell counter, active cells.
func Coarse(f Evaluator) Shader {
	return func(wgs renderer.WorkgroupSize, resources []CPUBinding) {
		uniforms := fromBytes[renderer.Uniforms](resources[0].(CPUBuffer))
		counter := fromBytes[uint32](resources[1].(CPUBuffer))
		cells := sliceOf[renderer.ActiveCell](resources[2].(CPUBuffer))

		dimX := uint32(uniforms.ScreenDimensions[0])
		dimY := uint32(uniforms.ScreenDimensions[1])
		corner := func(x, y, index uint32) float32 {
			p := screenToWorld(vec2{float32(x), float32(y)}, uniforms)
			return f(index, p.x, p.y)
		}

		for wgY := range wgs[1] {
			for wgX := range wgs[0] {
				for ly := range uint32(coarseWGSize) {
					for lx := range uint32(coarseWGSize) {
						gx := wgX*coarseWGSize + lx
						gy := wgY*coarseWGSize + ly
						if gx >= dimX || gy >= dimY {
							continue
						}
						active := false
						for i := range uniforms.NumFunctions {
							if cellActive(
								corner(gx, gy, i),
								corner(gx+1, gy, i),
								corner(gx, gy+1, i),
								corner(gx+1, gy+1, i),
							) {
								active = true
							}
						}
						if !active {
							continue
						}
						slot := *counter
						*counter++
						if int(slot) < len(cells) {
							cells[slot] = renderer.ActiveCell{X: gx, Y: gy}
						}
					}
				}
			}
		}
	}
}

// cellActive reports whether the corner values of a cell differ in sign.
// Cells with a non-finite corner are never active.
func cellActive(tl, tr, bl, br float32) bool {
	if jmath.NonFinite(tl) || jmath.NonFinite(tr) || jmath.NonFinite(bl) || jmath.NonFinite(br) {
		return false
	}
	s := jmath.Sign(tl)
	return jmath.Sign(tr) != s || jmath.Sign(bl) != s || jmath.Sign(br) != s
}

// PrepareDispatch is the CPU version of prepare_dispatch.wgsl.
//
// Bindings: uniforms, cell counter, active cells, staging.
func PrepareDispatch(_ renderer.WorkgroupSize, resources []CPUBinding) {
	uniforms := fromBytes[renderer.Uniforms](resources[0].(CPUBuffer))
	counter := fromBytes[uint32](resources[1].(CPUBuffer))
	cells := sliceOf[renderer.ActiveCell](resources[2].(CPUBuffer))
	staging := fromBytes[renderer.IndirectParams](resources[3].(CPUBuffer))

	count := min(*counter, uint32(len(cells)))
	width := uniforms.DispatchWidth
	staging.DispatchX = min(count, width)
	staging.DispatchY = jmath.DivCeil(count, width)
	staging.DispatchZ = 1
}

// Fine returns the CPU version of fine.wgsl.
//
// Bindings: uniforms, cell counter, active cells, point counter, points.
func Fine(f Evaluator) Shader {
	return func(wgs renderer.WorkgroupSize, resources []CPUBinding) {
		uniforms := fromBytes[renderer.Uniforms](resources[0].(CPUBuffer))
		cellCounter := fromBytes[uint32](resources[1].(CPUBuffer))
		cells := sliceOf[renderer.ActiveCell](resources[2].(CPUBuffer))
		pointCounter := fromBytes[uint32](resources[3].(CPUBuffer))
		points := sliceOf[renderer.PointRecord](resources[4].(CPUBuffer))

		count := min(*cellCounter, uint32(len(cells)))
		emit := func(p vec2, index uint32) {
			slot := *pointCounter
			*pointCounter++
			if int(slot) < len(points) {
				points[slot] = renderer.PointRecord{Position: [2]float32{p.x, p.y}, FunctionIndex: index}
			}
		}

		for wgY := range wgs[1] {
			for wgX := range wgs[0] {
				cellIndex := wgY*uniforms.DispatchWidth + wgX
				if cellIndex >= count {
					continue
				}
				cell := cells[cellIndex]
				for ly := range uint32(subdivision) {
					for lx := range uint32(subdivision) {
						fineSubcell(f, uniforms, cell, lx, ly, emit)
					}
				}
			}
		}
	}
}

func fineSubcell(f Evaluator, uniforms *renderer.Uniforms, cell renderer.ActiveCell, lx, ly uint32, emit func(vec2, uint32)) {
	const sub = float32(1) / subdivision
	origin := vec2{float32(cell.X) + float32(lx)*sub, float32(cell.Y) + float32(ly)*sub}
	pTL := screenToWorld(origin, uniforms)
	pTR := screenToWorld(origin.add(vec2{sub, 0}), uniforms)
	pBL := screenToWorld(origin.add(vec2{0, sub}), uniforms)
	pBR := screenToWorld(origin.add(vec2{sub, sub}), uniforms)

	for i := range uniforms.NumFunctions {
		vTL := f(i, pTL.x, pTL.y)
		vTR := f(i, pTR.x, pTR.y)
		vBR := f(i, pBR.x, pBR.y)
		vBL := f(i, pBL.x, pBL.y)
		if jmath.NonFinite(vTL) || jmath.NonFinite(vTR) || jmath.NonFinite(vBR) || jmath.NonFinite(vBL) {
			continue
		}
		c := CaseIndex(vTL, vTR, vBR, vBL)
		if differ(c, CaseTL, CaseTR) {
			emit(crossing(pTL, pTR, vTL, vTR), i)
		}
		if differ(c, CaseTL, CaseBL) {
			emit(crossing(pTL, pBL, vTL, vBL), i)
		}
	}
}

// CaseIndex returns the marching squares case of a cell. A corner is set
// if its value is positive.
func CaseIndex(tl, tr, br, bl float32) uint32 {
	var c uint32
	if tl > 0 {
		c |= CaseTL
	}
	if tr > 0 {
		c |= CaseTR
	}
	if br > 0 {
		c |= CaseBR
	}
	if bl > 0 {
		c |= CaseBL
	}
	return c
}

func differ(c, a, b uint32) bool {
	return (c&a != 0) != (c&b != 0)
}

func crossing(p1, p2 vec2, v1, v2 float32) vec2 {
	t := -v1 / (v2 - v1)
	return mix(p1, p2, t)
}

// Crossing is a zero crossing on one edge of a cell.
type Crossing struct {
	X, Y float32
}

// CellCrossings returns the zero crossings on all four edges of the cell
// spanned by the corners tl and br, in the order top, right, bottom, left.
// The kernels only emit the top and left edges of each sub-cell, since the
// other two are shared with neighbors.
func CellCrossings(tl, br [2]float32, vTL, vTR, vBR, vBL float32) []Crossing {
	pTL := vec2{tl[0], tl[1]}
	pTR := vec2{br[0], tl[1]}
	pBR := vec2{br[0], br[1]}
	pBL := vec2{tl[0], br[1]}

	c := CaseIndex(vTL, vTR, vBR, vBL)
	var out []Crossing
	add := func(p vec2) { out = append(out, Crossing{p.x, p.y}) }
	if differ(c, CaseTL, CaseTR) {
		add(crossing(pTL, pTR, vTL, vTR))
	}
	if differ(c, CaseTR, CaseBR) {
		add(crossing(pTR, pBR, vTR, vBR))
	}
	if differ(c, CaseBL, CaseBR) {
		add(crossing(pBL, pBR, vBL, vBR))
	}
	if differ(c, CaseTL, CaseBL) {
		add(crossing(pTL, pBL, vTL, vBL))
	}
	return out
}

// PrepareDraw is the CPU version of prepare_draw.wgsl.
//
// Bindings: point counter, points, staging.
func PrepareDraw(_ renderer.WorkgroupSize, resources []CPUBinding) {
	counter := fromBytes[uint32](resources[0].(CPUBuffer))
	points := sliceOf[renderer.PointRecord](resources[1].(CPUBuffer))
	staging := fromBytes[renderer.IndirectParams](resources[2].(CPUBuffer))

	count := min(*counter, uint32(len(points)))
	staging.VertexCount = count * renderer.VerticesPerPoint
	staging.InstanceCount = 1
	staging.FirstVertex = 0
	staging.FirstInstance = 0
}
