// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"errors"
	"fmt"

	"honnef.co/go/implicit/internal/logging"
	"honnef.co/go/implicit/profiler"
	"honnef.co/go/safeish"
)

// ErrStageOrder is returned when an extraction stage is recorded out of
// order.
var ErrStageOrder = errors.New("extraction stage out of order")

type ExtractShaders struct {
	Coarse          ShaderID
	PrepareDispatch ShaderID
	Fine            ShaderID
	PrepareDraw     ShaderID
}

type Stage int

const (
	StageIdle Stage = iota
	StageCoarseDone
	StageDispatchPrepared
	StageFineDone
	StageDrawPrepared
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageCoarseDone:
		return "coarse done"
	case StageDispatchPrepared:
		return "dispatch prepared"
	case StageFineDone:
		return "fine done"
	case StageDrawPrepared:
		return "draw prepared"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// ExtractionBuffers are the buffers that persist across frames. Points,
// PointCounter and DrawArgs are consumed by the point layer.
type ExtractionBuffers struct {
	CellCounter  BufferProxy
	ActiveCells  BufferProxy
	PointCounter BufferProxy
	Points       BufferProxy
	Staging      BufferProxy
	DispatchArgs BufferProxy
	DrawArgs     BufferProxy
}

// Extraction records the four stage marching squares pipeline that turns the
// compiled program into a buffer of points without any read-back between
// stages:
//
//   - coarse flags every cell whose corner signs differ,
//   - prepare_dispatch turns the active cell count into an indirect dispatch,
//   - fine interpolates the zero crossings of 2×2 sub-cells per active cell,
//   - prepare_draw turns the point count into an indirect draw.
//
// Each stage is a transition of a small state machine so that the recorded
// order can be checked without a GPU.
type Extraction struct {
	shaders       *ExtractShaders
	sizes         BufferSizes
	wgCounts      WorkgroupCounts
	dispatchWidth uint32
	bufs          ExtractionBuffers

	stage    Stage
	uniforms BufferProxy
}

// NewExtraction creates buffer proxies for sizes. No GPU resources exist
// until an engine runs a recording that uses them.
func NewExtraction(shaders *ExtractShaders, sizes BufferSizes, dispatchWidth uint32) *Extraction {
	if dispatchWidth == 0 {
		dispatchWidth = DefaultDispatchWidth
	}
	return &Extraction{
		shaders:       shaders,
		sizes:         sizes,
		wgCounts:      NewWorkgroupCounts(sizes.Width, sizes.Height),
		dispatchWidth: dispatchWidth,
		bufs: ExtractionBuffers{
			CellCounter:  NewBufferProxy(sizes.CellCounter.sizeInBytes(), "cell counter"),
			ActiveCells:  NewBufferProxy(sizes.ActiveCells.sizeInBytes(), "active cells"),
			PointCounter: NewBufferProxy(sizes.PointCounter.sizeInBytes(), "point counter"),
			Points:       NewBufferProxy(sizes.Points.sizeInBytes(), "points"),
			Staging:      NewBufferProxy(sizes.Staging.sizeInBytes(), "indirect staging"),
			DispatchArgs: NewBufferProxy(sizes.DispatchArgs.sizeInBytes(), "dispatch args"),
			DrawArgs:     NewBufferProxy(sizes.DrawArgs.sizeInBytes(), "draw args"),
		},
	}
}

func (ex *Extraction) Stage() Stage { return ex.stage }
func (ex *Extraction) Buffers() ExtractionBuffers { return ex.bufs }
func (ex *Extraction) Sizes() BufferSizes { return ex.sizes }
func (ex *Extraction) DispatchWidth() uint32 { return ex.dispatchWidth }
func (ex *Extraction) WorkgroupCounts() WorkgroupCounts { return ex.wgCounts }

func (ex *Extraction) transition(from, to Stage, op string) error {
	if ex.stage != from {
		return fmt.Errorf("%w: %s requires stage %q, have %q", ErrStageOrder, op, from, ex.stage)
	}
	ex.stage = to
	logging.Logger().Debug("extraction stage", "op", op, "stage", to)
	return nil
}

// Coarse resets the counters, uploads the view and records the coarse pass.
func (ex *Extraction) Coarse(rec *Recording, view View, numFunctions uint32) error {
	if view.Width != ex.sizes.Width || view.Height != ex.sizes.Height {
		return fmt.Errorf("view is %d×%d but buffers were sized for %d×%d",
			view.Width, view.Height, ex.sizes.Width, ex.sizes.Height)
	}
	if err := ex.transition(StageIdle, StageCoarseDone, "coarse"); err != nil {
		return err
	}
	u := view.Uniforms(numFunctions, ex.dispatchWidth)
	ex.uniforms = rec.UploadUniform("extract uniforms", safeish.AsBytes(&u))
	rec.ClearAll(ex.bufs.CellCounter)
	rec.ClearAll(ex.bufs.PointCounter)
	rec.ClearAll(ex.bufs.Staging)
	rec.Dispatch(ex.shaders.Coarse, ex.wgCounts.Coarse, []BufferProxy{
		ex.uniforms,
		ex.bufs.CellCounter,
		ex.bufs.ActiveCells,
	})
	return nil
}

// PrepareDispatch records the pass sizing the fine dispatch and the copy of
// its arguments.
func (ex *Extraction) PrepareDispatch(rec *Recording) error {
	if err := ex.transition(StageCoarseDone, StageDispatchPrepared, "prepare dispatch"); err != nil {
		return err
	}
	rec.Dispatch(ex.shaders.PrepareDispatch, ex.wgCounts.PrepareDispatch, []BufferProxy{
		ex.uniforms,
		ex.bufs.CellCounter,
		ex.bufs.ActiveCells,
		ex.bufs.Staging,
	})
	rec.CopyBuffer(ex.bufs.Staging, dispatchArgsOffset, ex.bufs.DispatchArgs, 0, dispatchArgsSize)
	return nil
}

// Fine records the indirect fine dispatch.
func (ex *Extraction) Fine(rec *Recording) error {
	if err := ex.transition(StageDispatchPrepared, StageFineDone, "fine"); err != nil {
		return err
	}
	rec.DispatchIndirect(ex.shaders.Fine, ex.bufs.DispatchArgs, 0, []BufferProxy{
		ex.uniforms,
		ex.bufs.CellCounter,
		ex.bufs.ActiveCells,
		ex.bufs.PointCounter,
		ex.bufs.Points,
	})
	return nil
}

// PrepareDraw records the pass sizing the point draw and the copy of its
// arguments. It releases the frame's uniform buffer.
func (ex *Extraction) PrepareDraw(rec *Recording) error {
	if err := ex.transition(StageFineDone, StageDrawPrepared, "prepare draw"); err != nil {
		return err
	}
	rec.Dispatch(ex.shaders.PrepareDraw, ex.wgCounts.PrepareDraw, []BufferProxy{
		ex.bufs.PointCounter,
		ex.bufs.Points,
		ex.bufs.Staging,
	})
	rec.CopyBuffer(ex.bufs.Staging, drawArgsOffset, ex.bufs.DrawArgs, 0, drawArgsSize)
	rec.FreeBuffer(ex.uniforms)
	ex.uniforms = BufferProxy{}
	return nil
}

// Record records all four stages of a frame. The extraction must be idle.
func (ex *Extraction) Record(rec *Recording, view View, numFunctions uint32, pgroup profiler.ProfilerGroup) error {
	pgroup = pgroup.Start("Extraction.Record")
	defer pgroup.End()

	if err := ex.Coarse(rec, view, numFunctions); err != nil {
		return err
	}
	if err := ex.PrepareDispatch(rec); err != nil {
		return err
	}
	if err := ex.Fine(rec); err != nil {
		return err
	}
	return ex.PrepareDraw(rec)
}

// Reset returns the extraction to the idle stage for the next frame. Buffers
// are kept.
func (ex *Extraction) Reset() {
	ex.stage = StageIdle
}

// Free records the release of all persistent buffers.
func (ex *Extraction) Free(rec *Recording) {
	for _, b := range []BufferProxy{
		ex.bufs.CellCounter,
		ex.bufs.ActiveCells,
		ex.bufs.PointCounter,
		ex.bufs.Points,
		ex.bufs.Staging,
		ex.bufs.DispatchArgs,
		ex.bufs.DrawArgs,
	} {
		rec.FreeBuffer(b)
	}
	if ex.uniforms != (BufferProxy{}) {
		rec.FreeBuffer(ex.uniforms)
		ex.uniforms = BufferProxy{}
	}
	ex.stage = StageIdle
}
