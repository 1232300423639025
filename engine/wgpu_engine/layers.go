// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package wgpu_engine

import (
	"fmt"
	"unsafe"

	"honnef.co/go/safeish"
	"honnef.co/go/wgpu"

	"honnef.co/go/implicit/engine/wgpu_engine/shaders"
	"honnef.co/go/implicit/internal/logging"
	"honnef.co/go/implicit/renderer"
)

const (
	CurveLayerIndex = 10
	PointLayerIndex = 20
)

func newColorBuffer(dev *wgpu.Device, queue *wgpu.Queue, label string, colors [][4]float32) *wgpu.Buffer {
	if len(colors) == 0 {
		// Storage bindings can't be empty.
		colors = [][4]float32{{}}
	}
	data := safeish.SliceCast[[]byte](colors)
	buf := dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	queue.WriteBuffer(buf, 0, data)
	return buf
}

func newUniformBuffer[T any](dev *wgpu.Device, label string) *wgpu.Buffer {
	return dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(unsafe.Sizeof(*new(T))),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
}

// CurveLayer draws all formulas as anti-aliased curves with a fullscreen
// fragment program.
type CurveLayer struct {
	dev       *wgpu.Device
	queue     *wgpu.Queue
	pipeline  *renderPipeline
	uniforms  *wgpu.Buffer
	colors    *wgpu.Buffer
	bindGroup *wgpu.BindGroup
}

// NewCurveLayer creates the curve pipeline for a shader collection. colors
// holds the straight linear RGBA of each formula.
func NewCurveLayer(dev *wgpu.Device, queue *wgpu.Queue, c *shaders.Collection, colors [][4]float32, opts *Options) *CurveLayer {
	l := &CurveLayer{
		dev:      dev,
		queue:    queue,
		pipeline: newCurvePipeline(dev, &c.Curve, opts),
		uniforms: newUniformBuffer[renderer.CurveUniforms](dev, "curve uniforms"),
		colors:   newColorBuffer(dev, queue, "curve colors", colors),
	}
	l.bindGroup = l.pipeline.bindGroup(dev, l.uniforms, l.colors)
	logging.Logger().Info("created curve layer", "formulas", len(colors), "debug", opts.Debug)
	return l
}

func (l *CurveLayer) Layer() int { return CurveLayerIndex }

func (l *CurveLayer) Update(state FrameState) error {
	u := state.View.CurveUniforms()
	l.queue.WriteBuffer(l.uniforms, 0, safeish.AsBytes(&u))
	return nil
}

func (l *CurveLayer) Draw(pass *wgpu.RenderPassEncoder) {
	pass.SetPipeline(l.pipeline.Pipeline)
	pass.SetBindGroup(0, l.bindGroup, nil)
	pass.Draw(6, 1, 0, 0)
}

func (l *CurveLayer) Release() {
	l.bindGroup.Release()
	l.uniforms.Release()
	l.colors.Release()
	l.pipeline.Release()
}

// PointConfig sizes a point layer's extraction buffers.
type PointConfig struct {
	PointMultiplier uint32
	DispatchWidth   uint32
	// Limits can only tighten the limits of the device. Zero fields are
	// unset.
	Limits renderer.Limits
}

// PointLayer extracts the zero set of all formulas with the marching squares
// compute pipeline and draws the points with an indirect draw. The point
// count never leaves the GPU.
type PointLayer struct {
	eng          *Engine
	queue        *wgpu.Queue
	cfg          PointConfig
	ids          *renderer.ExtractShaders
	numFunctions uint32

	pipeline  *renderPipeline
	uniforms  *wgpu.Buffer
	colors    *wgpu.Buffer
	bindGroup *wgpu.BindGroup

	ex       *renderer.Extraction
	rec      renderer.Recording
	freeBufs []renderer.ResourceID
	state    FrameState
}

// NewPointLayer loads the extraction kernels of c into eng. No extraction
// buffers exist until the first frame, which sizes them for its view.
func NewPointLayer(
	eng *Engine,
	queue *wgpu.Queue,
	c *shaders.Collection,
	colors [][4]float32,
	cfg PointConfig,
	opts *Options,
) *PointLayer {
	dev := eng.Device
	cfg.Limits = cfg.Limits.Min(DeviceLimits(dev))
	l := &PointLayer{
		eng:          eng,
		queue:        queue,
		cfg:          cfg,
		ids:          eng.LoadExtractShaders(c),
		numFunctions: uint32(len(colors)),
		pipeline:     newPointsPipeline(dev, &c.Points, opts),
		uniforms:     newUniformBuffer[renderer.Uniforms](dev, "point uniforms"),
		colors:       newColorBuffer(dev, queue, "point colors", colors),
	}
	logging.Logger().Info("created point layer",
		"formulas", len(colors),
		"max_storage_buffer_binding_size", cfg.Limits.MaxStorageBufferBindingSize)
	return l
}

func (l *PointLayer) Layer() int { return PointLayerIndex }

// Extraction returns the current extraction, or nil before the first frame.
func (l *PointLayer) Extraction() *renderer.Extraction { return l.ex }

func (l *PointLayer) Update(state FrameState) error {
	// The previous frame has been submitted, its freed buffers can be reused.
	l.eng.Recycle(l.freeBufs)
	l.freeBufs = nil

	w, h := renderer.ClampCanvas(state.View.Width, state.View.Height, l.cfg.Limits)
	state.View.Width, state.View.Height = w, h
	l.state = state

	if l.ex != nil {
		if sz := l.ex.Sizes(); sz.Width == w && sz.Height == h {
			l.ex.Reset()
			return l.writeUniforms()
		}
		// Buffers are released with the next recording.
		l.ex.Free(&l.rec)
		l.ex = nil
		if l.bindGroup != nil {
			l.bindGroup.Release()
			l.bindGroup = nil
		}
	}

	sizes, err := renderer.NewBufferSizes(w, h, l.cfg.PointMultiplier, l.cfg.DispatchWidth, l.cfg.Limits)
	if err != nil {
		return fmt.Errorf("sizing extraction buffers: %w", err)
	}
	l.ex = renderer.NewExtraction(l.ids, sizes, l.cfg.DispatchWidth)
	return l.writeUniforms()
}

func (l *PointLayer) writeUniforms() error {
	u := l.state.View.Uniforms(l.numFunctions, l.ex.DispatchWidth())
	l.queue.WriteBuffer(l.uniforms, 0, safeish.AsBytes(&u))
	return nil
}

func (l *PointLayer) Compute(enc *wgpu.CommandEncoder) error {
	if l.ex == nil {
		return fmt.Errorf("point layer computed before update")
	}
	defer l.rec.Reset()
	if err := l.ex.Record(&l.rec, l.state.View, l.numFunctions, l.state.Profiler); err != nil {
		return err
	}
	l.freeBufs = l.eng.RunRecording(l.queue, enc, &l.rec, l.state.Profiler)
	return nil
}

func (l *PointLayer) Draw(pass *wgpu.RenderPassEncoder) {
	bufs := l.ex.Buffers()
	points, ok := l.eng.Buffer(bufs.Points)
	if !ok {
		panic("point buffer not materialized")
	}
	drawArgs, ok := l.eng.Buffer(bufs.DrawArgs)
	if !ok {
		panic("draw argument buffer not materialized")
	}
	if l.bindGroup == nil {
		l.bindGroup = l.pipeline.bindGroup(l.eng.Device, l.uniforms, points, l.colors)
	}
	pass.SetPipeline(l.pipeline.Pipeline)
	pass.SetBindGroup(0, l.bindGroup, nil)
	pass.DrawIndirect(drawArgs, 0)
}

// Release records the release of the extraction buffers and releases the
// layer's own resources. The engine must be released separately.
func (l *PointLayer) Release() {
	if l.ex != nil {
		l.rec.Reset()
		l.ex.Free(&l.rec)
		// A recording of only FreeBuffer commands encodes nothing.
		l.eng.Recycle(append(l.freeBufs, l.eng.RunRecording(l.queue, nil, &l.rec, (*ProfilerGroup)(nil))...))
		l.rec.Reset()
		l.ex = nil
	} else {
		l.eng.Recycle(l.freeBufs)
	}
	l.freeBufs = nil
	if l.bindGroup != nil {
		l.bindGroup.Release()
	}
	l.uniforms.Release()
	l.colors.Release()
	l.pipeline.Release()
}
