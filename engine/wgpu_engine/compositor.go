// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package wgpu_engine

import (
	"cmp"
	"fmt"
	"slices"

	"honnef.co/go/wgpu"

	"honnef.co/go/implicit/renderer"
)

// Renderable is something that draws into the compositor's render pass.
// Lower layers are drawn first.
type Renderable interface {
	Draw(pass *wgpu.RenderPassEncoder)
	Layer() int
}

// Computer is implemented by renderables that need to record work before
// the render pass begins.
type Computer interface {
	Compute(enc *wgpu.CommandEncoder) error
}

// Updater is implemented by renderables that update their state once per
// frame, before any work is recorded.
type Updater interface {
	Update(state FrameState) error
}

// FrameState describes the frame being rendered.
type FrameState struct {
	Frame uint64
	View  renderer.View
	// Profiler may be nil.
	Profiler *ProfilerGroup
}

// Compositor draws a list of renderables into a texture, using one command
// buffer per frame.
type Compositor struct {
	dev     *wgpu.Device
	queue   *wgpu.Queue
	opts    Options
	layers  []Renderable
	debug   *targetTexture
	sorted  bool
	readers []*DebugReadback
}

func NewCompositor(dev *wgpu.Device, queue *wgpu.Queue, opts *Options) *Compositor {
	return &Compositor{
		dev:   dev,
		queue: queue,
		opts:  *opts,
	}
}

// Add adds renderables. Renderables on the same layer are drawn in the order
// they were added.
func (c *Compositor) Add(rs ...Renderable) {
	c.layers = append(c.layers, rs...)
	c.sorted = false
}

// Remove removes a renderable, if present.
func (c *Compositor) Remove(r Renderable) {
	c.layers = slices.DeleteFunc(c.layers, func(o Renderable) bool { return o == r })
}

// Layers returns the renderables in drawing order.
func (c *Compositor) Layers() []Renderable {
	if !c.sorted {
		sortLayers(c.layers)
		c.sorted = true
	}
	return c.layers
}

func sortLayers(rs []Renderable) {
	slices.SortStableFunc(rs, func(a, b Renderable) int {
		return cmp.Compare(a.Layer(), b.Layer())
	})
}

// Readback returns a DebugReadback that samples the curve layer's debug
// target. It requires the debug option.
func (c *Compositor) Readback() *DebugReadback {
	if !c.opts.Debug {
		panic("debug read-back requires the debug option")
	}
	r := newDebugReadback(c.dev)
	c.readers = append(c.readers, r)
	return r
}

func (c *Compositor) debugTarget(width, height uint32) *targetTexture {
	if c.debug != nil && (c.debug.Width != width || c.debug.Height != height) {
		c.debug.Release()
		c.debug = nil
	}
	if c.debug == nil {
		c.debug = newDebugTexture(c.dev, width, height)
	}
	return c.debug
}

// Render draws one frame into target, which must match the state's view in
// size and the surface format in Options.
func (c *Compositor) Render(target *wgpu.TextureView, state FrameState) error {
	pgroup := state.Profiler.Nest("Compositor.Render")
	defer pgroup.End()

	layers := c.Layers()
	for _, r := range layers {
		if u, ok := r.(Updater); ok {
			if err := u.Update(state); err != nil {
				return fmt.Errorf("updating layer %d: %w", r.Layer(), err)
			}
		}
	}

	encoder := c.dev.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{
		Label: fmt.Sprintf("frame %d", state.Frame),
	})
	defer encoder.Release()

	for _, r := range layers {
		if cr, ok := r.(Computer); ok {
			if err := cr.Compute(encoder); err != nil {
				return fmt.Errorf("computing layer %d: %w", r.Layer(), err)
			}
		}
	}

	attachments := []wgpu.RenderPassColorAttachment{
		{
			View:       target,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 1, G: 1, B: 1, A: 1},
		},
	}
	var debug *targetTexture
	if c.opts.Debug {
		debug = c.debugTarget(state.View.Width, state.View.Height)
		attachments = append(attachments, wgpu.RenderPassColorAttachment{
			View:       debug.View,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: -1},
		})
	}
	renderPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label:            "compositor",
		ColorAttachments: attachments,
		TimestampWrites:  pgroup.Render("compositor"),
	})
	for _, r := range layers {
		r.Draw(renderPass)
	}
	renderPass.End()
	renderPass.Release()

	if debug != nil {
		for _, r := range c.readers {
			r.encode(encoder, debug)
		}
	}

	cmd := encoder.Finish(nil)
	defer cmd.Release()
	c.queue.Submit(cmd)

	for _, r := range c.readers {
		r.submitted()
	}
	return nil
}

// Release releases the compositor's own resources. Renderables are owned by
// the caller.
func (c *Compositor) Release() {
	if c.debug != nil {
		c.debug.Release()
		c.debug = nil
	}
	for _, r := range c.readers {
		r.Release()
	}
	c.readers = nil
}
