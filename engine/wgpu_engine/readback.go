// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package wgpu_engine

import (
	"honnef.co/go/safeish"
	"honnef.co/go/wgpu"

	"honnef.co/go/implicit/internal/logging"
)

// Buffer-texture copies need rows aligned to 256 bytes, even for a single
// texel.
const readbackRowSize = 256

// DebugValue is the discriminant of the curve shader at a pixel. It is -1 if
// no formula reached the discriminant test.
type DebugValue struct {
	X, Y  uint32
	Value float32
}

type readbackRequest struct {
	x, y uint32
	buf  *wgpu.Buffer
	ch   <-chan error
}

// DebugReadback reads single texels of the curve shader's debug target
// without stalling the frame loop. Values become available a few frames
// after they were requested.
type DebugReadback struct {
	dev *wgpu.Device
	// Requests that haven't been encoded yet.
	requested []readbackRequest
	// Requests that have been encoded, in order.
	inflight []*readbackRequest
	free     []*wgpu.Buffer
}

func newDebugReadback(dev *wgpu.Device) *DebugReadback {
	return &DebugReadback{dev: dev}
}

// Request asks for the value at pixel (x, y) of the next frame.
func (r *DebugReadback) Request(x, y uint32) {
	r.requested = append(r.requested, readbackRequest{x: x, y: y})
}

func (r *DebugReadback) getBuffer() *wgpu.Buffer {
	if n := len(r.free); n > 0 {
		buf := r.free[n-1]
		r.free = r.free[:n-1]
		return buf
	}
	return r.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "debug read-back",
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  readbackRowSize,
	})
}

func (r *DebugReadback) encode(enc *wgpu.CommandEncoder, tex *targetTexture) {
	for _, req := range r.requested {
		if req.x >= tex.Width || req.y >= tex.Height {
			logging.Logger().Debug("dropping read-back outside of target", "x", req.x, "y", req.y)
			continue
		}
		req.buf = r.getBuffer()
		enc.CopyTextureToBuffer(
			&wgpu.ImageCopyTexture{
				Texture:  tex.Texture,
				MipLevel: 0,
				Origin:   wgpu.Origin3D{X: req.x, Y: req.y, Z: 0},
				Aspect:   wgpu.TextureAspectAll,
			},
			&wgpu.ImageCopyBuffer{
				Buffer: req.buf,
				Layout: wgpu.TextureDataLayout{
					Offset:       0,
					BytesPerRow:  readbackRowSize,
					RowsPerImage: 1,
				},
			},
			&wgpu.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1},
		)
		r.inflight = append(r.inflight, &req)
	}
	clear(r.requested)
	r.requested = r.requested[:0]
}

// submitted starts mapping the buffers of all requests encoded since the
// last call.
func (r *DebugReadback) submitted() {
	for _, req := range r.inflight {
		if req.ch == nil {
			req.ch = req.buf.Map(r.dev, wgpu.MapModeRead, 0, 4)
		}
	}
}

// Poll returns the values that have become available since the last call,
// in request order. It never blocks.
func (r *DebugReadback) Poll() []DebugValue {
	var out []DebugValue
	n := 0
loop:
	for _, req := range r.inflight {
		if req.ch == nil {
			break
		}
		select {
		case err := <-req.ch:
			if err != nil {
				logging.Logger().Warn("couldn't map debug read-back", "error", err)
			} else {
				data := req.buf.ReadOnlyMappedRange(0, 4)
				out = append(out, DebugValue{X: req.x, Y: req.y, Value: *safeish.Cast[*float32](&data[0])})
				req.buf.Unmap()
			}
			r.free = append(r.free, req.buf)
			n++
		default:
			break loop
		}
	}
	copy(r.inflight, r.inflight[n:])
	clear(r.inflight[len(r.inflight)-n:])
	r.inflight = r.inflight[:len(r.inflight)-n]
	return out
}

// Pending returns the number of requests whose values aren't available yet.
func (r *DebugReadback) Pending() int {
	return len(r.requested) + len(r.inflight)
}

func (r *DebugReadback) Release() {
	for _, b := range r.free {
		b.Release()
	}
	r.free = nil
}
