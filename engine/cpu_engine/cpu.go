// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package cpu_engine executes recordings on the CPU, using the CPU versions
// of the compute shaders. Buffers are plain byte slices, so the results of
// every stage can be inspected directly.
package cpu_engine

import (
	"fmt"

	"honnef.co/go/safeish"

	"honnef.co/go/implicit/engine/wgpu_engine/shaders/cpu"
	"honnef.co/go/implicit/internal/logging"
	"honnef.co/go/implicit/profiler"
	"honnef.co/go/implicit/renderer"
)

type shader struct {
	label string
	fn    cpu.Shader
}

type Engine struct {
	shaders   []shader
	buffers   map[renderer.ResourceID][]byte
	downloads map[renderer.ResourceID][]byte
}

func New() *Engine {
	return &Engine{
		buffers:   make(map[renderer.ResourceID][]byte),
		downloads: make(map[renderer.ResourceID][]byte),
	}
}

func (eng *Engine) AddShader(label string, fn cpu.Shader) renderer.ShaderID {
	id := renderer.ShaderID(len(eng.shaders))
	eng.shaders = append(eng.shaders, shader{label: label, fn: fn})
	return id
}

// LoadProgram registers the extraction kernels for a program.
func (eng *Engine) LoadProgram(p *cpu.Program) *renderer.ExtractShaders {
	f := p.Evaluator()
	return &renderer.ExtractShaders{
		Coarse:          eng.AddShader("coarse", cpu.Coarse(f)),
		PrepareDispatch: eng.AddShader("prepare_dispatch", cpu.PrepareDispatch),
		Fine:            eng.AddShader("fine", cpu.Fine(f)),
		PrepareDraw:     eng.AddShader("prepare_draw", cpu.PrepareDraw),
	}
}

func (eng *Engine) materialize(proxy renderer.BufferProxy) []byte {
	buf, ok := eng.buffers[proxy.ID]
	if !ok {
		// Allocate as uint64 so that every host-layout struct is aligned.
		words := make([]uint64, (proxy.Size+7)/8)
		buf = safeish.SliceCast[[]byte](words)[:proxy.Size]
		eng.buffers[proxy.ID] = buf
	}
	return buf
}

func (eng *Engine) bindings(proxies []renderer.BufferProxy) []cpu.CPUBinding {
	out := make([]cpu.CPUBinding, len(proxies))
	for i, proxy := range proxies {
		out[i] = cpu.CPUBuffer(eng.materialize(proxy))
	}
	return out
}

func (eng *Engine) RunRecording(recording *renderer.Recording, label string, pgroup profiler.ProfilerGroup) {
	pgroup = pgroup.Start("RunRecording")
	defer pgroup.End()

	var freeBufs []renderer.ResourceID
	for _, cmd := range recording.Commands {
		switch cmd := cmd.(type) {
		case *renderer.Upload:
			copy(eng.materialize(cmd.Buffer), cmd.Data)

		case *renderer.UploadUniform:
			copy(eng.materialize(cmd.Buffer), cmd.Data)

		case *renderer.Dispatch:
			s := eng.shaders[cmd.Shader]
			g := pgroup.Start(s.label)
			s.fn(cmd.WorkgroupSize, eng.bindings(cmd.Bindings))
			g.End()

		case *renderer.DispatchIndirect:
			s := eng.shaders[cmd.Shader]
			args := eng.materialize(cmd.Buffer)[cmd.Offset:]
			wgs := *safeish.Cast[*renderer.DispatchIndirectArgs](&args[0])
			g := pgroup.Start(s.label)
			s.fn(renderer.WorkgroupSize{wgs.X, wgs.Y, wgs.Z}, eng.bindings(cmd.Bindings))
			g.End()

		case *renderer.CopyBuffer:
			src := eng.materialize(cmd.Src)
			dst := eng.materialize(cmd.Dst)
			copy(dst[cmd.DstOffset:cmd.DstOffset+cmd.Size], src[cmd.SrcOffset:cmd.SrcOffset+cmd.Size])

		case *renderer.Download:
			buf := eng.materialize(cmd.Buffer)
			eng.downloads[cmd.Buffer.ID] = append([]byte(nil), buf...)

		case *renderer.Clear:
			slice := eng.materialize(cmd.Buffer)[cmd.Offset:]
			if cmd.Size >= 0 {
				slice = slice[:cmd.Size]
			}
			clear(slice)

		case *renderer.FreeBuffer:
			freeBufs = append(freeBufs, cmd.Buffer.ID)

		default:
			panic(fmt.Sprintf("unhandled command %T", cmd))
		}
	}

	for _, id := range freeBufs {
		delete(eng.buffers, id)
	}
	logging.Logger().Debug("ran recording",
		"label", label,
		"commands", len(recording.Commands),
		"live_buffers", len(eng.buffers))
}

// Buffer returns the current contents of a buffer.
func (eng *Engine) Buffer(proxy renderer.BufferProxy) ([]byte, bool) {
	buf, ok := eng.buffers[proxy.ID]
	return buf, ok
}

// Download returns the snapshot taken by the last Download command for
// proxy, and forgets it.
func (eng *Engine) Download(proxy renderer.BufferProxy) ([]byte, bool) {
	buf, ok := eng.downloads[proxy.ID]
	delete(eng.downloads, proxy.ID)
	return buf, ok
}

// Points returns the points of the last extraction, clamped to the capacity
// of the point buffer.
func (eng *Engine) Points(ex *renderer.Extraction) []renderer.PointRecord {
	bufs := ex.Buffers()
	counter, ok := eng.Buffer(bufs.PointCounter)
	if !ok {
		return nil
	}
	points, ok := eng.Buffer(bufs.Points)
	if !ok {
		return nil
	}
	n := *safeish.Cast[*uint32](&counter[0])
	all := safeish.SliceCast[[]renderer.PointRecord](points)
	return all[:min(int(n), len(all))]
}

// ActiveCells returns the active cells of the last extraction.
func (eng *Engine) ActiveCells(ex *renderer.Extraction) []renderer.ActiveCell {
	bufs := ex.Buffers()
	counter, ok := eng.Buffer(bufs.CellCounter)
	if !ok {
		return nil
	}
	cells, ok := eng.Buffer(bufs.ActiveCells)
	if !ok {
		return nil
	}
	n := *safeish.Cast[*uint32](&counter[0])
	all := safeish.SliceCast[[]renderer.ActiveCell](cells)
	return all[:min(int(n), len(all))]
}
