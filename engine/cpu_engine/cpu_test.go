// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package cpu_engine

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"honnef.co/go/safeish"

	"honnef.co/go/implicit/algebra"
	"honnef.co/go/implicit/compiler"
	"honnef.co/go/implicit/engine/wgpu_engine/shaders/cpu"
	"honnef.co/go/implicit/profiler"
	"honnef.co/go/implicit/renderer"
)

func setup(t *testing.T, view renderer.View, exprs ...string) (*Engine, *renderer.Extraction, uint32) {
	t.Helper()
	var formulas []compiler.Formula
	for _, e := range exprs {
		formulas = append(formulas, compiler.Formula{Expression: e, Enabled: true})
	}
	opts := compiler.DefaultOptions()
	prog, err := compiler.Compile(context.Background(), algebra.New(), formulas, opts)
	require.NoError(t, err)

	eng := New()
	ids := eng.LoadProgram(cpu.NewProgram(prog, opts))
	sizes, err := renderer.NewBufferSizes(view.Width, view.Height, 8, 64, renderer.DefaultLimits())
	require.NoError(t, err)
	return eng, renderer.NewExtraction(ids, sizes, 64), uint32(prog.Len())
}

func TestExtractUnitCircle(t *testing.T) {
	view := renderer.View{Width: 128, Height: 96, Zoom: 0.3}
	eng, ex, n := setup(t, view, "x^2 + y^2 = 1")

	var rec renderer.Recording
	require.NoError(t, ex.Record(&rec, view, n, profiler.Nop))
	eng.RunRecording(&rec, "extract", profiler.Nop)

	cells := eng.ActiveCells(ex)
	points := eng.Points(ex)
	require.NotEmpty(t, cells)
	require.NotEmpty(t, points)

	pixel := view.PixelWorldWidth()
	for _, p := range points {
		r := math.Hypot(float64(p.Position[0]), float64(p.Position[1]))
		assert.InDelta(t, 1, r, pixel, "point %v", p.Position)
	}

	draw, ok := eng.Buffer(ex.Buffers().DrawArgs)
	require.True(t, ok)
	args := *safeish.Cast[*renderer.DrawIndirectArgs](&draw[0])
	assert.Equal(t, uint32(len(points))*renderer.VerticesPerPoint, args.VertexCount)
	assert.Equal(t, uint32(1), args.InstanceCount)

	dispatch, ok := eng.Buffer(ex.Buffers().DispatchArgs)
	require.True(t, ok)
	dargs := *safeish.Cast[*renderer.DispatchIndirectArgs](&dispatch[0])
	assert.Equal(t, min(uint32(len(cells)), 64), dargs.X)
	assert.Equal(t, (uint32(len(cells))+63)/64, dargs.Y)
}

func TestExtractEveryFrame(t *testing.T) {
	view := renderer.View{Width: 64, Height: 64, Zoom: 0.25}
	eng, ex, n := setup(t, view, "x^2 + y^2 = 1")

	var rec renderer.Recording
	require.NoError(t, ex.Record(&rec, view, n, profiler.Nop))
	eng.RunRecording(&rec, "frame 1", profiler.Nop)
	first := append([]renderer.PointRecord(nil), eng.Points(ex)...)

	// Counters are cleared, so the second frame doesn't accumulate.
	rec.Reset()
	ex.Reset()
	require.NoError(t, ex.Record(&rec, view, n, profiler.Nop))
	eng.RunRecording(&rec, "frame 2", profiler.Nop)
	assert.Equal(t, first, eng.Points(ex))

	// The per-frame uniforms were freed, the seven persistent buffers remain.
	assert.Len(t, eng.buffers, 7)

	rec.Reset()
	ex.Free(&rec)
	eng.RunRecording(&rec, "free", profiler.Nop)
	assert.Empty(t, eng.buffers)
}

func TestExtractDegenerate(t *testing.T) {
	view := renderer.View{Width: 32, Height: 32, Zoom: 0.25}
	eng, ex, n := setup(t, view, "")

	var rec renderer.Recording
	require.NoError(t, ex.Record(&rec, view, n, profiler.Nop))
	eng.RunRecording(&rec, "extract", profiler.Nop)
	assert.Empty(t, eng.ActiveCells(ex))
	assert.Empty(t, eng.Points(ex))
}

func TestDownload(t *testing.T) {
	eng := New()
	var rec renderer.Recording
	buf := rec.Upload("data", []byte{1, 2, 3, 4})
	rec.Download(buf)
	rec.Clear(buf, 1, 2)
	eng.RunRecording(&rec, "download", profiler.Nop)

	got, ok := eng.Download(buf)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
	_, ok = eng.Download(buf)
	assert.False(t, ok)

	live, ok := eng.Buffer(buf)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 0, 0, 4}, live)
}

func TestCopyBuffer(t *testing.T) {
	eng := New()
	var rec renderer.Recording
	src := rec.Upload("src", []byte{1, 2, 3, 4, 5, 6})
	dst := renderer.NewBufferProxy(4, "dst")
	rec.CopyBuffer(src, 2, dst, 1, 3)
	rec.FreeBuffer(src)
	eng.RunRecording(&rec, "copy", profiler.Nop)

	got, ok := eng.Buffer(dst)
	require.True(t, ok)
	assert.Equal(t, []byte{0, 3, 4, 5}, got)
	_, ok = eng.Buffer(src)
	assert.False(t, ok)
}
