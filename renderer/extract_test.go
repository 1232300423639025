// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honnef.co/go/implicit/profiler"
)

var testShaders = &ExtractShaders{
	Coarse:          10,
	PrepareDispatch: 11,
	Fine:            12,
	PrepareDraw:     13,
}

func newTestExtraction(t *testing.T, w, h uint32) *Extraction {
	t.Helper()
	sizes, err := NewBufferSizes(w, h, 4, 8, DefaultLimits())
	require.NoError(t, err)
	return NewExtraction(testShaders, sizes, 8)
}

func TestExtractionStageOrder(t *testing.T) {
	ex := newTestExtraction(t, 40, 20)
	view := DefaultView(40, 20)
	var rec Recording

	require.ErrorIs(t, ex.PrepareDispatch(&rec), ErrStageOrder)
	require.ErrorIs(t, ex.Fine(&rec), ErrStageOrder)
	require.ErrorIs(t, ex.PrepareDraw(&rec), ErrStageOrder)
	assert.Empty(t, rec.Commands, "failed transitions must not record")
	assert.Equal(t, StageIdle, ex.Stage())

	require.NoError(t, ex.Coarse(&rec, view, 1))
	assert.Equal(t, StageCoarseDone, ex.Stage())
	require.ErrorIs(t, ex.Coarse(&rec, view, 1), ErrStageOrder)
	require.ErrorIs(t, ex.Fine(&rec), ErrStageOrder)

	require.NoError(t, ex.PrepareDispatch(&rec))
	assert.Equal(t, StageDispatchPrepared, ex.Stage())
	require.ErrorIs(t, ex.PrepareDraw(&rec), ErrStageOrder)

	require.NoError(t, ex.Fine(&rec))
	assert.Equal(t, StageFineDone, ex.Stage())
	require.NoError(t, ex.PrepareDraw(&rec))
	assert.Equal(t, StageDrawPrepared, ex.Stage())

	require.ErrorIs(t, ex.Record(&rec, view, 1, profiler.Nop), ErrStageOrder)
	ex.Reset()
	require.NoError(t, ex.Record(&rec, view, 1, profiler.Nop))
}

func TestExtractionViewMismatch(t *testing.T) {
	ex := newTestExtraction(t, 40, 20)
	var rec Recording
	err := ex.Coarse(&rec, DefaultView(41, 20), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStageOrder)
	assert.Equal(t, StageIdle, ex.Stage())
}

func TestExtractionCommands(t *testing.T) {
	ex := newTestExtraction(t, 40, 20)
	bufs := ex.Buffers()
	var rec Recording
	require.NoError(t, ex.Record(&rec, DefaultView(40, 20), 2, profiler.Nop))

	require.Len(t, rec.Commands, 11)

	up, ok := rec.Commands[0].(*UploadUniform)
	require.True(t, ok)
	assert.Len(t, up.Data, 32)
	uniforms := up.Buffer

	for i, want := range []BufferProxy{bufs.CellCounter, bufs.PointCounter, bufs.Staging} {
		c, ok := rec.Commands[1+i].(*Clear)
		require.True(t, ok)
		assert.Equal(t, want, c.Buffer)
		assert.EqualValues(t, -1, c.Size)
	}

	coarse := rec.Commands[4].(*Dispatch)
	assert.Equal(t, testShaders.Coarse, coarse.Shader)
	assert.Equal(t, WorkgroupSize{3, 2, 1}, coarse.WorkgroupSize)
	assert.Equal(t, []BufferProxy{uniforms, bufs.CellCounter, bufs.ActiveCells}, coarse.Bindings)

	prep := rec.Commands[5].(*Dispatch)
	assert.Equal(t, testShaders.PrepareDispatch, prep.Shader)
	assert.Equal(t, WorkgroupSize{1, 1, 1}, prep.WorkgroupSize)

	assert.Equal(t, &CopyBuffer{Src: bufs.Staging, SrcOffset: 0, Dst: bufs.DispatchArgs, DstOffset: 0, Size: 12}, rec.Commands[6])

	fine := rec.Commands[7].(*DispatchIndirect)
	assert.Equal(t, testShaders.Fine, fine.Shader)
	assert.Equal(t, bufs.DispatchArgs, fine.Buffer)
	assert.Equal(t, []BufferProxy{uniforms, bufs.CellCounter, bufs.ActiveCells, bufs.PointCounter, bufs.Points}, fine.Bindings)

	draw := rec.Commands[8].(*Dispatch)
	assert.Equal(t, testShaders.PrepareDraw, draw.Shader)

	assert.Equal(t, &CopyBuffer{Src: bufs.Staging, SrcOffset: 12, Dst: bufs.DrawArgs, DstOffset: 0, Size: 16}, rec.Commands[9])
	assert.Equal(t, &FreeBuffer{uniforms}, rec.Commands[10])
}

func TestExtractionFree(t *testing.T) {
	ex := newTestExtraction(t, 16, 16)
	var rec Recording
	require.NoError(t, ex.Coarse(&rec, DefaultView(16, 16), 1))
	rec.Reset()
	ex.Free(&rec)
	// Seven persistent buffers and the pending uniforms.
	assert.Len(t, rec.Commands, 8)
	assert.Equal(t, StageIdle, ex.Stage())
}

func TestBufferProxyIDs(t *testing.T) {
	a := NewBufferProxy(4, "a")
	b := NewBufferProxy(4, "b")
	assert.NotEqual(t, a.ID, b.ID)
}
