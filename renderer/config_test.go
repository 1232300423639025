// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostLayouts(t *testing.T) {
	assert.EqualValues(t, 32, unsafe.Sizeof(Uniforms{}))
	assert.EqualValues(t, 48, unsafe.Sizeof(CurveUniforms{}))
	assert.EqualValues(t, 32, unsafe.Offsetof(CurveUniforms{}.ClipParams))
	assert.EqualValues(t, 16, unsafe.Offsetof(Uniforms{}.Offset))
	assert.EqualValues(t, 16, unsafe.Sizeof(PointRecord{}))
	assert.EqualValues(t, 8, unsafe.Sizeof(ActiveCell{}))
	assert.EqualValues(t, 32, unsafe.Sizeof(IndirectParams{}))
	assert.EqualValues(t, 12, unsafe.Sizeof(DispatchIndirectArgs{}))
	assert.EqualValues(t, 16, unsafe.Sizeof(DrawIndirectArgs{}))

	// The staging buffer is copied in two ranges: [0, 12) and [12, 28).
	assert.EqualValues(t, 0, dispatchArgsOffset)
	assert.EqualValues(t, 12, dispatchArgsSize)
	assert.EqualValues(t, 12, drawArgsOffset)
	assert.EqualValues(t, 16, drawArgsSize)
}

func TestNewBufferSizes(t *testing.T) {
	sizes, err := NewBufferSizes(100, 50, 0, 0, DefaultLimits())
	require.NoError(t, err)
	assert.EqualValues(t, 100, sizes.Width)
	assert.EqualValues(t, 50, sizes.Height)
	assert.EqualValues(t, 5000, sizes.ActiveCells.Len())
	assert.EqualValues(t, 5000*8, sizes.ActiveCells.sizeInBytes())
	assert.EqualValues(t, 5000*DefaultPointMultiplier, sizes.Points.Len())
	assert.EqualValues(t, 5000*DefaultPointMultiplier*16, sizes.Points.sizeInBytes())
	assert.EqualValues(t, 32, sizes.Staging.sizeInBytes())
	assert.EqualValues(t, 12, sizes.DispatchArgs.sizeInBytes())
	assert.EqualValues(t, 16, sizes.DrawArgs.sizeInBytes())
	assert.EqualValues(t, 4, sizes.CellCounter.sizeInBytes())
	assert.EqualValues(t, 4, sizes.PointCounter.sizeInBytes())
}

func TestCapacityGuard(t *testing.T) {
	// 800×600 cells with 50 points each need 384 MB of points.
	_, err := NewBufferSizes(800, 600, 50, 0, DefaultLimits())
	var cerr *CapacityError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "point buffer", cerr.Buffer)
	assert.EqualValues(t, 800*600*50*16, cerr.Size)
	assert.EqualValues(t, 128<<20, cerr.Limit)

	// A smaller multiplier fits.
	_, err = NewBufferSizes(800, 600, 10, 0, DefaultLimits())
	require.NoError(t, err)

	limits := DefaultLimits()
	limits.MaxStorageBufferBindingSize = 1000
	_, err = NewBufferSizes(100, 100, 1, 0, limits)
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "active cell buffer", cerr.Buffer)

	limits = DefaultLimits()
	limits.MaxComputeWorkgroupsPerDimension = 10
	_, err = NewBufferSizes(100, 100, 1, 8, limits)
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "fine dispatch", cerr.Buffer)
}

func TestDefaultsFit(t *testing.T) {
	for _, dims := range [][2]uint32{{800, 600}, {1024, 1024}, {1920, 540}} {
		sizes, err := NewBufferSizes(dims[0], dims[1], DefaultPointMultiplier, DefaultDispatchWidth, DefaultLimits())
		require.NoError(t, err, "%d×%d", dims[0], dims[1])
		assert.LessOrEqual(t, sizes.Points.sizeInBytes(), DefaultLimits().MaxStorageBufferBindingSize)
	}
}

func TestLimitsMin(t *testing.T) {
	device := Limits{
		MaxStorageBufferBindingSize:      1 << 30,
		MaxTextureDimension2D:            4096,
		MaxComputeWorkgroupsPerDimension: 65535,
	}
	cfg := Limits{MaxStorageBufferBindingSize: 128 << 20}
	want := Limits{
		MaxStorageBufferBindingSize:      128 << 20,
		MaxTextureDimension2D:            4096,
		MaxComputeWorkgroupsPerDimension: 65535,
	}
	assert.Equal(t, want, cfg.Min(device))
	assert.Equal(t, want, device.Min(cfg))
	assert.Equal(t, device, device.Min(Limits{}))
}

func TestClampCanvas(t *testing.T) {
	sizes, err := NewBufferSizes(10000, 100, 1, 0, DefaultLimits())
	require.NoError(t, err)
	assert.EqualValues(t, 8192, sizes.Width)
	assert.EqualValues(t, 100, sizes.Height)

	w, h := ClampCanvas(300, 200, Limits{})
	assert.EqualValues(t, 300, w)
	assert.EqualValues(t, 200, h)
}

func TestWorkgroupCounts(t *testing.T) {
	wg := NewWorkgroupCounts(33, 16)
	assert.Equal(t, WorkgroupSize{3, 1, 1}, wg.Coarse)
	assert.Equal(t, WorkgroupSize{1, 1, 1}, wg.PrepareDispatch)
	assert.Equal(t, WorkgroupSize{1, 1, 1}, wg.PrepareDraw)
}

func TestNextMultipleOf(t *testing.T) {
	assert.Equal(t, 16, nextMultipleOf(1, 16))
	assert.Equal(t, 16, nextMultipleOf(16, 16))
	assert.Equal(t, uint32(32), nextMultipleOf(uint32(17), 16))
}
