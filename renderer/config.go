// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"fmt"
	"structs"
	"unsafe"

	"golang.org/x/exp/constraints"
	"honnef.co/go/implicit/internal/logging"
)

type WorkgroupSize [3]uint32

// Uniforms contains the view parameters used by all extraction stages.
//
// This data structure must be kept in sync with the definition in
// `shaders/wgsl/shared/extract_types.wgsl`.
type Uniforms struct {
	_ structs.HostLayout

	// Size of the canvas in pixels.
	ScreenDimensions [2]float32
	// Visible world height is 1/Zoom.
	Zoom float32
	_    uint32 // padding
	// World coordinates of the canvas center.
	Offset [2]float32
	// Number of formulas in the compiled program.
	NumFunctions uint32
	// Width of the fine pass's indirect dispatch grid, in workgroups.
	DispatchWidth uint32
}

// CurveUniforms contains the view parameters of the curve fragment program.
//
// This data structure must be kept in sync with the definition in
// `shaders/wgsl/shared/curve_types.wgsl`.
type CurveUniforms struct {
	_ structs.HostLayout

	ScreenDimensions [2]float32
	Zoom             float32
	_                uint32 // padding
	Offset           [2]float32
	_                [2]uint32 // padding
	// ClipParams.x is the largest world y that gets drawn when clipping is
	// compiled in.
	ClipParams [4]float32
}

// PointRecord is a zero crossing found by the fine pass.
type PointRecord struct {
	_ structs.HostLayout

	// Position in world coordinates.
	Position      [2]float32
	FunctionIndex uint32
	_             uint32 // padding
}

// ActiveCell is the screen coordinate of a cell whose corner signs differ.
type ActiveCell struct {
	_ structs.HostLayout

	X uint32
	Y uint32
}

// IndirectParams is written by the two preparation passes and then copied
// into the indirect argument buffers.
//
// WebGPU's usage rules forbid using a buffer as indirect arguments while it
// is also bound as writable storage, so the passes write to a staging copy.
type IndirectParams struct {
	_ structs.HostLayout

	DispatchX     uint32
	DispatchY     uint32
	DispatchZ     uint32
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
	_             uint32 // padding
}

// DispatchIndirectArgs is the layout consumed by indirect dispatches.
type DispatchIndirectArgs struct {
	_ structs.HostLayout

	X uint32
	Y uint32
	Z uint32
}

// DrawIndirectArgs is the layout consumed by indirect draws.
type DrawIndirectArgs struct {
	_ structs.HostLayout

	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// Byte ranges of IndirectParams that are copied into the argument buffers.
const (
	dispatchArgsOffset = uint64(unsafe.Offsetof(IndirectParams{}.DispatchX))
	dispatchArgsSize   = uint64(unsafe.Sizeof(DispatchIndirectArgs{}))
	drawArgsOffset     = uint64(unsafe.Offsetof(IndirectParams{}.VertexCount))
	drawArgsSize       = uint64(unsafe.Sizeof(DrawIndirectArgs{}))
)

const (
	// Coarse workgroups cover CoarseWorkgroupSize² cells.
	CoarseWorkgroupSize = 16
	// The fine pass splits a cell into FineSubdivision² sub-cells, one
	// thread each.
	FineSubdivision = 2
	// Every point is drawn as one triangle.
	VerticesPerPoint = 3
)

const (
	// DefaultPointMultiplier is the number of crossings a single formula
	// can produce in one cell: two edges per sub-cell.
	DefaultPointMultiplier = FineSubdivision * FineSubdivision * 2
	DefaultDispatchWidth   = 512
)

// Limits mirrors the device limits that bound extraction buffers.
type Limits struct {
	MaxStorageBufferBindingSize      uint64
	MaxTextureDimension2D            uint32
	MaxComputeWorkgroupsPerDimension uint32
}

// DefaultLimits returns the limits guaranteed by every WebGPU
// implementation.
func DefaultLimits() Limits {
	return Limits{
		MaxStorageBufferBindingSize:      128 << 20,
		MaxTextureDimension2D:            8192,
		MaxComputeWorkgroupsPerDimension: 65535,
	}
}

// Min returns the tighter of each pair of limits. A zero limit is unset and
// yields to the other.
func (l Limits) Min(o Limits) Limits {
	return Limits{
		MaxStorageBufferBindingSize:      minSet(l.MaxStorageBufferBindingSize, o.MaxStorageBufferBindingSize),
		MaxTextureDimension2D:            minSet(l.MaxTextureDimension2D, o.MaxTextureDimension2D),
		MaxComputeWorkgroupsPerDimension: minSet(l.MaxComputeWorkgroupsPerDimension, o.MaxComputeWorkgroupsPerDimension),
	}
}

func minSet[T constraints.Unsigned](a, b T) T {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	default:
		return min(a, b)
	}
}

// CapacityError reports that an extraction buffer would exceed a device
// limit. It is returned before any GPU resource is created.
type CapacityError struct {
	Buffer string
	Size   uint64
	Limit  uint64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s needs %d, exceeding the device limit of %d", e.Buffer, e.Size, e.Limit)
}

type BufferSize[T any] uint64

func NewBufferSize[T any](x uint64) BufferSize[T] {
	return BufferSize[T](max(x, 1))
}

func (s BufferSize[T]) sizeInBytes() uint64 {
	return uint64(s) * uint64(unsafe.Sizeof(*new(T)))
}

// Len returns the number of elements.
func (s BufferSize[T]) Len() uint64 { return uint64(s) }

type BufferSizes struct {
	// Canvas size after clamping.
	Width  uint32
	Height uint32

	Uniforms     BufferSize[Uniforms]
	CellCounter  BufferSize[uint32]
	ActiveCells  BufferSize[ActiveCell]
	PointCounter BufferSize[uint32]
	Points       BufferSize[PointRecord]
	Staging      BufferSize[IndirectParams]
	DispatchArgs BufferSize[DispatchIndirectArgs]
	DrawArgs     BufferSize[DrawIndirectArgs]
}

// NewBufferSizes computes the extraction buffer sizes for a canvas.
// Dimensions above the device's texture limit are clamped.
func NewBufferSizes(width, height uint32, pointMultiplier uint32, dispatchWidth uint32, limits Limits) (BufferSizes, error) {
	width, height = ClampCanvas(width, height, limits)
	if pointMultiplier == 0 {
		pointMultiplier = DefaultPointMultiplier
	}
	if dispatchWidth == 0 {
		dispatchWidth = DefaultDispatchWidth
	}

	cells := uint64(width) * uint64(height)
	sizes := BufferSizes{
		Width:        width,
		Height:       height,
		Uniforms:     NewBufferSize[Uniforms](1),
		CellCounter:  NewBufferSize[uint32](1),
		ActiveCells:  NewBufferSize[ActiveCell](cells),
		PointCounter: NewBufferSize[uint32](1),
		Points:       NewBufferSize[PointRecord](cells * uint64(pointMultiplier)),
		Staging:      NewBufferSize[IndirectParams](1),
		DispatchArgs: NewBufferSize[DispatchIndirectArgs](1),
		DrawArgs:     NewBufferSize[DrawIndirectArgs](1),
	}

	storage := []struct {
		name string
		size uint64
	}{
		{"active cell buffer", sizes.ActiveCells.sizeInBytes()},
		{"point buffer", sizes.Points.sizeInBytes()},
	}
	for _, b := range storage {
		if b.size > limits.MaxStorageBufferBindingSize {
			return BufferSizes{}, &CapacityError{Buffer: b.name, Size: b.size, Limit: limits.MaxStorageBufferBindingSize}
		}
	}
	if limits.MaxComputeWorkgroupsPerDimension != 0 {
		rows := (sizes.ActiveCells.Len() + uint64(dispatchWidth) - 1) / uint64(dispatchWidth)
		if rows > uint64(limits.MaxComputeWorkgroupsPerDimension) || dispatchWidth > limits.MaxComputeWorkgroupsPerDimension {
			return BufferSizes{}, &CapacityError{
				Buffer: "fine dispatch",
				Size:   max(rows, uint64(dispatchWidth)),
				Limit:  uint64(limits.MaxComputeWorkgroupsPerDimension),
			}
		}
	}

	logging.Logger().Debug("extraction buffer sizes",
		"width", width,
		"height", height,
		"active_cells_bytes", sizes.ActiveCells.sizeInBytes(),
		"points_bytes", sizes.Points.sizeInBytes())
	return sizes, nil
}

// ClampCanvas limits the canvas to the largest texture the device supports.
func ClampCanvas(width, height uint32, limits Limits) (uint32, uint32) {
	maxDim := limits.MaxTextureDimension2D
	if maxDim == 0 || (width <= maxDim && height <= maxDim) {
		return width, height
	}
	logging.Logger().Warn("clamping canvas to device limit",
		"width", width,
		"height", height,
		"limit", maxDim)
	return min(width, maxDim), min(height, maxDim)
}

// WorkgroupCounts holds the direct dispatch sizes of the extraction stages.
// The fine stage is dispatched indirectly.
type WorkgroupCounts struct {
	Coarse          WorkgroupSize
	PrepareDispatch WorkgroupSize
	PrepareDraw     WorkgroupSize
}

func NewWorkgroupCounts(width, height uint32) WorkgroupCounts {
	coarseX := nextMultipleOf(width, CoarseWorkgroupSize) / CoarseWorkgroupSize
	coarseY := nextMultipleOf(height, CoarseWorkgroupSize) / CoarseWorkgroupSize
	return WorkgroupCounts{
		Coarse:          WorkgroupSize{coarseX, coarseY, 1},
		PrepareDispatch: WorkgroupSize{1, 1, 1},
		PrepareDraw:     WorkgroupSize{1, 1, 1},
	}
}

func nextMultipleOf[T constraints.Integer](x, y T) T {
	r := x % y
	if r == 0 {
		return x
	} else {
		return x + y - r
	}
}
