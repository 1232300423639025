package wgpu_engine

import (
	"honnef.co/go/wgpu"

	"honnef.co/go/implicit/engine/wgpu_engine/shaders"
	"honnef.co/go/implicit/renderer"
)

type Options struct {
	SurfaceFormat wgpu.TextureFormat
	// Debug renders the discriminant of the curve shader into a second
	// color target, for use with DebugReadback. The shaders must have been
	// built with the debug option.
	Debug bool
}

// DeviceLimits returns the extraction limits supported by dev.
func DeviceLimits(dev *wgpu.Device) renderer.Limits {
	return limitsFrom(dev.Limits().Limits)
}

func limitsFrom(l wgpu.Limits) renderer.Limits {
	return renderer.Limits{
		MaxStorageBufferBindingSize:      l.MaxStorageBufferBindingSize,
		MaxTextureDimension2D:            l.MaxTextureDimension2D,
		MaxComputeWorkgroupsPerDimension: l.MaxComputeWorkgroupsPerDimension,
	}
}

// DebugFormat is the format of the curve shader's debug target.
const DebugFormat = wgpu.TextureFormatR32Float

// premultipliedOver blends premultiplied colors with the over operator.
var premultipliedOver = wgpu.BlendState{
	Color: wgpu.BlendComponent{
		Operation: wgpu.BlendOperationAdd,
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
	},
	Alpha: wgpu.BlendComponent{
		Operation: wgpu.BlendOperationAdd,
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
	},
}

// Bindings of the render pipelines.
var (
	curveLayout = []renderer.BindType{
		renderer.BindTypeUniform,
		renderer.BindTypeBufReadOnly,
	}
	pointsLayout = []renderer.BindType{
		renderer.BindTypeUniform,
		renderer.BindTypeBufReadOnly,
		renderer.BindTypeBufReadOnly,
	}
)

type renderPipeline struct {
	BindLayout *wgpu.BindGroupLayout
	Pipeline   *wgpu.RenderPipeline
}

func (p *renderPipeline) Release() {
	p.Pipeline.Release()
	p.BindLayout.Release()
}

func (p *renderPipeline) bindGroup(dev *wgpu.Device, bufs ...*wgpu.Buffer) *wgpu.BindGroup {
	entries := make([]wgpu.BindGroupEntry, len(bufs))
	for i, b := range bufs {
		entries[i] = wgpu.BindGroupEntry{
			Binding: uint32(i),
			Buffer:  b,
			Size:    ^uint64(0),
		}
	}
	return dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout:  p.BindLayout,
		Entries: entries,
	})
}

// colorTargets returns the targets of the compositor's render pass. Every
// pipeline drawn in it must declare all of them.
func colorTargets(opts *Options) []wgpu.ColorTargetState {
	targets := []wgpu.ColorTargetState{
		{
			Format:    opts.SurfaceFormat,
			Blend:     &premultipliedOver,
			WriteMask: wgpu.ColorWriteMaskAll,
		},
	}
	if opts.Debug {
		targets = append(targets, wgpu.ColorTargetState{
			Format:    DebugFormat,
			WriteMask: 0,
		})
	}
	return targets
}

func newRenderPipeline(
	dev *wgpu.Device,
	rs *shaders.RenderShader,
	layout []renderer.BindType,
	targets []wgpu.ColorTargetState,
) *renderPipeline {
	shader := dev.CreateShaderModule(wgpu.ShaderModuleDescriptor{
		Label:  rs.Name,
		Source: wgpu.ShaderSourceWGSL(rs.WGSL.Code),
	})
	defer shader.Release()
	bindLayout := dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   rs.Name + " bind group layout",
		Entries: layoutEntries(layout, wgpu.ShaderStageVertex|wgpu.ShaderStageFragment),
	})
	pipelineLayout := dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            rs.Name + " pipeline layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{bindLayout},
	})
	defer pipelineLayout.Release()
	pipeline := dev.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  rs.Name + " pipeline",
		Layout: pipelineLayout,
		Vertex: &wgpu.VertexState{
			Module:     shader,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     shader,
			EntryPoint: "fs_main",
			Targets:    targets,
		},
		Primitive: &wgpu.PrimitiveState{
			Topology:         wgpu.PrimitiveTopologyTriangleList,
			StripIndexFormat: ^wgpu.IndexFormat(0),
			FrontFace:        wgpu.FrontFaceCCW,
			// Point triangles are emitted in either winding.
			CullMode: wgpu.CullModeNone,
		},
		Multisample: &wgpu.MultisampleState{
			Count:                  1,
			Mask:                   ^uint32(0),
			AlphaToCoverageEnabled: false,
		},
	})
	return &renderPipeline{
		BindLayout: bindLayout,
		Pipeline:   pipeline,
	}
}

func newCurvePipeline(dev *wgpu.Device, rs *shaders.RenderShader, opts *Options) *renderPipeline {
	targets := colorTargets(opts)
	if opts.Debug {
		// Float targets can't be blended; the last formula to reach the
		// discriminant test wins.
		targets[1].WriteMask = wgpu.ColorWriteMaskAll
	}
	return newRenderPipeline(dev, rs, curveLayout, targets)
}

func newPointsPipeline(dev *wgpu.Device, rs *shaders.RenderShader, opts *Options) *renderPipeline {
	return newRenderPipeline(dev, rs, pointsLayout, colorTargets(opts))
}

type targetTexture struct {
	Texture *wgpu.Texture
	View    *wgpu.TextureView
	Width   uint32
	Height  uint32
}

func (t *targetTexture) Release() {
	t.View.Release()
	t.Texture.Release()
}

// newDebugTexture creates the render target receiving the curve shader's
// discriminant output.
func newDebugTexture(dev *wgpu.Device, width, height uint32) *targetTexture {
	tex := dev.CreateTexture(&wgpu.TextureDescriptor{
		Label: "debug texture",
		Size: wgpu.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopySrc,
		Format:        DebugFormat,
	})
	view := tex.CreateView(nil)
	return &targetTexture{
		Texture: tex,
		View:    view,
		Width:   width,
		Height:  height,
	}
}
