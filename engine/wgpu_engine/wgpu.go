package wgpu_engine

// OPT reuse bind groups

import (
	"fmt"
	"math"
	"math/bits"

	"honnef.co/go/wgpu"

	"honnef.co/go/implicit/engine/wgpu_engine/shaders"
	"honnef.co/go/implicit/internal/logging"
	"honnef.co/go/implicit/profiler"
	"honnef.co/go/implicit/renderer"
)

type Engine struct {
	Device    *wgpu.Device
	shaders   []wgpuShader
	pool      resourcePool
	downloads map[renderer.ResourceID]*wgpu.Buffer

	// The extraction buffers outlive a single recording, so unlike the
	// transient state of RunRecording the bind map persists.
	bindMap bindMap
}

type wgpuShader struct {
	label           string
	pipeline        *wgpu.ComputePipeline
	bindGroupLayout *wgpu.BindGroupLayout
}

type bindMapBuffer struct {
	Buffer *wgpu.Buffer
	Label  string
}

type bindMap struct {
	bufMap        map[renderer.ResourceID]*bindMapBuffer
	pendingClears map[renderer.ResourceID]struct{}
}

type bufferProperties struct {
	size   uint64
	usages wgpu.BufferUsage
}

type resourcePool struct {
	bufs map[bufferProperties][]*wgpu.Buffer
}

const storageUsage = wgpu.BufferUsageCopySrc |
	wgpu.BufferUsageCopyDst |
	wgpu.BufferUsageStorage |
	wgpu.BufferUsageIndirect

func New(dev *wgpu.Device) *Engine {
	return &Engine{
		Device: dev,
		pool: resourcePool{
			bufs: make(map[bufferProperties][]*wgpu.Buffer),
		},
		downloads: make(map[renderer.ResourceID]*wgpu.Buffer),
		bindMap: bindMap{
			bufMap:        make(map[renderer.ResourceID]*bindMapBuffer),
			pendingClears: make(map[renderer.ResourceID]struct{}),
		},
	}
}

var bindTypeMapping = [...]renderer.BindType{
	shaders.Buffer:      renderer.BindTypeBuffer,
	shaders.BufReadOnly: renderer.BindTypeBufReadOnly,
	shaders.Uniform:     renderer.BindTypeUniform,
}

// LoadExtractShaders creates the pipelines of the four extraction kernels.
func (eng *Engine) LoadExtractShaders(c *shaders.Collection) *renderer.ExtractShaders {
	add := func(cs *shaders.ComputeShader) renderer.ShaderID {
		if len(cs.WGSL.Code) == 0 {
			panic(fmt.Sprintf("shader %q has no code", cs.Name))
		}
		layout := make([]renderer.BindType, len(cs.Bindings))
		for i, b := range cs.Bindings {
			layout[i] = bindTypeMapping[b]
		}
		return eng.AddShader(cs.Name, cs.WGSL.Code, layout)
	}
	return &renderer.ExtractShaders{
		Coarse:          add(&c.Coarse),
		PrepareDispatch: add(&c.PrepareDispatch),
		Fine:            add(&c.Fine),
		PrepareDraw:     add(&c.PrepareDraw),
	}
}

func layoutEntries(layout []renderer.BindType, visibility wgpu.ShaderStage) []wgpu.BindGroupLayoutEntry {
	entries := make([]wgpu.BindGroupLayoutEntry, len(layout))
	for i, bindType := range layout {
		var typ wgpu.BufferBindingType
		switch bindType {
		case renderer.BindTypeBuffer:
			typ = wgpu.BufferBindingTypeStorage
		case renderer.BindTypeBufReadOnly:
			typ = wgpu.BufferBindingTypeReadOnlyStorage
		case renderer.BindTypeUniform:
			typ = wgpu.BufferBindingTypeUniform
		default:
			panic(fmt.Sprintf("invalid bind type %d", bindType))
		}
		entries[i] = wgpu.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: visibility,
			Buffer: &wgpu.BufferBindingLayout{
				Type:             typ,
				HasDynamicOffset: false,
				MinBindingSize:   0,
			},
		}
	}
	return entries
}

func (eng *Engine) AddShader(label string, wgsl []byte, layout []renderer.BindType) renderer.ShaderID {
	s := eng.createComputePipeline(label, wgsl, layoutEntries(layout, wgpu.ShaderStageCompute))
	id := len(eng.shaders)
	eng.shaders = append(eng.shaders, s)
	return renderer.ShaderID(id)
}

// ReleaseShaders releases all compute pipelines. Shader IDs handed out
// before are invalid afterwards.
func (eng *Engine) ReleaseShaders() {
	for _, s := range eng.shaders {
		s.pipeline.Release()
		s.bindGroupLayout.Release()
	}
	clear(eng.shaders)
	eng.shaders = eng.shaders[:0]
}

// RunRecording encodes all commands of the recording into encoder. Buffers
// freed by the recording return to the pool once the caller submitted the
// encoder and called [Engine.Recycle].
func (eng *Engine) RunRecording(
	queue *wgpu.Queue,
	encoder *wgpu.CommandEncoder,
	recording *renderer.Recording,
	pgroup profiler.ProfilerGroup,
) []renderer.ResourceID {
	pgroup = pgroup.Start("RunRecording")
	defer pgroup.End()
	timestamps, _ := pgroup.(*ProfilerGroup)

	var freeBufs []renderer.ResourceID
	for _, cmd := range recording.Commands {
		switch cmd := cmd.(type) {
		case *renderer.Upload:
			bufProxy := cmd.Buffer
			buf, ok := eng.bindMap.getGPUBuf(bufProxy.ID)
			if !ok {
				buf = eng.pool.getBuf(bufProxy.Size, bufProxy.Name, storageUsage, eng.Device)
				eng.bindMap.insertBuf(bufProxy, buf)
			}
			queue.WriteBuffer(buf, 0, cmd.Data)

		case *renderer.UploadUniform:
			bufProxy := cmd.Buffer
			usage := wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
			buf := eng.pool.getBuf(bufProxy.Size, bufProxy.Name, usage, eng.Device)
			queue.WriteBuffer(buf, 0, cmd.Data)
			eng.bindMap.insertBuf(bufProxy, buf)

		case *renderer.Dispatch:
			s := eng.shaders[cmd.Shader]
			bindGroup := eng.createBindGroup(encoder, s.bindGroupLayout, cmd.Bindings)
			cpass := encoder.BeginComputePass(&wgpu.ComputePassDescriptor{
				Label:           s.label,
				TimestampWrites: timestamps.Compute(s.label),
			})
			cpass.SetPipeline(s.pipeline)
			cpass.SetBindGroup(0, bindGroup, nil)
			cpass.DispatchWorkgroups(cmd.WorkgroupSize[0], cmd.WorkgroupSize[1], cmd.WorkgroupSize[2])
			cpass.End()
			bindGroup.Release()
			cpass.Release()

		case *renderer.DispatchIndirect:
			s := eng.shaders[cmd.Shader]
			bindGroup := eng.createBindGroup(encoder, s.bindGroupLayout, cmd.Bindings)
			buf := eng.materialize(encoder, cmd.Buffer)
			cpass := encoder.BeginComputePass(&wgpu.ComputePassDescriptor{
				Label:           s.label,
				TimestampWrites: timestamps.Compute(s.label),
			})
			cpass.SetPipeline(s.pipeline)
			cpass.SetBindGroup(0, bindGroup, nil)
			cpass.DispatchWorkgroupsIndirect(buf, cmd.Offset)
			cpass.End()
			bindGroup.Release()
			cpass.Release()

		case *renderer.CopyBuffer:
			src := eng.materialize(encoder, cmd.Src)
			dst := eng.materialize(encoder, cmd.Dst)
			encoder.CopyBufferToBuffer(src, cmd.SrcOffset, dst, cmd.DstOffset, cmd.Size)

		case *renderer.Download:
			proxy := cmd.Buffer
			srcBuf, ok := eng.bindMap.getGPUBuf(proxy.ID)
			if !ok {
				panic("tried using unavailable buffer for download")
			}
			usage := wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
			buf := eng.pool.getBuf(proxy.Size, "download", usage, eng.Device)
			encoder.CopyBufferToBuffer(srcBuf, 0, buf, 0, proxy.Size)
			eng.downloads[proxy.ID] = buf

		case *renderer.Clear:
			proxy := cmd.Buffer
			if buf, ok := eng.bindMap.getGPUBuf(proxy.ID); ok {
				size := cmd.Size
				if size < 0 {
					size = int64(buf.Size() - cmd.Offset)
				}
				encoder.ClearBuffer(buf, cmd.Offset, uint64(size))
			} else {
				eng.bindMap.pendingClears[proxy.ID] = struct{}{}
			}

		case *renderer.FreeBuffer:
			freeBufs = append(freeBufs, cmd.Buffer.ID)

		default:
			panic(fmt.Sprintf("unhandled command %T", cmd))
		}
	}
	return freeBufs
}

// Recycle returns freed buffers to the pool. Call it after submitting the
// command buffer that used them.
func (eng *Engine) Recycle(freeBufs []renderer.ResourceID) {
	for _, id := range freeBufs {
		buf, ok := eng.bindMap.bufMap[id]
		if !ok {
			continue
		}
		delete(eng.bindMap.bufMap, id)
		delete(eng.bindMap.pendingClears, id)
		props := bufferProperties{
			size:   buf.Buffer.Size(),
			usages: buf.Buffer.Usage(),
		}
		// TODO(dh): add a method to ResourcePool to return buffers
		eng.pool.bufs[props] = append(eng.pool.bufs[props], buf.Buffer)
	}
}

// Submit runs a recording in its own command buffer and submits it.
func (eng *Engine) Submit(queue *wgpu.Queue, recording *renderer.Recording, label string, pgroup profiler.ProfilerGroup) {
	encoder := eng.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	freeBufs := eng.RunRecording(queue, encoder, recording, pgroup)
	cmd := encoder.Finish(nil)
	encoder.Release()
	queue.Submit(cmd)
	cmd.Release()
	eng.Recycle(freeBufs)
}

// Buffer returns the GPU buffer backing proxy, if it has been materialized.
func (eng *Engine) Buffer(proxy renderer.BufferProxy) (*wgpu.Buffer, bool) {
	return eng.bindMap.getGPUBuf(proxy.ID)
}

// MapDownload starts mapping the snapshot taken by a Download command for
// proxy. Call it after the recording has been submitted.
func (eng *Engine) MapDownload(proxy renderer.BufferProxy) (<-chan error, bool) {
	buf, ok := eng.downloads[proxy.ID]
	if !ok {
		return nil, false
	}
	return buf.Map(eng.Device, wgpu.MapModeRead, 0, int(proxy.Size)), true
}

// ReadDownload copies the mapped snapshot of proxy and returns its buffer to
// the pool. The channel returned by MapDownload must have delivered a nil
// error.
func (eng *Engine) ReadDownload(proxy renderer.BufferProxy) []byte {
	buf, ok := eng.downloads[proxy.ID]
	if !ok {
		return nil
	}
	delete(eng.downloads, proxy.ID)
	out := append([]byte(nil), buf.ReadOnlyMappedRange(0, int(proxy.Size))...)
	buf.Unmap()
	props := bufferProperties{size: buf.Size(), usages: buf.Usage()}
	eng.pool.bufs[props] = append(eng.pool.bufs[props], buf)
	return out
}

// Release releases all pooled and live buffers as well as the pipelines.
func (eng *Engine) Release() {
	eng.ReleaseShaders()
	for _, b := range eng.bindMap.bufMap {
		b.Buffer.Release()
	}
	clear(eng.bindMap.bufMap)
	for _, bufs := range eng.pool.bufs {
		for _, b := range bufs {
			b.Release()
		}
	}
	clear(eng.pool.bufs)
	for _, b := range eng.downloads {
		b.Release()
	}
	clear(eng.downloads)
}

func (eng *Engine) createComputePipeline(
	label string,
	wgsl []byte,
	entries []wgpu.BindGroupLayoutEntry,
) wgpuShader {
	// OPT(dh): use SPIR-V instead of WGSL for faster engine creation.
	shaderModule := eng.Device.CreateShaderModule(wgpu.ShaderModuleDescriptor{
		Label:  label,
		Source: wgpu.ShaderSourceWGSL(wgsl),
	})
	defer shaderModule.Release()
	bindGroupLayout := eng.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Entries: entries,
	})
	computePipelineLayout := eng.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{bindGroupLayout},
	})
	pipeline := eng.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  label,
		Layout: computePipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     shaderModule,
			EntryPoint: "main",
		},
	})
	computePipelineLayout.Release()
	logging.Logger().Debug("created compute pipeline", "label", label)

	return wgpuShader{
		label:           label,
		pipeline:        pipeline,
		bindGroupLayout: bindGroupLayout,
	}
}

func (m *bindMap) insertBuf(proxy renderer.BufferProxy, buffer *wgpu.Buffer) {
	m.bufMap[proxy.ID] = &bindMapBuffer{
		Buffer: buffer,
		Label:  proxy.Name,
	}
}

func (m *bindMap) getGPUBuf(id renderer.ResourceID) (*wgpu.Buffer, bool) {
	mbuf, ok := m.bufMap[id]
	if !ok {
		return nil, false
	}
	return mbuf.Buffer, true
}

// materialize returns the buffer for proxy, creating it if necessary.
// Pending clears are applied to new buffers.
func (eng *Engine) materialize(encoder *wgpu.CommandEncoder, proxy renderer.BufferProxy) *wgpu.Buffer {
	if buf, ok := eng.bindMap.getGPUBuf(proxy.ID); ok {
		return buf
	}
	// TODO: only some buffers will need indirect, but does it hurt?
	buf := eng.pool.getBuf(proxy.Size, proxy.Name, storageUsage, eng.Device)
	if _, ok := eng.bindMap.pendingClears[proxy.ID]; ok {
		delete(eng.bindMap.pendingClears, proxy.ID)
		encoder.ClearBuffer(buf, 0, buf.Size())
	}
	eng.bindMap.insertBuf(proxy, buf)
	return buf
}

func (eng *Engine) createBindGroup(
	encoder *wgpu.CommandEncoder,
	layout *wgpu.BindGroupLayout,
	bindings []renderer.BufferProxy,
) *wgpu.BindGroup {
	entries := make([]wgpu.BindGroupEntry, len(bindings))
	for i, proxy := range bindings {
		entries[i] = wgpu.BindGroupEntry{
			Binding: uint32(i),
			Buffer:  eng.materialize(encoder, proxy),
			Size:    ^uint64(0),
		}
	}
	return eng.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout:  layout,
		Entries: entries,
	})
}

func (pool *resourcePool) getBuf(
	size uint64,
	name string,
	usage wgpu.BufferUsage,
	dev *wgpu.Device,
) *wgpu.Buffer {
	const sizeClassBits = 1

	roundedSize := poolSizeClass(size, sizeClassBits)
	props := bufferProperties{
		size:   roundedSize,
		usages: usage,
	}
	if bufVec, ok := pool.bufs[props]; ok {
		if len(bufVec) > 0 {
			buf := bufVec[len(bufVec)-1]
			bufVec = bufVec[:len(bufVec)-1]
			pool.bufs[props] = bufVec
			return buf
		}
	}
	return dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: name,
		Size:  roundedSize,
		Usage: usage,
	})
}

// poolSizeClass rounds x up so that only the numBits most significant bits
// may be set, and to at least 1<<numBits.
func poolSizeClass(x uint64, numBits uint32) uint64 {
	if x > 1<<numBits {
		a := bits.LeadingZeros64(x - 1)
		b := (x - 1) | (((math.MaxUint64 / 2) >> numBits) >> a)
		return b + 1
	} else {
		return 1 << numBits
	}
}
