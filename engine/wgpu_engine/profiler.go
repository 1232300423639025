// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package wgpu_engine

import (
	"fmt"
	"log/slog"
	"time"

	"honnef.co/go/safeish"
	"honnef.co/go/wgpu"

	"honnef.co/go/implicit/profiler"
)

const maxProfilerTimestamps = 256

// Profiler records GPU timestamps for the passes of a frame, alongside the
// CPU time spent encoding them. A nil *Profiler records nothing.
type Profiler struct {
	dev *wgpu.Device

	// Frames that have been started but not resolved yet.
	frames []*ProfilerGroup
	// Frames whose map buffers are being mapped.
	mapped []*ProfilerGroup

	// Free lists.
	querySets      []*wgpu.QuerySet
	resolveBuffers []*wgpu.Buffer
	mapBuffers     []*wgpu.Buffer
}

func NewProfiler(dev *wgpu.Device) *Profiler {
	return &Profiler{dev: dev}
}

// Frame starts the root group of a frame.
func (p *Profiler) Frame(frame uint64) *ProfilerGroup {
	if p == nil {
		return nil
	}
	g := &ProfilerGroup{
		Frame:      frame,
		Label:      fmt.Sprintf("frame %d", frame),
		set:        &profilerQuerySet{set: p.getQuerySet()},
		cpuStart:   time.Now(),
		resolveBuf: p.getBuffer(&p.resolveBuffers, wgpu.BufferUsageQueryResolve|wgpu.BufferUsageCopySrc),
		mapBuf:     p.getBuffer(&p.mapBuffers, wgpu.BufferUsageMapRead|wgpu.BufferUsageCopyDst),
	}
	p.frames = append(p.frames, g)
	return g
}

type profilerQuerySet struct {
	set *wgpu.QuerySet
	id  uint32
}

// nextPair allocates a begin and an end timestamp. ok is false once the
// query set is exhausted, in which case the pass goes untimed.
func (set *profilerQuerySet) nextPair() (start, end uint32, ok bool) {
	if set.id+2 > maxProfilerTimestamps {
		return 0, 0, false
	}
	start = set.id
	set.id += 2
	return start, start + 1, true
}

// ProfilerGroup implements [profiler.ProfilerGroup]. All groups of a frame
// share one query set.
type ProfilerGroup struct {
	Frame      uint64
	Label      string
	set        *profilerQuerySet
	cpuStart   time.Time
	cpuEnd     time.Time
	children   []*ProfilerGroup
	gpuQueries []ProfilerQuery

	// set for frames only
	resolveBuf *wgpu.Buffer
	mapBuf     *wgpu.Buffer
	ch         <-chan error
}

func (g *ProfilerGroup) End() {
	if g == nil {
		return
	}
	if !g.cpuEnd.IsZero() {
		panic("trying to end same group twice")
	}
	g.cpuEnd = time.Now()
}

func (g *ProfilerGroup) Start(label string) profiler.ProfilerGroup {
	if g == nil {
		return (*ProfilerGroup)(nil)
	}
	return g.Nest(label)
}

func (g *ProfilerGroup) Nest(label string) *ProfilerGroup {
	if g == nil {
		return nil
	}
	cg := &ProfilerGroup{
		Label:    label,
		set:      g.set,
		cpuStart: time.Now(),
	}
	g.children = append(g.children, cg)
	return cg
}

type ProfilerQuery struct {
	Label   string
	startID uint32
	endID   uint32
}

func (g *ProfilerGroup) query(label string) (start, end uint32, ok bool) {
	if g == nil {
		return 0, 0, false
	}
	start, end, ok = g.set.nextPair()
	if ok {
		g.gpuQueries = append(g.gpuQueries, ProfilerQuery{Label: label, startID: start, endID: end})
	}
	return start, end, ok
}

func (g *ProfilerGroup) Compute(label string) *wgpu.ComputePassTimestampWrites {
	start, end, ok := g.query(label)
	if !ok {
		return nil
	}
	return &wgpu.ComputePassTimestampWrites{
		QuerySet:                  g.set.set,
		BeginningOfPassWriteIndex: start,
		EndOfPassWriteIndex:       end,
	}
}

func (g *ProfilerGroup) Render(label string) *wgpu.RenderPassTimestampWrites {
	start, end, ok := g.query(label)
	if !ok {
		return nil
	}
	return &wgpu.RenderPassTimestampWrites{
		QuerySet:                  g.set.set,
		BeginningOfPassWriteIndex: start,
		EndOfPassWriteIndex:       end,
	}
}

func (p *Profiler) getQuerySet() *wgpu.QuerySet {
	if n := len(p.querySets); n > 0 {
		q := p.querySets[n-1]
		p.querySets = p.querySets[:n-1]
		return q
	}
	return p.dev.CreateQuerySet(&wgpu.QuerySetDescriptor{
		Type:  wgpu.QueryTypeTimestamp,
		Count: maxProfilerTimestamps,
	})
}

func (p *Profiler) getBuffer(free *[]*wgpu.Buffer, usage wgpu.BufferUsage) *wgpu.Buffer {
	if n := len(*free); n > 0 {
		buf := (*free)[n-1]
		*free = (*free)[:n-1]
		return buf
	}
	return p.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: usage,
		Size:  maxProfilerTimestamps * 8,
	})
}

// Resolve encodes the copies of all started frames' timestamps into their
// map buffers.
func (p *Profiler) Resolve(enc *wgpu.CommandEncoder) {
	if p == nil {
		return
	}
	for _, g := range p.frames {
		if g.set.id == 0 {
			continue
		}
		enc.ResolveQuerySet(g.set.set, 0, g.set.id, g.resolveBuf, 0)
		enc.CopyBufferToBuffer(g.resolveBuf, 0, g.mapBuf, 0, uint64(g.set.id)*8)
	}
}

// Map starts mapping the resolved frames. Call it after submitting the
// command buffer passed to Resolve.
func (p *Profiler) Map() {
	if p == nil {
		return
	}
	for _, g := range p.frames {
		if g.set.id == 0 {
			ch := make(chan error, 1)
			ch <- nil
			g.ch = ch
		} else {
			g.ch = g.mapBuf.Map(p.dev, wgpu.MapModeRead, 0, int(g.set.id)*8)
		}
	}
	p.mapped = append(p.mapped, p.frames...)
	clear(p.frames)
	p.frames = p.frames[:0]
}

type ProfilerResult struct {
	Frame    uint64
	Label    string
	CPUStart time.Time
	CPUEnd   time.Time
	Queries  []ProfilerQueryResult
	Children []ProfilerResult
}

type ProfilerQueryResult struct {
	Label string
	// Raw timestamps, in the units of the queue's timestamp period.
	Start uint64
	End   uint64
}

func populateResult(g *ProfilerGroup, values []uint64) ProfilerResult {
	res := ProfilerResult{
		Frame:    g.Frame,
		Label:    g.Label,
		CPUStart: g.cpuStart,
		CPUEnd:   g.cpuEnd,
		Queries:  make([]ProfilerQueryResult, len(g.gpuQueries)),
		Children: make([]ProfilerResult, len(g.children)),
	}
	for i, q := range g.gpuQueries {
		res.Queries[i] = ProfilerQueryResult{
			Label: q.Label,
			Start: values[q.startID],
			End:   values[q.endID],
		}
	}
	for i, c := range g.children {
		res.Children[i] = populateResult(c, values)
	}
	return res
}

// Collect returns the results of all frames whose timestamps are available,
// in the order the frames were started.
func (p *Profiler) Collect() ([]ProfilerResult, error) {
	if p == nil {
		return nil, nil
	}
	var out []ProfilerResult
	n := 0
loop:
	for _, g := range p.mapped {
		select {
		case err := <-g.ch:
			if err != nil {
				return out, fmt.Errorf("couldn't map timestamps of %s: %w", g.Label, err)
			}
			var values []uint64
			if g.set.id > 0 {
				values = safeish.SliceCast[[]uint64](g.mapBuf.ReadOnlyMappedRange(0, int(g.set.id)*8))
			}
			out = append(out, populateResult(g, values))
			if g.set.id > 0 {
				g.mapBuf.Unmap()
			}
			p.querySets = append(p.querySets, g.set.set)
			p.mapBuffers = append(p.mapBuffers, g.mapBuf)
			p.resolveBuffers = append(p.resolveBuffers, g.resolveBuf)
			n++
		default:
			// Stop at the first pending frame to keep results in order.
			break loop
		}
	}
	copy(p.mapped, p.mapped[n:])
	clear(p.mapped[len(p.mapped)-n:])
	p.mapped = p.mapped[:len(p.mapped)-n]
	return out, nil
}

// Log writes a result tree to logger at debug level. period is the queue's
// timestamp period in nanoseconds.
func (res *ProfilerResult) Log(logger *slog.Logger, period float32) {
	res.log(logger, period, res.Label)
}

func (res *ProfilerResult) log(logger *slog.Logger, period float32, path string) {
	logger.Debug("cpu time", "group", path, "duration", res.CPUEnd.Sub(res.CPUStart))
	for _, q := range res.Queries {
		d := time.Duration(float64(q.End-q.Start) * float64(period))
		logger.Debug("gpu time", "group", path, "pass", q.Label, "duration", d)
	}
	for i := range res.Children {
		c := &res.Children[i]
		c.log(logger, period, path+"/"+c.Label)
	}
}
