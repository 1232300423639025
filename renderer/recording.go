package renderer

import (
	"sync/atomic"
)

var resourceID atomic.Uint64

func nextResourceID() ResourceID {
	return ResourceID(resourceID.Add(1))
}

type ResourceID uint64

// Recording is a list of GPU commands that an engine executes in order.
// Buffers are referred to by proxy and materialize on first use.
type Recording struct {
	Commands []Command
}

func (rec *Recording) push(cmd Command) {
	rec.Commands = append(rec.Commands, cmd)
}

// Reset drops all commands but keeps the backing storage.
func (rec *Recording) Reset() {
	clear(rec.Commands)
	rec.Commands = rec.Commands[:0]
}

func (rec *Recording) Upload(name string, data []byte) BufferProxy {
	buf := NewBufferProxy(uint64(len(data)), name)
	rec.push(&Upload{buf, data})
	return buf
}

// UploadTo writes data to the start of an existing buffer.
func (rec *Recording) UploadTo(buf BufferProxy, data []byte) {
	rec.push(&Upload{buf, data})
}

func (rec *Recording) UploadUniform(name string, data []byte) BufferProxy {
	buf := NewBufferProxy(uint64(len(data)), name)
	rec.push(&UploadUniform{buf, data})
	return buf
}

func (rec *Recording) Dispatch(shader ShaderID, wgSize WorkgroupSize, bindings []BufferProxy) {
	rec.push(&Dispatch{shader, wgSize, bindings})
}

func (rec *Recording) DispatchIndirect(
	shader ShaderID,
	buf BufferProxy,
	offset uint64,
	bindings []BufferProxy,
) {
	rec.push(&DispatchIndirect{shader, buf, offset, bindings})
}

func (rec *Recording) CopyBuffer(src BufferProxy, srcOffset uint64, dst BufferProxy, dstOffset uint64, size uint64) {
	rec.push(&CopyBuffer{src, srcOffset, dst, dstOffset, size})
}

func (rec *Recording) Download(buf BufferProxy) {
	rec.push(&Download{buf})
}

func (rec *Recording) Clear(buf BufferProxy, offset uint64, size int64) {
	rec.push(&Clear{buf, offset, size})
}

func (rec *Recording) ClearAll(buf BufferProxy) {
	rec.push(&Clear{buf, 0, -1})
}

func (rec *Recording) FreeBuffer(buf BufferProxy) {
	rec.push(&FreeBuffer{buf})
}

func NewBufferProxy(size uint64, name string) BufferProxy {
	id := nextResourceID()
	return BufferProxy{size, id, name}
}

type BufferProxy struct {
	Size uint64
	ID   ResourceID
	Name string
}

type ShaderID int

type Command interface {
	isCommand()
}

func (*Upload) isCommand()           {}
func (*UploadUniform) isCommand()    {}
func (*Dispatch) isCommand()         {}
func (*DispatchIndirect) isCommand() {}
func (*CopyBuffer) isCommand()       {}
func (*Download) isCommand()         {}
func (*Clear) isCommand()            {}
func (*FreeBuffer) isCommand()       {}

type BindType int

const (
	BindTypeBuffer BindType = iota + 1
	BindTypeBufReadOnly
	BindTypeUniform
)

func (t BindType) String() string {
	switch t {
	case BindTypeBuffer:
		return "buffer"
	case BindTypeBufReadOnly:
		return "read-only buffer"
	case BindTypeUniform:
		return "uniform"
	default:
		return "invalid"
	}
}

type Upload struct {
	Buffer BufferProxy
	Data   []byte
}

type UploadUniform struct {
	Buffer BufferProxy
	Data   []byte
}

type Dispatch struct {
	Shader        ShaderID
	WorkgroupSize WorkgroupSize
	Bindings      []BufferProxy
}

type DispatchIndirect struct {
	Shader   ShaderID
	Buffer   BufferProxy
	Offset   uint64
	Bindings []BufferProxy
}

type CopyBuffer struct {
	Src       BufferProxy
	SrcOffset uint64
	Dst       BufferProxy
	DstOffset uint64
	Size      uint64
}

type Download struct {
	Buffer BufferProxy
}

// Clear zeroes Size bytes starting at Offset. A negative size clears to the
// end of the buffer.
type Clear struct {
	Buffer BufferProxy
	Offset uint64
	Size   int64
}

type FreeBuffer struct {
	Buffer BufferProxy
}
