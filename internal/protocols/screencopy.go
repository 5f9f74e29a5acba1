package protocols

import (
	"github.com/rajveermalviya/go-wayland/wayland/client"
)

// Protocol interface names
const (
	ScreencopyManagerInterface = "zwlr_screencopy_manager_v1"
	ScreencopyFrameInterface   = "zwlr_screencopy_frame_v1"
)

// ScreencopyFrameFlagYInvert is set in the flags event when the frame
// contents are stored bottom-up.
const ScreencopyFrameFlagYInvert = 1

// ScreencopyManager creates frame capture handles for outputs
type ScreencopyManager struct {
	client.BaseProxy
	Version uint32
}

// NewScreencopyManager creates a manager proxy ready to be bound
func NewScreencopyManager(ctx *client.Context) *ScreencopyManager {
	m := &ScreencopyManager{}
	ctx.Register(m)
	return m
}

// CaptureOutput requests a capture of the whole output
func (m *ScreencopyManager) CaptureOutput(overlayCursor bool, output *client.Output) (*ScreencopyFrame, error) {
	frame := NewScreencopyFrame(m.Context())
	frame.Version = m.Version

	const opcode = 0
	const reqLen = 8 + 4 + 4 + 4
	var buf [reqLen]byte
	l := 0
	client.PutUint32(buf[l:l+4], m.ID())
	l += 4
	client.PutUint32(buf[l:l+4], uint32(reqLen<<16|opcode&0x0000ffff))
	l += 4
	client.PutUint32(buf[l:l+4], frame.ID())
	l += 4
	var overlay uint32
	if overlayCursor {
		overlay = 1
	}
	client.PutUint32(buf[l:l+4], overlay)
	l += 4
	client.PutUint32(buf[l:l+4], output.ID())

	if err := m.Context().WriteMsg(buf[:], nil); err != nil {
		m.Context().Unregister(frame)
		return nil, err
	}
	return frame, nil
}

// Destroy destroys the manager. Existing frames are not affected.
func (m *ScreencopyManager) Destroy() error {
	defer m.Context().Unregister(m)
	const opcode = 2
	return writeEmpty(m.Context(), m.ID(), opcode)
}

// Dispatch handles incoming events (the manager has no events)
func (m *ScreencopyManager) Dispatch(opcode uint32, fd int, data []byte) {}

// ScreencopyFrameBufferEvent describes a wl_shm buffer the compositor can copy into
type ScreencopyFrameBufferEvent struct {
	Format uint32
	Width  uint32
	Height uint32
	Stride uint32
}

// ScreencopyFrameFlagsEvent carries frame flags
type ScreencopyFrameFlagsEvent struct {
	Flags uint32
}

// ScreencopyFrameReadyEvent reports the copy has completed
type ScreencopyFrameReadyEvent struct {
	TvSecHi uint32
	TvSecLo uint32
	TvNsec  uint32
}

// ScreencopyFrame is a single-use capture handle
type ScreencopyFrame struct {
	client.BaseProxy
	Version uint32

	bufferHandler     func(ScreencopyFrameBufferEvent)
	flagsHandler      func(ScreencopyFrameFlagsEvent)
	readyHandler      func(ScreencopyFrameReadyEvent)
	failedHandler     func()
	bufferDoneHandler func()
}

// NewScreencopyFrame creates a frame proxy
func NewScreencopyFrame(ctx *client.Context) *ScreencopyFrame {
	f := &ScreencopyFrame{}
	ctx.Register(f)
	return f
}

// Copy asks the compositor to copy the frame into buffer
func (f *ScreencopyFrame) Copy(buffer *client.Buffer) error {
	const opcode = 0
	const reqLen = 8 + 4
	var buf [reqLen]byte
	client.PutUint32(buf[0:4], f.ID())
	client.PutUint32(buf[4:8], uint32(reqLen<<16|opcode&0x0000ffff))
	client.PutUint32(buf[8:12], buffer.ID())
	return f.Context().WriteMsg(buf[:], nil)
}

// Destroy destroys the frame
func (f *ScreencopyFrame) Destroy() error {
	defer f.Context().Unregister(f)
	const opcode = 1
	return writeEmpty(f.Context(), f.ID(), opcode)
}

func (f *ScreencopyFrame) SetBufferHandler(h func(ScreencopyFrameBufferEvent)) {
	f.bufferHandler = h
}

func (f *ScreencopyFrame) SetFlagsHandler(h func(ScreencopyFrameFlagsEvent)) {
	f.flagsHandler = h
}

func (f *ScreencopyFrame) SetReadyHandler(h func(ScreencopyFrameReadyEvent)) {
	f.readyHandler = h
}

func (f *ScreencopyFrame) SetFailedHandler(h func()) {
	f.failedHandler = h
}

// SetBufferDoneHandler is called once all buffer types were announced (v3)
func (f *ScreencopyFrame) SetBufferDoneHandler(h func()) {
	f.bufferDoneHandler = h
}

// Dispatch handles incoming events
func (f *ScreencopyFrame) Dispatch(opcode uint32, fd int, data []byte) {
	switch opcode {
	case 0:
		if f.bufferHandler == nil {
			return
		}
		var e ScreencopyFrameBufferEvent
		e.Format = client.Uint32(data[0:4])
		e.Width = client.Uint32(data[4:8])
		e.Height = client.Uint32(data[8:12])
		e.Stride = client.Uint32(data[12:16])
		f.bufferHandler(e)
	case 1:
		if f.flagsHandler == nil {
			return
		}
		f.flagsHandler(ScreencopyFrameFlagsEvent{Flags: client.Uint32(data[0:4])})
	case 2:
		if f.readyHandler == nil {
			return
		}
		var e ScreencopyFrameReadyEvent
		e.TvSecHi = client.Uint32(data[0:4])
		e.TvSecLo = client.Uint32(data[4:8])
		e.TvNsec = client.Uint32(data[8:12])
		f.readyHandler(e)
	case 3:
		if f.failedHandler != nil {
			f.failedHandler()
		}
	case 6:
		if f.bufferDoneHandler != nil {
			f.bufferDoneHandler()
		}
	}
	// damage (4) and linux_dmabuf (5) are not used: only wl_shm buffers are supported
}

// writeEmpty sends a request without arguments
func writeEmpty(ctx *client.Context, id uint32, opcode uint32) error {
	const reqLen = 8
	var buf [reqLen]byte
	client.PutUint32(buf[0:4], id)
	client.PutUint32(buf[4:8], uint32(reqLen<<16|opcode&0x0000ffff))
	return ctx.WriteMsg(buf[:], nil)
}

var (
	_ client.Dispatcher = (*ScreencopyManager)(nil)
	_ client.Dispatcher = (*ScreencopyFrame)(nil)
)
