package protocols

import (
	"bytes"

	"github.com/rajveermalviya/go-wayland/wayland/client"
)

// Protocol interface names
const (
	XdgOutputManagerInterface = "zxdg_output_manager_v1"
	XdgOutputInterface        = "zxdg_output_v1"
)

// XdgOutputManager hands out xdg_output objects describing outputs in
// compositor (logical) coordinates
type XdgOutputManager struct {
	client.BaseProxy
	Version uint32
}

// NewXdgOutputManager creates a manager proxy ready to be bound
func NewXdgOutputManager(ctx *client.Context) *XdgOutputManager {
	m := &XdgOutputManager{}
	ctx.Register(m)
	return m
}

// GetXdgOutput creates the xdg_output for a wl_output
func (m *XdgOutputManager) GetXdgOutput(output *client.Output) (*XdgOutput, error) {
	xdgOutput := NewXdgOutput(m.Context())

	const opcode = 1
	const reqLen = 8 + 4 + 4
	var buf [reqLen]byte
	client.PutUint32(buf[0:4], m.ID())
	client.PutUint32(buf[4:8], uint32(reqLen<<16|opcode&0x0000ffff))
	client.PutUint32(buf[8:12], xdgOutput.ID())
	client.PutUint32(buf[12:16], output.ID())

	if err := m.Context().WriteMsg(buf[:], nil); err != nil {
		m.Context().Unregister(xdgOutput)
		return nil, err
	}
	return xdgOutput, nil
}

// Destroy destroys the manager
func (m *XdgOutputManager) Destroy() error {
	defer m.Context().Unregister(m)
	const opcode = 0
	return writeEmpty(m.Context(), m.ID(), opcode)
}

// Dispatch handles incoming events (the manager has no events)
func (m *XdgOutputManager) Dispatch(opcode uint32, fd int, data []byte) {}

// XdgOutputLogicalSizeEvent is the output size in compositor coordinates
type XdgOutputLogicalSizeEvent struct {
	Width  int32
	Height int32
}

// XdgOutputLogicalPositionEvent is the output position in compositor coordinates
type XdgOutputLogicalPositionEvent struct {
	X int32
	Y int32
}

// XdgOutput describes one output
type XdgOutput struct {
	client.BaseProxy

	logicalPositionHandler func(XdgOutputLogicalPositionEvent)
	logicalSizeHandler     func(XdgOutputLogicalSizeEvent)
	doneHandler            func()
	nameHandler            func(string)
}

// NewXdgOutput creates an xdg_output proxy
func NewXdgOutput(ctx *client.Context) *XdgOutput {
	o := &XdgOutput{}
	ctx.Register(o)
	return o
}

// Destroy destroys the xdg_output
func (o *XdgOutput) Destroy() error {
	defer o.Context().Unregister(o)
	const opcode = 0
	return writeEmpty(o.Context(), o.ID(), opcode)
}

func (o *XdgOutput) SetLogicalPositionHandler(h func(XdgOutputLogicalPositionEvent)) {
	o.logicalPositionHandler = h
}

func (o *XdgOutput) SetLogicalSizeHandler(h func(XdgOutputLogicalSizeEvent)) {
	o.logicalSizeHandler = h
}

func (o *XdgOutput) SetDoneHandler(h func()) {
	o.doneHandler = h
}

func (o *XdgOutput) SetNameHandler(h func(string)) {
	o.nameHandler = h
}

// Dispatch handles incoming events
func (o *XdgOutput) Dispatch(opcode uint32, fd int, data []byte) {
	switch opcode {
	case 0:
		if o.logicalPositionHandler == nil {
			return
		}
		o.logicalPositionHandler(XdgOutputLogicalPositionEvent{
			X: int32(client.Uint32(data[0:4])),
			Y: int32(client.Uint32(data[4:8])),
		})
	case 1:
		if o.logicalSizeHandler == nil {
			return
		}
		o.logicalSizeHandler(XdgOutputLogicalSizeEvent{
			Width:  int32(client.Uint32(data[0:4])),
			Height: int32(client.Uint32(data[4:8])),
		})
	case 2:
		if o.doneHandler != nil {
			o.doneHandler()
		}
	case 3:
		if o.nameHandler == nil {
			return
		}
		if len(data) < 4 {
			return
		}
		l := int(client.Uint32(data[0:4]))
		if l > len(data)-4 {
			return
		}
		name := data[4 : 4+l]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		o.nameHandler(string(name))
	}
}

var (
	_ client.Dispatcher = (*XdgOutputManager)(nil)
	_ client.Dispatcher = (*XdgOutput)(nil)
)
