package protocols

import (
	"github.com/rajveermalviya/go-wayland/wayland/client"
)

// Protocol interface names
const (
	VirtualPointerManagerInterface = "zwlr_virtual_pointer_manager_v1"
	VirtualPointerInterface        = "zwlr_virtual_pointer_v1"
)

// Button states
const (
	ButtonStateReleased = 0
	ButtonStatePressed  = 1
)

// Axes
const (
	AxisVerticalScroll   = 0
	AxisHorizontalScroll = 1
)

// VirtualPointerManager manages virtual pointer objects
type VirtualPointerManager struct {
	client.BaseProxy
	Version uint32
}

// NewVirtualPointerManager creates a manager proxy ready to be bound
func NewVirtualPointerManager(ctx *client.Context) *VirtualPointerManager {
	m := &VirtualPointerManager{}
	ctx.Register(m)
	return m
}

// CreateVirtualPointer creates a new virtual pointer. seat may be nil to
// let the compositor pick one.
func (m *VirtualPointerManager) CreateVirtualPointer(seat *client.Seat) (*VirtualPointer, error) {
	pointer := NewVirtualPointer(m.Context())

	// Opcode 0: create_virtual_pointer
	const opcode = 0
	const reqLen = 8 + 4 + 4
	var buf [reqLen]byte
	client.PutUint32(buf[0:4], m.ID())
	client.PutUint32(buf[4:8], uint32(reqLen<<16|opcode&0x0000ffff))
	client.PutUint32(buf[8:12], seatID(seat))
	client.PutUint32(buf[12:16], pointer.ID())

	if err := m.Context().WriteMsg(buf[:], nil); err != nil {
		m.Context().Unregister(pointer)
		return nil, err
	}
	return pointer, nil
}

// CreateVirtualPointerWithOutput creates a new virtual pointer mapped to
// output (since version 2)
func (m *VirtualPointerManager) CreateVirtualPointerWithOutput(seat *client.Seat, output *client.Output) (*VirtualPointer, error) {
	pointer := NewVirtualPointer(m.Context())

	// Opcode 2: create_virtual_pointer_with_output
	const opcode = 2
	const reqLen = 8 + 4 + 4 + 4
	var buf [reqLen]byte
	client.PutUint32(buf[0:4], m.ID())
	client.PutUint32(buf[4:8], uint32(reqLen<<16|opcode&0x0000ffff))
	client.PutUint32(buf[8:12], seatID(seat))
	client.PutUint32(buf[12:16], output.ID())
	client.PutUint32(buf[16:20], pointer.ID())

	if err := m.Context().WriteMsg(buf[:], nil); err != nil {
		m.Context().Unregister(pointer)
		return nil, err
	}
	return pointer, nil
}

// Destroy destroys the virtual pointer manager
func (m *VirtualPointerManager) Destroy() error {
	defer m.Context().Unregister(m)
	// Opcode 1: destroy
	const opcode = 1
	return writeEmpty(m.Context(), m.ID(), opcode)
}

// Dispatch handles incoming events (virtual pointer manager has no events)
func (m *VirtualPointerManager) Dispatch(opcode uint32, fd int, data []byte) {}

// VirtualPointer represents a virtual pointer device
type VirtualPointer struct {
	client.BaseProxy
}

// NewVirtualPointer creates a virtual pointer proxy
func NewVirtualPointer(ctx *client.Context) *VirtualPointer {
	p := &VirtualPointer{}
	ctx.Register(p)
	return p
}

// MotionAbsolute sends an absolute pointer motion event within the extent
func (p *VirtualPointer) MotionAbsolute(time, x, y, xExtent, yExtent uint32) error {
	// Opcode 1: motion_absolute
	const opcode = 1
	return writeUint32s(p.Context(), p.ID(), opcode, time, x, y, xExtent, yExtent)
}

// Button sends a button press/release event
func (p *VirtualPointer) Button(time, button, state uint32) error {
	// Opcode 2: button
	const opcode = 2
	return writeUint32s(p.Context(), p.ID(), opcode, time, button, state)
}

// Axis sends a scroll event
func (p *VirtualPointer) Axis(time, axis uint32, value float64) error {
	// Opcode 3: axis
	const opcode = 3
	return writeUint32s(p.Context(), p.ID(), opcode, time, axis, uint32(toFixed(value)))
}

// Frame indicates the end of a pointer event sequence
func (p *VirtualPointer) Frame() error {
	// Opcode 4: frame
	const opcode = 4
	return writeEmpty(p.Context(), p.ID(), opcode)
}

// Destroy destroys the virtual pointer
func (p *VirtualPointer) Destroy() error {
	defer p.Context().Unregister(p)
	// Opcode 8: destroy
	const opcode = 8
	return writeEmpty(p.Context(), p.ID(), opcode)
}

// Dispatch handles incoming events (virtual pointer has no events)
func (p *VirtualPointer) Dispatch(opcode uint32, fd int, data []byte) {}

// toFixed converts to wl_fixed_t (24.8 signed fixed point)
func toFixed(v float64) int32 {
	return int32(v * 256.0)
}

func seatID(seat *client.Seat) uint32 {
	if seat == nil {
		return 0
	}
	return seat.ID()
}

var (
	_ client.Dispatcher = (*VirtualPointerManager)(nil)
	_ client.Dispatcher = (*VirtualPointer)(nil)
)
