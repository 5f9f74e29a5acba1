package protocols

import (
	"github.com/rajveermalviya/go-wayland/wayland/client"
	"golang.org/x/sys/unix"
)

// Protocol interface names for virtual keyboard
const (
	VirtualKeyboardManagerInterface = "zwp_virtual_keyboard_manager_v1"
	VirtualKeyboardInterface        = "zwp_virtual_keyboard_v1"
)

// KeymapFormatXkbV1 is wl_keyboard.keymap_format.xkb_v1
const KeymapFormatXkbV1 = 1

// Key states
const (
	KeyStateReleased = 0
	KeyStatePressed  = 1
)

// VirtualKeyboardManager manages virtual keyboard objects
type VirtualKeyboardManager struct {
	client.BaseProxy
	Version uint32
}

// NewVirtualKeyboardManager creates a manager proxy ready to be bound
func NewVirtualKeyboardManager(ctx *client.Context) *VirtualKeyboardManager {
	m := &VirtualKeyboardManager{}
	ctx.Register(m)
	return m
}

// CreateVirtualKeyboard creates a new virtual keyboard on seat
func (m *VirtualKeyboardManager) CreateVirtualKeyboard(seat *client.Seat) (*VirtualKeyboard, error) {
	keyboard := NewVirtualKeyboard(m.Context())

	// Opcode 0: create_virtual_keyboard
	const opcode = 0
	const reqLen = 8 + 4 + 4
	var buf [reqLen]byte
	client.PutUint32(buf[0:4], m.ID())
	client.PutUint32(buf[4:8], uint32(reqLen<<16|opcode&0x0000ffff))
	client.PutUint32(buf[8:12], seat.ID())
	client.PutUint32(buf[12:16], keyboard.ID())

	if err := m.Context().WriteMsg(buf[:], nil); err != nil {
		m.Context().Unregister(keyboard)
		return nil, err
	}
	return keyboard, nil
}

// Dispatch handles incoming events (manager has no events)
func (m *VirtualKeyboardManager) Dispatch(opcode uint32, fd int, data []byte) {}

// VirtualKeyboard represents a virtual keyboard device
type VirtualKeyboard struct {
	client.BaseProxy
}

// NewVirtualKeyboard creates a virtual keyboard proxy
func NewVirtualKeyboard(ctx *client.Context) *VirtualKeyboard {
	k := &VirtualKeyboard{}
	ctx.Register(k)
	return k
}

// Keymap uploads the keymap held in fd. The fd stays owned by the caller.
func (k *VirtualKeyboard) Keymap(format uint32, fd int, size uint32) error {
	// Opcode 0: keymap
	const opcode = 0
	const reqLen = 8 + 4 + 4
	var buf [reqLen]byte
	client.PutUint32(buf[0:4], k.ID())
	client.PutUint32(buf[4:8], uint32(reqLen<<16|opcode&0x0000ffff))
	client.PutUint32(buf[8:12], format)
	client.PutUint32(buf[12:16], size)

	return k.Context().WriteMsg(buf[:], unix.UnixRights(fd))
}

// Key sends a key press or release. key is an evdev keycode.
func (k *VirtualKeyboard) Key(time, key, state uint32) error {
	// Opcode 1: key
	const opcode = 1
	return writeUint32s(k.Context(), k.ID(), opcode, time, key, state)
}

// Modifiers updates the modifier and group state
func (k *VirtualKeyboard) Modifiers(modsDepressed, modsLatched, modsLocked, group uint32) error {
	// Opcode 2: modifiers
	const opcode = 2
	return writeUint32s(k.Context(), k.ID(), opcode, modsDepressed, modsLatched, modsLocked, group)
}

// Destroy destroys the virtual keyboard
func (k *VirtualKeyboard) Destroy() error {
	defer k.Context().Unregister(k)
	// Opcode 3: destroy
	const opcode = 3
	return writeEmpty(k.Context(), k.ID(), opcode)
}

// Dispatch handles incoming events (virtual keyboard has no events)
func (k *VirtualKeyboard) Dispatch(opcode uint32, fd int, data []byte) {}

// writeUint32s sends a request whose arguments are all 32-bit words
func writeUint32s(ctx *client.Context, id uint32, opcode uint32, args ...uint32) error {
	reqLen := 8 + 4*len(args)
	buf := make([]byte, reqLen)
	client.PutUint32(buf[0:4], id)
	client.PutUint32(buf[4:8], uint32(reqLen<<16)|opcode&0x0000ffff)
	for i, arg := range args {
		client.PutUint32(buf[8+4*i:12+4*i], arg)
	}
	return ctx.WriteMsg(buf, nil)
}

var (
	_ client.Dispatcher = (*VirtualKeyboardManager)(nil)
	_ client.Dispatcher = (*VirtualKeyboard)(nil)
)
