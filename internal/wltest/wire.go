package wltest

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// signature letters: u uint, i int, f fixed, o object, n new_id, s string,
// h fd (carried out of band)
type requestSig struct {
	name string
	args string
}

var requestSigs = map[string][]requestSig{
	"wl_display":  {{"sync", "n"}, {"get_registry", "n"}},
	"wl_registry": {{"bind", "usun"}},
	"wl_callback": {},
	"wl_shm":      {{"create_pool", "nhi"}, {"release", ""}},
	"wl_shm_pool": {{"create_buffer", "niiiiu"}, {"destroy", ""}, {"resize", "i"}},
	"wl_buffer":   {{"destroy", ""}},
	"wl_output":   {{"release", ""}},
	"wl_seat":     {{"get_pointer", "n"}, {"get_keyboard", "n"}, {"get_touch", "n"}, {"release", ""}},

	"zwlr_screencopy_manager_v1": {{"capture_output", "nio"}, {"capture_output_region", "nioiiii"}, {"destroy", ""}},
	"zwlr_screencopy_frame_v1":   {{"copy", "o"}, {"destroy", ""}, {"copy_with_damage", "o"}},

	"zxdg_output_manager_v1": {{"destroy", ""}, {"get_xdg_output", "no"}},
	"zxdg_output_v1":         {{"destroy", ""}},

	"zwlr_virtual_pointer_manager_v1": {{"create_virtual_pointer", "on"}, {"destroy", ""}, {"create_virtual_pointer_with_output", "oon"}},
	"zwlr_virtual_pointer_v1": {
		{"motion", "uff"}, {"motion_absolute", "uuuuu"}, {"button", "uuu"}, {"axis", "uuf"},
		{"frame", ""}, {"axis_source", "u"}, {"axis_stop", "uu"}, {"axis_discrete", "uufi"}, {"destroy", ""},
	},

	"zwp_virtual_keyboard_manager_v1": {{"create_virtual_keyboard", "on"}},
	"zwp_virtual_keyboard_v1":         {{"keymap", "uhu"}, {"key", "uuu"}, {"modifiers", "uuuu"}, {"destroy", ""}},
}

// Request is one decoded client request.
type Request struct {
	Conn      int
	Object    uint32
	Interface string
	Name      string
	Args      []uint32 // every non-string argument, in order, as raw words
	Strings   []string
}

func (r Request) String() string {
	parts := make([]string, len(r.Args))
	for i, a := range r.Args {
		parts[i] = fmt.Sprint(a)
	}
	return fmt.Sprintf("%s.%s(%s)", r.Interface, r.Name, strings.Join(parts, ", "))
}

// Is reports whether the request is iface.name.
func (r Request) Is(iface, name string) bool {
	return r.Interface == iface && r.Name == name
}

func decodeRequest(iface string, opcode uint16, body []byte) (Request, error) {
	sigs, ok := requestSigs[iface]
	if !ok || int(opcode) >= len(sigs) {
		return Request{}, fmt.Errorf("unknown request %s#%d", iface, opcode)
	}
	sig := sigs[opcode]
	req := Request{Interface: iface, Name: sig.name}
	l := 0
	for _, c := range sig.args {
		switch c {
		case 'h':
			continue
		case 's':
			if l+4 > len(body) {
				return req, fmt.Errorf("short %s.%s", iface, sig.name)
			}
			n := int(binary.NativeEndian.Uint32(body[l:]))
			l += 4
			if l+n > len(body) {
				return req, fmt.Errorf("short string in %s.%s", iface, sig.name)
			}
			req.Strings = append(req.Strings, strings.TrimRight(string(body[l:l+n]), "\x00"))
			l += padded(n)
		default:
			if l+4 > len(body) {
				return req, fmt.Errorf("short %s.%s", iface, sig.name)
			}
			req.Args = append(req.Args, binary.NativeEndian.Uint32(body[l:]))
			l += 4
		}
	}
	return req, nil
}

func padded(n int) int {
	return (n + 3) &^ 3
}

type message struct {
	buf    []byte
	opcode uint16
}

func newMessage(id uint32, opcode uint16) *message {
	m := &message{buf: make([]byte, 8, 32), opcode: opcode}
	binary.NativeEndian.PutUint32(m.buf[0:], id)
	return m
}

func (m *message) putUint(v uint32) *message {
	m.buf = binary.NativeEndian.AppendUint32(m.buf, v)
	return m
}

func (m *message) putInt(v int32) *message {
	return m.putUint(uint32(v))
}

func (m *message) putString(s string) *message {
	n := len(s) + 1
	m.putUint(uint32(n))
	m.buf = append(m.buf, s...)
	m.buf = append(m.buf, make([]byte, padded(n)-len(s))...)
	return m
}

func (m *message) bytes() []byte {
	binary.NativeEndian.PutUint32(m.buf[4:], uint32(len(m.buf))<<16|uint32(m.opcode))
	return m.buf
}

func nativeUint32(b []byte) uint32 {
	return binary.NativeEndian.Uint32(b)
}
