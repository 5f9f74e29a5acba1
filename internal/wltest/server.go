// Package wltest runs a fake Wayland compositor for tests. It speaks the
// server side of the wire protocol for the interfaces waydriver uses,
// records every request and answers screencopy, xdg-output and sync
// requests the way a wlroots compositor would.
package wltest

import (
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/sys/unix"
)

// Global is an advertised interface.
type Global struct {
	Interface string
	Version   uint32
}

// Frame is what the compositor reports and copies for one capture.
type Frame struct {
	Format uint32
	Width  uint32
	Height uint32
	Stride uint32
	Data   []byte // copied into the client buffer, Stride*Height bytes
	Fail   bool
}

// ErrorRule makes the server post a protocol error when a request matches.
type ErrorRule struct {
	Interface string
	Name      string
	Code      uint32
	Message   string
}

// Server is a fake compositor listening on a unix socket.
type Server struct {
	t        testing.TB
	path     string
	listener *net.UnixListener

	mu          sync.Mutex
	globals     []Global
	requests    []Request
	keymaps     []string
	captures    int
	frames      func(n int) Frame
	outputSizes map[int][2]int32
	errorRule   *ErrorRule
	conns       []*net.UnixConn
	wg          sync.WaitGroup
}

// New starts a server advertising globals. It is stopped by t.Cleanup.
func New(t testing.TB, globals ...Global) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wayland-test")
	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		t.Fatalf("failed to listen on %s: %v", path, err)
	}
	s := &Server{
		t:           t,
		path:        path,
		listener:    listener,
		globals:     globals,
		outputSizes: map[int][2]int32{},
		frames: func(int) Frame {
			return SolidFrame(4, 2, [4]byte{0x10, 0x20, 0x30, 0xff})
		},
	}
	s.wg.Add(1)
	go s.accept()
	t.Cleanup(s.Close)
	return s
}

// Path is the socket path to pass as display name.
func (s *Server) Path() string {
	return s.path
}

// SetFrames configures the frame reported for the n-th capture.
func (s *Server) SetFrames(f func(n int) Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = f
}

// SetOutputSize sets the logical size of the index-th advertised wl_output.
func (s *Server) SetOutputSize(index int, width, height int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputSizes[index] = [2]int32{width, height}
}

// FailOn posts a protocol error when a matching request arrives.
func (s *Server) FailOn(rule ErrorRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorRule = &rule
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many iface.name requests were received.
func (s *Server) Count(iface, name string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Is(iface, name) {
			n++
		}
	}
	return n
}

// Keymaps returns the keymaps uploaded by virtual keyboards.
func (s *Server) Keymaps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keymaps...)
}

// DropClients closes every client connection.
func (s *Server) DropClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
}

// Close stops the server.
func (s *Server) Close() {
	_ = s.listener.Close()
	s.DropClients()
	s.wg.Wait()
}

func (s *Server) accept() {
	defer s.wg.Done()
	for id := 0; ; id++ {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		c := &connection{
			server:  s,
			id:      id,
			conn:    conn,
			objects: map[uint32]object{1: {iface: "wl_display", version: 1}},
			outputs: map[uint32]int{},
			pools:   map[uint32][]byte{},
			buffers: map[uint32]buffer{},
			frames:  map[uint32]Frame{},
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.serve()
		}()
	}
}

type object struct {
	iface   string
	version uint32
}

type buffer struct {
	pool   uint32
	offset int
	size   int
}

type connection struct {
	server  *Server
	id      int
	conn    *net.UnixConn
	objects map[uint32]object
	outputs map[uint32]int // wl_output object -> index among advertised outputs
	pools   map[uint32][]byte
	buffers map[uint32]buffer
	frames  map[uint32]Frame
	fds     []int
	serial  uint32
}

func (c *connection) serve() {
	defer func() {
		for _, data := range c.pools {
			_ = unix.Munmap(data)
		}
		for _, fd := range c.fds {
			_ = unix.Close(fd)
		}
		_ = c.conn.Close()
	}()

	var pending []byte
	buf := make([]byte, 4096)
	oob := make([]byte, unix.CmsgSpace(28*4))
	for {
		n, oobn, _, _, err := c.conn.ReadMsgUnix(buf, oob)
		if oobn > 0 {
			c.collectFds(oob[:oobn])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.server.t.Logf("wltest: read failed: %v", err)
			}
			return
		}
		pending = append(pending, buf[:n]...)

		for len(pending) >= 8 {
			sender := nativeUint32(pending[0:4])
			word := nativeUint32(pending[4:8])
			size := int(word >> 16)
			if size < 8 || len(pending) < size {
				break
			}
			if err := c.handle(sender, uint16(word&0xffff), pending[8:size]); err != nil {
				c.server.t.Logf("wltest: %v", err)
				return
			}
			pending = pending[size:]
		}
	}
}

func (c *connection) collectFds(oob []byte) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return
	}
	for _, m := range msgs {
		fds, err := unix.ParseUnixRights(&m)
		if err != nil {
			continue
		}
		c.fds = append(c.fds, fds...)
	}
}

func (c *connection) popFd() (int, error) {
	if len(c.fds) == 0 {
		return -1, fmt.Errorf("request expected a file descriptor")
	}
	fd := c.fds[0]
	c.fds = c.fds[1:]
	return fd, nil
}

func (c *connection) send(m *message) error {
	_, err := c.conn.Write(m.bytes())
	return err
}

func (c *connection) handle(sender uint32, opcode uint16, body []byte) error {
	obj, ok := c.objects[sender]
	if !ok {
		return fmt.Errorf("request to unknown object %d", sender)
	}
	req, err := decodeRequest(obj.iface, opcode, body)
	if err != nil {
		return err
	}
	req.Conn = c.id
	req.Object = sender

	s := c.server
	s.mu.Lock()
	s.requests = append(s.requests, req)
	rule := s.errorRule
	s.mu.Unlock()

	if rule != nil && req.Is(rule.Interface, rule.Name) {
		msg := newMessage(1, 0).putUint(sender).putUint(rule.Code).putString(rule.Message)
		return c.send(msg)
	}

	a := req.Args
	switch obj.iface + "." + req.Name {
	case "wl_display.sync":
		c.serial++
		if err := c.send(newMessage(a[0], 0).putUint(c.serial)); err != nil {
			return err
		}
		return c.send(newMessage(1, 1).putUint(a[0]))

	case "wl_display.get_registry":
		c.objects[a[0]] = object{iface: "wl_registry", version: 1}
		for i, g := range s.globals {
			msg := newMessage(a[0], 0).putUint(uint32(i + 1)).putString(g.Interface).putUint(g.Version)
			if err := c.send(msg); err != nil {
				return err
			}
		}

	case "wl_registry.bind":
		name, version, id := a[0], a[1], a[2]
		iface := req.Strings[0]
		if name == 0 || int(name) > len(s.globals) || s.globals[name-1].Interface != iface {
			return fmt.Errorf("bind of unknown global %d (%s)", name, iface)
		}
		c.objects[id] = object{iface: iface, version: version}
		return c.bound(id, iface, version, int(name-1))

	case "wl_shm.create_pool":
		fd, err := c.popFd()
		if err != nil {
			return err
		}
		defer unix.Close(fd)
		size := int(int32(a[1]))
		data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return fmt.Errorf("failed to map pool: %w", err)
		}
		c.objects[a[0]] = object{iface: "wl_shm_pool", version: obj.version}
		c.pools[a[0]] = data

	case "wl_shm_pool.create_buffer":
		offset, height, stride := int(int32(a[1])), int(int32(a[3])), int(int32(a[4]))
		c.objects[a[0]] = object{iface: "wl_buffer", version: 1}
		c.buffers[a[0]] = buffer{pool: sender, offset: offset, size: height * stride}

	case "zwlr_screencopy_manager_v1.capture_output":
		s.mu.Lock()
		frame := s.frames(s.captures)
		s.captures++
		s.mu.Unlock()
		c.objects[a[0]] = object{iface: "zwlr_screencopy_frame_v1", version: obj.version}
		c.frames[a[0]] = frame
		msg := newMessage(a[0], 0).putUint(frame.Format).putUint(frame.Width).putUint(frame.Height).putUint(frame.Stride)
		if err := c.send(msg); err != nil {
			return err
		}
		if obj.version >= 3 {
			return c.send(newMessage(a[0], 6))
		}

	case "zwlr_screencopy_frame_v1.copy", "zwlr_screencopy_frame_v1.copy_with_damage":
		frame := c.frames[sender]
		if frame.Fail {
			return c.send(newMessage(sender, 3))
		}
		b, ok := c.buffers[a[0]]
		if !ok {
			return fmt.Errorf("copy into unknown buffer %d", a[0])
		}
		// pools may be destroyed once buffers exist; the mapping stays valid
		copy(c.pools[b.pool][b.offset:b.offset+b.size], frame.Data)
		if obj.version >= 2 {
			if err := c.send(newMessage(sender, 1).putUint(0)); err != nil {
				return err
			}
		}
		return c.send(newMessage(sender, 2).putUint(0).putUint(1).putUint(0))

	case "zxdg_output_manager_v1.get_xdg_output":
		c.objects[a[0]] = object{iface: "zxdg_output_v1", version: obj.version}
		index, ok := c.outputs[a[1]]
		if !ok {
			return fmt.Errorf("get_xdg_output for unknown output %d", a[1])
		}
		s.mu.Lock()
		size := s.outputSizes[index]
		s.mu.Unlock()
		if err := c.send(newMessage(a[0], 0).putInt(0).putInt(0)); err != nil {
			return err
		}
		if err := c.send(newMessage(a[0], 1).putInt(size[0]).putInt(size[1])); err != nil {
			return err
		}
		if obj.version < 3 {
			return c.send(newMessage(a[0], 2))
		}

	case "zwlr_virtual_pointer_manager_v1.create_virtual_pointer":
		c.objects[a[1]] = object{iface: "zwlr_virtual_pointer_v1", version: obj.version}

	case "zwlr_virtual_pointer_manager_v1.create_virtual_pointer_with_output":
		c.objects[a[2]] = object{iface: "zwlr_virtual_pointer_v1", version: obj.version}

	case "zwp_virtual_keyboard_manager_v1.create_virtual_keyboard":
		c.objects[a[1]] = object{iface: "zwp_virtual_keyboard_v1", version: obj.version}

	case "zwp_virtual_keyboard_v1.keymap":
		fd, err := c.popFd()
		if err != nil {
			return err
		}
		defer unix.Close(fd)
		data := make([]byte, a[1])
		if _, err := unix.Pread(fd, data, 0); err != nil {
			return fmt.Errorf("failed to read keymap: %w", err)
		}
		s.mu.Lock()
		s.keymaps = append(s.keymaps, string(data))
		s.mu.Unlock()
	}

	if isDestructor(req) {
		delete(c.objects, sender)
		delete(c.buffers, sender)
	}
	return nil
}

// bound sends the events a compositor emits right after a bind.
func (c *connection) bound(id uint32, iface string, version uint32, global int) error {
	switch iface {
	case "wl_shm":
		for _, format := range []uint32{0, 1} {
			if err := c.send(newMessage(id, 0).putUint(format)); err != nil {
				return err
			}
		}
	case "wl_output":
		index := 0
		for _, g := range c.server.globals[:global] {
			if g.Interface == "wl_output" {
				index++
			}
		}
		c.outputs[id] = index
		c.server.mu.Lock()
		size := c.server.outputSizes[index]
		c.server.mu.Unlock()
		// mode: current, physical size taken from the logical one
		if err := c.send(newMessage(id, 1).putUint(1).putInt(size[0]).putInt(size[1]).putInt(60000)); err != nil {
			return err
		}
		if version >= 4 {
			if err := c.send(newMessage(id, 4).putString(fmt.Sprintf("WL-%d", index+1))); err != nil {
				return err
			}
		}
		if version >= 2 {
			return c.send(newMessage(id, 2))
		}
	}
	return nil
}

func isDestructor(r Request) bool {
	return r.Name == "destroy" || r.Name == "release"
}

// SolidFrame returns an ARGB8888 frame filled with one BGRA pixel value.
func SolidFrame(width, height uint32, bgra [4]byte) Frame {
	stride := width * 4
	data := make([]byte, stride*height)
	for i := 0; i < len(data); i += 4 {
		copy(data[i:i+4], bgra[:])
	}
	return Frame{Format: 0, Width: width, Height: height, Stride: stride, Data: data}
}
