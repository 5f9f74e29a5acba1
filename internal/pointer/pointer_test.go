package pointer

import (
	"context"
	"testing"

	"github.com/bnema/waydriver/internal/wayland"
	"github.com/bnema/waydriver/internal/wltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pointerGlobals(managerVersion uint32) []wltest.Global {
	return []wltest.Global{
		{Interface: "wl_output", Version: 4},
		{Interface: "zxdg_output_manager_v1", Version: 3},
		{Interface: "zwlr_virtual_pointer_manager_v1", Version: managerVersion},
	}
}

func newServer(t *testing.T, width, height int32) *wltest.Server {
	t.Helper()
	srv := wltest.New(t, pointerGlobals(2)...)
	srv.SetOutputSize(0, width, height)
	return srv
}

func connectClient(t *testing.T, srv *wltest.Server) *Client {
	t.Helper()
	c := New(srv.Path())
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	// the pointer is created after the last round-trip of Connect
	require.NoError(t, c.Roundtrip(context.Background()))
	return c
}

// requestsAfter returns the requests received after the first n.
func requestsAfter(srv *wltest.Server, n int) []string {
	var names []string
	for _, r := range srv.Requests()[n:] {
		names = append(names, r.Interface+"."+r.Name)
	}
	return names
}

func lastRequest(t *testing.T, srv *wltest.Server, iface, name string) wltest.Request {
	t.Helper()
	var found *wltest.Request
	for _, r := range srv.Requests() {
		if r.Is(iface, name) {
			r := r
			found = &r
		}
	}
	require.NotNil(t, found, "no %s.%s request", iface, name)
	return *found
}

func TestConnectCreatesPointerForFirstOutput(t *testing.T) {
	srv := newServer(t, 1920, 1080)
	c := connectClient(t, srv)

	width, height := c.Size()
	assert.Equal(t, 1920, width)
	assert.Equal(t, 1080, height)

	create := lastRequest(t, srv, "zwlr_virtual_pointer_manager_v1", "create_virtual_pointer_with_output")
	assert.Equal(t, uint32(0), create.Args[0], "no seat")
	for _, r := range srv.Requests() {
		if r.Is("wl_registry", "bind") && r.Strings[0] == "wl_output" {
			assert.Equal(t, r.Args[2], create.Args[1], "mapped to the bound output")
		}
	}

	info, ok := c.Output()
	require.True(t, ok)
	assert.Equal(t, "WL-1", info.Name)
}

func TestConnectWithOlderManager(t *testing.T) {
	srv := wltest.New(t, pointerGlobals(1)...)
	srv.SetOutputSize(0, 800, 600)
	connectClient(t, srv)

	assert.Equal(t, 1, srv.Count("zwlr_virtual_pointer_manager_v1", "create_virtual_pointer"))
	assert.Equal(t, 0, srv.Count("zwlr_virtual_pointer_manager_v1", "create_virtual_pointer_with_output"))
}

func TestConnectMissingManagers(t *testing.T) {
	tests := []struct {
		name    string
		globals []wltest.Global
		message string
	}{
		{
			name:    "no pointer manager",
			globals: []wltest.Global{{Interface: "wl_output", Version: 4}, {Interface: "zxdg_output_manager_v1", Version: 3}},
			message: "virtual pointer manager not supported",
		},
		{
			name:    "no xdg output manager",
			globals: []wltest.Global{{Interface: "wl_output", Version: 4}, {Interface: "zwlr_virtual_pointer_manager_v1", Version: 2}},
			message: "xdg output manager not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := wltest.New(t, tt.globals...)
			c := New(srv.Path())

			err := c.Connect(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, wayland.ErrPrecondition)
			assert.Contains(t, err.Error(), tt.message)
			assert.False(t, c.Live())
		})
	}
}

func TestConnectSelectsNamedOutput(t *testing.T) {
	srv := wltest.New(t,
		wltest.Global{Interface: "wl_output", Version: 4},
		wltest.Global{Interface: "wl_output", Version: 4},
		wltest.Global{Interface: "zxdg_output_manager_v1", Version: 3},
		wltest.Global{Interface: "zwlr_virtual_pointer_manager_v1", Version: 2},
	)
	srv.SetOutputSize(0, 1920, 1080)
	srv.SetOutputSize(1, 2560, 1440)

	c := New(srv.Path())
	c.OutputName = "WL-2"
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	width, height := c.Size()
	assert.Equal(t, 2560, width)
	assert.Equal(t, 1440, height)
	assert.Len(t, c.Outputs(), 2)
	assert.Equal(t, 2, srv.Count("zxdg_output_manager_v1", "get_xdg_output"))
}

func TestConnectUnknownOutput(t *testing.T) {
	srv := newServer(t, 1920, 1080)
	c := New(srv.Path())
	c.OutputName = "HDMI-A-9"

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `output "HDMI-A-9" not found`)
	assert.Contains(t, err.Error(), "WL-1")
}

func TestMoveToAbsolute(t *testing.T) {
	srv := newServer(t, 1920, 1080)
	c := connectClient(t, srv)

	before := len(srv.Requests())
	require.NoError(t, c.MoveToAbsolute(context.Background(), 1920, 1080))

	assert.Equal(t, []string{
		"zwlr_virtual_pointer_v1.motion_absolute",
		"zwlr_virtual_pointer_v1.frame",
		"wl_display.sync",
	}, requestsAfter(srv, before))

	motion := lastRequest(t, srv, "zwlr_virtual_pointer_v1", "motion_absolute")
	assert.Equal(t, []uint32{1920, 1080, 1920, 1080}, motion.Args[1:])
}

func TestMoveToAbsoluteOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		x, y int
	}{
		{"x beyond width", 1921, 0},
		{"negative x", -1, 0},
		{"y beyond height", 0, 1081},
		{"negative y", 10, -5},
	}

	srv := newServer(t, 1920, 1080)
	c := connectClient(t, srv)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(srv.Requests())
			err := c.MoveToAbsolute(context.Background(), tt.x, tt.y)
			require.Error(t, err)
			assert.ErrorIs(t, err, wayland.ErrPrecondition)
			assert.Contains(t, err.Error(), "not in range")
			assert.Empty(t, requestsAfter(srv, before), "no request before validation")
		})
	}
}

func TestMoveToAbsoluteWithoutOutputSize(t *testing.T) {
	srv := wltest.New(t, pointerGlobals(2)...)
	c := connectClient(t, srv)

	before := len(srv.Requests())
	err := c.MoveToAbsolute(context.Background(), 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be greater than 0")
	assert.Empty(t, requestsAfter(srv, before))
}

func TestMoveToProportional(t *testing.T) {
	srv := newServer(t, 1921, 1081)
	c := connectClient(t, srv)

	require.NoError(t, c.MoveToProportional(context.Background(), 0.5, 0.25))

	motion := lastRequest(t, srv, "zwlr_virtual_pointer_v1", "motion_absolute")
	assert.Equal(t, []uint32{960, 270, 1921, 1081}, motion.Args[1:])
}

func TestMoveToProportionalOutOfRange(t *testing.T) {
	srv := newServer(t, 1920, 1080)
	c := connectClient(t, srv)

	before := len(srv.Requests())
	err := c.MoveToProportional(context.Background(), 1.01, 0.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in range 0..1")

	err = c.MoveToProportional(context.Background(), 0.5, -0.1)
	require.Error(t, err)
	assert.Empty(t, requestsAfter(srv, before))
}

func TestButton(t *testing.T) {
	srv := newServer(t, 1920, 1080)
	c := connectClient(t, srv)

	before := len(srv.Requests())
	require.NoError(t, c.Button(context.Background(), BtnLeft, true))
	require.NoError(t, c.Button(context.Background(), BtnLeft, false))

	assert.Equal(t, []string{
		"zwlr_virtual_pointer_v1.button",
		"zwlr_virtual_pointer_v1.frame",
		"wl_display.sync",
		"zwlr_virtual_pointer_v1.button",
		"zwlr_virtual_pointer_v1.frame",
		"wl_display.sync",
	}, requestsAfter(srv, before))

	var states []uint32
	for _, r := range srv.Requests()[before:] {
		if r.Is("zwlr_virtual_pointer_v1", "button") {
			assert.Equal(t, BtnLeft, r.Args[1])
			states = append(states, r.Args[2])
		}
	}
	assert.Equal(t, []uint32{1, 0}, states)
}

func TestScroll(t *testing.T) {
	srv := newServer(t, 1920, 1080)
	c := connectClient(t, srv)

	require.NoError(t, c.Scroll(context.Background(), AxisVertical, 10))

	axis := lastRequest(t, srv, "zwlr_virtual_pointer_v1", "axis")
	assert.Equal(t, AxisVertical, axis.Args[1])
	assert.Equal(t, uint32(10*256), axis.Args[2])

	assert.ErrorIs(t, c.Scroll(context.Background(), 7, 1), wayland.ErrPrecondition)
}

func TestCallsAfterDisconnect(t *testing.T) {
	srv := newServer(t, 1920, 1080)
	c := New(srv.Path())
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.MoveToAbsolute(context.Background(), 1, 1), wayland.ErrNotConnected)
	assert.ErrorIs(t, c.Button(context.Background(), BtnRight, true), wayland.ErrNotConnected)
	width, height := c.Size()
	assert.Zero(t, width)
	assert.Zero(t, height)
}

func TestListOutputs(t *testing.T) {
	srv := wltest.New(t,
		wltest.Global{Interface: "wl_output", Version: 4},
		wltest.Global{Interface: "wl_output", Version: 4},
		wltest.Global{Interface: "zxdg_output_manager_v1", Version: 3},
	)
	srv.SetOutputSize(0, 1920, 1080)
	srv.SetOutputSize(1, 1280, 720)

	outputs, err := ListOutputs(context.Background(), srv.Path())
	require.NoError(t, err)
	require.Len(t, outputs, 2)

	assert.Equal(t, "WL-1", outputs[0].Name)
	assert.Equal(t, int32(1920), outputs[0].LogicalWidth)
	assert.Equal(t, "WL-2", outputs[1].Name)
	assert.Equal(t, int32(720), outputs[1].LogicalHeight)
	assert.Equal(t, int32(1280), outputs[1].Width)
}
