// Package pointer moves and clicks a virtual pointer through the
// zwlr_virtual_pointer_manager_v1 extension, in the logical coordinates
// reported by xdg-output.
package pointer

import (
	"context"
	"fmt"
	"math"

	"github.com/bnema/waydriver/internal/logger"
	"github.com/bnema/waydriver/internal/protocols"
	"github.com/bnema/waydriver/internal/wayland"
)

// Locally supported versions
const (
	outputVersion         = 4
	pointerManagerVersion = 2
	xdgManagerVersion     = 3
)

// Linux input event codes (linux/input-event-codes.h)
const (
	BtnLeft   uint32 = 0x110
	BtnRight  uint32 = 0x111
	BtnMiddle uint32 = 0x112
)

// Scroll axes
const (
	AxisVertical   uint32 = protocols.AxisVerticalScroll
	AxisHorizontal uint32 = protocols.AxisHorizontalScroll
)

// Client drives one virtual pointer mapped to a single output.
type Client struct {
	*wayland.Client

	// OutputName selects the output the pointer is mapped to. Empty maps it
	// to the first output.
	OutputName string

	outputs    *outputSet
	manager    *protocols.VirtualPointerManager
	pointer    *protocols.VirtualPointer
	target     *output
	lastOutput string
}

// New creates a virtual pointer client for displayName.
func New(displayName string) *Client {
	c := &Client{}
	c.Client = wayland.New(displayName, c)
	c.outputs = newOutputSet(c.Client)
	return c
}

// BindGlobal binds every wl_output and the pointer and xdg-output managers.
func (c *Client) BindGlobal(g wayland.Global) error {
	if g.Interface == protocols.VirtualPointerManagerInterface {
		c.manager = protocols.NewVirtualPointerManager(c.Context())
		version, err := c.Bind(g, c.manager, pointerManagerVersion)
		c.manager.Version = version
		return err
	}
	return c.outputs.bindGlobal(g)
}

// Connected resolves output sizes and creates the virtual pointer.
func (c *Client) Connected(ctx context.Context) error {
	if c.manager == nil {
		return wayland.Preconditionf("virtual pointer manager not supported")
	}
	if err := c.outputs.resolve(ctx); err != nil {
		return err
	}

	target, err := c.outputs.find(c.OutputName)
	if err != nil {
		return err
	}
	c.target = target

	if c.manager.Version >= 2 {
		c.pointer, err = c.manager.CreateVirtualPointerWithOutput(nil, target.proxy)
	} else {
		c.pointer, err = c.manager.CreateVirtualPointer(nil)
	}
	if err != nil {
		return c.Request(fmt.Errorf("failed to create virtual pointer: %w", err))
	}

	if c.lastOutput != target.info.Label() {
		logger.Debugf("Virtual pointer mapped to %s (%dx%d)", target.info.Label(), target.info.LogicalWidth, target.info.LogicalHeight)
		c.lastOutput = target.info.Label()
	}
	return nil
}

// Disconnected forgets every proxy of the closed connection.
func (c *Client) Disconnected() {
	c.outputs.reset()
	c.manager = nil
	c.pointer = nil
	c.target = nil
}

// Size returns the logical size of the output the pointer is mapped to.
func (c *Client) Size() (width, height int) {
	if c.target == nil {
		return 0, 0
	}
	return int(c.target.info.LogicalWidth), int(c.target.info.LogicalHeight)
}

// Output describes the output the pointer is mapped to.
func (c *Client) Output() (wayland.OutputInfo, bool) {
	if c.target == nil {
		return wayland.OutputInfo{}, false
	}
	return c.target.info, true
}

// MoveToAbsolute moves the pointer to (x, y) in logical output coordinates.
// Both bounds are inclusive.
func (c *Client) MoveToAbsolute(ctx context.Context, x, y int) error {
	if err := c.Check(); err != nil {
		return err
	}
	width, height := c.Size()
	if width <= 0 || height <= 0 {
		return wayland.Preconditionf("output size must be greater than 0, got %dx%d", width, height)
	}
	if x < 0 || x > width {
		return wayland.Preconditionf("x coordinate %d not in range 0..%d", x, width)
	}
	if y < 0 || y > height {
		return wayland.Preconditionf("y coordinate %d not in range 0..%d", y, height)
	}

	ts := wayland.Timestamp()
	if err := c.Request(c.pointer.MotionAbsolute(ts, uint32(x), uint32(y), uint32(width), uint32(height))); err != nil {
		return err
	}
	if err := c.Request(c.pointer.Frame()); err != nil {
		return err
	}
	return c.Roundtrip(ctx)
}

// MoveToProportional moves the pointer to a position given as fractions of
// the output size.
func (c *Client) MoveToProportional(ctx context.Context, x, y float64) error {
	if err := c.Check(); err != nil {
		return err
	}
	if x < 0 || x > 1 || math.IsNaN(x) {
		return wayland.Preconditionf("x %v not in range 0..1", x)
	}
	if y < 0 || y > 1 || math.IsNaN(y) {
		return wayland.Preconditionf("y %v not in range 0..1", y)
	}
	width, height := c.Size()
	return c.MoveToAbsolute(ctx, int(math.Floor(x*float64(width))), int(math.Floor(y*float64(height))))
}

// Button presses or releases a button given as a Linux input event code.
func (c *Client) Button(ctx context.Context, button uint32, pressed bool) error {
	if err := c.Check(); err != nil {
		return err
	}
	state := uint32(protocols.ButtonStateReleased)
	if pressed {
		state = protocols.ButtonStatePressed
	}
	if err := c.Request(c.pointer.Button(wayland.Timestamp(), button, state)); err != nil {
		return err
	}
	if err := c.Request(c.pointer.Frame()); err != nil {
		return err
	}
	return c.Roundtrip(ctx)
}

// Scroll emits one axis event of value surface-local units.
func (c *Client) Scroll(ctx context.Context, axis uint32, value float64) error {
	if err := c.Check(); err != nil {
		return err
	}
	if axis != AxisVertical && axis != AxisHorizontal {
		return wayland.Preconditionf("unknown scroll axis %d", axis)
	}
	if err := c.Request(c.pointer.Axis(wayland.Timestamp(), axis, value)); err != nil {
		return err
	}
	if err := c.Request(c.pointer.Frame()); err != nil {
		return err
	}
	return c.Roundtrip(ctx)
}
