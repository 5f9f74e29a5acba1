// Package keyboard types text and key combinations through the
// zwp_virtual_keyboard_manager_v1 extension.
package keyboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/waydriver/internal/logger"
	"github.com/bnema/waydriver/internal/protocols"
	"github.com/bnema/waydriver/internal/wayland"
	"github.com/rajveermalviya/go-wayland/wayland/client"
	"golang.org/x/sys/unix"
)

// Locally supported versions
const (
	managerVersion = 1
	seatVersion    = 7
)

// evdevOffset separates XKB keycodes from the evdev codes sent on the wire.
const evdevOffset = 8

// Client is a virtual keyboard bound to the first seat.
type Client struct {
	*wayland.Client

	compile Compiler
	keymap  *Keymap

	manager  *protocols.VirtualKeyboardManager
	seats    []*client.Seat
	keyboard *protocols.VirtualKeyboard
}

// New creates a virtual keyboard client. compile is called once, on the
// first successful connection, and the result is kept for reconnects.
func New(displayName string, compile Compiler) *Client {
	c := &Client{compile: compile}
	c.Client = wayland.New(displayName, c)
	return c
}

// BindGlobal binds the keyboard manager and every seat.
func (c *Client) BindGlobal(g wayland.Global) error {
	switch g.Interface {
	case protocols.VirtualKeyboardManagerInterface:
		c.manager = protocols.NewVirtualKeyboardManager(c.Context())
		version, err := c.Bind(g, c.manager, managerVersion)
		c.manager.Version = version
		return err
	case "wl_seat":
		seat := client.NewSeat(c.Context())
		if _, err := c.Bind(g, seat, seatVersion); err != nil {
			return err
		}
		c.seats = append(c.seats, seat)
	}
	return nil
}

// Connected creates the virtual keyboard and uploads the keymap.
func (c *Client) Connected(ctx context.Context) error {
	if c.manager == nil {
		return wayland.Preconditionf("virtual-keyboard extension unavailable")
	}
	if err := c.Roundtrip(ctx); err != nil {
		return err
	}
	if len(c.seats) == 0 {
		return wayland.Preconditionf("no wl_seat advertised")
	}

	keymap, err := c.Keymap()
	if err != nil {
		return err
	}
	text, err := keymap.Layout.Text()
	if err != nil {
		return fmt.Errorf("failed to serialize keymap: %w", err)
	}

	keyboard, err := c.manager.CreateVirtualKeyboard(c.seats[0])
	if err != nil {
		return c.Request(fmt.Errorf("failed to create virtual keyboard: %w", err))
	}
	c.keyboard = keyboard

	data := append([]byte(text), 0)
	fd, err := wayland.WriteMemfd(data)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	if err := c.Request(keyboard.Keymap(protocols.KeymapFormatXkbV1, fd, uint32(len(data)))); err != nil {
		return err
	}
	// the compositor has mapped the fd once the round-trip returns
	return c.Roundtrip(ctx)
}

// Disconnected forgets the proxies of the closed connection. The keymap is
// kept.
func (c *Client) Disconnected() {
	c.manager = nil
	c.seats = nil
	c.keyboard = nil
}

// Keymap compiles the layout on first use.
func (c *Client) Keymap() (*Keymap, error) {
	if c.keymap != nil {
		return c.keymap, nil
	}
	if c.compile == nil {
		return nil, wayland.Preconditionf("no keyboard layout compiler configured")
	}
	layout, err := c.compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile keyboard layout: %w", err)
	}
	c.keymap = NewKeymap(layout)
	return c.keymap, nil
}

// Type types s one character at a time. Each character is pressed and
// released with only the modifiers of its level active, followed by a
// round-trip.
func (c *Client) Type(ctx context.Context, s string) error {
	if err := c.Check(); err != nil {
		return err
	}
	keymap, err := c.Keymap()
	if err != nil {
		return err
	}

	for _, r := range s {
		key, err := keymap.Char(string(r))
		if err == nil {
			err = c.typeKey(key)
		}
		if err == nil {
			err = c.Roundtrip(ctx)
		} else if rerr := c.Roundtrip(ctx); rerr != nil {
			logger.Debugf("Round-trip after failed key: %v", rerr)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) typeKey(key Key) (err error) {
	defer func() {
		err = errors.Join(err, c.Request(c.keyboard.Modifiers(0, 0, 0, 0)))
	}()

	if key.HasMods {
		if err := c.Request(c.keyboard.Modifiers(key.Mods, 0, 0, 0)); err != nil {
			return err
		}
	}

	code := key.Keycode - evdevOffset
	down := c.Request(c.keyboard.Key(wayland.Timestamp(), code, protocols.KeyStatePressed))
	up := c.Request(c.keyboard.Key(wayland.Timestamp(), code, protocols.KeyStateReleased))
	return errors.Join(down, up)
}

// KeyCombo presses the keys named by keysym in order, then releases them in
// reverse order. Levels are ignored: "X" and "x" press the same key. Keys
// pressed before a failure are still released.
func (c *Client) KeyCombo(ctx context.Context, names []string) (err error) {
	if err := c.Check(); err != nil {
		return err
	}
	keymap, err := c.Keymap()
	if err != nil {
		return err
	}

	var pressed []uint32
	defer func() {
		var release error
		for i := len(pressed) - 1; i >= 0; i-- {
			release = errors.Join(release, c.Request(c.keyboard.Key(wayland.Timestamp(), pressed[i], protocols.KeyStateReleased)))
		}
		if rerr := c.Roundtrip(ctx); rerr != nil {
			release = errors.Join(release, rerr)
		}
		if err == nil {
			err = release
		} else if release != nil {
			logger.Debugf("Releasing combo keys: %v", release)
		}
	}()

	for _, name := range names {
		key, err := keymap.Name(name)
		if err != nil {
			return err
		}
		code := key.Keycode - evdevOffset
		pressed = append(pressed, code)
		if err := c.Request(c.keyboard.Key(wayland.Timestamp(), code, protocols.KeyStatePressed)); err != nil {
			return err
		}
	}
	return c.Roundtrip(ctx)
}
