// Package hid exposes the virtual pointer and keyboard as named keyword
// operations: buttons by name, proportional and absolute moves with a tracked
// pointer position, walking moves, key combos and typing.
package hid

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/bnema/waydriver/internal/logger"
	"github.com/bnema/waydriver/internal/pointer"
	"github.com/bnema/waydriver/internal/wayland"
)

// Pointer is the virtual pointer the keywords drive.
type Pointer interface {
	Connect(ctx context.Context) error
	Close() error
	Size() (width, height int)
	MoveToAbsolute(ctx context.Context, x, y int) error
	MoveToProportional(ctx context.Context, x, y float64) error
	Button(ctx context.Context, button uint32, pressed bool) error
}

// Keyboard is the virtual keyboard the keywords drive.
type Keyboard interface {
	Connect(ctx context.Context) error
	Close() error
	Type(ctx context.Context, s string) error
	KeyCombo(ctx context.Context, names []string) error
}

// Position is a pointer position as fractions of the output size.
type Position struct {
	X float64
	Y float64
}

// Buttons by keyword name
var Buttons = map[string]uint32{
	"LEFT":   pointer.BtnLeft,
	"MIDDLE": pointer.BtnMiddle,
	"RIGHT":  pointer.BtnRight,
}

// buttonOrder is the release order of ReleasePointerButtons.
var buttonOrder = []string{"LEFT", "MIDDLE", "RIGHT"}

// HID drives one pointer and one keyboard. Each is connected on first use
// and reconnected after a transport failure.
type HID struct {
	pointer  Pointer
	keyboard Keyboard
	position Position
}

// New creates the keyword layer. keyboard may be nil on compositors without
// the virtual keyboard extension.
func New(p Pointer, k Keyboard) *HID {
	return &HID{pointer: p, keyboard: k}
}

// Connect connects the pointer and the keyboard.
func (h *HID) Connect(ctx context.Context) error {
	if err := h.pointer.Connect(ctx); err != nil {
		return err
	}
	if h.keyboard == nil {
		return nil
	}
	return h.keyboard.Connect(ctx)
}

// Close disconnects both devices.
func (h *HID) Close() error {
	err := h.pointer.Close()
	if h.keyboard != nil {
		err = errors.Join(err, h.keyboard.Close())
	}
	return err
}

// Position returns the last position the pointer was moved to.
func (h *HID) Position() Position {
	return h.position
}

func (h *HID) ensurePointer(ctx context.Context) error {
	return h.pointer.Connect(ctx)
}

func (h *HID) ensureKeyboard(ctx context.Context) error {
	if h.keyboard == nil {
		return wayland.Preconditionf("virtual-keyboard extension unavailable")
	}
	return h.keyboard.Connect(ctx)
}

// ParseButton resolves LEFT, MIDDLE or RIGHT, in any case.
func ParseButton(name string) (uint32, error) {
	button, ok := Buttons[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return 0, wayland.Preconditionf("Invalid pointer button: %q", name)
	}
	return button, nil
}

// PressPointerButton presses the named button.
func (h *HID) PressPointerButton(ctx context.Context, name string) error {
	return h.button(ctx, name, true)
}

// ReleasePointerButton releases the named button.
func (h *HID) ReleasePointerButton(ctx context.Context, name string) error {
	return h.button(ctx, name, false)
}

// ClickPointerButton presses and releases the named button.
func (h *HID) ClickPointerButton(ctx context.Context, name string) error {
	if err := h.button(ctx, name, true); err != nil {
		return err
	}
	return h.button(ctx, name, false)
}

// ReleasePointerButtons releases every button, pressed or not.
func (h *HID) ReleasePointerButtons(ctx context.Context) error {
	for _, name := range buttonOrder {
		if err := h.button(ctx, name, false); err != nil {
			return err
		}
	}
	return nil
}

func (h *HID) button(ctx context.Context, name string, pressed bool) error {
	button, err := ParseButton(name)
	if err != nil {
		return err
	}
	if err := h.ensurePointer(ctx); err != nil {
		return err
	}
	return h.pointer.Button(ctx, button, pressed)
}

// DisplaySize returns the logical size of the pointer's output.
func (h *HID) DisplaySize(ctx context.Context) (width, height int, err error) {
	if err := h.ensurePointer(ctx); err != nil {
		return 0, 0, err
	}
	width, height = h.pointer.Size()
	return width, height, nil
}

func checkProportional(x, y float64) error {
	if !(x >= 0 && x <= 1) {
		return wayland.Preconditionf("x not in range 0..1: %v", x)
	}
	if !(y >= 0 && y <= 1) {
		return wayland.Preconditionf("y not in range 0..1: %v", y)
	}
	return nil
}

// MovePointerToProportional moves the pointer to (x, y), both in 0..1.
func (h *HID) MovePointerToProportional(ctx context.Context, x, y float64) error {
	if err := checkProportional(x, y); err != nil {
		return err
	}
	if err := h.ensurePointer(ctx); err != nil {
		return err
	}
	if err := h.pointer.MoveToProportional(ctx, x, y); err != nil {
		return err
	}
	h.position = Position{X: x, Y: y}
	return nil
}

// toProportional validates absolute coordinates against the display size.
func (h *HID) toProportional(ctx context.Context, x, y int) (Position, error) {
	width, height, err := h.DisplaySize(ctx)
	if err != nil {
		return Position{}, err
	}
	if width <= 0 || height <= 0 {
		return Position{}, wayland.Preconditionf("display size must be greater than 0, got %dx%d", width, height)
	}
	if x < 0 || x > width {
		return Position{}, wayland.Preconditionf("X coordinate outside of screen: %d not in 0..%d", x, width)
	}
	if y < 0 || y > height {
		return Position{}, wayland.Preconditionf("Y coordinate outside of screen: %d not in 0..%d", y, height)
	}
	return Position{X: float64(x) / float64(width), Y: float64(y) / float64(height)}, nil
}

// MovePointerToAbsolute moves the pointer to (x, y) in output coordinates.
func (h *HID) MovePointerToAbsolute(ctx context.Context, x, y int) error {
	pos, err := h.toProportional(ctx, x, y)
	if err != nil {
		return err
	}
	if err := h.pointer.MoveToAbsolute(ctx, x, y); err != nil {
		return err
	}
	h.position = pos
	return nil
}

// WalkPointerToProportional moves the pointer from its tracked position to
// (x, y), at most step output pixels per axis at a time, waiting delay
// between steps.
func (h *HID) WalkPointerToProportional(ctx context.Context, x, y, step float64, delay time.Duration) error {
	if err := checkProportional(x, y); err != nil {
		return err
	}
	if !(step > 0) {
		return wayland.Preconditionf("step distance must be greater than 0: %v", step)
	}
	width, height, err := h.DisplaySize(ctx)
	if err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return wayland.Preconditionf("display size must be greater than 0, got %dx%d", width, height)
	}

	target := Position{X: x, Y: y}
	stepX, stepY := step/float64(width), step/float64(height)
	steps := 0
	for h.position != target {
		next := Position{
			X: approach(h.position.X, target.X, stepX),
			Y: approach(h.position.Y, target.Y, stepY),
		}
		if err := h.MovePointerToProportional(ctx, next.X, next.Y); err != nil {
			return err
		}
		steps++
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	logger.Debugf("Walked pointer to (%.4f, %.4f) in %d steps", x, y, steps)
	return nil
}

// WalkPointerToAbsolute walks the pointer to (x, y) in output coordinates.
func (h *HID) WalkPointerToAbsolute(ctx context.Context, x, y int, step float64, delay time.Duration) error {
	pos, err := h.toProportional(ctx, x, y)
	if err != nil {
		return err
	}
	return h.WalkPointerToProportional(ctx, pos.X, pos.Y, step, delay)
}

// approach moves from towards to by at most step, landing exactly on to.
func approach(from, to, step float64) float64 {
	dist := to - from
	if math.Abs(dist) <= step {
		return to
	}
	return from + math.Copysign(step, dist)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// KeysCombo presses the named keys in order and releases them in reverse.
func (h *HID) KeysCombo(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return wayland.Preconditionf("no keys given")
	}
	if err := h.ensureKeyboard(ctx); err != nil {
		return err
	}
	return h.keyboard.KeyCombo(ctx, names)
}

// TypeString types s.
func (h *HID) TypeString(ctx context.Context, s string) error {
	if err := h.ensureKeyboard(ctx); err != nil {
		return err
	}
	return h.keyboard.Type(ctx, s)
}
