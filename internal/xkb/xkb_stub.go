//go:build !cgo
// +build !cgo

package xkb

import "errors"

// ErrUnsupported is returned by every constructor in builds without cgo.
var ErrUnsupported = errors.New("xkb keymaps need libxkbcommon (build with CGO enabled)")

// Keymap stub for when CGO is disabled
type Keymap struct{}

func Compile(names RuleNames) (*Keymap, error) {
	return nil, ErrUnsupported
}

func CompileString(text string) (*Keymap, error) {
	return nil, ErrUnsupported
}

func (k *Keymap) Close() {}

func (k *Keymap) Keycodes() (min, max uint32) { return 0, 0 }

func (k *Keymap) NumLayouts() uint32 { return 0 }

func (k *Keymap) NumLevels(keycode uint32) uint32 { return 0 }

func (k *Keymap) Syms(keycode, level uint32) []uint32 { return nil }

func (k *Keymap) ModMasks(keycode, level uint32) []uint32 { return nil }

func (k *Keymap) KeysymUTF8(sym uint32) string { return "" }

func (k *Keymap) KeysymName(sym uint32) string { return "" }

func (k *Keymap) Text() (string, error) { return "", ErrUnsupported }
