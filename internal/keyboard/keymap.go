package keyboard

import (
	"errors"
	"fmt"

	"github.com/bnema/waydriver/internal/logger"
)

// ErrNotFound is matched by every LookupError.
var ErrNotFound = errors.New("not found in keymap")

// LookupError reports a character or key name missing from the keymap.
type LookupError struct {
	Kind  string // "Character" or "Key"
	Value string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s not found in keymap: %s", e.Kind, e.Value)
}

func (e *LookupError) Is(target error) bool {
	return target == ErrNotFound
}

// Layout is a compiled keyboard layout. Keycodes are XKB keycodes (evdev
// codes plus 8) and only the first layout group is queried.
type Layout interface {
	// Keycodes returns the inclusive keycode range.
	Keycodes() (min, max uint32)
	NumLayouts() uint32
	NumLevels(keycode uint32) uint32
	Syms(keycode, level uint32) []uint32
	// ModMasks returns the modifier masks selecting level, possibly none.
	ModMasks(keycode, level uint32) []uint32
	KeysymUTF8(sym uint32) string
	KeysymName(sym uint32) string
	// Text serializes the layout in XKB text format, as uploaded to the
	// compositor.
	Text() (string, error)
}

// Compiler builds the layout the virtual keyboard announces.
type Compiler func() (Layout, error)

// Key is the keycode and shift level producing a symbol.
type Key struct {
	Keycode uint32
	Level   uint32
	// Mods holds the first modifier mask selecting Level, when the layout
	// reports one.
	Mods    uint32
	HasMods bool
}

// Keymap maps characters and keysym names back to keys.
type Keymap struct {
	Layout  Layout
	Strings map[string]Key
	Names   map[string]Key
}

// NewKeymap walks every key of layout. Only keycode/level pairs that produce
// exactly one keysym are recorded and the first occurrence wins.
func NewKeymap(layout Layout) *Keymap {
	km := &Keymap{
		Layout:  layout,
		Strings: map[string]Key{},
		Names:   map[string]Key{},
	}

	if layout.NumLayouts() > 1 {
		logger.Warn("Multiple keyboard layouts found, only using the first one.")
	}

	minKeycode, maxKeycode := layout.Keycodes()
	for kc := uint64(minKeycode); kc <= uint64(maxKeycode); kc++ {
		keycode := uint32(kc)
		for level := uint32(0); level < layout.NumLevels(keycode); level++ {
			syms := layout.Syms(keycode, level)
			if len(syms) != 1 {
				continue
			}
			key := Key{Keycode: keycode, Level: level}
			if masks := layout.ModMasks(keycode, level); len(masks) > 0 {
				key.Mods = masks[0]
				key.HasMods = true
			}

			if s := layout.KeysymUTF8(syms[0]); s != "" {
				if _, ok := km.Strings[s]; !ok {
					km.Strings[s] = key
				}
			}
			if n := layout.KeysymName(syms[0]); n != "" {
				if _, ok := km.Names[n]; !ok {
					km.Names[n] = key
				}
			}
		}
	}

	logger.Debugf("Keymap has %d characters and %d key names", len(km.Strings), len(km.Names))
	return km
}

// Char looks up the key typing ch.
func (km *Keymap) Char(ch string) (Key, error) {
	key, ok := km.Strings[ch]
	if !ok {
		return Key{}, &LookupError{Kind: "Character", Value: ch}
	}
	return key, nil
}

// Name looks up a key by keysym name, such as "Return" or "Control_L".
func (km *Keymap) Name(name string) (Key, error) {
	key, ok := km.Names[name]
	if !ok {
		return Key{}, &LookupError{Kind: "Key", Value: name}
	}
	return key, nil
}
