package keyboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/bnema/waydriver/internal/logger"
	"github.com/bnema/waydriver/internal/wayland"
	"github.com/bnema/waydriver/internal/wltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSym struct {
	name string
	text string
}

// fakeLayout is a two-level layout over the number row: level 2 is
// selected by Shift (mask 1).
type fakeLayout struct {
	min, max uint32
	layouts  uint32
	keys     map[uint32][][]uint32
	syms     map[uint32]fakeSym
}

const symEscape = 0xff1b

func newFakeLayout() *fakeLayout {
	l := &fakeLayout{
		min:     8,
		max:     23,
		layouts: 1,
		keys:    map[uint32][][]uint32{},
		syms:    map[uint32]fakeSym{symEscape: {name: "Escape", text: "\x1b"}},
	}
	ascii := func(name string, ch rune) uint32 {
		l.syms[uint32(ch)] = fakeSym{name: name, text: string(ch)}
		return uint32(ch)
	}
	level := func(syms ...uint32) [][]uint32 {
		levels := make([][]uint32, len(syms))
		for i, s := range syms {
			levels[i] = []uint32{s}
		}
		return levels
	}

	l.keys[9] = level(symEscape)
	l.keys[10] = level(ascii("1", '1'), ascii("exclam", '!'))
	l.keys[11] = level(ascii("2", '2'), ascii("at", '@'))
	l.keys[12] = level(ascii("3", '3'), ascii("numbersign", '#'))
	l.keys[13] = level(ascii("4", '4'))
	l.keys[14] = level(ascii("5", '5'), ascii("percent", '%'))
	l.keys[15] = level(ascii("6", '6'), ascii("asciicircum", '^'))
	l.keys[16] = level(ascii("7", '7'), ascii("ampersand", '&'))
	l.keys[17] = level(ascii("8", '8'))
	l.keys[18] = level(ascii("9", '9'), ascii("parenleft", '('))
	l.keys[19] = level(ascii("0", '0'), ascii("parenright", ')'))
	l.keys[20] = level(ascii("minus", '-'))
	l.keys[21] = level(ascii("equal", '='), ascii("plus", '+'))
	l.keys[22] = level(ascii("minus", '-'))
	l.keys[23] = level(ascii("equal", '='), ascii("plus", '+'))
	return l
}

func (l *fakeLayout) Keycodes() (uint32, uint32)     { return l.min, l.max }
func (l *fakeLayout) NumLayouts() uint32             { return l.layouts }
func (l *fakeLayout) NumLevels(keycode uint32) uint32 { return uint32(len(l.keys[keycode])) }
func (l *fakeLayout) KeysymUTF8(sym uint32) string   { return l.syms[sym].text }
func (l *fakeLayout) KeysymName(sym uint32) string   { return l.syms[sym].name }
func (l *fakeLayout) Text() (string, error)          { return "xkb_keymap { fake };", nil }

func (l *fakeLayout) Syms(keycode, level uint32) []uint32 {
	levels := l.keys[keycode]
	if int(level) >= len(levels) {
		return nil
	}
	return levels[level]
}

func (l *fakeLayout) ModMasks(keycode, level uint32) []uint32 {
	if level == 0 {
		return []uint32{0}
	}
	return []uint32{1}
}

func fakeCompiler(compiled *int) Compiler {
	return func() (Layout, error) {
		if compiled != nil {
			*compiled++
		}
		return newFakeLayout(), nil
	}
}

var keyboardGlobals = []wltest.Global{
	{Interface: "wl_seat", Version: 9},
	{Interface: "zwp_virtual_keyboard_manager_v1", Version: 1},
}

func connectClient(t *testing.T, srv *wltest.Server) *Client {
	t.Helper()
	c := New(srv.Path(), fakeCompiler(nil))
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// keyboardRequests formats the virtual keyboard requests and syncs received
// after the first n requests.
func keyboardRequests(srv *wltest.Server, n int) []string {
	var out []string
	for _, r := range srv.Requests()[n:] {
		switch {
		case r.Is("zwp_virtual_keyboard_v1", "key"):
			out = append(out, fmt.Sprintf("key %d %d", r.Args[1], r.Args[2]))
		case r.Is("zwp_virtual_keyboard_v1", "modifiers"):
			out = append(out, fmt.Sprintf("modifiers %d %d %d %d", r.Args[0], r.Args[1], r.Args[2], r.Args[3]))
		case r.Is("wl_display", "sync"):
			out = append(out, "sync")
		}
	}
	return out
}

func keyTable(keys map[string]Key) map[string][2]uint32 {
	out := make(map[string][2]uint32, len(keys))
	for k, v := range keys {
		out[k] = [2]uint32{v.Keycode, v.Level}
	}
	return out
}

func TestNewKeymap(t *testing.T) {
	km := NewKeymap(newFakeLayout())

	assert.Equal(t, map[string][2]uint32{
		"0": {19, 0}, "1": {10, 0}, "2": {11, 0}, "3": {12, 0}, "4": {13, 0},
		"5": {14, 0}, "6": {15, 0}, "7": {16, 0}, "8": {17, 0}, "9": {18, 0},
		"Escape": {9, 0}, "ampersand": {16, 1}, "asciicircum": {15, 1}, "at": {11, 1},
		"equal": {21, 0}, "exclam": {10, 1}, "minus": {20, 0}, "numbersign": {12, 1},
		"parenleft": {18, 1}, "parenright": {19, 1}, "percent": {14, 1}, "plus": {21, 1},
	}, keyTable(km.Names))

	assert.Equal(t, map[string][2]uint32{
		"0": {19, 0}, "1": {10, 0}, "2": {11, 0}, "3": {12, 0}, "4": {13, 0},
		"5": {14, 0}, "6": {15, 0}, "7": {16, 0}, "8": {17, 0}, "9": {18, 0},
		"\x1b": {9, 0}, "&": {16, 1}, "^": {15, 1}, "@": {11, 1}, "=": {21, 0},
		"!": {10, 1}, "-": {20, 0}, "#": {12, 1}, "(": {18, 1}, ")": {19, 1},
		"%": {14, 1}, "+": {21, 1},
	}, keyTable(km.Strings))

	exclam := km.Strings["!"]
	assert.True(t, exclam.HasMods)
	assert.Equal(t, uint32(1), exclam.Mods)
}

func TestNewKeymapIncludesMaxKeycode(t *testing.T) {
	layout := newFakeLayout()
	layout.max = 24
	layout.keys[24] = [][]uint32{{'z'}}
	layout.syms['z'] = fakeSym{name: "z", text: "z"}

	km := NewKeymap(layout)
	assert.Equal(t, uint32(24), km.Names["z"].Keycode)
}

func TestNewKeymapSkipsMultiSymLevels(t *testing.T) {
	layout := newFakeLayout()
	layout.keys[13] = [][]uint32{{'4', '$'}}

	km := NewKeymap(layout)
	assert.NotContains(t, km.Names, "4")
	assert.NotContains(t, km.Strings, "4")
}

func TestNewKeymapWarnsOnMultipleLayouts(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(os.Stderr)

	layout := newFakeLayout()
	layout.layouts = 3
	km := NewKeymap(layout)

	assert.Contains(t, buf.String(), "Multiple keyboard layouts found, only using the first one.")
	assert.Contains(t, km.Names, "exclam")
}

func TestLookupError(t *testing.T) {
	km := NewKeymap(newFakeLayout())

	_, err := km.Char("a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.EqualError(t, err, "Character not found in keymap: a")

	_, err = km.Name("Return")
	var lookup *LookupError
	require.ErrorAs(t, err, &lookup)
	assert.Equal(t, "Key", lookup.Kind)
	assert.Equal(t, "Return", lookup.Value)
}

func TestConnectUploadsKeymap(t *testing.T) {
	srv := wltest.New(t, keyboardGlobals...)
	connectClient(t, srv)

	assert.Equal(t, []string{"xkb_keymap { fake };\x00"}, srv.Keymaps())

	var names []string
	for _, r := range srv.Requests() {
		if r.Interface != "wl_registry" {
			names = append(names, r.Interface+"."+r.Name)
		}
	}
	assert.Equal(t, []string{
		"wl_display.get_registry",
		"wl_display.sync",
		"wl_display.sync",
		"zwp_virtual_keyboard_manager_v1.create_virtual_keyboard",
		"zwp_virtual_keyboard_v1.keymap",
		"wl_display.sync",
	}, names)

	var keymap wltest.Request
	for _, r := range srv.Requests() {
		if r.Is("zwp_virtual_keyboard_v1", "keymap") {
			keymap = r
		}
	}
	assert.Equal(t, []uint32{1, uint32(len("xkb_keymap { fake };\x00"))}, keymap.Args)
}

func TestConnectWithoutManager(t *testing.T) {
	srv := wltest.New(t, wltest.Global{Interface: "wl_seat", Version: 7})
	c := New(srv.Path(), fakeCompiler(nil))

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, wayland.ErrPrecondition)
	assert.Contains(t, err.Error(), "virtual-keyboard extension unavailable")
}

func TestConnectCompilerFailure(t *testing.T) {
	srv := wltest.New(t, keyboardGlobals...)
	c := New(srv.Path(), func() (Layout, error) {
		return nil, errors.New("no xkb")
	})

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no xkb")
	assert.False(t, c.Live())
}

func TestKeymapCachedAcrossReconnects(t *testing.T) {
	srv := wltest.New(t, keyboardGlobals...)
	compiled := 0
	c := New(srv.Path(), fakeCompiler(&compiled))

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Disconnect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	assert.Equal(t, 1, compiled)
	assert.Len(t, srv.Keymaps(), 2)
}

func TestType(t *testing.T) {
	srv := wltest.New(t, keyboardGlobals...)
	c := connectClient(t, srv)

	before := len(srv.Requests())
	require.NoError(t, c.Type(context.Background(), "123!@^"))

	assert.Equal(t, []string{
		"modifiers 0 0 0 0", "key 2 1", "key 2 0", "modifiers 0 0 0 0", "sync",
		"modifiers 0 0 0 0", "key 3 1", "key 3 0", "modifiers 0 0 0 0", "sync",
		"modifiers 0 0 0 0", "key 4 1", "key 4 0", "modifiers 0 0 0 0", "sync",
		"modifiers 1 0 0 0", "key 2 1", "key 2 0", "modifiers 0 0 0 0", "sync",
		"modifiers 1 0 0 0", "key 3 1", "key 3 0", "modifiers 0 0 0 0", "sync",
		"modifiers 1 0 0 0", "key 7 1", "key 7 0", "modifiers 0 0 0 0", "sync",
	}, keyboardRequests(srv, before))
}

func TestTypeUnknownCharacter(t *testing.T) {
	srv := wltest.New(t, keyboardGlobals...)
	c := connectClient(t, srv)

	before := len(srv.Requests())
	err := c.Type(context.Background(), "1b2")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "Character not found in keymap: b")

	assert.Equal(t, []string{
		"modifiers 0 0 0 0", "key 2 1", "key 2 0", "modifiers 0 0 0 0", "sync",
		"sync",
	}, keyboardRequests(srv, before))
	assert.True(t, c.Live())
}

func TestKeyCombo(t *testing.T) {
	srv := wltest.New(t, keyboardGlobals...)
	c := connectClient(t, srv)

	before := len(srv.Requests())
	require.NoError(t, c.KeyCombo(context.Background(), []string{"exclam", "minus", "plus"}))

	assert.Equal(t, []string{
		"key 2 1", "key 12 1", "key 13 1", "sync",
		"key 13 0", "key 12 0", "key 2 0", "sync",
	}, keyboardRequests(srv, before))
}

func TestKeyComboReleasesOnUnknownKey(t *testing.T) {
	srv := wltest.New(t, keyboardGlobals...)
	c := connectClient(t, srv)

	before := len(srv.Requests())
	err := c.KeyCombo(context.Background(), []string{"exclam", "minus", "Hyper_L", "plus"})
	require.Error(t, err)
	assert.EqualError(t, err, "Key not found in keymap: Hyper_L")

	assert.Equal(t, []string{
		"key 2 1", "key 12 1",
		"key 12 0", "key 2 0", "sync",
	}, keyboardRequests(srv, before))
}

func TestCallsWithoutConnection(t *testing.T) {
	c := New("wayland-unused", fakeCompiler(nil))

	assert.ErrorIs(t, c.Type(context.Background(), "1"), wayland.ErrNotConnected)
	assert.ErrorIs(t, c.KeyCombo(context.Background(), []string{"1"}), wayland.ErrNotConnected)
}

func TestTypeAfterTransportFailure(t *testing.T) {
	srv := wltest.New(t, keyboardGlobals...)
	c := connectClient(t, srv)

	srv.DropClients()
	err := c.Type(context.Background(), "12")
	require.Error(t, err)
	assert.ErrorIs(t, err, wayland.ErrTransport)
	assert.False(t, c.Live())
}
