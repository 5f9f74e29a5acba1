//go:build cgo
// +build cgo

package xkb

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileFile(t *testing.T) {
	km, err := CompileFile(filepath.Join("testdata", "two_level.xkb"))
	require.NoError(t, err)
	defer km.Close()

	minKeycode, maxKeycode := km.Keycodes()
	assert.Equal(t, uint32(8), minKeycode)
	assert.Equal(t, uint32(23), maxKeycode)
	assert.Equal(t, uint32(1), km.NumLayouts())

	// <AE01>: 1, exclam
	assert.Equal(t, uint32(2), km.NumLevels(10))
	syms := km.Syms(10, 1)
	require.Len(t, syms, 1)
	assert.Equal(t, "exclam", km.KeysymName(syms[0]))
	assert.Equal(t, "!", km.KeysymUTF8(syms[0]))
	assert.Contains(t, km.ModMasks(10, 1), uint32(1), "Shift selects level 2")

	// <ESC> types a control character
	escape := km.Syms(9, 0)
	require.Len(t, escape, 1)
	assert.Equal(t, "Escape", km.KeysymName(escape[0]))
	assert.Equal(t, "\x1b", km.KeysymUTF8(escape[0]))

	assert.Empty(t, km.Syms(8, 0), "unassigned keycode")
}

func TestTextRoundTrip(t *testing.T) {
	km, err := CompileFile(filepath.Join("testdata", "two_level.xkb"))
	require.NoError(t, err)
	defer km.Close()

	text, err := km.Text()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "xkb_keymap"))

	again, err := CompileString(text)
	require.NoError(t, err)
	defer again.Close()
	assert.Equal(t, km.NumLevels(21), again.NumLevels(21))
}

func TestCompileStringInvalid(t *testing.T) {
	_, err := CompileString("xkb_keymap { not a keymap")
	assert.Error(t, err)
}

func TestCompileFileMissing(t *testing.T) {
	_, err := CompileFile(filepath.Join(t.TempDir(), "missing.xkb"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read keymap file")
}

func TestCloseTwice(t *testing.T) {
	km, err := CompileFile(filepath.Join("testdata", "two_level.xkb"))
	require.NoError(t, err)
	km.Close()
	km.Close()
}
