//go:build cgo
// +build cgo

package keyboard

import (
	"path/filepath"
	"testing"

	"github.com/bnema/waydriver/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXKBCompilerKeymapFile(t *testing.T) {
	compile := XKBCompiler(config.KeyboardConfig{
		KeymapFile: filepath.Join("..", "xkb", "testdata", "two_level.xkb"),
	})
	layout, err := compile()
	require.NoError(t, err)

	km := NewKeymap(layout)
	assert.Equal(t, keyTable(NewKeymap(newFakeLayout()).Names), keyTable(km.Names))
	assert.Equal(t, keyTable(NewKeymap(newFakeLayout()).Strings), keyTable(km.Strings))

	plus, err := km.Name("plus")
	require.NoError(t, err)
	assert.True(t, plus.HasMods)
	assert.Equal(t, uint32(1), plus.Mods)
}

func TestXKBCompilerMissingFile(t *testing.T) {
	compile := XKBCompiler(config.KeyboardConfig{KeymapFile: filepath.Join(t.TempDir(), "nope.xkb")})
	_, err := compile()
	assert.Error(t, err)
}
