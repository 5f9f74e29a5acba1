//go:build cgo
// +build cgo

package xkb

/*
#cgo pkg-config: xkbcommon
#include <stdlib.h>
#include <xkbcommon/xkbcommon.h>

static struct xkb_keymap *compile_names(struct xkb_context *ctx,
    const char *rules, const char *model, const char *layout,
    const char *variant, const char *options) {

    // NULL fields fall back to the XKB_DEFAULT_* environment and built-in defaults
    struct xkb_rule_names names = {
        .rules = rules,
        .model = model,
        .layout = layout,
        .variant = variant,
        .options = options,
    };
    return xkb_keymap_new_from_names(ctx, &names, XKB_KEYMAP_COMPILE_NO_FLAGS);
}
*/
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"
)

// maxModMasks bounds the masks read per level; real layouts report one or two.
const maxModMasks = 8

// Keymap is a compiled libxkbcommon keymap. Only layout 0 is queried.
type Keymap struct {
	ctx    *C.struct_xkb_context
	keymap *C.struct_xkb_keymap
}

// Compile builds a keymap from RMLVO names.
func Compile(names RuleNames) (*Keymap, error) {
	ctx, err := newContext()
	if err != nil {
		return nil, err
	}

	cstrings := []*C.char{
		optionalCString(names.Rules),
		optionalCString(names.Model),
		optionalCString(names.Layout),
		optionalCString(names.Variant),
		optionalCString(names.Options),
	}
	defer func() {
		for _, s := range cstrings {
			if s != nil {
				C.free(unsafe.Pointer(s))
			}
		}
	}()

	keymap := C.compile_names(ctx, cstrings[0], cstrings[1], cstrings[2], cstrings[3], cstrings[4])
	if keymap == nil {
		C.xkb_context_unref(ctx)
		return nil, fmt.Errorf("failed to compile keymap from names %s", names)
	}
	return newKeymap(ctx, keymap), nil
}

// CompileString builds a keymap from its XKB text form.
func CompileString(text string) (*Keymap, error) {
	ctx, err := newContext()
	if err != nil {
		return nil, err
	}

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	keymap := C.xkb_keymap_new_from_string(ctx, ctext, C.XKB_KEYMAP_FORMAT_TEXT_V1, C.XKB_KEYMAP_COMPILE_NO_FLAGS)
	if keymap == nil {
		C.xkb_context_unref(ctx)
		return nil, fmt.Errorf("failed to compile keymap text")
	}
	return newKeymap(ctx, keymap), nil
}

func newContext() (*C.struct_xkb_context, error) {
	ctx := C.xkb_context_new(C.XKB_CONTEXT_NO_FLAGS)
	if ctx == nil {
		return nil, fmt.Errorf("failed to create xkb context")
	}
	return ctx, nil
}

func newKeymap(ctx *C.struct_xkb_context, keymap *C.struct_xkb_keymap) *Keymap {
	k := &Keymap{ctx: ctx, keymap: keymap}
	runtime.SetFinalizer(k, (*Keymap).Close)
	return k
}

func optionalCString(s string) *C.char {
	if s == "" {
		return nil
	}
	return C.CString(s)
}

// Close releases the keymap. It is also run by the finalizer.
func (k *Keymap) Close() {
	if k.keymap != nil {
		C.xkb_keymap_unref(k.keymap)
		k.keymap = nil
	}
	if k.ctx != nil {
		C.xkb_context_unref(k.ctx)
		k.ctx = nil
	}
	runtime.SetFinalizer(k, nil)
}

// Keycodes returns the inclusive keycode range.
func (k *Keymap) Keycodes() (min, max uint32) {
	return uint32(C.xkb_keymap_min_keycode(k.keymap)), uint32(C.xkb_keymap_max_keycode(k.keymap))
}

func (k *Keymap) NumLayouts() uint32 {
	return uint32(C.xkb_keymap_num_layouts(k.keymap))
}

func (k *Keymap) NumLevels(keycode uint32) uint32 {
	return uint32(C.xkb_keymap_num_levels_for_key(k.keymap, C.xkb_keycode_t(keycode), 0))
}

func (k *Keymap) Syms(keycode, level uint32) []uint32 {
	var out *C.xkb_keysym_t
	n := C.xkb_keymap_key_get_syms_by_level(k.keymap, C.xkb_keycode_t(keycode), 0, C.xkb_level_index_t(level), &out)
	if n <= 0 || out == nil {
		return nil
	}
	raw := unsafe.Slice(out, int(n))
	syms := make([]uint32, len(raw))
	for i, s := range raw {
		syms[i] = uint32(s)
	}
	return syms
}

func (k *Keymap) ModMasks(keycode, level uint32) []uint32 {
	var masks [maxModMasks]C.xkb_mod_mask_t
	n := C.xkb_keymap_key_get_mods_for_level(k.keymap, C.xkb_keycode_t(keycode), 0, C.xkb_level_index_t(level), &masks[0], maxModMasks)
	out := make([]uint32, int(n))
	for i := range out {
		out[i] = uint32(masks[i])
	}
	return out
}

// KeysymUTF8 returns the text produced by sym, or "" when it produces none.
func (k *Keymap) KeysymUTF8(sym uint32) string {
	var buf [8]C.char
	n := C.xkb_keysym_to_utf8(C.xkb_keysym_t(sym), &buf[0], C.size_t(len(buf)))
	if n <= 1 {
		return ""
	}
	// n counts the terminating NUL
	return C.GoStringN(&buf[0], n-1)
}

// KeysymName returns the keysym name without the XK_ prefix.
func (k *Keymap) KeysymName(sym uint32) string {
	var buf [64]C.char
	n := C.xkb_keysym_get_name(C.xkb_keysym_t(sym), &buf[0], C.size_t(len(buf)))
	if n <= 0 {
		return ""
	}
	return C.GoString(&buf[0])
}

// Text serializes the keymap in XKB text format.
func (k *Keymap) Text() (string, error) {
	s := C.xkb_keymap_get_as_string(k.keymap, C.XKB_KEYMAP_FORMAT_TEXT_V1)
	if s == nil {
		return "", fmt.Errorf("failed to serialize keymap")
	}
	defer C.free(unsafe.Pointer(s))
	return C.GoString(s), nil
}
