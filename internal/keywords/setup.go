package keywords

import (
	"github.com/bnema/waydriver/internal/config"
	"github.com/bnema/waydriver/internal/hid"
	"github.com/bnema/waydriver/internal/keyboard"
	"github.com/bnema/waydriver/internal/pointer"
	"github.com/bnema/waydriver/internal/screencopy"
	"github.com/bnema/waydriver/internal/videoinput"
)

// FromConfig wires a Library to the configured display. Nothing connects
// until the first keyword runs.
func FromConfig(cfg *config.Config) *Library {
	display := cfg.DisplayPath()

	p := pointer.New(display)
	p.OutputName = cfg.Pointer.Output

	k := keyboard.New(display, keyboard.XKBCompiler(cfg.Keyboard))

	capture := screencopy.New(display)
	capture.OverlayCursor = cfg.Capture.OverlayCursor

	return New(hid.New(p, k), videoinput.New(capture))
}
