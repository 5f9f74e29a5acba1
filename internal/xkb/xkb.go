// Package xkb compiles XKB keymaps with libxkbcommon. Builds without cgo
// report that keymap compilation is unavailable.
package xkb

import (
	"fmt"
	"os"
	"strings"
)

// RuleNames selects a keymap by rules, model, layout, variant and options.
// Empty fields use the XKB_DEFAULT_* environment and then the libxkbcommon
// defaults.
type RuleNames struct {
	Rules   string
	Model   string
	Layout  string
	Variant string
	Options string
}

func (n RuleNames) String() string {
	fields := []string{n.Rules, n.Model, n.Layout, n.Variant, n.Options}
	for i, f := range fields {
		if f == "" {
			fields[i] = "-"
		}
	}
	return strings.Join(fields, "/")
}

// CompileFile builds a keymap from an XKB text file, such as the output of
// xkbcomp or of a previous Keymap.Text.
func CompileFile(path string) (*Keymap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keymap file: %w", err)
	}
	return CompileString(string(data))
}
