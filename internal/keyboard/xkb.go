package keyboard

import (
	"github.com/bnema/waydriver/internal/config"
	"github.com/bnema/waydriver/internal/logger"
	"github.com/bnema/waydriver/internal/xkb"
)

// XKBCompiler compiles the configured layout with libxkbcommon. A keymap
// file takes precedence over the RMLVO names.
func XKBCompiler(cfg config.KeyboardConfig) Compiler {
	return func() (Layout, error) {
		if cfg.KeymapFile != "" {
			logger.Debugf("Compiling keymap from %s", cfg.KeymapFile)
			km, err := xkb.CompileFile(cfg.KeymapFile)
			if err != nil {
				return nil, err
			}
			return km, nil
		}

		names := xkb.RuleNames{
			Rules:   cfg.Rules,
			Model:   cfg.Model,
			Layout:  cfg.Layout,
			Variant: cfg.Variant,
			Options: cfg.Options,
		}
		logger.Debugf("Compiling keymap from names %s", names)
		km, err := xkb.Compile(names)
		if err != nil {
			return nil, err
		}
		return km, nil
	}
}
