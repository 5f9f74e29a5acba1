package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var typeCmd = &cobra.Command{
	Use:   "type <text>...",
	Short: "Type text with the virtual keyboard",
	Long:  `Type text with the virtual keyboard. Arguments are joined with single spaces.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runKeyword(cmd, "Type String", strings.Join(args, " "))
		return err
	},
}

var comboCmd = &cobra.Command{
	Use:     "combo <key>...",
	Short:   "Press keys in order and release them in reverse",
	Example: "  waydriver combo Control_L Alt_L Delete",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runKeyword(cmd, "Keys Combo", args...)
		return err
	},
}

var (
	moveProportional bool
	moveWalk         bool
	moveStep         float64
	moveDelay        float64
)

var moveCmd = &cobra.Command{
	Use:   "move <x> <y>",
	Short: "Move the pointer",
	Long: `Move the pointer to output coordinates, or to fractions of the output size
with --proportional. --walk moves in steps of at most --step pixels.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyword := "Move Pointer To Absolute"
		if moveProportional {
			keyword = "Move Pointer To Proportional"
		}
		if moveWalk {
			keyword = strings.Replace(keyword, "Move", "Walk", 1)
			args = append(args,
				strconv.FormatFloat(moveStep, 'f', -1, 64),
				strconv.FormatFloat(moveDelay, 'f', -1, 64))
		}
		_, err := runKeyword(cmd, keyword, args...)
		return err
	},
}

// buttonCommand builds click, press and release.
func buttonCommand(use, short, keyword string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [LEFT|MIDDLE|RIGHT]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			button := "LEFT"
			if len(args) == 1 {
				button = args[0]
			}
			_, err := runKeyword(cmd, keyword, button)
			return err
		},
	}
}

var (
	clickCmd   = buttonCommand("click", "Click a pointer button", "Click Pointer Button")
	pressCmd   = buttonCommand("press", "Press a pointer button", "Press Pointer Button")
	releaseCmd = buttonCommand("release", "Release a pointer button", "Release Pointer Button")

	releaseAll bool
)

func init() {
	moveCmd.Flags().BoolVarP(&moveProportional, "proportional", "p", false, "x and y are fractions of the output size")
	moveCmd.Flags().BoolVarP(&moveWalk, "walk", "w", false, "walk to the target in steps")
	moveCmd.Flags().Float64Var(&moveStep, "step", 10, "maximum step distance in pixels when walking")
	moveCmd.Flags().Float64Var(&moveDelay, "delay", 0.01, "seconds between steps when walking")

	releaseCmd.Flags().BoolVarP(&releaseAll, "all", "a", false, "release every button")
	releaseRun := releaseCmd.RunE
	releaseCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if !releaseAll {
			return releaseRun(cmd, args)
		}
		if len(args) > 0 {
			return fmt.Errorf("--all takes no button")
		}
		_, err := runKeyword(cmd, "Release Pointer Buttons")
		return err
	}

	rootCmd.AddCommand(typeCmd, comboCmd, moveCmd, clickCmd, pressCmd, releaseCmd)
}
