package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bnema/waydriver/internal/keywords"
	"github.com/bnema/waydriver/internal/ui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var callFormat string

var callCmd = &cobra.Command{
	Use:   "call <keyword> [arg]...",
	Short: "Run any keyword",
	Long: `Run any keyword by name. Names match case, space and underscore
insensitively, so "Get Display Size" and get_display_size are the same.`,
	Example: `  waydriver call "Walk Pointer To Absolute" 100 200 10 0.01
  waydriver call get_display_size --remote lab-box`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := runKeyword(cmd, args[0], args[1:]...)
		if err != nil {
			return err
		}
		if result == nil {
			return nil
		}
		return writeValue(cmd.OutOrStdout(), callFormat, result)
	},
}

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "List the keywords",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, k := range keywords.List() {
			line := ui.KeyStyle.Render(k.Name)
			if len(k.Args) > 0 {
				line += " " + ui.SubtleStyle.Render(strings.Join(k.Args, " "))
			}
			fmt.Fprintln(out, line)
			fmt.Fprintln(out, "    "+k.Summary)
		}
	},
}

// writeValue encodes v as yaml or json.
func writeValue(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(v)
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", format)
	}
}

func init() {
	callCmd.Flags().StringVarP(&callFormat, "format", "f", "yaml", "output format (yaml or json)")
	rootCmd.AddCommand(callCmd, keywordsCmd)
}
