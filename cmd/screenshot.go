package cmd

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/waydriver/internal/ui"
	"github.com/spf13/cobra"
)

var screenshotCmd = &cobra.Command{
	Use:   "screenshot [path]",
	Short: "Capture the output to a PNG file",
	Long: `Capture the output to a PNG file. The default name carries a timestamp.
The image is written locally, also when the capture runs on a remote daemon.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("screenshot-%s.png", time.Now().Format("20060102-150405"))
		if len(args) == 1 {
			path = args[0]
		}

		result, err := runKeyword(cmd, "Grab Screenshot")
		if err != nil {
			return err
		}
		shot, ok := result.(map[string]any)
		if !ok {
			return fmt.Errorf("unexpected screenshot result %T", result)
		}
		encoded, _ := shot["png"].(string)
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("failed to decode screenshot: %w", err)
		}

		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write screenshot: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), ui.FormatSuccess(fmt.Sprintf("%s (%vx%v)", path, shot["width"], shot["height"])))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(screenshotCmd)
}
