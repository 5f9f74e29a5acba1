package cmd

import (
	"fmt"

	"github.com/bnema/waydriver/internal/config"
	"github.com/bnema/waydriver/internal/logger"
	"github.com/bnema/waydriver/internal/ui"
	"github.com/spf13/cobra"
)

var configFormat string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage waydriver configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.SubtleStyle.Render("# "+config.GetConfigPath()))
		return writeValue(out, configFormat, config.Get())
	},
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the effective configuration to file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Save(); err != nil {
			return err
		}
		logger.Infof("Configuration saved to: %s", config.GetConfigPath())
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.GetConfigPath())
	},
}

func init() {
	configShowCmd.Flags().StringVarP(&configFormat, "format", "f", "yaml", "output format (yaml or json)")
	configCmd.AddCommand(configShowCmd, configSaveCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}
