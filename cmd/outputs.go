package cmd

import (
	"fmt"

	"github.com/bnema/waydriver/internal/config"
	"github.com/bnema/waydriver/internal/pointer"
	"github.com/bnema/waydriver/internal/ui"
	"github.com/spf13/cobra"
)

var outputsSelect bool

var outputsCmd = &cobra.Command{
	Use:   "outputs",
	Short: "List outputs and pick the one the pointer binds to",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()

		cfg := config.Get()
		outputs, err := pointer.ListOutputs(ctx, cfg.DisplayPath())
		if err != nil {
			return err
		}

		if outputsSelect {
			name, err := ui.SelectOutput(outputs, cfg.Pointer.Output)
			if err != nil {
				return err
			}
			if err := config.SetPointerOutput(name); err != nil {
				return fmt.Errorf("failed to save pointer output: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.FormatSuccess(fmt.Sprintf("Pointer output set to %s in %s", name, config.GetConfigPath())))
			return nil
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.HeaderStyle.Render("Outputs"))
		for i, o := range outputs {
			active := o.Name == cfg.Pointer.Output || (cfg.Pointer.Output == "" && i == 0)
			fmt.Fprintln(out, ui.FormatListItem(ui.DescribeOutput(o), active))
		}
		return nil
	},
}

func init() {
	outputsCmd.Flags().BoolVarP(&outputsSelect, "select", "s", false, "pick the pointer output interactively and save it")
	rootCmd.AddCommand(outputsCmd)
}
