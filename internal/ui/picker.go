package ui

import (
	"fmt"
	"strings"

	"github.com/bnema/waydriver/internal/wayland"
	"github.com/charmbracelet/huh"
)

// outputOptions builds the picker entries, preselecting current.
func outputOptions(outputs []wayland.OutputInfo, current string) []huh.Option[string] {
	options := make([]huh.Option[string], 0, len(outputs))
	for _, o := range outputs {
		options = append(options, huh.NewOption(DescribeOutput(o), o.Name).Selected(o.Name == current))
	}
	return options
}

// DescribeOutput renders one output as "name  WxH (logical LWxLH)  description".
func DescribeOutput(o wayland.OutputInfo) string {
	parts := []string{o.Label(), fmt.Sprintf("%dx%d", o.Width, o.Height)}
	if o.LogicalWidth > 0 && o.LogicalHeight > 0 {
		parts = append(parts, fmt.Sprintf("(logical %dx%d)", o.LogicalWidth, o.LogicalHeight))
	}
	if o.Description != "" {
		parts = append(parts, o.Description)
	}
	return strings.Join(parts, "  ")
}

// SelectOutput asks which output the virtual pointer should bind to.
func SelectOutput(outputs []wayland.OutputInfo, current string) (string, error) {
	if len(outputs) == 0 {
		return "", fmt.Errorf("no outputs to select from")
	}

	selected := current
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Pointer Output").
				Description("Absolute pointer coordinates are relative to this output").
				Options(outputOptions(outputs, current)...).
				Value(&selected),
		),
	)

	if err := form.Run(); err != nil {
		return "", fmt.Errorf("output selection cancelled: %w", err)
	}
	return selected, nil
}

// ConfirmKey asks whether an unknown SSH key may run keywords.
func ConfirmKey(addr, fingerprint string) (bool, error) {
	var confirm bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Allow SSH key?").
				Description(fmt.Sprintf("%s from %s wants to run keywords", fingerprint, addr)).
				Value(&confirm),
		),
	)

	if err := form.Run(); err != nil {
		return false, err
	}
	return confirm, nil
}
