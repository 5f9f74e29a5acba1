package wayland

import (
	"strings"

	"github.com/rajveermalviya/go-wayland/wayland/client"
)

// OutputInfo contains information about a Wayland output (monitor)
type OutputInfo struct {
	GlobalName  uint32
	Name        string
	Description string
	Make        string
	Model       string
	Width       int32 // Current mode, physical pixels
	Height      int32
	Refresh     int32 // mHz
	Scale       int32

	// Logical size in compositor coordinates, from xdg-output.
	LogicalWidth  int32
	LogicalHeight int32
}

// TrackOutput keeps info up to date from the output's events.
func TrackOutput(output *client.Output, info *OutputInfo) {
	output.SetGeometryHandler(func(e client.OutputGeometryEvent) {
		info.Make = strings.Clone(e.Make)
		info.Model = strings.Clone(e.Model)
	})
	output.SetModeHandler(func(e client.OutputModeEvent) {
		if e.Flags&uint32(client.OutputModeCurrent) == 0 {
			return
		}
		info.Width = e.Width
		info.Height = e.Height
		info.Refresh = e.Refresh
	})
	output.SetScaleHandler(func(e client.OutputScaleEvent) {
		info.Scale = e.Factor
	})
	output.SetNameHandler(func(e client.OutputNameEvent) {
		info.Name = strings.Clone(e.Name)
	})
	output.SetDescriptionHandler(func(e client.OutputDescriptionEvent) {
		info.Description = strings.Clone(e.Description)
	})
}

// Label names an output for display, falling back to make and model.
func (o OutputInfo) Label() string {
	switch {
	case o.Name != "":
		return o.Name
	case o.Make != "" || o.Model != "":
		return o.Make + " " + o.Model
	default:
		return "unnamed output"
	}
}
