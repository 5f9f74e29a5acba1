package pointer

import (
	"context"
	"fmt"
	"strings"

	"github.com/bnema/waydriver/internal/protocols"
	"github.com/bnema/waydriver/internal/wayland"
	"github.com/rajveermalviya/go-wayland/wayland/client"
)

type output struct {
	proxy *client.Output
	xdg   *protocols.XdgOutput
	info  wayland.OutputInfo
}

// outputSet binds every wl_output plus the xdg-output manager and fills in
// logical sizes.
type outputSet struct {
	conn       *wayland.Client
	outputs    []*output
	xdgManager *protocols.XdgOutputManager
}

func newOutputSet(conn *wayland.Client) *outputSet {
	return &outputSet{conn: conn}
}

func (s *outputSet) bindGlobal(g wayland.Global) error {
	switch g.Interface {
	case "wl_output":
		o := &output{
			proxy: client.NewOutput(s.conn.Context()),
			info:  wayland.OutputInfo{GlobalName: g.Name},
		}
		wayland.TrackOutput(o.proxy, &o.info)
		if _, err := s.conn.Bind(g, o.proxy, outputVersion); err != nil {
			return err
		}
		s.outputs = append(s.outputs, o)
	case "zxdg_output_manager_v1":
		s.xdgManager = protocols.NewXdgOutputManager(s.conn.Context())
		version, err := s.conn.Bind(g, s.xdgManager, xdgManagerVersion)
		s.xdgManager.Version = version
		return err
	}
	return nil
}

// resolve requests an xdg_output per bound output and waits for their
// logical sizes.
func (s *outputSet) resolve(ctx context.Context) error {
	if s.xdgManager == nil {
		return wayland.Preconditionf("xdg output manager not supported")
	}
	for _, o := range s.outputs {
		xdg, err := s.xdgManager.GetXdgOutput(o.proxy)
		if err != nil {
			return s.conn.Request(fmt.Errorf("failed to get xdg output: %w", err))
		}
		info := &o.info
		xdg.SetLogicalSizeHandler(func(e protocols.XdgOutputLogicalSizeEvent) {
			info.LogicalWidth = e.Width
			info.LogicalHeight = e.Height
		})
		xdg.SetNameHandler(func(name string) {
			if info.Name == "" {
				info.Name = name
			}
		})
		o.xdg = xdg
	}
	return s.conn.Roundtrip(ctx)
}

// find returns the output called name, or the first output when name is
// empty.
func (s *outputSet) find(name string) (*output, error) {
	if len(s.outputs) == 0 {
		return nil, wayland.Preconditionf("no wl_output advertised")
	}
	if name == "" {
		return s.outputs[0], nil
	}
	var names []string
	for _, o := range s.outputs {
		if o.info.Name == name {
			return o, nil
		}
		names = append(names, o.info.Label())
	}
	return nil, wayland.Preconditionf("output %q not found (available: %s)", name, strings.Join(names, ", "))
}

func (s *outputSet) infos() []wayland.OutputInfo {
	infos := make([]wayland.OutputInfo, len(s.outputs))
	for i, o := range s.outputs {
		infos[i] = o.info
	}
	return infos
}

func (s *outputSet) reset() {
	s.outputs = nil
	s.xdgManager = nil
}

// Outputs describes every output bound by the client.
func (c *Client) Outputs() []wayland.OutputInfo {
	return c.outputs.infos()
}

// outputLister only binds outputs, for listing them without creating a
// virtual pointer.
type outputLister struct {
	*outputSet
}

func (l *outputLister) BindGlobal(g wayland.Global) error {
	return l.bindGlobal(g)
}

func (l *outputLister) Connected(ctx context.Context) error {
	return l.resolve(ctx)
}

func (l *outputLister) Disconnected() {}

// ListOutputs connects to displayName and describes every output with its
// logical size.
func ListOutputs(ctx context.Context, displayName string) ([]wayland.OutputInfo, error) {
	lister := &outputLister{}
	conn := wayland.New(displayName, lister)
	lister.outputSet = newOutputSet(conn)

	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	infos := lister.infos()
	if err := conn.Disconnect(ctx); err != nil {
		return nil, err
	}
	return infos, nil
}
