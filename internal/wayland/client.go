// Package wayland owns the compositor connection shared by the screencopy,
// pointer and keyboard clients: transport lifecycle, registry binding,
// round-trips and event dispatch.
package wayland

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/waydriver/internal/logger"
	"github.com/rajveermalviya/go-wayland/wayland/client"
	"golang.org/x/sys/unix"
)

var (
	// ErrPrecondition marks fatal precondition violations: a missing
	// compositor extension, out of range coordinates, inconsistent buffers.
	ErrPrecondition = errors.New("precondition failed")

	// ErrTransport marks I/O and protocol failures on the compositor socket.
	// A client that returned it is torn down and must be reconnected.
	ErrTransport = errors.New("wayland transport failure")

	// ErrNotConnected is returned when a request is issued without a live
	// connection.
	ErrNotConnected = errors.New("not connected to compositor")
)

// Preconditionf builds an error wrapping ErrPrecondition.
func Preconditionf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

// Global is a compositor-advertised capability.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// Hooks customise connection setup and teardown for one protocol extension.
type Hooks interface {
	// BindGlobal is called once per advertised global.
	BindGlobal(g Global) error
	// Connected issues the requests that depend on bound globals.
	Connected(ctx context.Context) error
	// Disconnected releases resources acquired while connected. It may be
	// called more than once.
	Disconnected()
}

// Client is one connection to the compositor. A Client is not safe for
// concurrent use.
type Client struct {
	displayName string
	hooks       Hooks

	display  *client.Display
	registry *client.Registry
	wctx     *client.Context

	// live is set between a successful Connect and Disconnect, and cleared
	// as soon as dispatching fails.
	live bool

	// broken holds the dispatch failure that tore the connection down.
	broken error

	protoErr error
	bindErr  error
}

// New creates a client for the given display. The name is a socket name
// relative to XDG_RUNTIME_DIR or an absolute path; empty falls back to
// WAYLAND_DISPLAY and then wayland-0.
func New(displayName string, hooks Hooks) *Client {
	return &Client{
		displayName: displayName,
		hooks:       hooks,
	}
}

// SocketPath resolves a display name to the compositor socket path.
func SocketPath(displayName string) (string, error) {
	name := displayName
	if name == "" {
		name = os.Getenv("WAYLAND_DISPLAY")
	}
	if name == "" {
		name = "wayland-0"
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("XDG_RUNTIME_DIR is not set, cannot resolve display %q", name)
	}
	return filepath.Join(runtimeDir, name), nil
}

// Connect opens the transport, binds the advertised globals and runs the
// Connected hook. It is a no-op on a live client. On failure the disconnect
// sequence runs against whatever was set up and the original error is
// returned.
func (c *Client) Connect(ctx context.Context) (err error) {
	if c.live {
		return nil
	}
	if c.wctx != nil {
		// left behind by a failed dispatch
		_ = c.Disconnect(ctx)
	}

	defer func() {
		if err == nil {
			return
		}
		if derr := c.Disconnect(context.Background()); derr != nil {
			logger.Debugf("Cleanup after failed connect: %v", derr)
		}
	}()

	path, err := SocketPath(c.displayName)
	if err != nil {
		return err
	}

	display, err := client.Connect(path)
	if err != nil {
		return fmt.Errorf("failed to connect to Wayland display %s: %w", path, err)
	}
	c.display = display
	c.wctx = display.Context()
	c.broken = nil
	c.protoErr = nil
	c.bindErr = nil

	display.SetErrorHandler(func(e client.DisplayErrorEvent) {
		var id uint32
		if e.ObjectId != nil {
			id = e.ObjectId.ID()
		}
		c.protoErr = fmt.Errorf("compositor error on object %d (code %d): %s", id, e.Code, e.Message)
	})

	registry, err := display.GetRegistry()
	if err != nil {
		return c.fail(fmt.Errorf("failed to get registry: %w", err))
	}
	c.registry = registry

	registry.SetGlobalHandler(func(e client.RegistryGlobalEvent) {
		g := Global{Name: e.Name, Interface: e.Interface, Version: e.Version}
		if err := c.hooks.BindGlobal(g); err != nil && c.bindErr == nil {
			c.bindErr = fmt.Errorf("failed to bind %s: %w", g.Interface, err)
		}
	})

	if err := c.Roundtrip(ctx); err != nil {
		return err
	}
	if c.bindErr != nil {
		return c.bindErr
	}

	if err := c.hooks.Connected(ctx); err != nil {
		return err
	}

	c.live = true
	logger.Debugf("Connected to Wayland display %s", path)
	return nil
}

// Disconnect deregisters the connection, flushes pending requests with a
// final round-trip, closes the transport and runs the Disconnected hook.
// It is safe on partially initialised and already closed clients.
func (c *Client) Disconnect(ctx context.Context) error {
	c.live = false

	var err error
	if c.wctx != nil {
		if c.broken == nil {
			err = c.Roundtrip(ctx)
		}
		if cerr := c.wctx.Close(); cerr != nil && c.broken == nil {
			logger.Debugf("Closing Wayland connection: %v", cerr)
		}
		c.wctx = nil
		c.display = nil
		c.registry = nil
	}

	c.hooks.Disconnected()
	return err
}

// Close disconnects with a background context. It makes a connected client
// usable with defer.
func (c *Client) Close() error {
	return c.Disconnect(context.Background())
}

// Live reports whether the client is connected and has not failed.
func (c *Client) Live() bool {
	return c.live
}

// Context returns the wire context new proxies register with.
func (c *Client) Context() *client.Context {
	return c.wctx
}

// Bind binds g at min(local, advertised) version and returns the version used.
// The proxy must already be registered with Context().
func (c *Client) Bind(g Global, p client.Proxy, local uint32) (uint32, error) {
	version := min(local, g.Version)
	if err := c.registry.Bind(g.Name, g.Interface, version, p); err != nil {
		return 0, c.fail(fmt.Errorf("failed to bind %s: %w", g.Interface, err))
	}
	logger.Debugf("Bound %s v%d (advertised v%d)", g.Interface, version, g.Version)
	return version, nil
}

// Check returns the error that keeps the client from issuing requests.
func (c *Client) Check() error {
	if c.broken != nil {
		return c.broken
	}
	if c.wctx == nil {
		return ErrNotConnected
	}
	return nil
}

// Request wraps the error of a request write. Write failures tear the
// connection down like dispatch failures.
func (c *Client) Request(err error) error {
	if err == nil {
		return nil
	}
	return c.fail(err)
}

// Roundtrip sends wl_display.sync and dispatches events until the compositor
// answers it, so every request sent before has been processed.
func (c *Client) Roundtrip(ctx context.Context) error {
	if err := c.Check(); err != nil {
		return err
	}

	callback, err := c.display.Sync()
	if err != nil {
		return c.fail(fmt.Errorf("failed to send sync: %w", err))
	}
	done := false
	callback.SetDoneHandler(func(client.CallbackDoneEvent) {
		done = true
	})
	defer c.wctx.Unregister(callback)

	for !done {
		if err := c.Dispatch(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Dispatch reads one event from the socket and runs its handler. It blocks
// until an event arrives or ctx is done. Any failure deregisters the client
// before it is returned, so it cannot recur.
func (c *Client) Dispatch(ctx context.Context) error {
	if err := c.Check(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return c.fail(err)
	}

	wctx := c.wctx
	stop := context.AfterFunc(ctx, func() {
		_ = wctx.Close()
	})
	err := wctx.Dispatch()
	stop()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return c.fail(ctxErr)
	}
	if err != nil {
		return c.fail(fmt.Errorf("failed to dispatch: %w", err))
	}
	if c.protoErr != nil {
		return c.fail(c.protoErr)
	}
	return nil
}

func (c *Client) fail(err error) error {
	if c.broken != nil {
		return c.broken
	}
	c.live = false
	c.broken = fmt.Errorf("%w: %w", ErrTransport, err)
	logger.Debugf("Wayland connection deregistered: %v", err)
	return c.broken
}

// Timestamp returns CLOCK_MONOTONIC in milliseconds truncated to 32 bits,
// the clock used by input event timestamps.
func Timestamp() uint32 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return uint32(time.Since(processStart).Milliseconds())
	}
	return uint32(ts.Nano() / int64(time.Millisecond))
}

var processStart = time.Now()
