package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bnema/waydriver/internal/logger"
	"golang.org/x/sys/unix"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrNotRunning is returned when no daemon listens on the socket.
var ErrNotRunning = errors.New("waydriver daemon is not running")

// Caller runs keywords on a daemon, locally or over SSH.
type Caller interface {
	Call(ctx context.Context, keyword string, args ...string) (any, error)
	Close() error
}

// Client handles IPC communication with a running daemon. Each call uses a
// fresh connection.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the daemon listening on socketPath.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// NewClientWithTimeout creates a client with a custom dial timeout. Call
// deadlines come from the context.
func NewClientWithTimeout(socketPath string, timeout time.Duration) *Client {
	c := NewClient(socketPath)
	c.timeout = timeout
	return c
}

// Call runs keyword with args on the daemon and returns its result.
func (c *Client) Call(ctx context.Context, keyword string, args ...string) (any, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		if isNotRunning(err) {
			return nil, fmt.Errorf("%w at %s", ErrNotRunning, c.socketPath)
		}
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close IPC connection: %v", err)
		}
	}()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			logger.Warnf("Failed to set connection deadline: %v", err)
		}
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	return RoundTrip(conn, keyword, args)
}

// RoundTrip sends one request on conn and reads the response.
func RoundTrip(conn io.ReadWriter, keyword string, args []string) (any, error) {
	msg, err := NewRequestMessage(keyword, args)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := WriteMessage(conn, msg); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp structpb.Struct
	if err := ReadMessage(conn, &resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return ParseResponse(&resp)
}

// Close is a no-op, connections are per call.
func (c *Client) Close() error {
	return nil
}

// IsRunning reports whether a daemon answers on socketPath.
func IsRunning(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func isNotRunning(err error) bool {
	return errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ECONNREFUSED)
}
