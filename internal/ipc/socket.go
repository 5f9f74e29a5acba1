// Package ipc carries keyword calls between the CLI and a running daemon
// over a unix socket. Each message is a 4-byte big-endian length followed by
// a protobuf Struct.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/bnema/waydriver/internal/keywords"
	"github.com/bnema/waydriver/internal/logger"
	"google.golang.org/protobuf/types/known/structpb"
)

// SocketServer handles incoming IPC connections
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	runner     keywords.Runner
	conns      map[net.Conn]struct{}
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    bool
}

// NewSocketServer creates a server for socketPath running keywords with runner.
func NewSocketServer(socketPath string, runner keywords.Runner) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		runner:     runner,
		conns:      map[net.Conn]struct{}{},
	}
}

// SocketPath returns the path the server listens on.
func (s *SocketServer) SocketPath() string {
	return s.socketPath
}

// Start starts the socket server
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Remove a stale socket left by a crashed daemon
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	// Set socket permissions (user only)
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptConnections(ctx, listener)

	logger.Infof("IPC socket server started at %s", s.socketPath)
	return nil
}

// Stop closes the listener and every open connection, then waits for the
// handlers to return.
func (s *SocketServer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	_ = s.listener.Close()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	if err := os.RemoveAll(s.socketPath); err != nil {
		logger.Warnf("Failed to remove socket %s: %v", s.socketPath, err)
	}
	logger.Info("IPC socket server stopped")
}

func (s *SocketServer) acceptConnections(ctx context.Context, listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Errorf("Failed to accept connection: %v", err)
			continue
		}

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConnection(ctx, conn)
	}
}

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	logger.Debug("New IPC connection established")
	if err := ServeConn(ctx, conn, s.runner); err != nil {
		logger.Debugf("IPC connection closed: %v", err)
	}
}

// ServeConn answers keyword requests on rw until the peer hangs up or ctx is
// done. A clean hang-up returns nil.
func ServeConn(ctx context.Context, rw io.ReadWriter, runner keywords.Runner) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var msg structpb.Struct
		if err := ReadMessage(rw, &msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := WriteMessage(rw, handleMessage(ctx, &msg, runner)); err != nil {
			return fmt.Errorf("failed to send response: %w", err)
		}
	}
}

// handleMessage runs one request and always produces a response.
func handleMessage(ctx context.Context, msg *structpb.Struct, runner keywords.Runner) *structpb.Struct {
	req, err := ParseRequest(msg)
	if err != nil {
		return errorResponse(fmt.Errorf("invalid request: %w", err))
	}

	logger.Debugf("Running keyword %q %q", req.Keyword, req.Args)
	result, err := runner.Run(ctx, req.Keyword, req.Args...)
	resp, rerr := NewResponseMessage(result, err)
	if rerr != nil {
		return errorResponse(rerr)
	}
	return resp
}

func errorResponse(err error) *structpb.Struct {
	resp, _ := NewResponseMessage(nil, err)
	return resp
}
