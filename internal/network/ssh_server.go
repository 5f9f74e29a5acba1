// Package network serves the keyword protocol over SSH. Each session
// carries the same framed messages as the local daemon socket.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bnema/waydriver/internal/config"
	"github.com/bnema/waydriver/internal/ipc"
	"github.com/bnema/waydriver/internal/keywords"
	"github.com/bnema/waydriver/internal/logger"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	gossh "golang.org/x/crypto/ssh"
)

// SSHServer runs keywords for authenticated SSH sessions
type SSHServer struct {
	addr        string
	hostKeyPath string
	runner      keywords.Runner
	sshServer   *ssh.Server
	listener    net.Listener

	// Active sessions
	mu       sync.Mutex
	sessions map[string]ssh.Session
	stopped  bool

	// Lifecycle
	stopOnce sync.Once
	wg       sync.WaitGroup

	// OnAuthRequest approves a key that is not whitelisted. Approved keys are
	// added to the whitelist. Without it such keys are denied.
	OnAuthRequest func(addr, publicKey, fingerprint string) bool
}

// NewSSHServer creates a server listening on addr with the host key at
// hostKeyPath, generated on first start if missing.
func NewSSHServer(addr, hostKeyPath string, runner keywords.Runner) *SSHServer {
	return &SSHServer{
		addr:        addr,
		hostKeyPath: hostKeyPath,
		runner:      runner,
		sessions:    make(map[string]ssh.Session),
	}
}

// Start begins listening for SSH connections. The server stops when ctx is
// done or Stop is called.
func (s *SSHServer) Start(ctx context.Context) error {
	server, err := wish.NewServer(
		wish.WithAddress(s.addr),
		wish.WithHostKeyPath(s.hostKeyPath),
		wish.WithPublicKeyAuth(s.publicKeyAuth),
		wish.WithMiddleware(
			s.sessionHandler(),
			s.loggingMiddleware(),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create SSH server: %w", err)
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.sshServer = server
	s.listener = listener

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		logger.Infof("SSH server listening on %s", listener.Addr())
		if err := server.Serve(listener); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			logger.Errorf("SSH server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Addr returns the listening address, useful when started on port 0.
func (s *SSHServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts down the SSH server
func (s *SSHServer) Stop() {
	s.stopOnce.Do(func() {
		// Sessions block reading their next request, so they are closed
		// before Shutdown waits for them.
		s.mu.Lock()
		s.stopped = true
		for _, sess := range s.sessions {
			_ = sess.Close()
		}
		s.sessions = make(map[string]ssh.Session)
		s.mu.Unlock()

		if s.sshServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.sshServer.Shutdown(ctx)
		}

		s.wg.Wait()
	})
}

// publicKeyAuth accepts whitelisted keys, any key when whitelist-only mode is
// off, and otherwise asks OnAuthRequest.
func (s *SSHServer) publicKeyAuth(ctx ssh.Context, key ssh.PublicKey) bool {
	goKey, err := gossh.ParsePublicKey(key.Marshal())
	if err != nil {
		logger.Errorf("Failed to parse public key: %v", err)
		return false
	}

	fingerprint := gossh.FingerprintSHA256(goKey)
	addr := ctx.RemoteAddr().String()

	logger.Infof("SSH authentication attempt addr=%s user=%s key=%s", addr, ctx.User(), fingerprint)

	if config.IsSSHKeyWhitelisted(fingerprint) {
		logger.Debugf("SSH key is whitelisted key=%s", fingerprint)
		return true
	}

	if !config.Get().Remote.WhitelistOnly {
		logger.Info("Accepting SSH key (whitelist-only mode disabled)")
		return true
	}

	if s.OnAuthRequest == nil {
		logger.Infof("SSH key denied (not whitelisted) key=%s addr=%s", fingerprint, addr)
		return false
	}

	logger.Infof("Requesting approval for SSH key=%s addr=%s", fingerprint, addr)
	if !s.OnAuthRequest(addr, string(gossh.MarshalAuthorizedKey(goKey)), fingerprint) {
		logger.Infof("SSH key denied key=%s addr=%s", fingerprint, addr)
		return false
	}
	if err := config.AddSSHKeyToWhitelist(fingerprint); err != nil {
		logger.Errorf("Failed to add key to whitelist: %v", err)
	}
	logger.Infof("SSH key approved and added to whitelist key=%s addr=%s", fingerprint, addr)
	return true
}

// loggingMiddleware provides custom logging using our internal logger
func (s *SSHServer) loggingMiddleware() wish.Middleware {
	return func(h ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			logger.Debugf("SSH session started: user=%s addr=%s", sess.User(), sess.RemoteAddr())
			h(sess)
			logger.Debugf("SSH session ended: addr=%s", sess.RemoteAddr())
		}
	}
}

// sessionHandler answers keyword requests for the lifetime of the session.
func (s *SSHServer) sessionHandler() wish.Middleware {
	return func(h ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			id := sess.Context().SessionID()
			s.mu.Lock()
			if s.stopped {
				s.mu.Unlock()
				_ = sess.Exit(1)
				return
			}
			s.sessions[id] = sess
			s.mu.Unlock()

			defer func() {
				s.mu.Lock()
				delete(s.sessions, id)
				s.mu.Unlock()
			}()

			if err := ipc.ServeConn(sess.Context(), sess, s.runner); err != nil {
				logger.Debugf("SSH session %s closed: %v", sess.RemoteAddr(), err)
				_ = sess.Exit(1)
				return
			}
			_ = sess.Exit(0)
			h(sess)
		}
	}
}
