package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/waydriver/internal/ipc"
	"github.com/bnema/waydriver/internal/logger"
	"golang.org/x/crypto/ssh"
)

// ErrNotConnected is returned by Call before Connect or after Close.
var ErrNotConnected = errors.New("not connected")

// DefaultKeyPaths lists the private keys tried when none is configured.
func DefaultKeyPaths() []string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(homeDir, ".ssh", "id_ed25519"),
		filepath.Join(homeDir, ".ssh", "id_rsa"),
	}
}

// sessionConn joins the session pipes into one stream.
type sessionConn struct {
	io.Reader
	io.Writer
}

// SSHClient runs keywords on a remote daemon over one SSH session. Calls
// are serialized.
type SSHClient struct {
	serverAddr     string
	privateKeyPath string

	// HostKeyCallback verifies the server key. Nil accepts any key.
	HostKeyCallback ssh.HostKeyCallback

	mu      sync.Mutex
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	conn    io.ReadWriter
}

// NewSSHClient creates a client for serverAddr. An empty privateKeyPath
// picks the first of DefaultKeyPaths that exists.
func NewSSHClient(serverAddr, privateKeyPath string) *SSHClient {
	if privateKeyPath == "" {
		for _, path := range DefaultKeyPaths() {
			if _, err := os.Stat(path); err == nil {
				privateKeyPath = path
				break
			}
		}
	}

	return &SSHClient{
		serverAddr:     serverAddr,
		privateKeyPath: privateKeyPath,
	}
}

// Connect dials the server and opens the keyword session.
func (c *SSHClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	if c.privateKeyPath == "" {
		return fmt.Errorf("no SSH private key found, set remote.private_key")
	}

	key, err := os.ReadFile(c.privateKeyPath)
	if err != nil {
		return fmt.Errorf("failed to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	hostKeyCallback := c.HostKeyCallback
	if hostKeyCallback == nil {
		// TODO: verify against ~/.ssh/known_hosts with x/crypto/ssh/knownhosts
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	config := &ssh.ClientConfig{
		User:            "waydriver",
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}
	if deadline, ok := ctx.Deadline(); ok {
		config.Timeout = time.Until(deadline)
	}

	client, err := ssh.Dial("tcp", c.serverAddr, config)
	if err != nil {
		return fmt.Errorf("failed to connect to SSH server: %w", err)
	}

	session, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to create SSH session: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		_ = session.Close()
		_ = client.Close()
		return fmt.Errorf("failed to start SSH session: %w", err)
	}

	c.client = client
	c.session = session
	c.stdin = stdin
	c.conn = sessionConn{Reader: stdout, Writer: stdin}

	logger.Debugf("Connected to %s with %s", c.serverAddr, c.privateKeyPath)
	return nil
}

// Call runs keyword with args on the remote daemon. It connects on first
// use. Cancelling ctx closes the connection.
func (c *SSHClient) Call(ctx context.Context, keyword string, args ...string) (any, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrNotConnected
	}

	stop := context.AfterFunc(ctx, func() { _ = c.client.Close() })
	defer stop()

	result, err := ipc.RoundTrip(c.conn, keyword, args)
	if err != nil && !errors.Is(err, ipc.ErrRemote) {
		// the stream is out of sync after a transport error
		c.closeLocked()
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return result, err
}

// Close ends the session and the connection.
func (c *SSHClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *SSHClient) closeLocked() error {
	if c.client == nil {
		return nil
	}

	var errs []error
	if err := c.stdin.Close(); err != nil && !errors.Is(err, io.EOF) {
		errs = append(errs, err)
	}
	if err := c.session.Close(); err != nil && !errors.Is(err, io.EOF) {
		errs = append(errs, err)
	}
	if err := c.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, err)
	}

	c.client = nil
	c.session = nil
	c.stdin = nil
	c.conn = nil
	return errors.Join(errs...)
}
