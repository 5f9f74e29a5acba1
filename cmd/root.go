package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/bnema/waydriver/internal/config"
	"github.com/bnema/waydriver/internal/ipc"
	"github.com/bnema/waydriver/internal/keywords"
	"github.com/bnema/waydriver/internal/logger"
	"github.com/bnema/waydriver/internal/network"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configPath string
	remoteAddr string

	rootCmd = &cobra.Command{
		Use:   "waydriver",
		Short: "waydriver - drive a Wayland session for test automation",
		Long: `waydriver captures the screen and synthesizes keyboard and pointer input on
wlroots-based Wayland compositors through the screencopy, virtual pointer and
virtual keyboard protocols.

Keyword commands talk to a running daemon (waydriver serve) when there is one,
to a remote daemon with --remote, and to the display directly otherwise.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/waydriver/config.toml)")
	rootCmd.PersistentFlags().String("display", "", "Wayland display name or socket path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&remoteAddr, "remote", "", "run keywords on a remote daemon over SSH (host[:port])")
}

func initConfig(cmd *cobra.Command, args []string) error {
	config.SetConfigPath(configPath)

	flags := cmd.Flags()
	if err := viper.BindPFlag("wayland.display", flags.Lookup("display")); err != nil {
		return err
	}
	if err := viper.BindPFlag("logging.log_level", flags.Lookup("log-level")); err != nil {
		return err
	}

	if err := config.Init(); err != nil {
		return err
	}
	if level := config.Get().Logging.LogLevel; level != "" {
		logger.SetLevel(level)
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// localCaller runs keywords in-process against the display.
type localCaller struct {
	lib *keywords.Library
}

func (l localCaller) Call(ctx context.Context, keyword string, args ...string) (any, error) {
	return l.lib.Run(ctx, keyword, args...)
}

func (l localCaller) Close() error {
	return l.lib.Close()
}

// remoteAddress appends the configured port when addr has none.
func remoteAddress(addr string, port int) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(port))
}

// newCaller picks the SSH daemon, the local daemon or the display itself.
func newCaller() (ipc.Caller, string) {
	cfg := config.Get()
	if remoteAddr != "" {
		addr := remoteAddress(remoteAddr, cfg.Remote.Port)
		return network.NewSSHClient(addr, cfg.Remote.PrivateKey), addr
	}
	if ipc.IsRunning(cfg.Daemon.Socket) {
		logger.Debugf("Using daemon at %s", cfg.Daemon.Socket)
		return ipc.NewClient(cfg.Daemon.Socket), cfg.Daemon.Socket
	}
	logger.Debug("No daemon running, using the display directly")
	return localCaller{lib: keywords.FromConfig(cfg)}, cfg.DisplayPath()
}

// runKeyword runs one keyword through newCaller and returns its result.
func runKeyword(cmd *cobra.Command, keyword string, args ...string) (any, error) {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	caller, target := newCaller()
	defer func() {
		if err := caller.Close(); err != nil {
			logger.Debugf("Failed to close connection to %s: %v", target, err)
		}
	}()

	result, err := caller.Call(ctx, keyword, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", keyword, err)
	}
	return result, nil
}
