package cmd

import (
	"fmt"
	"net"
	"strconv"

	"github.com/bnema/waydriver/internal/config"
	"github.com/bnema/waydriver/internal/ipc"
	"github.com/bnema/waydriver/internal/keywords"
	"github.com/bnema/waydriver/internal/logger"
	"github.com/bnema/waydriver/internal/network"
	"github.com/bnema/waydriver/internal/ui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveSSH     bool
	serveApprove bool
	sshApproval  = make(chan struct{}, 1)
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the keyword daemon",
	Long: `Run the keyword daemon on a unix socket. Devices connect on the first keyword
and stay connected, so pointer position and pressed keys carry over between
calls. --ssh also serves keywords over SSH to whitelisted keys.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveSSH, "ssh", false, "also listen for SSH sessions")
	serveCmd.Flags().IntP("port", "p", 0, "SSH port")
	serveCmd.Flags().String("socket", "", "unix socket path")
	serveCmd.Flags().BoolVar(&serveApprove, "approve-keys", false, "ask before accepting SSH keys that are not whitelisted")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlag("remote.port", cmd.Flags().Lookup("port")); err != nil {
		return err
	}
	if err := viper.BindPFlag("daemon.socket", cmd.Flags().Lookup("socket")); err != nil {
		return err
	}
	if err := config.Init(); err != nil {
		return err
	}
	cfg := config.Get()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	lib := keywords.FromConfig(cfg)
	defer func() {
		if err := lib.Close(); err != nil {
			logger.Warnf("Failed to release devices: %v", err)
		}
	}()

	server := ipc.NewSocketServer(cfg.Daemon.Socket, lib)
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Stop()

	if serveSSH {
		addr := net.JoinHostPort("", strconv.Itoa(cfg.Remote.Port))
		sshServer := network.NewSSHServer(addr, cfg.Remote.HostKeyPath, lib)
		if serveApprove {
			sshServer.OnAuthRequest = approveKey
		}
		if err := sshServer.Start(ctx); err != nil {
			return err
		}
		defer sshServer.Stop()
		logger.Infof("SSH host key: %s", cfg.Remote.HostKeyPath)
	}

	logger.Infof("Serving %d keywords for display %q", len(lib.Keywords()), cfg.DisplayPath())
	<-ctx.Done()
	logger.Info("Shutting down")
	return nil
}

// approveKey prompts on the terminal, one key at a time.
func approveKey(addr, publicKey, fingerprint string) bool {
	sshApproval <- struct{}{}
	defer func() { <-sshApproval }()

	approved, err := ui.ConfirmKey(addr, fingerprint)
	if err != nil {
		logger.Warnf("Key approval failed: %v", err)
		return false
	}
	if approved {
		fmt.Println(ui.FormatSuccess("Added " + fingerprint + " to the whitelist"))
	}
	return approved
}
