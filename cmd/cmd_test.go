package cmd

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bnema/waydriver/internal/ipc"
	"github.com/bnema/waydriver/internal/keywords"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	viper.Reset()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

type daemonCall struct {
	keyword string
	args    []string
}

type fakeDaemon struct {
	mu    sync.Mutex
	calls []daemonCall
}

func (d *fakeDaemon) Run(ctx context.Context, name string, args ...string) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, daemonCall{name, args})

	// the real keyword table resolves names the same way
	switch keywords.Normalize(name) {
	case keywords.Normalize("Get Display Size"):
		return []any{1920, 1080}, nil
	case keywords.Normalize("Grab Screenshot"):
		var buf bytes.Buffer
		if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 3, 2))); err != nil {
			return nil, err
		}
		return map[string]any{
			"width":  3,
			"height": 2,
			"png":    base64.StdEncoding.EncodeToString(buf.Bytes()),
		}, nil
	}
	return nil, nil
}

func (d *fakeDaemon) last() daemonCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[len(d.calls)-1]
}

// startDaemon serves a fake keyword table and points the commands at it.
func startDaemon(t *testing.T) *fakeDaemon {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	socket := filepath.Join(dir, "waydriver.sock")
	t.Setenv("WAYDRIVER_DAEMON_SOCKET", socket)

	daemon := &fakeDaemon{}
	server := ipc.NewSocketServer(socket, daemon)
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)
	return daemon
}

func TestKeywordCommands(t *testing.T) {
	daemon := startDaemon(t)

	tests := []struct {
		name string
		args []string
		want daemonCall
	}{
		{"type", []string{"type", "hello", "world"}, daemonCall{"Type String", []string{"hello world"}}},
		{"combo", []string{"combo", "Control_L", "c"}, daemonCall{"Keys Combo", []string{"Control_L", "c"}}},
		{"move", []string{"move", "10", "20"}, daemonCall{"Move Pointer To Absolute", []string{"10", "20"}}},
		{"move proportional", []string{"move", "-p", "0.5", "0.25"}, daemonCall{"Move Pointer To Proportional", []string{"0.5", "0.25"}}},
		{"click default", []string{"click"}, daemonCall{"Click Pointer Button", []string{"LEFT"}}},
		{"press", []string{"press", "right"}, daemonCall{"Press Pointer Button", []string{"right"}}},
		{"release", []string{"release", "MIDDLE"}, daemonCall{"Release Pointer Button", []string{"MIDDLE"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(rootCmd, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, daemon.last())
		})
	}
	moveProportional = false
}

func TestMoveWalk(t *testing.T) {
	daemon := startDaemon(t)
	defer func() { moveWalk = false }()

	_, err := executeCommand(rootCmd, "move", "--walk", "--step", "5", "--delay", "0", "100", "200")
	require.NoError(t, err)
	assert.Equal(t, daemonCall{"Walk Pointer To Absolute", []string{"100", "200", "5", "0"}}, daemon.last())
}

func TestReleaseAll(t *testing.T) {
	daemon := startDaemon(t)
	defer func() { releaseAll = false }()

	_, err := executeCommand(rootCmd, "release", "--all")
	require.NoError(t, err)
	assert.Equal(t, daemonCall{"Release Pointer Buttons", nil}, daemon.last())
}

func TestCallCommand(t *testing.T) {
	startDaemon(t)

	out, err := executeCommand(rootCmd, "call", "get_display_size")
	require.NoError(t, err)
	assert.Equal(t, "- 1920\n- 1080\n", out)

	out, err = executeCommand(rootCmd, "call", "Get Display Size", "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, "[1920, 1080]", out)
	callFormat = "yaml"
}

func TestScreenshotCommand(t *testing.T) {
	daemon := startDaemon(t)
	path := filepath.Join(t.TempDir(), "shots", "out.png")

	out, err := executeCommand(rootCmd, "screenshot", path)
	require.NoError(t, err)
	assert.Contains(t, out, "(3x2)")
	assert.Equal(t, "Grab Screenshot", daemon.last().keyword)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
}

func TestKeywordsCommand(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	out, err := executeCommand(rootCmd, "keywords")
	require.NoError(t, err)
	assert.Contains(t, out, "Walk Pointer To Proportional")
	assert.Contains(t, out, "Grab Screenshot")
}

func TestConfigShow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pointer]\noutput = \"DP-3\"\n"), 0o644))
	defer func() { configPath = "" }()

	out, err := executeCommand(rootCmd, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "output: DP-3")
	assert.Contains(t, out, "whitelist_only: true")
}

func TestVersionCommand(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	out, err := executeCommand(rootCmd, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "waydriver "+Version)
}

func TestRemoteAddress(t *testing.T) {
	assert.Equal(t, "lab:52526", remoteAddress("lab", 52526))
	assert.Equal(t, "lab:2222", remoteAddress("lab:2222", 52526))
	assert.Equal(t, "[::1]:52526", remoteAddress("::1", 52526))
}
