// Package config handles configuration management using Viper
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Wayland  WaylandConfig  `mapstructure:"wayland" yaml:"wayland" json:"wayland"`
	Capture  CaptureConfig  `mapstructure:"capture" yaml:"capture" json:"capture"`
	Pointer  PointerConfig  `mapstructure:"pointer" yaml:"pointer" json:"pointer"`
	Keyboard KeyboardConfig `mapstructure:"keyboard" yaml:"keyboard" json:"keyboard"`
	Daemon   DaemonConfig   `mapstructure:"daemon" yaml:"daemon" json:"daemon"`
	Remote   RemoteConfig   `mapstructure:"remote" yaml:"remote" json:"remote"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging" json:"logging"`
}

// WaylandConfig selects the compositor socket
type WaylandConfig struct {
	Display    string `mapstructure:"display" yaml:"display" json:"display"`             // Socket name or absolute path, empty uses WAYLAND_DISPLAY
	RuntimeDir string `mapstructure:"runtime_dir" yaml:"runtime_dir" json:"runtime_dir"` // Overrides XDG_RUNTIME_DIR for relative socket names
}

// CaptureConfig contains screencopy settings
type CaptureConfig struct {
	OverlayCursor bool `mapstructure:"overlay_cursor" yaml:"overlay_cursor" json:"overlay_cursor"`
}

// PointerConfig contains virtual pointer settings
type PointerConfig struct {
	Output string `mapstructure:"output" yaml:"output" json:"output"` // wl_output name the pointer is bound to, empty means first
}

// KeyboardConfig selects the keymap uploaded to the compositor. Empty RMLVO
// fields use the libxkbcommon defaults.
type KeyboardConfig struct {
	Rules      string `mapstructure:"rules" yaml:"rules" json:"rules"`
	Model      string `mapstructure:"model" yaml:"model" json:"model"`
	Layout     string `mapstructure:"layout" yaml:"layout" json:"layout"`
	Variant    string `mapstructure:"variant" yaml:"variant" json:"variant"`
	Options    string `mapstructure:"options" yaml:"options" json:"options"`
	KeymapFile string `mapstructure:"keymap_file" yaml:"keymap_file" json:"keymap_file"` // Compiled keymap text, takes precedence over RMLVO
}

// DaemonConfig contains keyword daemon settings
type DaemonConfig struct {
	Socket string `mapstructure:"socket" yaml:"socket" json:"socket"`
}

// RemoteConfig contains SSH keyword transport settings
type RemoteConfig struct {
	Port          int      `mapstructure:"port" yaml:"port" json:"port"`
	HostKeyPath   string   `mapstructure:"host_key" yaml:"host_key" json:"host_key"`
	PrivateKey    string   `mapstructure:"private_key" yaml:"private_key" json:"private_key"`
	Whitelist     []string `mapstructure:"whitelist" yaml:"whitelist" json:"whitelist"`                // Allowed SSH key fingerprints
	WhitelistOnly bool     `mapstructure:"whitelist_only" yaml:"whitelist_only" json:"whitelist_only"` // Only allow whitelisted keys
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"` // Overrides LOG_LEVEL env var
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Capture: CaptureConfig{
			OverlayCursor: false,
		},
		Daemon: DaemonConfig{
			Socket: defaultSocketPath(),
		},
		Remote: RemoteConfig{
			Port:          52526,
			HostKeyPath:   filepath.Join(configDir(), "host_key"),
			Whitelist:     []string{},
			WhitelistOnly: true,
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("WAYDRIVER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults - need to set individual fields for proper merging
	viper.SetDefault("wayland.display", DefaultConfig.Wayland.Display)
	viper.SetDefault("wayland.runtime_dir", DefaultConfig.Wayland.RuntimeDir)

	viper.SetDefault("capture.overlay_cursor", DefaultConfig.Capture.OverlayCursor)

	viper.SetDefault("pointer.output", DefaultConfig.Pointer.Output)

	viper.SetDefault("keyboard.rules", DefaultConfig.Keyboard.Rules)
	viper.SetDefault("keyboard.model", DefaultConfig.Keyboard.Model)
	viper.SetDefault("keyboard.layout", DefaultConfig.Keyboard.Layout)
	viper.SetDefault("keyboard.variant", DefaultConfig.Keyboard.Variant)
	viper.SetDefault("keyboard.options", DefaultConfig.Keyboard.Options)
	viper.SetDefault("keyboard.keymap_file", DefaultConfig.Keyboard.KeymapFile)

	viper.SetDefault("daemon.socket", DefaultConfig.Daemon.Socket)

	viper.SetDefault("remote.port", DefaultConfig.Remote.Port)
	viper.SetDefault("remote.host_key", DefaultConfig.Remote.HostKeyPath)
	viper.SetDefault("remote.private_key", DefaultConfig.Remote.PrivateKey)
	viper.SetDefault("remote.whitelist", DefaultConfig.Remote.Whitelist)
	viper.SetDefault("remote.whitelist_only", DefaultConfig.Remote.WhitelistOnly)

	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	return filepath.Join(configDir(), "config.toml")
}

// SetPointerOutput stores the output the virtual pointer binds to
func SetPointerOutput(name string) error {
	c := Get()
	c.Pointer.Output = name
	viper.Set("pointer.output", name)
	return Save()
}

// AddSSHKeyToWhitelist adds an SSH key fingerprint to the whitelist
func AddSSHKeyToWhitelist(fingerprint string) error {
	c := Get()

	for _, fp := range c.Remote.Whitelist {
		if fp == fingerprint {
			return fmt.Errorf("key already whitelisted")
		}
	}

	c.Remote.Whitelist = append(c.Remote.Whitelist, fingerprint)
	viper.Set("remote.whitelist", c.Remote.Whitelist)
	return Save()
}

// IsSSHKeyWhitelisted checks if an SSH key fingerprint is whitelisted
func IsSSHKeyWhitelisted(fingerprint string) bool {
	for _, fp := range Get().Remote.Whitelist {
		if fp == fingerprint {
			return true
		}
	}
	return false
}

// DisplayPath resolves the configured display against RuntimeDir. The result
// is passed verbatim to the Wayland clients.
func (c *Config) DisplayPath() string {
	name := c.Wayland.Display
	if name == "" {
		name = os.Getenv("WAYLAND_DISPLAY")
	}
	if c.Wayland.RuntimeDir == "" || filepath.IsAbs(name) {
		return name
	}
	if name == "" {
		name = "wayland-0"
	}
	return filepath.Join(c.Wayland.RuntimeDir, name)
}

func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "waydriver")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/etc", "waydriver")
	}
	return filepath.Join(home, ".config", "waydriver")
}

func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "waydriver.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("waydriver-%d.sock", os.Getuid()))
}
