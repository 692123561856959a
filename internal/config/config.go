package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/chaz8081/retroboard-remote/internal/ble"
	"github.com/chaz8081/retroboard-remote/internal/ble/protocol"
	"github.com/chaz8081/retroboard-remote/internal/remote"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string    `yaml:"log_level"`
	LogFile  string    `yaml:"log_file"`
	BLE      BLEConfig `yaml:"ble"`
	// Commands are the named buttons offered by the remote, in key order.
	Commands []string `yaml:"commands"`
}

// BLEConfig holds the Retroboard GATT layout and connection tuning.
type BLEConfig struct {
	ServiceUUID     string        `yaml:"service_uuid"`
	CommandCharUUID string        `yaml:"command_char_uuid"`
	NotifyCharUUID  string        `yaml:"notify_char_uuid"`
	ScanSeconds     int           `yaml:"scan_seconds"`
	AllowDuplicates bool          `yaml:"allow_duplicates"`
	SettleDelay     time.Duration `yaml:"settle_delay"`
	PhaseTimeout    time.Duration `yaml:"phase_timeout"`
	WriteRate       float64       `yaml:"write_rate"` // writes per second, 0 = unlimited
	WriteBurst      int           `yaml:"write_burst"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "retroboard")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	home, _ := os.UserHomeDir()
	opts := remote.DefaultOptions()

	return &Config{
		LogLevel: "info",
		LogFile:  filepath.Join(home, ".local", "state", "retroboard", "retroboard.log"),
		BLE: BLEConfig{
			ServiceUUID:     ble.ServiceUUID,
			CommandCharUUID: ble.CommandCharUUID,
			NotifyCharUUID:  ble.NotifyCharUUID,
			ScanSeconds:     int(opts.ScanDuration / time.Second),
			AllowDuplicates: opts.AllowDuplicates,
			SettleDelay:     opts.SettleDelay,
			PhaseTimeout:    opts.PhaseTimeout,
			WriteRate:       opts.WriteRate,
			WriteBurst:      opts.WriteBurst,
		},
		Commands: []string{"clock", "clear"},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in log_file is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.LogFile = expandTilde(cfg.LogFile)

	return cfg, nil
}

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the written path, or "" if a config file already exists there.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	header := "# retroboard remote configuration\n# See ble.* for the board's GATT layout; commands become number-key buttons.\n\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// ApplyEnv overrides config values from RETROBOARD_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("RETROBOARD_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("RETROBOARD_LOG_FILE"); v != "" {
		c.LogFile = expandTilde(v)
	}
	if v := os.Getenv("RETROBOARD_SCAN_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RETROBOARD_SCAN_SECONDS: %w", err)
		}
		c.BLE.ScanSeconds = n
	}
	return nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	uuids := []struct{ name, value string }{
		{"ble.service_uuid", c.BLE.ServiceUUID},
		{"ble.command_char_uuid", c.BLE.CommandCharUUID},
		{"ble.notify_char_uuid", c.BLE.NotifyCharUUID},
	}
	for _, u := range uuids {
		if _, err := uuid.Parse(u.value); err != nil {
			return fmt.Errorf("%s must be a UUID, got %q: %w", u.name, u.value, err)
		}
	}

	if strings.EqualFold(c.BLE.CommandCharUUID, c.BLE.NotifyCharUUID) {
		return fmt.Errorf("ble.command_char_uuid and ble.notify_char_uuid must differ")
	}

	if c.BLE.ScanSeconds <= 0 {
		return fmt.Errorf("ble.scan_seconds must be > 0")
	}

	if c.BLE.SettleDelay < 0 {
		return fmt.Errorf("ble.settle_delay must not be negative")
	}

	if c.BLE.PhaseTimeout <= 0 {
		return fmt.Errorf("ble.phase_timeout must be > 0")
	}

	if c.BLE.WriteRate < 0 {
		return fmt.Errorf("ble.write_rate must not be negative")
	}

	if c.BLE.WriteBurst < 0 {
		return fmt.Errorf("ble.write_burst must not be negative")
	}

	if len(c.Commands) == 0 {
		return fmt.Errorf("commands must not be empty")
	}
	if len(c.Commands) > 9 {
		return fmt.Errorf("commands supports at most 9 entries, got %d", len(c.Commands))
	}
	for i, cmd := range c.Commands {
		if _, err := protocol.EncodeCommand(cmd); err != nil {
			return fmt.Errorf("commands[%d]: %w", i, err)
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// RemoteOptions converts the BLE section into controller options.
func (c *Config) RemoteOptions() remote.Options {
	return remote.Options{
		ServiceUUID:     c.BLE.ServiceUUID,
		CommandCharUUID: c.BLE.CommandCharUUID,
		NotifyCharUUID:  c.BLE.NotifyCharUUID,
		ScanDuration:    time.Duration(c.BLE.ScanSeconds) * time.Second,
		AllowDuplicates: c.BLE.AllowDuplicates,
		SettleDelay:     c.BLE.SettleDelay,
		PhaseTimeout:    c.BLE.PhaseTimeout,
		WriteRate:       c.BLE.WriteRate,
		WriteBurst:      c.BLE.WriteBurst,
	}
}

// ParseLogLevel maps a config log level to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
