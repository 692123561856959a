// Retroboard is a terminal remote control for Retroboard LED boards. It scans
// for boards advertising the Retroboard service, keeps one session open and
// sends the configured commands to the board's command characteristic.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/chaz8081/retroboard-remote/internal/ble"
	"github.com/chaz8081/retroboard-remote/internal/config"
	"github.com/chaz8081/retroboard-remote/internal/remote"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/retroboard/config.yaml)")
	envFile := flag.String("env", ".env", "path to .env file (ignored if missing)")
	initConfig := flag.Bool("init", false, "write the default config file and exit")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if path == "" {
			fmt.Println("Config already exists at", config.DefaultConfigPath())
			return
		}
		fmt.Println("Wrote default config to", path)
		return
	}

	if err := loadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	logOut := newLogWriter(cfg.LogFile)
	defer logOut.Close()
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := remote.New(ble.NewBluetoothAdapter(), remote.AllowAll{}, cfg.RemoteOptions())
	if err := r.Open(); err != nil {
		return fmt.Errorf("bluetooth: %w (on Linux, check that bluetoothd is running)", err)
	}
	slog.Info("[BLE] adapter ready", "service", cfg.BLE.ServiceUUID)

	p := tea.NewProgram(newModel(ctx, r, cfg.Commands), tea.WithAltScreen(), tea.WithContext(ctx))
	unsubscribe := r.Subscribe(func(c remote.Change) {
		p.Send(changeMsg{change: c})
	})

	_, runErr := p.Run()
	unsubscribe()

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Close(closeCtx); err != nil {
		slog.Warn("[BLE] shutdown", "error", err)
	}

	if errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return runErr
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	return config.Default(), nil
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// newLogWriter returns a rotating log file at path. The terminal belongs to
// the TUI, so an empty path discards logs instead of writing to stderr.
func newLogWriter(path string) io.WriteCloser {
	if path == "" {
		return nopWriteCloser{io.Discard}
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    5, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
