// Command test-scan is a manual test for the BLE stack without the TUI.
// It scans for Retroboard boards and prints what it finds. With --send it
// connects to the first board found and writes one command.
//
// Usage:
//
//	go run ./cmd/test-scan [--seconds 5] [--send clock]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/retroboard-remote/internal/ble"
	"github.com/chaz8081/retroboard-remote/internal/ble/protocol"
	"github.com/chaz8081/retroboard-remote/internal/remote"
)

func main() {
	seconds := flag.Int("seconds", 5, "scan duration in seconds")
	send := flag.String("send", "", "command to send to the first board found")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := remote.DefaultOptions()
	opts.ScanDuration = time.Duration(*seconds) * time.Second
	opts.AllowDuplicates = false

	r := remote.New(ble.NewBluetoothAdapter(), remote.AllowAll{}, opts)
	if err := r.Open(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Close(closeCtx); err != nil {
			fmt.Printf("Close: %v\n", err)
		}
	}()

	scanDone := make(chan struct{}, 1)
	unsubscribe := r.Subscribe(func(c remote.Change) {
		switch c.Kind {
		case remote.ChangeScan:
			if r.Scanner.State() == remote.ScanIdle {
				select {
				case scanDone <- struct{}{}:
				default:
				}
			}
		case remote.ChangeMessage:
			fmt.Printf("<<< %s\n", protocol.DecodeMessage(r.Session.State().LastMessage))
		}
	})
	defer unsubscribe()

	fmt.Printf("Scanning for %ds...\n", *seconds)
	if err := r.StartScan(ctx); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	select {
	case <-scanDone:
	case <-ctx.Done():
		return
	}

	boards := r.Registry.Snapshot()
	fmt.Printf("\nFound %d board(s):\n", len(boards))
	for _, b := range boards {
		rssi := "?"
		if b.RSSI != nil {
			rssi = fmt.Sprintf("%d dBm", *b.RSSI)
		}
		fmt.Printf("  %-20s %s  %s\n", b.Name, b.ID, rssi)
	}

	if *send == "" || len(boards) == 0 {
		return
	}

	id := boards[0].ID
	fmt.Printf("\nConnecting to %s...\n", id)
	if err := r.Session.Connect(ctx, id); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if err := r.Commands.Send(ctx, *send); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf(">>> %s\n", *send)

	// Give the board a moment to answer on the notify characteristic.
	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
	}
	fmt.Println("Done.")
}
