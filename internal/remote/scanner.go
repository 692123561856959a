package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/retroboard-remote/internal/ble"
)

// ScanState is whether discovery is running.
type ScanState int

const (
	ScanIdle ScanState = iota
	ScanScanning
)

func (s ScanState) String() string {
	if s == ScanScanning {
		return "scanning"
	}
	return "idle"
}

// Scanner owns the scanning on/off state. The state only returns to Idle
// when the adapter reports the scan stopped.
type Scanner struct {
	adapter         ble.Adapter
	gate            PermissionGate
	allowDuplicates bool
	notify          notifier

	mu    sync.Mutex
	state ScanState
}

// NewScanner creates an idle scanner. A nil gate allows scanning.
func NewScanner(adapter ble.Adapter, gate PermissionGate, allowDuplicates bool, notify func(Change)) *Scanner {
	return &Scanner{
		adapter:         adapter,
		gate:            gate,
		allowDuplicates: allowDuplicates,
		notify:          notify,
	}
}

// State returns the current scan state.
func (s *Scanner) State() ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins discovery of peripherals advertising any of serviceUUIDs
// (everything when empty) for duration. It returns ErrAlreadyScanning without
// touching the adapter while a scan runs. On failure the state stays Idle and
// nothing is retried.
func (s *Scanner) Start(ctx context.Context, serviceUUIDs []string, duration time.Duration) error {
	// Claim the Scanning state before calling out so a concurrent Start
	// cannot issue a second adapter scan.
	s.mu.Lock()
	if s.state == ScanScanning {
		s.mu.Unlock()
		return ErrAlreadyScanning
	}
	s.state = ScanScanning
	s.mu.Unlock()

	if err := checkPermission(ctx, s.gate); err != nil {
		s.setIdle()
		slog.Warn("[SCAN] permission not granted", "error", err)
		return err
	}

	if err := s.adapter.Scan(ctx, serviceUUIDs, duration, s.allowDuplicates); err != nil {
		s.setIdle()
		return fmt.Errorf("%w: scan: %w", ErrAdapterCallFailed, err)
	}

	slog.Info("[SCAN] started", "services", serviceUUIDs, "duration", duration)
	s.notify.publish(ChangeScan)
	return nil
}

// Stop asks the adapter to end discovery early. The state changes only when
// the scan-stopped event arrives.
func (s *Scanner) Stop() error {
	if err := s.adapter.StopScan(); err != nil {
		return fmt.Errorf("%w: stop scan: %w", ErrAdapterCallFailed, err)
	}
	return nil
}

// OnStopped handles the adapter's scan-stopped event.
func (s *Scanner) OnStopped() {
	if s.setIdle() {
		slog.Info("[SCAN] stopped")
	}
}

// setIdle moves to Idle and reports whether the state changed.
func (s *Scanner) setIdle() bool {
	s.mu.Lock()
	changed := s.state != ScanIdle
	s.state = ScanIdle
	s.mu.Unlock()
	if changed {
		s.notify.publish(ChangeScan)
	}
	return changed
}
