package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chaz8081/retroboard-remote/internal/ble"
	"github.com/chaz8081/retroboard-remote/internal/ble/bletest"
)

func TestScannerStart(t *testing.T) {
	fake := bletest.NewFakeAdapter()
	rec := &changeRecorder{}
	s := NewScanner(fake, AllowAll{}, true, rec.record)

	if err := s.Start(context.Background(), []string{ble.ServiceUUID}, time.Second); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.State() != ScanScanning {
		t.Errorf("State() = %v, want %v", s.State(), ScanScanning)
	}
	calls := fake.Calls(bletest.OpScan)
	if len(calls) != 1 {
		t.Fatalf("scan calls = %d, want 1", len(calls))
	}
	if len(calls[0].Filter) != 1 || calls[0].Filter[0] != ble.ServiceUUID {
		t.Errorf("scan filter = %v, want [%s]", calls[0].Filter, ble.ServiceUUID)
	}
	if rec.count(ChangeScan) == 0 {
		t.Error("Start() should publish a scan change")
	}
}

func TestScannerStartWhileScanningIsRejected(t *testing.T) {
	fake := bletest.NewFakeAdapter()
	s := NewScanner(fake, AllowAll{}, true, nil)

	if err := s.Start(context.Background(), nil, time.Second); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Start(context.Background(), nil, time.Second); !errors.Is(err, ErrAlreadyScanning) {
			t.Errorf("Start() while scanning error = %v, want ErrAlreadyScanning", err)
		}
	}
	if n := len(fake.Calls(bletest.OpScan)); n != 1 {
		t.Errorf("scan calls = %d, want 1", n)
	}
}

func TestScannerStartConcurrentIssuesOneScan(t *testing.T) {
	fake := bletest.NewFakeAdapter()
	release := fake.Block(bletest.OpScan)
	s := NewScanner(fake, AllowAll{}, true, nil)

	first := make(chan error, 1)
	go func() { first <- s.Start(context.Background(), nil, time.Second) }()
	if !fake.WaitForCall(bletest.OpScan, 1, time.Second) {
		t.Fatal("first scan call never reached the adapter")
	}

	if err := s.Start(context.Background(), nil, time.Second); !errors.Is(err, ErrAlreadyScanning) {
		t.Errorf("overlapping Start() error = %v, want ErrAlreadyScanning", err)
	}
	release()
	if err := <-first; err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	if n := len(fake.Calls(bletest.OpScan)); n != 1 {
		t.Errorf("scan calls = %d, want 1", n)
	}
}

func TestScannerAdapterFailureStaysIdle(t *testing.T) {
	fake := bletest.NewFakeAdapter()
	fake.Fail(bletest.OpScan, errors.New("radio off"))
	s := NewScanner(fake, AllowAll{}, true, nil)

	err := s.Start(context.Background(), nil, time.Second)
	if !errors.Is(err, ErrAdapterCallFailed) {
		t.Fatalf("Start() error = %v, want ErrAdapterCallFailed", err)
	}
	if s.State() != ScanIdle {
		t.Errorf("State() = %v, want %v", s.State(), ScanIdle)
	}

	// Not retried automatically, but the user may try again.
	fake.Fail(bletest.OpScan, nil)
	if err := s.Start(context.Background(), nil, time.Second); err != nil {
		t.Fatalf("retry Start() error = %v", err)
	}
	if n := len(fake.Calls(bletest.OpScan)); n != 2 {
		t.Errorf("scan calls = %d, want 2", n)
	}
}

func TestScannerOnStoppedIsIdempotent(t *testing.T) {
	fake := bletest.NewFakeAdapter()
	rec := &changeRecorder{}
	s := NewScanner(fake, AllowAll{}, true, rec.record)

	s.OnStopped() // already idle
	if rec.count(ChangeScan) != 0 {
		t.Error("OnStopped() while idle should not publish")
	}

	_ = s.Start(context.Background(), nil, time.Second)
	s.OnStopped()
	s.OnStopped()
	if s.State() != ScanIdle {
		t.Errorf("State() = %v, want %v", s.State(), ScanIdle)
	}
}

func TestScannerStopWaitsForEvent(t *testing.T) {
	fake := bletest.NewFakeAdapter()
	s := NewScanner(fake, AllowAll{}, true, nil)
	_ = s.Start(context.Background(), nil, time.Second)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.State() != ScanScanning {
		t.Error("Stop() should not change state before the scan-stopped event")
	}
	if n := len(fake.Calls(bletest.OpStopScan)); n != 1 {
		t.Errorf("stop-scan calls = %d, want 1", n)
	}
	s.OnStopped()
	if s.State() != ScanIdle {
		t.Errorf("State() = %v, want %v", s.State(), ScanIdle)
	}
}

func TestScannerPermissionDenied(t *testing.T) {
	fake := bletest.NewFakeAdapter()
	gate := &denyGate{}
	s := NewScanner(fake, gate, true, nil)

	err := s.Start(context.Background(), nil, time.Second)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Start() error = %v, want ErrPermissionDenied", err)
	}
	if s.State() != ScanIdle {
		t.Errorf("State() = %v, want %v", s.State(), ScanIdle)
	}
	if gate.requests != 1 {
		t.Errorf("permission requests = %d, want 1", gate.requests)
	}
	if n := len(fake.Calls(bletest.OpScan)); n != 0 {
		t.Errorf("scan calls = %d, want 0 without permission", n)
	}
}

func TestScannerPermissionGrantedOnRequest(t *testing.T) {
	fake := bletest.NewFakeAdapter()
	gate := &denyGate{grant: true}
	s := NewScanner(fake, gate, true, nil)

	if err := s.Start(context.Background(), nil, time.Second); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if n := len(fake.Calls(bletest.OpScan)); n != 1 {
		t.Errorf("scan calls = %d, want 1", n)
	}
}
