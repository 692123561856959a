// Package remote implements the Retroboard remote-control core: the scan
// controller, the single-session state machine, command dispatch and the
// bridge that routes radio adapter events into them.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chaz8081/retroboard-remote/internal/ble"
	"github.com/chaz8081/retroboard-remote/internal/event"
	"github.com/chaz8081/retroboard-remote/internal/registry"
)

// Remote wires the controllers to one adapter and one registry and publishes
// a Change whenever any of them changes.
type Remote struct {
	Registry *registry.Registry
	Scanner  *Scanner
	Session  *Session
	Commands *Dispatcher

	adapter ble.Adapter
	bridge  *Bridge
	opts    Options
	changes event.Bus[Change]
}

// New builds the controller set around adapter. A nil gate allows scanning.
func New(adapter ble.Adapter, gate PermissionGate, opts Options) *Remote {
	r := &Remote{
		Registry: registry.New(),
		adapter:  adapter,
		opts:     opts,
	}
	notify := r.changes.Publish
	r.Scanner = NewScanner(adapter, gate, opts.AllowDuplicates, notify)
	r.Session = NewSession(adapter, r.Registry, opts, notify)
	r.Commands = NewDispatcher(adapter, r.Session, opts)
	r.bridge = NewBridge(adapter, r.Registry, r.Scanner, r.Session, notify)
	return r
}

// Open powers on the adapter and starts routing its events.
func (r *Remote) Open() error {
	if err := r.adapter.Enable(); err != nil {
		return fmt.Errorf("%w: enable: %w", ErrAdapterCallFailed, err)
	}
	return r.bridge.Start()
}

// Close ends any session and scan, stops routing adapter events and clears
// the registry.
func (r *Remote) Close(ctx context.Context) error {
	var errs []error
	if err := r.Session.Disconnect(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
		errs = append(errs, err)
	}
	if r.Scanner.State() == ScanScanning {
		if err := r.Scanner.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	r.bridge.Stop()
	r.Registry.Clear()
	return errors.Join(errs...)
}

// Subscribe registers fn for change notifications. fn runs on whichever
// goroutine made the change and must not block.
func (r *Remote) Subscribe(fn func(Change)) (unsubscribe func()) {
	return r.changes.Subscribe(fn)
}

// StartScan scans for the configured service for the configured duration.
func (r *Remote) StartScan(ctx context.Context) error {
	return r.Scanner.Start(ctx, r.opts.ScanFilter(), r.opts.ScanDuration)
}

// RetrieveConnected adds peripherals that already have a link to the
// registry. They are not marked connected: only this process's session
// sets that flag. It returns the number of peripherals reported.
func (r *Remote) RetrieveConnected(ctx context.Context) (int, error) {
	ps, err := r.adapter.ListConnectedPeripherals(ctx, r.opts.ScanFilter())
	if err != nil {
		return 0, fmt.Errorf("%w: list connected: %w", ErrAdapterCallFailed, err)
	}
	for _, p := range ps {
		r.Registry.Upsert(registry.Record{ID: p.ID, Name: p.Name, RSSI: p.RSSI})
	}
	if len(ps) > 0 {
		slog.Info("[BLE] found connected peripherals", "count", len(ps))
		r.changes.Publish(Change{Kind: ChangeRegistry})
	}
	return len(ps), nil
}
