// Package bletest provides an in-memory ble.Adapter for tests.
package bletest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chaz8081/retroboard-remote/internal/ble"
)

// Call records one adapter method invocation.
type Call struct {
	Op           string
	PeripheralID string
	ServiceUUID  string
	CharUUID     string
	Data         []byte
	Filter       []string
}

// FakeAdapter records calls and lets tests inject failures, block calls and
// emit adapter events. All methods are safe for concurrent use.
type FakeAdapter struct {
	ble.Emitter

	mu        sync.Mutex
	calls     []Call
	errs      map[string]error
	gates     map[string]chan struct{}
	services  []ble.ServiceDescriptor
	rssi      int
	connected []ble.Peripheral
}

// Operation names used by Calls, Fail and Block.
const (
	OpEnable        = "enable"
	OpScan          = "scan"
	OpStopScan      = "stop-scan"
	OpConnect       = "connect"
	OpDisconnect    = "disconnect"
	OpDiscover      = "discover-services"
	OpSubscribe     = "subscribe"
	OpWrite         = "write"
	OpReadRSSI      = "read-rssi"
	OpListConnected = "list-connected"
)

// NewFakeAdapter returns a fake exposing the Retroboard service with both
// characteristics and an RSSI of -60.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		errs:  make(map[string]error),
		gates: make(map[string]chan struct{}),
		services: []ble.ServiceDescriptor{{
			UUID:            ble.ServiceUUID,
			Characteristics: []string{ble.CommandCharUUID, ble.NotifyCharUUID},
		}},
		rssi: -60,
	}
}

// Compile-time check that FakeAdapter implements ble.Adapter.
var _ ble.Adapter = (*FakeAdapter)(nil)

// Fail makes every later call of op return err. A nil err clears the failure.
func (f *FakeAdapter) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// Block makes later calls of op wait until the returned release function is
// called or their context ends.
func (f *FakeAdapter) Block(op string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[op] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gates[op] == ch {
				delete(f.gates, op)
			}
			f.mu.Unlock()
			close(ch)
		})
	}
}

// SetServices replaces the services returned by DiscoverServices.
func (f *FakeAdapter) SetServices(services []ble.ServiceDescriptor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services = services
}

// SetRSSI sets the value returned by ReadSignalStrength.
func (f *FakeAdapter) SetRSSI(v int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rssi = v
}

// SetConnected sets the peripherals returned by ListConnectedPeripherals.
func (f *FakeAdapter) SetConnected(ps []ble.Peripheral) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = ps
}

// Calls returns the recorded calls of op, or all calls when op is empty.
func (f *FakeAdapter) Calls(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// WaitForCall polls until op has been called n times or timeout passes.
func (f *FakeAdapter) WaitForCall(op string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(f.Calls(op)) >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return len(f.Calls(op)) >= n
}

// Discover emits a discovery event for p.
func (f *FakeAdapter) Discover(p ble.Peripheral) {
	f.Emit(ble.Event{Kind: ble.EventDiscovered, Peripheral: p})
}

// StopScanEvent emits a scan-stopped event.
func (f *FakeAdapter) StopScanEvent() {
	f.Emit(ble.Event{Kind: ble.EventScanStopped})
}

// PeerDisconnect emits a disconnected event for id.
func (f *FakeAdapter) PeerDisconnect(id string) {
	f.Emit(ble.Event{Kind: ble.EventDisconnected, PeripheralID: id})
}

// Notify emits a characteristic update.
func (f *FakeAdapter) Notify(id, charUUID string, data []byte) {
	f.Emit(ble.Event{
		Kind:               ble.EventCharacteristicUpdate,
		PeripheralID:       id,
		CharacteristicUUID: charUUID,
		Data:               data,
	})
}

// record stores the call, then waits on any gate for the op and returns the
// configured error.
func (f *FakeAdapter) record(ctx context.Context, c Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	gate := f.gates[c.Op]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[c.Op]; err != nil {
		return fmt.Errorf("fake %s: %w", c.Op, err)
	}
	return nil
}

func (f *FakeAdapter) Enable() error {
	return f.record(context.Background(), Call{Op: OpEnable})
}

func (f *FakeAdapter) Scan(ctx context.Context, serviceUUIDs []string, _ time.Duration, _ bool) error {
	filter := append([]string(nil), serviceUUIDs...)
	return f.record(ctx, Call{Op: OpScan, Filter: filter})
}

func (f *FakeAdapter) StopScan() error {
	return f.record(context.Background(), Call{Op: OpStopScan})
}

func (f *FakeAdapter) Connect(ctx context.Context, id string) error {
	return f.record(ctx, Call{Op: OpConnect, PeripheralID: id})
}

func (f *FakeAdapter) Disconnect(ctx context.Context, id string) error {
	return f.record(ctx, Call{Op: OpDisconnect, PeripheralID: id})
}

func (f *FakeAdapter) DiscoverServices(ctx context.Context, id string) ([]ble.ServiceDescriptor, error) {
	if err := f.record(ctx, Call{Op: OpDiscover, PeripheralID: id}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ble.ServiceDescriptor(nil), f.services...), nil
}

func (f *FakeAdapter) SubscribeNotifications(ctx context.Context, id, serviceUUID, charUUID string) error {
	return f.record(ctx, Call{Op: OpSubscribe, PeripheralID: id, ServiceUUID: serviceUUID, CharUUID: charUUID})
}

func (f *FakeAdapter) WriteCharacteristic(ctx context.Context, id, serviceUUID, charUUID string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	return f.record(ctx, Call{Op: OpWrite, PeripheralID: id, ServiceUUID: serviceUUID, CharUUID: charUUID, Data: cp})
}

func (f *FakeAdapter) ReadSignalStrength(ctx context.Context, id string) (int, error) {
	if err := f.record(ctx, Call{Op: OpReadRSSI, PeripheralID: id}); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rssi, nil
}

func (f *FakeAdapter) ListConnectedPeripherals(ctx context.Context, serviceUUIDs []string) ([]ble.Peripheral, error) {
	filter := append([]string(nil), serviceUUIDs...)
	if err := f.record(ctx, Call{Op: OpListConnected, Filter: filter}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ble.Peripheral(nil), f.connected...), nil
}
