package remote

import (
	"log/slog"
	"sync"

	"github.com/chaz8081/retroboard-remote/internal/ble"
	"github.com/chaz8081/retroboard-remote/internal/registry"
)

// Bridge routes the adapter's four unsolicited events to the registry, the
// scanner and the session.
type Bridge struct {
	adapter  ble.Adapter
	registry *registry.Registry
	scanner  *Scanner
	session  *Session
	notify   notifier

	mu     sync.Mutex
	unsubs []func()
}

// NewBridge creates a bridge. Nothing is subscribed until Start.
func NewBridge(adapter ble.Adapter, reg *registry.Registry, scanner *Scanner, session *Session, notify func(Change)) *Bridge {
	return &Bridge{
		adapter:  adapter,
		registry: reg,
		scanner:  scanner,
		session:  session,
		notify:   notify,
	}
}

// Start subscribes to the adapter events.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unsubs != nil {
		return ErrBridgeStarted
	}
	b.unsubs = []func(){
		b.adapter.Subscribe(ble.EventDiscovered, guard(ble.EventDiscovered, b.onDiscovered)),
		b.adapter.Subscribe(ble.EventScanStopped, guard(ble.EventScanStopped, b.onScanStopped)),
		b.adapter.Subscribe(ble.EventDisconnected, guard(ble.EventDisconnected, b.onDisconnected)),
		b.adapter.Subscribe(ble.EventCharacteristicUpdate, guard(ble.EventCharacteristicUpdate, b.onCharacteristicUpdate)),
	}
	return nil
}

// Stop releases every subscription. Safe to call repeatedly.
func (b *Bridge) Stop() {
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

// Running reports whether the bridge is subscribed.
func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unsubs != nil
}

func (b *Bridge) onDiscovered(ev ble.Event) {
	p := ev.Peripheral
	b.registry.Upsert(registry.Record{ID: p.ID, Name: p.Name, RSSI: p.RSSI})
	b.notify.publish(ChangeRegistry)
}

func (b *Bridge) onScanStopped(ble.Event) {
	b.scanner.OnStopped()
}

func (b *Bridge) onDisconnected(ev ble.Event) {
	b.session.OnPeerDisconnected(ev.PeripheralID)
}

func (b *Bridge) onCharacteristicUpdate(ev ble.Event) {
	b.session.OnNotification(ev.PeripheralID, ev.CharacteristicUUID, ev.Data)
}

// guard keeps a panicking handler from taking down the adapter's goroutine.
func guard(kind ble.EventKind, fn func(ble.Event)) func(ble.Event) {
	return func(ev ble.Event) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("[BLE] event handler panicked", "event", kind, "panic", r)
			}
		}()
		fn(ev)
	}
}
