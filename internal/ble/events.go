package ble

import (
	"fmt"
	"sync"

	"github.com/chaz8081/retroboard-remote/internal/event"
)

// EventKind identifies one of the adapter's unsolicited events.
type EventKind int

const (
	// EventDiscovered carries a Peripheral seen while scanning.
	EventDiscovered EventKind = iota
	// EventScanStopped signals the end of a scan.
	EventScanStopped
	// EventDisconnected carries the ID of a peripheral whose link dropped.
	EventDisconnected
	// EventCharacteristicUpdate carries a notification value.
	EventCharacteristicUpdate
)

func (k EventKind) String() string {
	switch k {
	case EventDiscovered:
		return "discovered"
	case EventScanStopped:
		return "scan-stopped"
	case EventDisconnected:
		return "disconnected"
	case EventCharacteristicUpdate:
		return "characteristic-update"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is emitted by an Adapter. Which fields are set depends on Kind.
type Event struct {
	Kind               EventKind
	Peripheral         Peripheral // EventDiscovered
	PeripheralID       string     // EventDisconnected, EventCharacteristicUpdate
	CharacteristicUUID string     // EventCharacteristicUpdate
	Data               []byte     // EventCharacteristicUpdate
}

// Emitter keeps one subscriber list per event kind. Adapter implementations
// embed it to satisfy the Subscribe half of Adapter.
type Emitter struct {
	mu    sync.Mutex
	buses map[EventKind]*event.Bus[Event]
}

func (e *Emitter) bus(kind EventKind) *event.Bus[Event] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.buses == nil {
		e.buses = make(map[EventKind]*event.Bus[Event])
	}
	b, ok := e.buses[kind]
	if !ok {
		b = &event.Bus[Event]{}
		e.buses[kind] = b
	}
	return b
}

// Subscribe registers handler for events of kind.
func (e *Emitter) Subscribe(kind EventKind, handler func(Event)) (unsubscribe func()) {
	return e.bus(kind).Subscribe(handler)
}

// Emit delivers ev to the handlers registered for ev.Kind.
func (e *Emitter) Emit(ev Event) {
	e.bus(ev.Kind).Publish(ev)
}

// Subscribers returns the number of handlers registered for kind.
func (e *Emitter) Subscribers(kind EventKind) int {
	return e.bus(kind).Len()
}
