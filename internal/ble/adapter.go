// Package ble provides the Radio Link Adapter used to talk to a Retroboard
// LED controller over Bluetooth Low Energy: scanning, connection management,
// GATT discovery, notification subscription and characteristic writes.
package ble

import (
	"context"
	"time"
)

// Retroboard BLE UUIDs
const (
	ServiceUUID     = "4fafc201-1fb5-459e-8fcc-c5c9c331914b"
	CommandCharUUID = "beb5483e-36e1-4688-b7f5-ea07361b26a8"
	NotifyCharUUID  = "beb5483e-36e1-4688-b7f5-ea07361b26a9"
)

// Peripheral is a peripheral as reported by the adapter, either from an
// advertisement or from connected-peripheral enumeration.
type Peripheral struct {
	ID   string // transport address (MAC on Linux, CoreBluetooth UUID on macOS)
	Name string // empty when the advertisement carries no local name
	RSSI *int   // nil when no signal reading accompanies the report
}

// ServiceDescriptor describes one GATT service found on a peripheral.
type ServiceDescriptor struct {
	UUID            string
	Characteristics []string
}

// Adapter abstracts the BLE radio for the controllers and for testing.
// Every blocking call takes a context; completion is the return of the call.
// Unsolicited activity (advertisements, scan end, link loss, notifications)
// is delivered to handlers registered with Subscribe.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan starts discovery of peripherals advertising any of serviceUUIDs
	// (all peripherals when empty). It returns once the scan is running;
	// the scan ends after duration or StopScan, signalled by EventScanStopped.
	Scan(ctx context.Context, serviceUUIDs []string, duration time.Duration, allowDuplicates bool) error
	// StopScan asks the radio to end discovery early.
	StopScan() error
	// Connect establishes a link to the peripheral with the given ID.
	Connect(ctx context.Context, id string) error
	// Disconnect terminates the link to the peripheral.
	Disconnect(ctx context.Context, id string) error
	// DiscoverServices lists the services and characteristics of a connected peripheral.
	DiscoverServices(ctx context.Context, id string) ([]ServiceDescriptor, error)
	// SubscribeNotifications enables notifications on a characteristic.
	// Values arrive as EventCharacteristicUpdate.
	SubscribeNotifications(ctx context.Context, id, serviceUUID, charUUID string) error
	// WriteCharacteristic writes data to a characteristic.
	WriteCharacteristic(ctx context.Context, id, serviceUUID, charUUID string, data []byte) error
	// ReadSignalStrength returns the current RSSI of the peripheral.
	ReadSignalStrength(ctx context.Context, id string) (int, error)
	// ListConnectedPeripherals returns peripherals that already have a link.
	ListConnectedPeripherals(ctx context.Context, serviceUUIDs []string) ([]Peripheral, error)
	// Subscribe registers handler for events of the given kind.
	Subscribe(kind EventKind, handler func(Event)) (unsubscribe func())
}
