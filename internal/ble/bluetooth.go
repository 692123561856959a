package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

var (
	errScanInProgress = errors.New("ble: scan already in progress")
	errNotConnected   = errors.New("ble: peripheral not connected")
)

// BluetoothAdapter implements Adapter on top of tinygo-org/bluetooth
// (BlueZ on Linux, CoreBluetooth on macOS, WinRT on Windows).
// On macOS, peripheral IDs are CoreBluetooth UUIDs rather than MAC addresses.
type BluetoothAdapter struct {
	Emitter

	adapter *bluetooth.Adapter

	// mu protects everything below.
	mu          sync.Mutex
	scanning    bool
	names       map[string]string // last advertised name per peripheral
	rssi        map[string]int    // last advertised RSSI per peripheral
	connections map[string]*bluetoothConnection
}

// NewBluetoothAdapter creates an adapter around the platform default radio.
func NewBluetoothAdapter() *BluetoothAdapter {
	return &BluetoothAdapter{
		adapter:     bluetooth.DefaultAdapter,
		names:       make(map[string]string),
		rssi:        make(map[string]int),
		connections: make(map[string]*bluetoothConnection),
	}
}

// Compile-time check that BluetoothAdapter implements Adapter.
var _ Adapter = (*BluetoothAdapter)(nil)

type bluetoothConnection struct {
	device *bluetooth.Device
	// chars is filled by DiscoverServices, keyed by lower-case
	// "service/characteristic" UUID pair.
	chars    map[string]*bluetooth.DeviceCharacteristic
	services []ServiceDescriptor
}

func (a *BluetoothAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	// tinygo/bluetooth reports link loss through the adapter-level connect
	// handler with connected=false.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := device.Address.String()
		a.mu.Lock()
		_, ok := a.connections[id]
		delete(a.connections, id)
		a.mu.Unlock()
		if ok {
			slog.Info("[BLE] link lost", "id", id)
			a.Emit(Event{Kind: EventDisconnected, PeripheralID: id})
		}
	})

	return nil
}

func (a *BluetoothAdapter) Scan(ctx context.Context, serviceUUIDs []string, duration time.Duration, allowDuplicates bool) error {
	filter, err := parseUUIDs(serviceUUIDs)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	if a.scanning {
		a.mu.Unlock()
		return errScanInProgress
	}
	a.scanning = true
	a.mu.Unlock()

	go a.runScan(filter, duration, allowDuplicates)
	return nil
}

// runScan blocks in the radio's scan loop until duration elapses or
// StopScan is called, then emits EventScanStopped.
func (a *BluetoothAdapter) runScan(filter []bluetooth.UUID, duration time.Duration, allowDuplicates bool) {
	var timer *time.Timer
	if duration > 0 {
		timer = time.AfterFunc(duration, func() {
			if err := a.adapter.StopScan(); err != nil {
				slog.Warn("[BLE] stop scan after timeout failed", "error", err)
			}
		})
	}

	seen := make(map[string]bool)
	err := a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !matchesFilter(result, filter) {
			return
		}
		id := result.Address.String()
		if !allowDuplicates && seen[id] {
			return
		}
		seen[id] = true

		rssi := int(result.RSSI)
		name := result.LocalName()
		a.mu.Lock()
		a.rssi[id] = rssi
		if name != "" {
			a.names[id] = name
		}
		a.mu.Unlock()

		a.Emit(Event{
			Kind:       EventDiscovered,
			Peripheral: Peripheral{ID: id, Name: name, RSSI: &rssi},
		})
	})
	if timer != nil {
		timer.Stop()
	}
	if err != nil {
		slog.Warn("[BLE] scan ended with error", "error", err)
	}

	a.mu.Lock()
	a.scanning = false
	a.mu.Unlock()
	a.Emit(Event{Kind: EventScanStopped})
}

func matchesFilter(result bluetooth.ScanResult, filter []bluetooth.UUID) bool {
	if len(filter) == 0 {
		return true
	}
	for _, uuid := range filter {
		if result.HasServiceUUID(uuid) {
			return true
		}
	}
	return false
}

func (a *BluetoothAdapter) StopScan() error {
	if err := a.adapter.StopScan(); err != nil {
		return fmt.Errorf("ble: stop scan: %w", err)
	}
	return nil
}

func (a *BluetoothAdapter) Connect(ctx context.Context, id string) error {
	// Address.Set parses a MAC on Linux and a UUID on macOS.
	var addr bluetooth.Address
	addr.Set(id)

	device, err := callWithRelease(ctx, func() (bluetooth.Device, error) {
		return a.adapter.Connect(addr, bluetooth.ConnectionParams{})
	}, func(late bluetooth.Device) {
		// The caller gave up before the link came up; nobody owns it.
		slog.Info("[BLE] dropping link from abandoned connect", "id", id)
		if err := late.Disconnect(); err != nil {
			slog.Warn("[BLE] dropping abandoned link failed", "id", id, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("ble: connect to %s: %w", id, err)
	}

	a.mu.Lock()
	a.connections[id] = &bluetoothConnection{device: &device}
	a.mu.Unlock()
	return nil
}

func (a *BluetoothAdapter) Disconnect(ctx context.Context, id string) error {
	a.mu.Lock()
	conn, ok := a.connections[id]
	delete(a.connections, id)
	a.mu.Unlock()
	if !ok {
		return nil
	}

	_, err := callWithContext(ctx, func() (struct{}, error) {
		return struct{}{}, conn.device.Disconnect()
	})
	if err != nil {
		return fmt.Errorf("ble: disconnect %s: %w", id, err)
	}
	return nil
}

func (a *BluetoothAdapter) connection(id string) (*bluetoothConnection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	conn, ok := a.connections[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNotConnected, id)
	}
	return conn, nil
}

func (a *BluetoothAdapter) DiscoverServices(ctx context.Context, id string) ([]ServiceDescriptor, error) {
	conn, err := a.connection(id)
	if err != nil {
		return nil, err
	}

	type discovery struct {
		services []ServiceDescriptor
		chars    map[string]*bluetooth.DeviceCharacteristic
	}
	d, err := callWithContext(ctx, func() (discovery, error) {
		svcs, err := conn.device.DiscoverServices(nil)
		if err != nil {
			return discovery{}, fmt.Errorf("ble: discover services: %w", err)
		}
		out := discovery{chars: make(map[string]*bluetooth.DeviceCharacteristic)}
		for _, svc := range svcs {
			chars, err := svc.DiscoverCharacteristics(nil)
			if err != nil {
				return discovery{}, fmt.Errorf("ble: discover characteristics of %s: %w", svc.UUID(), err)
			}
			desc := ServiceDescriptor{UUID: svc.UUID().String()}
			for i := range chars {
				charUUID := chars[i].UUID().String()
				desc.Characteristics = append(desc.Characteristics, charUUID)
				out.chars[charKey(desc.UUID, charUUID)] = &chars[i]
			}
			out.services = append(out.services, desc)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	conn.chars = d.chars
	conn.services = d.services
	a.mu.Unlock()
	return d.services, nil
}

func (a *BluetoothAdapter) characteristic(id, serviceUUID, charUUID string) (*bluetooth.DeviceCharacteristic, error) {
	conn, err := a.connection(id)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	char, ok := conn.chars[charKey(serviceUUID, charUUID)]
	if !ok {
		return nil, fmt.Errorf("ble: characteristic %s not discovered on %s", charUUID, id)
	}
	return char, nil
}

func (a *BluetoothAdapter) SubscribeNotifications(ctx context.Context, id, serviceUUID, charUUID string) error {
	char, err := a.characteristic(id, serviceUUID, charUUID)
	if err != nil {
		return err
	}
	_, err = callWithContext(ctx, func() (struct{}, error) {
		return struct{}{}, char.EnableNotifications(func(buf []byte) {
			// The radio reuses buf between notifications.
			data := make([]byte, len(buf))
			copy(data, buf)
			a.Emit(Event{
				Kind:               EventCharacteristicUpdate,
				PeripheralID:       id,
				CharacteristicUUID: charUUID,
				Data:               data,
			})
		})
	})
	if err != nil {
		return fmt.Errorf("ble: enable notifications on %s: %w", charUUID, err)
	}
	return nil
}

func (a *BluetoothAdapter) WriteCharacteristic(ctx context.Context, id, serviceUUID, charUUID string, data []byte) error {
	char, err := a.characteristic(id, serviceUUID, charUUID)
	if err != nil {
		return err
	}
	_, err = callWithContext(ctx, func() (int, error) {
		return char.WriteWithoutResponse(data)
	})
	if err != nil {
		return fmt.Errorf("ble: write %s: %w", charUUID, err)
	}
	return nil
}

// ReadSignalStrength reports the RSSI of the most recent advertisement seen
// from the peripheral. tinygo/bluetooth has no portable connected-RSSI read.
func (a *BluetoothAdapter) ReadSignalStrength(ctx context.Context, id string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	rssi, ok := a.rssi[id]
	if !ok {
		return 0, fmt.Errorf("ble: no signal reading for %s", id)
	}
	return rssi, nil
}

// ListConnectedPeripherals returns the links opened through this adapter.
// Links whose services are known are filtered by serviceUUIDs; links not yet
// discovered are always included.
func (a *BluetoothAdapter) ListConnectedPeripherals(ctx context.Context, serviceUUIDs []string) ([]Peripheral, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []Peripheral
	for id, conn := range a.connections {
		if conn.services != nil && !hasAnyService(conn.services, serviceUUIDs) {
			continue
		}
		p := Peripheral{ID: id, Name: a.names[id]}
		if rssi, ok := a.rssi[id]; ok {
			p.RSSI = &rssi
		}
		out = append(out, p)
	}
	return out, nil
}

func hasAnyService(services []ServiceDescriptor, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, svc := range services {
		for _, w := range want {
			if strings.EqualFold(svc.UUID, w) {
				return true
			}
		}
	}
	return false
}

func charKey(serviceUUID, charUUID string) string {
	return strings.ToLower(serviceUUID) + "/" + strings.ToLower(charUUID)
}

func parseUUIDs(ids []string) ([]bluetooth.UUID, error) {
	out := make([]bluetooth.UUID, 0, len(ids))
	for _, id := range ids {
		uuid, err := bluetooth.ParseUUID(id)
		if err != nil {
			return nil, fmt.Errorf("ble: parse service UUID %q: %w", id, err)
		}
		out = append(out, uuid)
	}
	return out, nil
}
