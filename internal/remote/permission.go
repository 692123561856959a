package remote

import (
	"context"
	"fmt"
)

// PermissionGate reports and requests the platform permission needed before
// scanning (location access on mobile platforms).
type PermissionGate interface {
	HasLocationPermission() bool
	RequestLocationPermission(ctx context.Context) (bool, error)
}

// AllowAll is the gate for platforms where BLE scanning needs no location
// permission (Linux, macOS, Windows desktops).
type AllowAll struct{}

func (AllowAll) HasLocationPermission() bool { return true }

func (AllowAll) RequestLocationPermission(context.Context) (bool, error) { return true, nil }

// checkPermission asks gate for permission if it is not already held.
func checkPermission(ctx context.Context, gate PermissionGate) error {
	if gate == nil || gate.HasLocationPermission() {
		return nil
	}
	granted, err := gate.RequestLocationPermission(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	if !granted {
		return ErrPermissionDenied
	}
	return nil
}
