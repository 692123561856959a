package remote

import "errors"

var (
	// ErrAlreadyScanning is returned by Scanner.Start while a scan runs.
	ErrAlreadyScanning = errors.New("remote: already scanning")
	// ErrAdapterCallFailed wraps any failed radio adapter call.
	ErrAdapterCallFailed = errors.New("remote: adapter call failed")
	// ErrUnknownPeripheral is returned when connecting to an ID the registry has never seen.
	ErrUnknownPeripheral = errors.New("remote: unknown peripheral")
	// ErrStalePhase marks a completion that arrived for a session that has
	// since moved on or been torn down.
	ErrStalePhase = errors.New("remote: stale session phase")
	// ErrSessionActive is returned by Connect while another session exists.
	ErrSessionActive = errors.New("remote: session already active")
	// ErrNotConnected is returned by Disconnect when there is no session.
	ErrNotConnected = errors.New("remote: not connected")
	// ErrNotReady is returned by operations that need a Ready session.
	ErrNotReady = errors.New("remote: session not ready")
	// ErrPhaseTimeout is returned when a connect step exceeds the phase timeout.
	ErrPhaseTimeout = errors.New("remote: phase timed out")
	// ErrServiceMissing is returned when the peripheral lacks the Retroboard
	// service or one of its characteristics.
	ErrServiceMissing = errors.New("remote: service not found on peripheral")
	// ErrPermissionDenied is returned when the permission gate refuses scanning.
	ErrPermissionDenied = errors.New("remote: location permission denied")
	// ErrBridgeStarted is returned by Bridge.Start when already started.
	ErrBridgeStarted = errors.New("remote: event bridge already started")
)
