package remote

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/time/rate"

	"github.com/chaz8081/retroboard-remote/internal/ble"
	"github.com/chaz8081/retroboard-remote/internal/ble/protocol"
)

// Dispatcher writes commands to the Ready peripheral.
type Dispatcher struct {
	adapter     ble.Adapter
	session     *Session
	serviceUUID string
	charUUID    string
	limiter     *rate.Limiter
}

// NewDispatcher creates a dispatcher writing to the command characteristic
// named in opts, paced to opts.WriteRate writes per second.
func NewDispatcher(adapter ble.Adapter, session *Session, opts Options) *Dispatcher {
	limit := rate.Inf
	if opts.WriteRate > 0 && !math.IsInf(opts.WriteRate, 1) {
		limit = rate.Limit(opts.WriteRate)
	}
	burst := opts.WriteBurst
	if burst <= 0 {
		burst = 1
	}
	return &Dispatcher{
		adapter:     adapter,
		session:     session,
		serviceUUID: opts.ServiceUUID,
		charUUID:    opts.CommandCharUUID,
		limiter:     rate.NewLimiter(limit, burst),
	}
}

// Send writes command to the peripheral. It does nothing and returns nil
// unless the session is Ready. A failed write is returned but leaves the
// session as it was.
func (d *Dispatcher) Send(ctx context.Context, command string) error {
	id, ready := d.session.readyPeripheral()
	if !ready {
		slog.Debug("[SESSION] not ready, dropping command", "command", command)
		return nil
	}

	payload, err := protocol.EncodeCommand(command)
	if err != nil {
		return err
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("remote: waiting to send %q: %w", command, err)
	}
	// The session may have ended or moved while the limiter held the command.
	if now, ready := d.session.readyPeripheral(); !ready || now != id {
		slog.Debug("[SESSION] session ended while paced, dropping command", "id", id, "command", command)
		return nil
	}

	if err := d.adapter.WriteCharacteristic(ctx, id, d.serviceUUID, d.charUUID, payload); err != nil {
		slog.Warn("[SESSION] command write failed", "id", id, "command", command, "error", err)
		return fmt.Errorf("%w: write %q: %w", ErrAdapterCallFailed, command, err)
	}
	slog.Debug("[SESSION] command sent", "id", id, "command", command)
	return nil
}
