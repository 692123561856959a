package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/retroboard-remote/internal/ble"
	"github.com/chaz8081/retroboard-remote/internal/registry"
)

// Phase is the session's position in the connect sequence.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseDiscoveringServices
	PhaseSubscribing
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseDiscoveringServices:
		return "discovering services"
	case PhaseSubscribing:
		return "subscribing"
	case PhaseReady:
		return "ready"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// SessionState is a copy of the session fields.
type SessionState struct {
	PeripheralID string
	Phase        Phase
	LastMessage  []byte
}

// Session owns the single connected-peripheral slot and drives it through
// Connecting, DiscoveringServices, Subscribing and Ready. Any phase can drop
// straight back to Disconnected.
//
// Every connect step re-checks the session generation after its adapter call
// returns, so completions that arrive after a disconnect are discarded.
type Session struct {
	adapter  ble.Adapter
	registry *registry.Registry
	opts     Options
	notify   notifier

	mu          sync.Mutex
	id          string
	phase       Phase
	lastMessage []byte
	gen         uint64
	trace       string // correlation id for log lines of one session
}

// NewSession creates a disconnected session controller.
func NewSession(adapter ble.Adapter, reg *registry.Registry, opts Options, notify func(Change)) *Session {
	return &Session{
		adapter:  adapter,
		registry: reg,
		opts:     opts,
		notify:   notify,
	}
}

// State returns a copy of the current session.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var msg []byte
	if s.lastMessage != nil {
		msg = append([]byte(nil), s.lastMessage...)
	}
	return SessionState{PeripheralID: s.id, Phase: s.phase, LastMessage: msg}
}

// Connect runs the whole connect sequence to the peripheral with the given ID
// and returns once the session is Ready or has failed. Only one session may
// exist: Connect returns ErrSessionActive unless the phase is Disconnected.
// The registry record is marked connected as soon as the link exists.
func (s *Session) Connect(ctx context.Context, id string) error {
	if _, ok := s.registry.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeripheral, id)
	}

	s.mu.Lock()
	if s.phase != PhaseDisconnected {
		current := s.id
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionActive, current)
	}
	s.gen++
	gen := s.gen
	s.id = id
	s.phase = PhaseConnecting
	s.lastMessage = nil
	s.trace = uuid.NewString()
	log := slog.With("id", id, "session", s.trace)
	s.mu.Unlock()
	s.notify.publish(ChangeSession)

	log.Info("[SESSION] connecting")
	if err := s.step(ctx, "connect", func(ctx context.Context) error {
		return s.adapter.Connect(ctx, id)
	}); err != nil {
		if s.stale(gen) {
			// Disconnect already reset the session and dropped the link.
			log.Debug("[SESSION] connect failed for torn-down session", "error", err)
			return fmt.Errorf("%w: connect to %s", ErrStalePhase, id)
		}
		// A timed-out connect may still complete inside the radio stack.
		s.teardown(gen, id, !errors.Is(err, ErrAdapterCallFailed))
		log.Warn("[SESSION] connect failed", "error", err)
		return err
	}

	linked := s.advance(gen, PhaseConnecting, PhaseConnecting, func() {
		s.registry.MarkConnected(id, true)
	})
	if !linked {
		// Disconnected while the link was being established; the link the
		// adapter just opened belongs to nobody.
		s.dropLink(id)
		log.Debug("[SESSION] connect completed for torn-down session")
		return fmt.Errorf("%w: connect to %s", ErrStalePhase, id)
	}
	s.notify.publish(ChangeRegistry)
	log.Info("[SESSION] link up")

	if err := s.discover(ctx, gen, id); err != nil {
		return s.abort(gen, id, log, err)
	}
	if err := s.subscribe(ctx, gen, id); err != nil {
		return s.abort(gen, id, log, err)
	}

	log.Info("[SESSION] ready")
	return nil
}

func (s *Session) discover(ctx context.Context, gen uint64, id string) error {
	if err := sleepContext(ctx, s.opts.SettleDelay); err != nil {
		return err
	}
	if !s.advance(gen, PhaseConnecting, PhaseDiscoveringServices, nil) {
		return ErrStalePhase
	}
	s.notify.publish(ChangeSession)

	var services []ble.ServiceDescriptor
	if err := s.step(ctx, "discover services", func(ctx context.Context) error {
		var err error
		services, err = s.adapter.DiscoverServices(ctx, id)
		return err
	}); err != nil {
		return err
	}
	return s.checkServices(services)
}

// checkServices verifies the Retroboard service and both characteristics exist.
func (s *Session) checkServices(services []ble.ServiceDescriptor) error {
	for _, svc := range services {
		if !strings.EqualFold(svc.UUID, s.opts.ServiceUUID) {
			continue
		}
		var hasCommand, hasNotify bool
		for _, c := range svc.Characteristics {
			hasCommand = hasCommand || strings.EqualFold(c, s.opts.CommandCharUUID)
			hasNotify = hasNotify || strings.EqualFold(c, s.opts.NotifyCharUUID)
		}
		if !hasCommand || !hasNotify {
			return fmt.Errorf("%w: characteristics missing from service %s", ErrServiceMissing, s.opts.ServiceUUID)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrServiceMissing, s.opts.ServiceUUID)
}

func (s *Session) subscribe(ctx context.Context, gen uint64, id string) error {
	if err := sleepContext(ctx, s.opts.SettleDelay); err != nil {
		return err
	}
	if !s.advance(gen, PhaseDiscoveringServices, PhaseSubscribing, nil) {
		return ErrStalePhase
	}
	s.notify.publish(ChangeSession)

	if err := s.step(ctx, "subscribe", func(ctx context.Context) error {
		return s.adapter.SubscribeNotifications(ctx, id, s.opts.ServiceUUID, s.opts.NotifyCharUUID)
	}); err != nil {
		return err
	}

	if !s.advance(gen, PhaseSubscribing, PhaseReady, nil) {
		return ErrStalePhase
	}
	s.notify.publish(ChangeSession)
	return nil
}

// abort ends a connect sequence that failed after the link came up.
// A step that fails after the session was torn down is stale whatever its
// error.
func (s *Session) abort(gen uint64, id string, log *slog.Logger, err error) error {
	if errors.Is(err, ErrStalePhase) || s.stale(gen) {
		log.Debug("[SESSION] dropping stale connect step", "error", err)
		return fmt.Errorf("%w: connect to %s", ErrStalePhase, id)
	}
	s.teardown(gen, id, true)
	log.Warn("[SESSION] connect sequence failed", "error", err)
	return err
}

// step runs one adapter call bounded by the phase timeout and classifies
// its failure.
func (s *Session) step(ctx context.Context, op string, fn func(context.Context) error) error {
	stepCtx := ctx
	if s.opts.PhaseTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, s.opts.PhaseTimeout)
		defer cancel()
	}
	err := fn(stepCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("remote: %s: %w", op, ctx.Err())
	}
	if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", ErrPhaseTimeout, op, s.opts.PhaseTimeout)
	}
	return fmt.Errorf("%w: %s: %w", ErrAdapterCallFailed, op, err)
}

// advance moves from one phase to the next if gen is still the live session
// and the phase is as expected. onAdvance runs under the session lock so
// registry updates cannot interleave with a concurrent reset.
func (s *Session) advance(gen uint64, from, to Phase, onAdvance func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.phase != from {
		return false
	}
	s.phase = to
	if onAdvance != nil {
		onAdvance()
	}
	return true
}

// stale reports whether gen is no longer the live session.
func (s *Session) stale(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen != gen
}

// teardown resets the session if gen is still live, and optionally drops the
// adapter link.
func (s *Session) teardown(gen uint64, id string, drop bool) {
	s.mu.Lock()
	live := s.gen == gen
	if live {
		s.resetLocked()
	}
	s.mu.Unlock()
	if live {
		s.notify.publish(ChangeSession)
		s.notify.publish(ChangeRegistry)
	}
	if drop && live {
		s.dropLink(id)
	}
}

// dropLink disconnects id without touching session state.
func (s *Session) dropLink(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.dropTimeout())
	defer cancel()
	if err := s.adapter.Disconnect(ctx, id); err != nil {
		slog.Warn("[SESSION] dropping link failed", "id", id, "error", err)
	}
}

func (s *Session) dropTimeout() time.Duration {
	if s.opts.PhaseTimeout > 0 {
		return s.opts.PhaseTimeout
	}
	return 10 * time.Second
}

// resetLocked returns to Disconnected. Caller holds s.mu.
func (s *Session) resetLocked() {
	if s.id != "" {
		s.registry.MarkConnected(s.id, false)
	}
	s.id = ""
	s.phase = PhaseDisconnected
	s.lastMessage = nil
	s.trace = ""
	s.gen++
}

// Disconnect ends the session from any phase other than Disconnected. Local
// state and the registry are reset before the adapter is called, so the
// caller sees Disconnected on return even if the adapter call fails.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.phase == PhaseDisconnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	id, trace := s.id, s.trace
	s.resetLocked()
	s.mu.Unlock()
	s.notify.publish(ChangeSession)
	s.notify.publish(ChangeRegistry)
	slog.Info("[SESSION] disconnected", "id", id, "session", trace)

	if err := s.adapter.Disconnect(ctx, id); err != nil {
		return fmt.Errorf("%w: disconnect %s: %w", ErrAdapterCallFailed, id, err)
	}
	return nil
}

// OnPeerDisconnected handles an unsolicited link loss. IDs other than the
// active session's are ignored.
func (s *Session) OnPeerDisconnected(id string) {
	s.mu.Lock()
	if s.phase == PhaseDisconnected || s.id != id {
		s.mu.Unlock()
		slog.Debug("[SESSION] ignoring disconnect for inactive peripheral", "id", id)
		return
	}
	trace := s.trace
	s.resetLocked()
	s.mu.Unlock()
	s.notify.publish(ChangeSession)
	s.notify.publish(ChangeRegistry)
	slog.Warn("[SESSION] peripheral disconnected", "id", id, "session", trace)
}

// OnNotification stores a value received on the notify characteristic of
// the active session. Values for other peripherals or characteristics, or
// arriving before the subscription step, are dropped.
func (s *Session) OnNotification(id, charUUID string, data []byte) {
	s.mu.Lock()
	accept := s.id == id &&
		(s.phase == PhaseSubscribing || s.phase == PhaseReady) &&
		strings.EqualFold(charUUID, s.opts.NotifyCharUUID)
	if accept {
		s.lastMessage = append([]byte(nil), data...)
	}
	s.mu.Unlock()
	if !accept {
		slog.Debug("[SESSION] dropping notification", "id", id, "char", charUUID)
		return
	}
	s.notify.publish(ChangeMessage)
}

// ReadRSSI reads the signal strength of the Ready peripheral into the
// registry. Failures leave the phase unchanged.
func (s *Session) ReadRSSI(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.phase != PhaseReady {
		s.mu.Unlock()
		return 0, ErrNotReady
	}
	id, gen := s.id, s.gen
	s.mu.Unlock()

	var rssi int
	err := s.step(ctx, "read rssi", func(ctx context.Context) error {
		var err error
		rssi, err = s.adapter.ReadSignalStrength(ctx, id)
		return err
	})
	if err != nil {
		slog.Warn("[SESSION] read rssi failed", "id", id, "error", err)
		return 0, err
	}

	if !s.advance(gen, PhaseReady, PhaseReady, func() { s.registry.SetRSSI(id, rssi) }) {
		return rssi, ErrStalePhase
	}
	s.notify.publish(ChangeRegistry)
	return rssi, nil
}

// readyPeripheral returns the peripheral ID when the session is Ready.
func (s *Session) readyPeripheral() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.phase == PhaseReady
}

// sleepContext waits for d or until ctx ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
