package remote

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/retroboard-remote/internal/ble"
	"github.com/chaz8081/retroboard-remote/internal/ble/bletest"
)

const testID = "AA:BB"

func testOptions() Options {
	opts := DefaultOptions()
	opts.SettleDelay = 0
	opts.PhaseTimeout = time.Second
	opts.WriteRate = 0
	return opts
}

// newTestRemote returns an opened Remote around a fake adapter.
func newTestRemote(t *testing.T, opts Options) (*Remote, *bletest.FakeAdapter) {
	t.Helper()
	fake := bletest.NewFakeAdapter()
	r := New(fake, AllowAll{}, opts)
	if err := r.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r, fake
}

// connectReady discovers testID and connects to it.
func connectReady(t *testing.T, r *Remote, fake *bletest.FakeAdapter) {
	t.Helper()
	fake.Discover(ble.Peripheral{ID: testID, Name: "Board1"})
	if err := r.Session.Connect(context.Background(), testID); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got := r.Session.State().Phase; got != PhaseReady {
		t.Fatalf("phase = %v, want %v", got, PhaseReady)
	}
}

// connectAsync runs Connect in the background and returns its result channel.
func connectAsync(r *Remote, id string) <-chan error {
	done := make(chan error, 1)
	go func() { done <- r.Session.Connect(context.Background(), id) }()
	return done
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Connect to return")
		return nil
	}
}

// changeRecorder collects published changes.
type changeRecorder struct {
	mu    sync.Mutex
	kinds []ChangeKind
}

func (c *changeRecorder) record(ch Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, ch.Kind)
}

func (c *changeRecorder) count(kind ChangeKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, k := range c.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

// denyGate refuses permission and counts requests.
type denyGate struct {
	requests int
	grant    bool
}

func (g *denyGate) HasLocationPermission() bool { return false }

func (g *denyGate) RequestLocationPermission(context.Context) (bool, error) {
	g.requests++
	return g.grant, nil
}
