package main

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/retroboard-remote/internal/ble"
	"github.com/chaz8081/retroboard-remote/internal/ble/bletest"
	"github.com/chaz8081/retroboard-remote/internal/remote"
)

const boardID = "AA:BB"

func newTestModel(t *testing.T) (model, *remote.Remote, *bletest.FakeAdapter) {
	t.Helper()
	opts := remote.DefaultOptions()
	opts.SettleDelay = 0
	opts.WriteRate = 0

	fake := bletest.NewFakeAdapter()
	r := remote.New(fake, remote.AllowAll{}, opts)
	require.NoError(t, r.Open())
	t.Cleanup(func() { _ = r.Close(context.Background()) })

	return newModel(context.Background(), r, []string{"clock", "clear"}), r, fake
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds msg to m and runs the resulting command, feeding its message
// back. It returns the final model.
func press(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(model)
	if cmd != nil {
		if out := cmd(); out != nil {
			next, _ = m.Update(out)
			m = next.(model)
		}
	}
	return m
}

func refreshed(t *testing.T, m model) model {
	t.Helper()
	next, _ := m.Update(changeMsg{})
	return next.(model)
}

func TestViewEmpty(t *testing.T) {
	m, _, _ := newTestModel(t)

	view := m.View()
	assert.Contains(t, view, "Retroboard Remote")
	assert.Contains(t, view, "no boards found")
	assert.Contains(t, view, "not connected")
	assert.Contains(t, view, "1 clock")
	assert.Contains(t, view, "2 clear")
}

func TestScanKeyStartsScan(t *testing.T) {
	m, _, fake := newTestModel(t)

	m = press(t, m, runes("s"))

	calls := fake.Calls(bletest.OpScan)
	require.Len(t, calls, 1)
	assert.Equal(t, []string{ble.ServiceUUID}, calls[0].Filter)
	assert.Equal(t, remote.ScanScanning, m.scan)
	assert.Contains(t, m.View(), "scanning")
	assert.Empty(t, m.notice)
}

func TestScanFailureShowsError(t *testing.T) {
	m, _, fake := newTestModel(t)
	fake.Fail(bletest.OpScan, errors.New("radio off"))

	m = press(t, m, runes("s"))

	assert.True(t, m.noticeErr)
	assert.Contains(t, m.View(), "radio off")
	assert.Equal(t, remote.ScanIdle, m.scan)
}

func TestDiscoveredBoardsAreListed(t *testing.T) {
	m, _, fake := newTestModel(t)
	rssi := -55
	fake.Discover(ble.Peripheral{ID: boardID, Name: "Board1", RSSI: &rssi})
	fake.Discover(ble.Peripheral{ID: "CC:DD"})

	m = refreshed(t, m)

	require.Len(t, m.peripherals, 2)
	view := m.View()
	assert.Contains(t, view, "Board1")
	assert.Contains(t, view, "-55 dBm")
	assert.Contains(t, view, "Unknown")
}

func TestCursorMovement(t *testing.T) {
	m, _, fake := newTestModel(t)
	fake.Discover(ble.Peripheral{ID: boardID})
	fake.Discover(ble.Peripheral{ID: "CC:DD"})
	m = refreshed(t, m)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.cursor)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.cursor, "cursor stops at the last board")
	m = press(t, m, runes("k"))
	assert.Equal(t, 0, m.cursor)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.cursor)
}

func TestEnterWithoutBoards(t *testing.T) {
	m, _, fake := newTestModel(t)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)

	assert.Nil(t, cmd)
	assert.Equal(t, "scan for a board first", m.notice)
	assert.Empty(t, fake.Calls(bletest.OpConnect))
}

func TestConnectSendAndDisconnect(t *testing.T) {
	m, r, fake := newTestModel(t)
	fake.Discover(ble.Peripheral{ID: boardID, Name: "Board1"})
	m = refreshed(t, m)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, remote.PhaseReady, m.session.Phase)
	assert.Contains(t, m.View(), "ready "+boardID)

	m = press(t, m, runes("1"))
	writes := fake.Calls(bletest.OpWrite)
	require.Len(t, writes, 1)
	assert.Equal(t, "clock", string(writes[0].Data))
	assert.Equal(t, ble.CommandCharUUID, writes[0].CharUUID)
	assert.Equal(t, "clock sent", m.notice)

	m = press(t, m, runes("2"))
	writes = fake.Calls(bletest.OpWrite)
	require.Len(t, writes, 2)
	assert.Equal(t, "clear", string(writes[1].Data))

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, remote.PhaseDisconnected, m.session.Phase)
	assert.Equal(t, remote.PhaseDisconnected, r.Session.State().Phase)
	rec, ok := r.Registry.Get(boardID)
	require.True(t, ok)
	assert.False(t, rec.Connected)
}

func TestCommandWhileDisconnectedIsNoop(t *testing.T) {
	m, _, fake := newTestModel(t)

	m = press(t, m, runes("1"))

	assert.Empty(t, fake.Calls(bletest.OpWrite))
	assert.Equal(t, "not connected", m.notice)
}

func TestCommandKeyWithoutButton(t *testing.T) {
	m, _, _ := newTestModel(t)

	_, cmd := m.Update(runes("5"))
	assert.Nil(t, cmd)
}

func TestNotificationIsShown(t *testing.T) {
	m, _, fake := newTestModel(t)
	fake.Discover(ble.Peripheral{ID: boardID})
	m = refreshed(t, m)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, remote.PhaseReady, m.session.Phase)

	fake.Notify(boardID, ble.NotifyCharUUID, []byte("12:34\x00"))
	m = refreshed(t, m)

	assert.Contains(t, m.View(), "12:34")
}

func TestSignalKey(t *testing.T) {
	m, _, fake := newTestModel(t)
	fake.Discover(ble.Peripheral{ID: boardID})
	m = refreshed(t, m)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	fake.SetRSSI(-42)

	m = press(t, m, runes("r"))

	assert.Equal(t, "signal -42 dBm", m.notice)
	assert.Contains(t, m.View(), "-42 dBm")
}

func TestSignalKeyNotReady(t *testing.T) {
	m, _, _ := newTestModel(t)

	m = press(t, m, runes("r"))

	assert.True(t, m.noticeErr)
	assert.Contains(t, m.notice, "signal")
}

func TestAlreadyConnectedKey(t *testing.T) {
	m, _, fake := newTestModel(t)
	fake.SetConnected([]ble.Peripheral{{ID: boardID, Name: "Board1"}})

	m = press(t, m, runes("c"))

	assert.Equal(t, "1 board(s) already connected", m.notice)
	require.Len(t, m.peripherals, 1)
	assert.False(t, m.peripherals[0].Connected)
}

func TestQuitKey(t *testing.T) {
	m, _, _ := newTestModel(t)

	_, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
