package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chaz8081/retroboard-remote/internal/ble/protocol"
	"github.com/chaz8081/retroboard-remote/internal/registry"
	"github.com/chaz8081/retroboard-remote/internal/remote"
)

// changeMsg carries a controller change from the remote's subscriber.
type changeMsg struct {
	change remote.Change
}

// opDoneMsg is returned by the tea.Cmd that ran a blocking remote call.
type opDoneMsg struct {
	op   string
	err  error
	rssi int
	n    int
}

// model is the root bubbletea model of the remote.
type model struct {
	ctx      context.Context
	remote   *remote.Remote
	commands []string

	keys    keyMap
	help    help.Model
	spinner spinner.Model

	peripherals []registry.Record
	cursor      int
	scan        remote.ScanState
	session     remote.SessionState

	notice    string
	noticeErr bool
}

func newModel(ctx context.Context, r *remote.Remote, commands []string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = connectedStyle

	m := model{
		ctx:      ctx,
		remote:   r,
		commands: commands,
		keys:     newKeyMap(),
		help:     help.New(),
		spinner:  s,
	}
	m.refresh()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.retrieveConnected())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case changeMsg:
		m.refresh()
		return m, nil

	case opDoneMsg:
		m.finish(msg)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.peripherals)-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Scan):
		return m, m.run("scan", func(ctx context.Context) error {
			return m.remote.StartScan(ctx)
		})

	case key.Matches(msg, m.keys.Toggle):
		return m.toggle()

	case key.Matches(msg, m.keys.RSSI):
		return m, func() tea.Msg {
			rssi, err := m.remote.Session.ReadRSSI(m.ctx)
			return opDoneMsg{op: "signal", err: err, rssi: rssi}
		}

	case key.Matches(msg, m.keys.Linked):
		return m, m.retrieveConnected()

	case key.Matches(msg, m.keys.Command):
		i := int(msg.String()[0] - '1')
		if i < 0 || i >= len(m.commands) {
			return m, nil
		}
		command := m.commands[i]
		return m, m.run("send "+command, func(ctx context.Context) error {
			return m.remote.Commands.Send(ctx, command)
		})
	}
	return m, nil
}

// toggle connects to the selected peripheral when there is no session and
// ends the session otherwise, whatever phase it is in.
func (m model) toggle() (tea.Model, tea.Cmd) {
	if m.session.Phase != remote.PhaseDisconnected {
		return m, m.run("disconnect", func(ctx context.Context) error {
			return m.remote.Session.Disconnect(ctx)
		})
	}
	if len(m.peripherals) == 0 {
		m.notice, m.noticeErr = "scan for a board first", false
		return m, nil
	}
	id := m.peripherals[m.cursor].ID
	return m, m.run("connect", func(ctx context.Context) error {
		return m.remote.Session.Connect(ctx, id)
	})
}

func (m model) retrieveConnected() tea.Cmd {
	return func() tea.Msg {
		n, err := m.remote.RetrieveConnected(m.ctx)
		return opDoneMsg{op: "already connected", err: err, n: n}
	}
}

// run wraps a blocking remote call as a tea.Cmd.
func (m model) run(op string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(m.ctx)}
	}
}

// finish turns a completed call into the notice line.
func (m *model) finish(msg opDoneMsg) {
	switch {
	case errors.Is(msg.err, remote.ErrStalePhase):
		m.notice, m.noticeErr = "connect abandoned", false
	case msg.err != nil:
		m.notice, m.noticeErr = fmt.Sprintf("%s: %v", msg.op, msg.err), true
	case msg.op == "signal":
		m.notice, m.noticeErr = fmt.Sprintf("signal %d dBm", msg.rssi), false
	case msg.op == "already connected":
		if msg.n > 0 {
			m.notice, m.noticeErr = fmt.Sprintf("%d board(s) already connected", msg.n), false
		}
	case strings.HasPrefix(msg.op, "send "):
		if m.session.Phase == remote.PhaseReady {
			m.notice, m.noticeErr = strings.TrimPrefix(msg.op, "send ")+" sent", false
		} else {
			m.notice, m.noticeErr = "not connected", false
		}
	default:
		m.notice, m.noticeErr = "", false
	}
}

// refresh re-reads the controller state rendered by View.
func (m *model) refresh() {
	m.peripherals = m.remote.Registry.Snapshot()
	m.scan = m.remote.Scanner.State()
	m.session = m.remote.Session.State()
	if m.cursor >= len(m.peripherals) {
		m.cursor = max(len(m.peripherals)-1, 0)
	}
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Retroboard Remote"))
	b.WriteString("\n")
	if m.scan == remote.ScanScanning {
		b.WriteString(m.spinner.View() + " scanning...")
	} else {
		b.WriteString(dimStyle.Render("idle"))
	}
	b.WriteString("\n\n")

	b.WriteString(m.viewPeripherals())
	b.WriteString("\n")
	b.WriteString(m.viewSession())
	b.WriteString("\n\n")
	b.WriteString(m.viewButtons())
	b.WriteString("\n")

	if m.notice != "" {
		style := noticeStyle
		if m.noticeErr {
			style = errorStyle
		}
		b.WriteString(style.Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m model) viewPeripherals() string {
	if len(m.peripherals) == 0 {
		return dimStyle.Render("no boards found") + "\n"
	}
	var b strings.Builder
	for i, p := range m.peripherals {
		rssi := "?"
		if p.RSSI != nil {
			rssi = fmt.Sprintf("%d dBm", *p.RSSI)
		}
		line := fmt.Sprintf("%s  %s  %s", p.Name, dimStyle.Render(p.ID), rssi)
		switch {
		case p.Connected:
			line = connectedStyle.Render("● ") + line
		default:
			line = "  " + line
		}
		if i == m.cursor {
			line = selectedStyle.Render(">") + line
		} else {
			line = " " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) viewSession() string {
	s := m.session
	if s.Phase == remote.PhaseDisconnected {
		return dimStyle.Render("not connected")
	}
	line := fmt.Sprintf("%s %s", s.Phase, s.PeripheralID)
	if s.Phase != remote.PhaseReady {
		line = m.spinner.View() + " " + line
	} else {
		line = connectedStyle.Render(line)
	}
	if msg := protocol.DecodeMessage(s.LastMessage); msg != "" {
		line += "\n" + messageStyle.Render(msg)
	}
	return line
}

func (m model) viewButtons() string {
	style := disabledButtonStyle
	if m.session.Phase == remote.PhaseReady {
		style = buttonStyle
	}
	buttons := make([]string, 0, len(m.commands))
	for i, c := range m.commands {
		buttons = append(buttons, style.Render(fmt.Sprintf("%d %s", i+1, c)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, buttons...)
}
