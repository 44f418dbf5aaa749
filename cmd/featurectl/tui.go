package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/featurekit/host"
	"github.com/wippyai/featurekit/session"
)

type installState int

const (
	stateLoading installState = iota
	stateReady
	stateUnsupported
	stateFailed
)

type (
	messageMsg     string
	loadingMsg     bool
	failureMsg     struct{ err error }
	unsupportedMsg struct{}
	lensesMsg      []session.Lens
	appliedMsg     struct {
		err error
		id  string
	}
)

// installer is the part of host.Installer the TUI drives.
type installer interface {
	TryInstall(ctx context.Context) error
	ApplyLens(id string) error
}

type installModel struct {
	ctx      context.Context
	inst     installer
	err      error
	applied  string
	messages []string
	lenses   []session.Lens
	spinner  spinner.Model
	selected int
	state    installState
	loading  bool
}

func newInstallModel(ctx context.Context, inst installer) *installModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = mutedStyle
	return &installModel{ctx: ctx, inst: inst, spinner: sp, loading: true}
}

func (m *installModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start)
}

func (m *installModel) start() tea.Msg {
	if err := m.inst.TryInstall(m.ctx); err != nil {
		return failureMsg{err: err}
	}
	return nil
}

func (m *installModel) apply(id string) tea.Cmd {
	return func() tea.Msg {
		return appliedMsg{id: id, err: m.inst.ApplyLens(id)}
	}
}

func (m *installModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.lenses)-1 {
				m.selected++
			}
		case "enter":
			if m.state == stateReady && len(m.lenses) > 0 {
				return m, m.apply(m.lenses[m.selected].ID)
			}
		}

	case messageMsg:
		m.messages = append(m.messages, string(msg))

	case loadingMsg:
		m.loading = bool(msg)

	case failureMsg:
		m.err = msg.err
		m.state = stateFailed
		m.loading = false

	case unsupportedMsg:
		m.state = stateUnsupported

	case lensesMsg:
		m.lenses = msg
		m.selected = 0
		m.state = stateReady

	case appliedMsg:
		if msg.err != nil {
			m.messages = append(m.messages, "apply "+msg.id+": "+msg.err.Error())
		} else {
			m.applied = msg.id
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *installModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Feature"))
	b.WriteString("\n\n")

	for _, msg := range m.messages {
		b.WriteString(mutedStyle.Render(msg))
		b.WriteString("\n")
	}
	if m.loading {
		b.WriteString(m.spinner.View() + " Loading...\n")
	}

	switch m.state {
	case stateFailed:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	case stateUnsupported:
		b.WriteString(warningStyle.Render("Feature is not supported on this host"))
		b.WriteString("\n")
	case stateReady:
		b.WriteString("\nLenses:\n\n")
		for i, l := range m.lenses {
			line := l.ID
			if l.Name != "" {
				line += " " + l.Name
			}
			if l.ID == m.applied {
				line += " " + successStyle.Render("(applied)")
			}
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		if len(m.lenses) == 0 {
			b.WriteString(mutedStyle.Render("  no lenses"))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ select • enter apply • q quit"))
	return b.String()
}

// teaView forwards installer notifications to a running program.
type teaView struct {
	send func(tea.Msg)
}

var _ host.View = teaView{}

func (v teaView) ShowMessage(msg string)           { v.send(messageMsg(msg)) }
func (v teaView) ShowLoading(loading bool)         { v.send(loadingMsg(loading)) }
func (v teaView) ShowInstallFailure(err error)     { v.send(failureMsg{err: err}) }
func (v teaView) ShowUnsupported()                 { v.send(unsupportedMsg{}) }
func (v teaView) ShowLenses(lenses []session.Lens) { v.send(lensesMsg(lenses)) }
func (v teaView) HideInstallButton()               {}

func runInteractive(ctx context.Context, a *app) error {
	var p *tea.Program
	inst, err := a.installer(teaView{send: func(msg tea.Msg) { p.Send(msg) }})
	if err != nil {
		return err
	}
	defer inst.Close()

	p = tea.NewProgram(newInstallModel(ctx, inst), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
