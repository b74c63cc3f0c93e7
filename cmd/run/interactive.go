package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/capture-bridge/bridge"
	"github.com/wippyai/capture-bridge/config"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	actionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type action int

const (
	actionLoad action = iota
	actionInit
	actionCapture
	actionUninit
	actionUnload
)

var actions = []struct {
	label string
	id    action
}{
	{"Load module", actionLoad},
	{"Initialize", actionInit},
	{"Capture template", actionCapture},
	{"Uninitialize", actionUninit},
	{"Unload module", actionUnload},
}

type modelState int

const (
	stateSelect modelState = iota
	stateQuality
	stateBusy
	stateShowResult
)

type interactiveModel struct {
	err      error
	session  *session
	cfg      config.Config
	result   string
	quality  textinput.Model
	selected int
	state    modelState
}

type sessionMsg struct {
	err     error
	session *session
}

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(cfg config.Config) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = "quality: "
	ti.Placeholder = strconv.Itoa(cfg.DefaultQuality)
	ti.Width = 10

	return &interactiveModel{
		cfg:     cfg,
		quality: ti,
		state:   stateSelect,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.openSession
}

func (m *interactiveModel) openSession() tea.Msg {
	cfg := m.cfg
	// Logs would draw over the alt screen.
	cfg.LogLevel = "error"
	s, err := openSession(context.Background(), cfg)
	return sessionMsg{session: s, err: err}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, m.quit()

		case "q":
			if m.state != stateQuality {
				return m, m.quit()
			}

		case "up", "k":
			if m.state == stateSelect && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelect && m.selected < len(actions)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelect:
				if m.session == nil {
					return m, nil
				}
				if actions[m.selected].id == actionCapture {
					m.state = stateQuality
					m.quality.SetValue("")
					m.quality.Focus()
					return m, textinput.Blink
				}
				m.state = stateBusy
				return m, m.perform(actions[m.selected].id, 0)

			case stateQuality:
				q := m.cfg.DefaultQuality
				if v := strings.TrimSpace(m.quality.Value()); v != "" {
					n, err := strconv.Atoi(v)
					if err != nil {
						m.err = fmt.Errorf("quality %q is not a number", v)
						m.state = stateShowResult
						return m, nil
					}
					q = n
				}
				m.quality.Blur()
				m.state = stateBusy
				return m, m.perform(actionCapture, q)

			case stateShowResult:
				m.state = stateSelect
				m.result = ""
				m.err = nil
			}

		case "esc":
			switch m.state {
			case stateQuality:
				m.quality.Blur()
				m.state = stateSelect
			case stateShowResult:
				m.state = stateSelect
				m.result = ""
				m.err = nil
			}
		}

	case sessionMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateQuality {
		var cmd tea.Cmd
		m.quality, cmd = m.quality.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) quit() tea.Cmd {
	if m.session != nil {
		m.session.close(context.Background())
		m.session = nil
	}
	return tea.Quit
}

// perform runs one lifecycle action on the session worker.
func (m *interactiveModel) perform(id action, quality int) tea.Cmd {
	s, cfg := m.session, m.cfg
	return func() tea.Msg {
		ctx := context.Background()
		var (
			result string
			err    error
		)
		werr := s.call(ctx, func(ctx context.Context) {
			switch id {
			case actionLoad:
				if err = s.bridge.LoadModule(ctx, cfg.DriverPath); err == nil {
					result = "bound " + cfg.DriverPath
				}
			case actionInit:
				var code int32
				code, err = s.bridge.Initialize(ctx)
				result = fmt.Sprintf("status %d", code)
			case actionUninit:
				var code int32
				code, err = s.bridge.Uninitialize(ctx)
				result = fmt.Sprintf("status %d", code)
			case actionCapture:
				var res bridge.CaptureResult
				res, err = s.bridge.CaptureTemplate(ctx, quality)
				result = formatCapture(res)
			case actionUnload:
				s.bridge.UnloadModule()
				result = "released"
			}
		})
		if werr != nil {
			err = werr
		}
		return callResultMsg{result: result, err: err}
	}
}

func formatCapture(res bridge.CaptureResult) string {
	if !res.Success {
		return fmt.Sprintf("capture failed, errorCode %d", res.ErrorCode)
	}
	preview := res.Template
	if len(preview) > 48 {
		preview = preview[:48] + "..."
	}
	return fmt.Sprintf("%d bytes at quality %d\n%s", res.TemplateSize, res.Quality, preview)
}

func (m *interactiveModel) View() string {
	if m.session == nil {
		if m.err != nil {
			return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
		}
		return "Preparing driver loader..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Capture Bridge"))
	b.WriteString(" ")
	b.WriteString(m.cfg.DriverPath)
	b.WriteString(" ")
	b.WriteString(stateStyle.Render("[" + m.session.bridge.State().String() + "]"))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelect:
		for i, a := range actions {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + a.label))
			} else {
				b.WriteString("  " + actionStyle.Render(a.label))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter run • q quit"))

	case stateQuality:
		b.WriteString(m.quality.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter capture • esc back"))

	case stateBusy:
		b.WriteString(fmt.Sprintf("%s...", actionStyle.Render(actions[m.selected].label)))

	case stateShowResult:
		b.WriteString(fmt.Sprintf("%s:\n\n", actionStyle.Render(actions[m.selected].label)))
		if m.result != "" {
			b.WriteString(resultStyle.Render(m.result))
			b.WriteString("\n")
		}
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func runInteractive(cfg config.Config) error {
	p := tea.NewProgram(newInteractiveModel(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
