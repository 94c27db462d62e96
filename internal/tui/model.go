package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MegaGrindStone/chat-screen/internal/dialogue"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Config holds what the terminal screen needs.
type Config struct {
	Replier dialogue.Replier

	Archive   dialogue.Archive
	SessionID string

	Logger *slog.Logger
}

// Model is the bubbletea model of the dialogue screen: a viewport with the dialogue above a single
// line text input. Enter submits, Esc or Ctrl+C quits.
type Model struct {
	input    textinput.Model
	viewport viewport.Model
	styles   Styles

	surface *surface
	screen  *dialogue.Screen

	enabled bool
	items   []entryView
	ready   bool
}

// Styles are the lipgloss styles used to draw dialogue items.
type Styles struct {
	Speaker  lipgloss.Style
	Message  lipgloss.Style
	Disabled lipgloss.Style
	Border   lipgloss.Style
}

// refreshMsg asks the model to copy the surface into its widgets.
type refreshMsg struct{}

// DefaultStyles returns the styles used by NewModel.
func DefaultStyles() Styles {
	return Styles{
		Speaker:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Message:  lipgloss.NewStyle().PaddingLeft(2),
		Disabled: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Border:   lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderTop(true),
	}
}

// NewModel builds the dialogue screen on top of terminal widgets.
func NewModel(cfg Config) (Model, error) {
	ti := textinput.New()
	ti.Placeholder = "..."
	ti.Prompt = "> "
	ti.Focus()

	srf := &surface{enabled: true}

	screen, err := dialogue.New(dialogue.Config{
		Input:     inputField{s: srf},
		Submit:    submitControl{s: srf},
		Container: container{s: srf},
		Template:  itemTemplate{},
		Scroll:    scrollRegion{s: srf},
		Replier:   cfg.Replier,
		Archive:   cfg.Archive,
		SessionID: cfg.SessionID,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return Model{}, err
	}

	return Model{
		input:    ti,
		viewport: viewport.New(80, 20),
		styles:   DefaultStyles(),
		surface:  srf,
		screen:   screen,
		enabled:  true,
	}, nil
}

// Screen returns the dialogue screen driven by the model.
func (m Model) Screen() *dialogue.Screen {
	return m.screen
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Leave room for the border line and the input line
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-3, 1)
		m.input.Width = max(msg.Width-4, 1)
		m.ready = true
		m.viewport.SetContent(m.renderItems())
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if !m.enabled {
				return m, nil
			}
			m.surface.setInput(m.input.Value())
			m.surface.click()
			return m.sync(), nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case refreshMsg:
		return m.sync(), nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	inputLine := m.input.View()
	if !m.enabled {
		inputLine = m.styles.Disabled.Render(inputLine)
	}
	return fmt.Sprintf("%s\n%s", m.viewport.View(), m.styles.Border.Width(m.viewport.Width).Render(inputLine))
}

func (m Model) sync() Model {
	f := m.surface.frame()

	if f.setInput {
		m.input.SetValue(f.input)
	}
	m.enabled = f.enabled
	m.items = f.items
	m.viewport.SetContent(m.renderItems())
	if f.scroll {
		m.viewport.GotoBottom()
	}
	return m
}

func (m Model) renderItems() string {
	width := m.viewport.Width
	var sb strings.Builder
	for i, it := range m.items {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(m.styles.Speaker.Render(it.speaker))
		sb.WriteString("\n")
		sb.WriteString(m.styles.Message.Width(max(width-2, 1)).Render(it.message))
	}
	return sb.String()
}

// Run starts the terminal screen and blocks until the user quits. Replies still in flight at that
// point are not waited for.
func Run(ctx context.Context, cfg Config, opts ...tea.ProgramOption) error {
	m, err := NewModel(cfg)
	if err != nil {
		return err
	}

	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	p := tea.NewProgram(m, opts...)

	m.surface.mu.Lock()
	m.surface.notify = func() {
		// Send blocks while the program is busy in Update, which is where half of the handle calls
		// come from
		go p.Send(refreshMsg{})
	}
	m.surface.mu.Unlock()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run terminal screen: %w", err)
	}
	return nil
}
