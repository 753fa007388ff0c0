package ui

import (
	"fmt"
	"strings"
	"time"

	"ems3/internal/domain"
	"ems3/internal/server"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const consoleLines = 200

type consoleModel struct {
	backend   Backend
	serverID  string
	server    *domain.ServerConfig
	status    domain.ServerStatus
	viewport  viewport.Model
	textInput textinput.Model
	ready     bool
	lines     []string
	message   string
	quick     []domain.QuickCommand
	template  int
	back      bool
	width     int
	height    int
}

type consoleDataMsg struct {
	server *domain.ServerConfig
	status domain.ServerStatus
	lines  []string
	quick  []domain.QuickCommand
}

type consoleTickMsg time.Time

func newConsole(backend Backend, id string) consoleModel {
	ti := textinput.New()
	ti.Placeholder = "Type a command..."
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 60

	return consoleModel{
		backend:   backend,
		serverID:  id,
		textInput: ti,
		template:  -1,
	}
}

// RunConsole shows the console of one server. It reports whether the user
// asked to go back to the dashboard.
func RunConsole(backend Backend, id string) (bool, error) {
	p := tea.NewProgram(newConsole(backend, id), tea.WithAltScreen(), tea.WithMouseCellMotion())
	m, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("error running console: %w", err)
	}
	if cm, ok := m.(consoleModel); ok {
		return cm.back, nil
	}
	return false, nil
}

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		fetchConsoleCmd(m.backend, m.serverID),
		consoleTickCmd(),
	)
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			m.back = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyCtrlT:
			if len(m.quick) == 0 {
				m.message = "No quick commands saved"
				return m, nil
			}
			m.template = (m.template + 1) % len(m.quick)
			qc := m.quick[m.template]
			m.textInput.SetValue(qc.Template)
			m.textInput.CursorEnd()
			m.message = qc.Name
			if qc.Description != "" {
				m.message += ": " + qc.Description
			}
			return m, nil
		case tea.KeyCtrlP:
			return m, playersCmd(m.backend, m.serverID)
		case tea.KeyCtrlL:
			m.message = recentCommands(m.backend.History(m.serverID), 5)
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 12
		contentWidth := msg.Width - 6
		if !m.ready {
			m.viewport = viewport.New(contentWidth, msg.Height-headerHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = contentWidth
			m.viewport.Height = msg.Height - headerHeight
		}
		m.viewport.SetContent(strings.Join(m.lines, "\n"))

	case consoleDataMsg:
		m.server = msg.server
		m.status = msg.status
		if msg.quick != nil {
			m.quick = msg.quick
			if m.template >= len(m.quick) {
				m.template = -1
			}
		}
		atBottom := !m.ready || m.viewport.AtBottom()
		m.lines = msg.lines
		if m.ready {
			m.viewport.SetContent(strings.Join(m.lines, "\n"))
			if atBottom {
				m.viewport.GotoBottom()
			}
		}
		return m, nil

	case actionMsg:
		m.message = string(msg)
		return m, fetchConsoleCmd(m.backend, m.serverID)

	case errMsg:
		m.message = "Error: " + msg.Error()
		return m, nil

	case consoleTickMsg:
		return m, tea.Batch(fetchConsoleCmd(m.backend, m.serverID), consoleTickCmd())
	}

	m.textInput, tiCmd = m.textInput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

// submit sends the typed command. Quick command placeholders must be filled
// in by hand first.
func (m consoleModel) submit() (tea.Model, tea.Cmd) {
	raw := strings.TrimSpace(m.textInput.Value())
	if raw == "" {
		return m, nil
	}
	command, err := server.Expand(raw, nil)
	if err != nil {
		m.message = fmt.Sprintf("Replace the placeholders first (%v)", err)
		return m, nil
	}

	m.textInput.SetValue("")
	m.template = -1
	backend, id := m.backend, m.serverID
	return m, func() tea.Msg {
		if err := backend.SendCommand(id, command); err != nil {
			return errMsg(err)
		}
		return actionMsg("Sent: " + command)
	}
}

func playersCmd(backend Backend, id string) tea.Cmd {
	return func() tea.Msg {
		players, err := backend.OnlinePlayers(id)
		if err != nil {
			return errMsg(err)
		}
		if len(players) == 0 {
			return actionMsg("No players online")
		}
		return actionMsg(fmt.Sprintf("Online (%d): %s", len(players), strings.Join(players, ", ")))
	}
}

func recentCommands(history []domain.CommandEntry, n int) string {
	if len(history) == 0 {
		return "No commands sent yet"
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	parts := make([]string, 0, len(history))
	for _, e := range history {
		parts = append(parts, fmt.Sprintf("%s %s", e.Timestamp.Format("15:04:05"), e.Command))
	}
	return strings.Join(parts, " | ")
}

func (m consoleModel) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	title := headerStyle.Width(m.width).Render("SERVER CONSOLE")

	info := "Loading server details..."
	if m.server != nil {
		statusColor, statusIcon := "160", "🔴"
		if m.status.Running() {
			statusColor, statusIcon = "42", "🟢"
		}
		nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(statusColor))

		info = fmt.Sprintf("Server: %s %s  •  ID: %s  •  Port: %d\nCore: %s (%s)  •  Java: %s %s",
			statusIcon, nameStyle.Render(m.server.Name), m.server.ID, m.server.Port,
			m.server.CoreFile, m.server.CoreType, m.server.JavaPath, m.server.JavaArgs)
		if m.status.Running() {
			info += fmt.Sprintf("\nPID %d  •  CPU %.1f%%  •  RAM %.2f MB", m.status.PID, m.status.CPUPercent, m.status.MemoryMB)
		}
	}

	headerBox := baseStyle.
		Width(m.width-4).
		Align(lipgloss.Center).
		Padding(0, 1).
		Render(info)

	console := baseStyle.
		Width(m.width - 4).
		Render(m.viewport.View())

	lines := []string{fmt.Sprintf("→ %s", m.textInput.View())}
	if m.message != "" {
		lines = append(lines, messageStyle.MarginLeft(0).Render(m.message))
	}
	lines = append(lines, lipgloss.NewStyle().
		Width(m.width-6).
		Align(lipgloss.Center).
		Render(helpLine("enter", "send", "ctrl+t", "quick command", "ctrl+p", "players", "ctrl+l", "history", "esc", "back", "ctrl+c", "quit")))

	footerBox := footerStyle.
		Width(m.width - 4).
		Align(lipgloss.Left).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))

	return lipgloss.JoinVertical(lipgloss.Center,
		title,
		headerBox,
		console,
		footerBox,
	)
}

func consoleTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return consoleTickMsg(t)
	})
}

func fetchConsoleCmd(backend Backend, id string) tea.Cmd {
	return func() tea.Msg {
		srv, err := backend.GetServer(id)
		if err != nil {
			return errMsg(err)
		}
		lines, err := backend.Tail(id, consoleLines)
		if err != nil {
			lines = []string{"(log unavailable: " + err.Error() + ")"}
		}
		quick, _ := backend.QuickCommands()
		return consoleDataMsg{server: srv, status: backend.Status(id), lines: lines, quick: quick}
	}
}
