package ui

import (
	"context"
	"fmt"
	"os"
	"time"

	"ems3/internal/domain"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type model struct {
	table    table.Model
	backend  Backend
	servers  []domain.ServerConfig
	status   map[string]domain.ServerStatus
	err      error
	width    int
	height   int
	loading  bool
	message  string
	selected string
}

type serverDataMsg struct {
	servers []domain.ServerConfig
	status  map[string]domain.ServerStatus
}

type actionMsg string

type errMsg error

type tickMsg time.Time

func newDashboard(backend Backend) model {
	columns := []table.Column{
		{Title: "Sts", Width: 3},
		{Title: "ID", Width: 8},
		{Title: "Name", Width: 20},
		{Title: "Port", Width: 6},
		{Title: "Core", Width: 22},
		{Title: "CPU", Width: 8},
		{Title: "RAM", Width: 10},
		{Title: "Uptime", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return model{
		table:   t,
		backend: backend,
		loading: true,
		status:  make(map[string]domain.ServerStatus),
	}
}

// RunDashboard shows the server table. It returns the id of the server whose
// console was opened, or "" when the user quit.
func RunDashboard(backend Backend) (string, error) {
	program := tea.NewProgram(newDashboard(backend), tea.WithAltScreen(), tea.WithInput(os.Stdin), tea.WithOutput(os.Stdout))
	finalModel, err := program.Run()
	if err != nil {
		return "", fmt.Errorf("error running dashboard: %w", err)
	}
	if m, ok := finalModel.(model); ok {
		return m.selected, nil
	}
	return "", nil
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		fetchDataCmd(m.backend),
		tickCmd(),
	)
}

func (m model) selectedID() string {
	row := m.table.SelectedRow()
	if len(row) > 1 {
		return row[1]
	}
	return ""
}

func (m model) serverName(id string) string {
	for _, s := range m.servers {
		if s.ID == id {
			return s.Name
		}
	}
	return id
}

func clearMessage() tea.Cmd {
	return tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
		return "clear_message"
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		id := m.selectedID()
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "s":
			if id == "" {
				break
			}
			if m.status[id].Running() {
				m.message = fmt.Sprintf("%s is already running", m.serverName(id))
				return m, clearMessage()
			}
			m.message = fmt.Sprintf("Starting %s...", m.serverName(id))
			return m, m.action(id, "started", m.backend.Start)
		case "x":
			if id == "" {
				break
			}
			if !m.status[id].Running() {
				m.message = fmt.Sprintf("%s is not running", m.serverName(id))
				return m, clearMessage()
			}
			m.message = fmt.Sprintf("Stopping %s...", m.serverName(id))
			return m, m.action(id, "stopped", m.backend.Stop)
		case "r":
			if id == "" {
				break
			}
			m.message = fmt.Sprintf("Restarting %s...", m.serverName(id))
			return m, m.action(id, "restarted", m.backend.Restart)
		case "b":
			if id == "" {
				break
			}
			m.message = fmt.Sprintf("Backing up %s...", m.serverName(id))
			return m, backupCmd(m.backend, id, m.serverName(id))
		case "enter":
			if id != "" {
				m.selected = id
				return m, tea.Quit
			}
		}
	case string:
		if msg == "clear_message" {
			m.message = ""
			return m, nil
		}
	case actionMsg:
		m.message = string(msg)
		return m, tea.Batch(fetchDataCmd(m.backend), clearMessage())
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width - 10)
		m.table.SetHeight(msg.Height - 12)
	case serverDataMsg:
		m.loading = false
		m.err = nil
		m.servers = msg.servers
		m.status = msg.status
		m.updateTable()
		return m, nil
	case tickMsg:
		return m, tea.Batch(fetchDataCmd(m.backend), tickCmd())
	case errMsg:
		m.err = msg
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m model) action(id, done string, fn func(string) error) tea.Cmd {
	name := m.serverName(id)
	return func() tea.Msg {
		if err := fn(id); err != nil {
			return actionMsg(fmt.Sprintf("%s: %v", name, err))
		}
		return actionMsg(fmt.Sprintf("%s %s", name, done))
	}
}

func backupCmd(backend Backend, id, name string) tea.Cmd {
	return func() tea.Msg {
		rec, err := backend.Backup(context.Background(), id)
		if err != nil {
			return actionMsg(fmt.Sprintf("%s: backup failed: %v", name, err))
		}
		return actionMsg(fmt.Sprintf("%s: wrote %s (%.2f MB)", name, rec.Name, rec.SizeMB))
	}
}

func (m *model) updateTable() {
	rows := []table.Row{}
	for _, s := range m.servers {
		st := m.status[s.ID]
		icon := "🔴"
		cpu, ram, uptime := "-", "-", "-"
		if st.Running() {
			icon = "🟢"
			cpu = fmt.Sprintf("%.1f%%", st.CPUPercent)
			ram = fmt.Sprintf("%.0fMB", st.MemoryMB)
			uptime = time.Since(st.StartedAt).Truncate(time.Second).String()
		}

		rows = append(rows, table.Row{
			icon,
			s.ID,
			s.Name,
			fmt.Sprintf("%d", s.Port),
			fmt.Sprintf("%s (%s)", s.CoreFile, s.CoreType),
			cpu,
			ram,
			uptime,
		})
	}
	m.table.SetRows(rows)
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	running := 0
	for _, st := range m.status {
		if st.Running() {
			running++
		}
	}

	title := headerStyle.Render("EMS3")
	clock := subHeaderStyle.Render(time.Now().Format("Mon Jan 2 15:04:05"))
	hostInfo := fmt.Sprintf("Servers: %d  |  Running: %d", len(m.servers), running)
	if m.loading {
		hostInfo = "Loading servers..."
	}

	headerBox := baseStyle.
		Width(m.width-4).
		Align(lipgloss.Center).
		Padding(0, 1).
		Render(lipgloss.JoinVertical(lipgloss.Center, title, clock, " ", hostInfo))

	tableContainer := baseStyle.
		Width(m.width - 4).
		Height(m.height - 12).
		Render(m.table.View())

	footerText := lipgloss.NewStyle().MarginLeft(2).Render(
		helpLine("↑/↓", "navigate", "s", "start", "x", "stop", "r", "restart", "b", "backup", "enter", "console", "q", "quit"),
	)
	if m.err != nil {
		footerText = fmt.Sprintf("%s\n%s", messageStyle.Render("Error: "+m.err.Error()), footerText)
	} else if m.message != "" {
		footerText = fmt.Sprintf("%s\n%s", messageStyle.Render(m.message), footerText)
	}

	return lipgloss.JoinVertical(lipgloss.Center,
		headerBox,
		tableContainer,
		footerText,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchDataCmd(backend Backend) tea.Cmd {
	return func() tea.Msg {
		servers, err := backend.ListServers()
		if err != nil {
			return errMsg(err)
		}

		status := make(map[string]domain.ServerStatus, len(servers))
		for _, s := range servers {
			status[s.ID] = backend.Status(s.ID)
		}
		return serverDataMsg{servers: servers, status: status}
	}
}
