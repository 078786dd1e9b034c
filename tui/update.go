package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/botfleet/internal/domain"
	"github.com/hochfrequenz/botfleet/internal/events"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refreshCmd()
		case "j", "down":
			if m.selectedRow < m.rowCount()-1 {
				m.selectedRow++
			}
		case "k", "up":
			if m.selectedRow > 0 {
				m.selectedRow--
			}
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			m.selectedRow = 0
		case "s":
			return m, m.startCmd()
		case "c":
			return m, m.cancelCmd()
		case "o":
			return m, m.setAllCmd(domain.BotOnline)
		case "f":
			return m, m.setAllCmd(domain.BotOffline)
		case "t":
			return m, m.toggleCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd())

	case RefreshMsg:
		m.bots = msg.Bots
		m.status = msg.Status
		if msg.Err == nil && m.history != nil {
			m.summaries = msg.Summaries
		}
		if msg.Err != nil {
			m.lastErr = msg.Err
		}
		m.lastRefresh = msg.At
		if m.selectedRow >= m.rowCount() && m.selectedRow > 0 {
			m.selectedRow = m.rowCount() - 1
		}

	case ActionMsg:
		m.message = msg.Message
		m.lastErr = msg.Err
		return m, m.refreshCmd()

	case EventMsg:
		m.applyEvent(events.Event(msg))
		cmds := []tea.Cmd{waitForEvent(m.events)}
		if msg.Type == events.CampaignFinished || msg.Type == events.CampaignStarted {
			cmds = append(cmds, m.refreshCmd())
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *Model) applyEvent(e events.Event) {
	switch e.Type {
	case events.Progress:
		if e.Progress > m.status.Progress {
			m.status.Progress = e.Progress
		}
	case events.BotProgress:
		if m.status.BotProgress == nil {
			m.status.BotProgress = make(map[string]int)
		}
		m.status.BotProgress[e.Bot] = e.Progress
		// Per-bot ticks are too chatty for the log
		return
	case events.CampaignStarted:
		m.status.Phase = domain.PhaseRunning
		m.status.CampaignID = e.CampaignID
		m.status.Progress = 0
		m.status.BotProgress = nil
	case events.CampaignFinished:
		m.status.Phase = e.Phase
	}

	line := fmt.Sprintf("%s %-17s %s", e.Time.Format("15:04:05"), e.Type, e.Message)
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

func (m Model) rowCount() int {
	switch m.activeTab {
	case tabFleet:
		return len(m.bots)
	case tabHistory:
		return len(m.summaries)
	}
	return 0
}

func (m Model) startCmd() tea.Cmd {
	campaigns, spec := m.campaigns, m.spec.Clone()
	return func() tea.Msg {
		if campaigns == nil {
			return ActionMsg{Err: fmt.Errorf("campaigns unavailable")}
		}
		id, err := campaigns.Start(spec)
		if err != nil {
			return ActionMsg{Err: err}
		}
		return ActionMsg{Message: fmt.Sprintf("started %s against %s (%s)", spec.Operation, spec.Target(), shortID(id))}
	}
}

func (m Model) cancelCmd() tea.Cmd {
	campaigns := m.campaigns
	return func() tea.Msg {
		if campaigns == nil {
			return ActionMsg{Err: fmt.Errorf("campaigns unavailable")}
		}
		if err := campaigns.Cancel(); err != nil {
			return ActionMsg{Err: err}
		}
		return ActionMsg{Message: "cancellation requested"}
	}
}

func (m Model) setAllCmd(status domain.BotStatus) tea.Cmd {
	fleet := m.fleet
	return func() tea.Msg {
		if fleet == nil {
			return ActionMsg{Err: fmt.Errorf("fleet unavailable")}
		}
		changed, err := fleet.SetAllStatus(status)
		if err != nil {
			return ActionMsg{Err: err}
		}
		return ActionMsg{Message: fmt.Sprintf("%d bots set %s", len(changed), status)}
	}
}

// toggleCmd flips the selected bot between online and offline
func (m Model) toggleCmd() tea.Cmd {
	if m.activeTab != tabFleet || m.selectedRow >= len(m.bots) {
		return nil
	}
	fleet, bot := m.fleet, m.bots[m.selectedRow]
	status := domain.BotOnline
	if bot.Status == domain.BotOnline {
		status = domain.BotOffline
	}
	return func() tea.Msg {
		if fleet == nil {
			return ActionMsg{Err: fmt.Errorf("fleet unavailable")}
		}
		if err := fleet.SetStatus(bot.Name, status); err != nil {
			return ActionMsg{Err: err}
		}
		return ActionMsg{Message: fmt.Sprintf("%s set %s", bot.Name, status)}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
