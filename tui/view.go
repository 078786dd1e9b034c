package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/botfleet/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("244"))

	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	busyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimmedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	selectedRow  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	statusBar    = lipgloss.NewStyle().Background(lipgloss.Color("236")).Foreground(lipgloss.Color("255"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	online, busy := 0, 0
	for _, bot := range m.bots {
		switch bot.Status {
		case domain.BotOnline:
			online++
		case domain.BotBusy:
			busy++
		}
	}
	header := fmt.Sprintf(" botfleet │ Bots: %d │ Online: %d │ Busy: %d │ Campaign: %s ",
		len(m.bots), online, busy, m.status.Phase)
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	var content string
	switch m.activeTab {
	case tabFleet:
		content = m.renderFleet()
	case tabCampaign:
		content = m.renderCampaign()
	case tabHistory:
		content = m.renderHistory()
	}
	b.WriteString(sectionStyle.Width(m.width - 2).Render(content))
	b.WriteString("\n")

	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderTabs() string {
	names := []string{"Fleet", "Campaign", "History"}
	parts := make([]string, len(names))
	for i, name := range names {
		if i == m.activeTab {
			parts[i] = tabActiveStyle.Render(name)
		} else {
			parts[i] = tabInactiveStyle.Render(name)
		}
	}
	return " " + strings.Join(parts, "  ")
}

func statusStyle(s domain.BotStatus) lipgloss.Style {
	switch s {
	case domain.BotOnline:
		return onlineStyle
	case domain.BotBusy:
		return busyStyle
	}
	return offlineStyle
}

func (m Model) renderFleet() string {
	if len(m.bots) == 0 {
		return dimmedStyle.Render("No bots registered")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-12s %5s  %-8s %8s %8s  %s\n", "NAME", "PORT", "STATUS", "REQUESTS", "UPTIME", "SPECIALTY"))
	for i, bot := range m.bots {
		status := statusStyle(bot.Status).Render(fmt.Sprintf("%-8s", bot.Status))
		name := fmt.Sprintf("%-12s", truncate(bot.Name, 12))
		if i == m.selectedRow {
			name = selectedRow.Render(name)
		}
		b.WriteString(fmt.Sprintf("%s %5d  %s %8s %8s  %s\n",
			name, bot.Port, status, humanize.Comma(int64(bot.Requests)), bot.Uptime, bot.Specialty))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderCampaign() string {
	var b strings.Builder

	st := m.status
	if st.Phase == domain.PhaseRunning && st.CampaignID != "" {
		b.WriteString(fmt.Sprintf("Campaign %s  %s against %s  intensity %d\n",
			shortID(st.CampaignID), st.Spec.Operation, st.Spec.Target(), st.Spec.Intensity))
		if !st.StartedAt.IsZero() {
			b.WriteString(dimmedStyle.Render("started "+humanize.Time(st.StartedAt)) + "\n")
		}
	} else {
		b.WriteString(fmt.Sprintf("No campaign running. Press s to launch %s against %s.\n",
			m.spec.Operation, m.spec.Target()))
	}
	b.WriteString(progressBar(st.Progress, m.barWidth()))
	b.WriteString(fmt.Sprintf(" %3d%%\n", st.Progress))

	if len(st.BotProgress) > 0 {
		names := make([]string, 0, len(st.BotProgress))
		for name := range st.BotProgress {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b.WriteString(fmt.Sprintf("  %-12s %s %3d%%\n", truncate(name, 12), progressBar(st.BotProgress[name], 20), st.BotProgress[name]))
		}
	}

	if len(m.log) > 0 {
		b.WriteString("\n")
		lines := m.log
		if max := m.logLines(); len(lines) > max {
			lines = lines[len(lines)-max:]
		}
		for _, line := range lines {
			b.WriteString(dimmedStyle.Render(truncate(line, m.width-6)) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderHistory() string {
	if len(m.summaries) == 0 {
		return dimmedStyle.Render("No finished campaigns")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-9s %-10s %-22s %-10s %5s  %s\n", "ID", "OPERATION", "TARGET", "RESULT", "BOTS", "FINISHED"))
	for i, s := range m.summaries {
		id := fmt.Sprintf("%-9s", shortID(s.ID))
		if i == m.selectedRow {
			id = selectedRow.Render(id)
		}
		phase := fmt.Sprintf("%-10s", s.Phase)
		if s.Phase == domain.PhaseFailed {
			phase = errorStyle.Render(phase)
		}
		b.WriteString(fmt.Sprintf("%s %-10s %-22s %s %5d  %s (%s)\n",
			id, s.Spec.Operation, truncate(s.Spec.Target(), 22), phase, len(s.Participants),
			humanize.Time(s.FinishedAt), s.Duration().Round(time.Millisecond)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderStatusBar() string {
	left := " tab: switch  s: start  c: cancel  t: toggle bot  o: all online  f: all offline  r: refresh  q: quit "
	right := ""
	switch {
	case m.lastErr != nil:
		right = errorStyle.Render(m.lastErr.Error())
	case m.message != "":
		right = m.message
	case !m.lastRefresh.IsZero():
		right = "refreshed " + humanize.Time(m.lastRefresh)
	}
	return statusBar.Width(m.width).Render(left + " " + right)
}

func (m Model) barWidth() int {
	w := m.width - 16
	if w > 60 {
		w = 60
	}
	if w < 10 {
		w = 10
	}
	return w
}

func (m Model) logLines() int {
	n := m.height - 16
	if n < 3 {
		n = 3
	}
	return n
}

func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	return onlineStyle.Render(strings.Repeat("█", filled)) + dimmedStyle.Render(strings.Repeat("░", width-filled))
}

func truncate(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
