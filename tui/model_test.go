package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/botfleet/internal/campaign"
	"github.com/hochfrequenz/botfleet/internal/domain"
	"github.com/hochfrequenz/botfleet/internal/events"
)

type fakeFleet struct {
	bots   []domain.Bot
	status domain.BotStatus
	set    map[string]domain.BotStatus
	setErr error
}

func (f *fakeFleet) List() []domain.Bot { return f.bots }

func (f *fakeFleet) SetAllStatus(status domain.BotStatus) ([]string, error) {
	f.status = status
	return []string{"AlphaBot"}, nil
}

func (f *fakeFleet) SetStatus(name string, status domain.BotStatus) error {
	if f.setErr != nil {
		return f.setErr
	}
	if f.set == nil {
		f.set = make(map[string]domain.BotStatus)
	}
	f.set[name] = status
	return nil
}

type fakeCampaigns struct {
	started   []domain.CampaignSpec
	startErr  error
	cancelErr error
	status    campaign.Status
}

func (f *fakeCampaigns) Start(spec domain.CampaignSpec) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, spec)
	return "0123456789abcdef", nil
}

func (f *fakeCampaigns) Cancel() error           { return f.cancelErr }
func (f *fakeCampaigns) Status() campaign.Status { return f.status }

func newTestModel() (Model, *fakeFleet, *fakeCampaigns) {
	fleet := &fakeFleet{bots: []domain.Bot{
		{Name: "AlphaBot", Port: 8081, Status: domain.BotOnline, Specialty: "Health Checks", Uptime: "100.0%", Requests: 1200},
		{Name: "BetaBot", Port: 8082, Status: domain.BotOffline, Specialty: "Latency Sampling", Uptime: "0.0%"},
	}}
	camps := &fakeCampaigns{status: campaign.Status{Phase: domain.PhaseIdle}}
	m := NewModel(ModelConfig{
		Fleet:     fleet,
		Campaigns: camps,
		Spec: domain.CampaignSpec{
			TargetAddress: "10.0.0.5", TargetPort: 80, Operation: domain.OpProbe, Intensity: 5,
		},
	})
	m.width = 120
	m.height = 40
	return m, fleet, camps
}

// run executes cmd and feeds its message back into the model
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	next, _ := m.Update(cmd())
	return next.(Model)
}

func refreshed(t *testing.T, m Model) Model {
	t.Helper()
	return run(t, m, m.refreshCmd())
}

func TestNewModel(t *testing.T) {
	m, _, _ := newTestModel()

	if m.activeTab != tabFleet {
		t.Errorf("activeTab = %d, want fleet", m.activeTab)
	}
	m = refreshed(t, m)
	if len(m.bots) != 2 {
		t.Errorf("bots = %d, want 2 after refresh", len(m.bots))
	}
	if m.status.Phase != domain.PhaseIdle {
		t.Errorf("Phase = %q, want idle", m.status.Phase)
	}
}

func TestModel_TabSwitching(t *testing.T) {
	m, _, _ := newTestModel()

	for _, want := range []int{tabCampaign, tabHistory, tabFleet} {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
		m = next.(Model)
		if m.activeTab != want {
			t.Errorf("activeTab = %d, want %d", m.activeTab, want)
		}
	}
}

func TestModel_SelectionBounded(t *testing.T) {
	m, _, _ := newTestModel()
	m = refreshed(t, m)

	for i := 0; i < 5; i++ {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
		m = next.(Model)
	}
	if m.selectedRow != 1 {
		t.Errorf("selectedRow = %d, want 1", m.selectedRow)
	}
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	if next.(Model).selectedRow != 0 {
		t.Errorf("selectedRow = %d, want 0", next.(Model).selectedRow)
	}
}

func TestModel_StartAndCancel(t *testing.T) {
	m, _, camps := newTestModel()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	m = run(t, m, cmd)

	if len(camps.started) != 1 || camps.started[0].Target() != "10.0.0.5:80" {
		t.Fatalf("started = %+v, want the configured spec", camps.started)
	}
	if !strings.Contains(m.message, "01234567") {
		t.Errorf("message = %q, want short campaign id", m.message)
	}

	camps.cancelErr = domain.ErrNoActiveCampaign
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	m = run(t, m, cmd)
	if !errors.Is(m.lastErr, domain.ErrNoActiveCampaign) {
		t.Errorf("lastErr = %v, want ErrNoActiveCampaign", m.lastErr)
	}
	if !strings.Contains(m.View(), "no active campaign") {
		t.Error("status bar should show the error")
	}
}

func TestModel_SetAll(t *testing.T) {
	m, fleet, _ := newTestModel()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("o")})
	m = run(t, m, cmd)
	if fleet.status != domain.BotOnline {
		t.Errorf("SetAllStatus got %q, want online", fleet.status)
	}
	if m.message != "1 bots set online" {
		t.Errorf("message = %q", m.message)
	}
}

func TestModel_ToggleSelectedBot(t *testing.T) {
	m, fleet, _ := newTestModel()
	m = refreshed(t, m)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("t")})
	m = run(t, m, cmd)
	if fleet.set["AlphaBot"] != domain.BotOffline {
		t.Errorf("AlphaBot set to %q, want offline", fleet.set["AlphaBot"])
	}
	if m.message != "AlphaBot set offline" {
		t.Errorf("message = %q", m.message)
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	m = next.(Model)
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("t")})
	m = run(t, m, cmd)
	if fleet.set["BetaBot"] != domain.BotOnline {
		t.Errorf("BetaBot set to %q, want online", fleet.set["BetaBot"])
	}

	fleet.setErr = domain.ErrBotBusy
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("t")})
	m = run(t, m, cmd)
	if !errors.Is(m.lastErr, domain.ErrBotBusy) {
		t.Errorf("lastErr = %v, want ErrBotBusy", m.lastErr)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if _, cmd := next.(Model).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("t")}); cmd != nil {
		t.Error("toggle outside the fleet tab should do nothing")
	}
}

func TestModel_Events(t *testing.T) {
	m, _, _ := newTestModel()
	now := time.Now()

	feed := []events.Event{
		{Type: events.CampaignStarted, CampaignID: "c1", Message: "probe against 10.0.0.5:80", Time: now},
		{Type: events.BotProgress, Bot: "AlphaBot", Progress: 40, Time: now},
		{Type: events.Progress, Progress: 30, Time: now},
		{Type: events.Progress, Progress: 20, Time: now},
		{Type: events.CampaignFinished, Phase: domain.PhaseCompleted, Message: "done", Time: now},
	}
	for _, e := range feed {
		next, _ := m.Update(EventMsg(e))
		m = next.(Model)
	}

	if m.status.Progress != 30 {
		t.Errorf("Progress = %d, want 30 (never regresses)", m.status.Progress)
	}
	if m.status.BotProgress["AlphaBot"] != 40 {
		t.Errorf("AlphaBot progress = %d, want 40", m.status.BotProgress["AlphaBot"])
	}
	if m.status.Phase != domain.PhaseCompleted {
		t.Errorf("Phase = %q, want completed", m.status.Phase)
	}
	if len(m.log) != 4 {
		t.Errorf("log lines = %d, want 4 (bot progress is not logged)", len(m.log))
	}
}

func TestModel_WaitForEventFromHub(t *testing.T) {
	hub := events.NewHub(4)
	defer hub.Close()
	sub := hub.Subscribe()
	defer sub.Close()

	hub.Publish(events.Event{Type: events.Log, Message: "hello"})
	msg := waitForEvent(sub)()
	if e, ok := msg.(EventMsg); !ok || e.Message != "hello" {
		t.Errorf("waitForEvent() = %#v, want the published event", msg)
	}

	if waitForEvent(nil) != nil {
		t.Error("waitForEvent(nil) should be nil")
	}
}

func TestModel_View(t *testing.T) {
	m, _, _ := newTestModel()
	if got := NewModel(ModelConfig{}).View(); got != "Loading..." {
		t.Errorf("View() before size = %q", got)
	}

	m = refreshed(t, m)
	view := m.View()
	for _, want := range []string{"AlphaBot", "BetaBot", "1,200", "Bots: 2", "Online: 1"} {
		if !strings.Contains(view, want) {
			t.Errorf("fleet view missing %q", want)
		}
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	if !strings.Contains(m.View(), "No campaign running") {
		t.Error("campaign tab should show the idle hint")
	}

	m.summaries = []domain.CampaignSummary{{
		ID:           "abcdef0123",
		Spec:         domain.CampaignSpec{TargetAddress: "10.0.0.5", TargetPort: 80, Operation: domain.OpScan},
		Phase:        domain.PhaseFailed,
		Participants: []string{"AlphaBot"},
		StartedAt:    time.Now().Add(-time.Minute),
		FinishedAt:   time.Now(),
	}}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	if view := m.View(); !strings.Contains(view, "abcdef01") || !strings.Contains(view, "scan") {
		t.Errorf("history view missing summary:\n%s", view)
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		percent int
		filled  int
	}{
		{0, 0},
		{50, 5},
		{100, 10},
		{150, 10},
		{-5, 0},
	}

	for _, tt := range tests {
		bar := progressBar(tt.percent, 10)
		if got := strings.Count(bar, "█"); got != tt.filled {
			t.Errorf("progressBar(%d) filled = %d, want %d", tt.percent, got, tt.filled)
		}
		if got := strings.Count(bar, "█") + strings.Count(bar, "░"); got != 10 {
			t.Errorf("progressBar(%d) width = %d, want 10", tt.percent, got)
		}
	}
}
