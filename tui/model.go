package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/botfleet/internal/campaign"
	"github.com/hochfrequenz/botfleet/internal/domain"
	"github.com/hochfrequenz/botfleet/internal/events"
)

const (
	tabFleet = iota
	tabCampaign
	tabHistory
	tabCount
)

// maxLogLines bounds the campaign log panel
const maxLogLines = 200

// Fleet is the registry view the dashboard needs
type Fleet interface {
	List() []domain.Bot
	SetAllStatus(status domain.BotStatus) ([]string, error)
	SetStatus(name string, status domain.BotStatus) error
}

// Campaigns starts, cancels and reports campaigns
type Campaigns interface {
	Start(spec domain.CampaignSpec) (string, error)
	Cancel() error
	Status() campaign.Status
}

// History lists finished campaigns
type History interface {
	ListCampaigns(limit int) ([]domain.CampaignSummary, error)
}

// Model is the TUI application model
type Model struct {
	fleet     Fleet
	campaigns Campaigns
	history   History
	events    *events.Subscription
	spec      domain.CampaignSpec

	// Data
	bots      []domain.Bot
	status    campaign.Status
	summaries []domain.CampaignSummary
	log       []string

	// UI state
	width       int
	height      int
	activeTab   int
	selectedRow int
	message     string
	lastErr     error

	// Refresh
	lastRefresh time.Time
}

// ModelConfig holds the collaborators of the dashboard
type ModelConfig struct {
	Fleet     Fleet
	Campaigns Campaigns
	History   History // Optional
	Events    *events.Subscription
	Spec      domain.CampaignSpec // Launched by the start key
}

// NewModel creates a new TUI model
func NewModel(cfg ModelConfig) Model {
	return Model{
		fleet:     cfg.Fleet,
		campaigns: cfg.Campaigns,
		history:   cfg.History,
		events:    cfg.Events,
		spec:      cfg.Spec.Clone(),
		activeTab: tabFleet,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.refreshCmd(),
		tickCmd(),
		waitForEvent(m.events),
	)
}

// TickMsg triggers a refresh
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// EventMsg carries one campaign event into the update loop
type EventMsg events.Event

// waitForEvent reads the next event; it yields nil once the subscription
// closes, which ends the chain
func waitForEvent(sub *events.Subscription) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-sub.C()
		if !ok {
			return nil
		}
		return EventMsg(e)
	}
}

// RefreshMsg carries a fresh snapshot of fleet and campaign state
type RefreshMsg struct {
	Bots      []domain.Bot
	Status    campaign.Status
	Summaries []domain.CampaignSummary
	Err       error
	At        time.Time
}

func (m Model) refreshCmd() tea.Cmd {
	fleet, campaigns, history := m.fleet, m.campaigns, m.history
	return func() tea.Msg {
		msg := RefreshMsg{At: time.Now()}
		if fleet != nil {
			msg.Bots = fleet.List()
		}
		if campaigns != nil {
			msg.Status = campaigns.Status()
		}
		if history != nil {
			msg.Summaries, msg.Err = history.ListCampaigns(20)
		}
		return msg
	}
}

// ActionMsg reports the result of a key-triggered action
type ActionMsg struct {
	Message string
	Err     error
}
