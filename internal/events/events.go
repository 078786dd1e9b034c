// Package events carries campaign progress from the orchestrator to any
// number of consumers without letting a slow consumer stall the producer.
package events

import (
	"time"

	"github.com/hochfrequenz/botfleet/internal/domain"
)

// Type identifies what an event reports
type Type string

const (
	CampaignStarted  Type = "campaign_started"
	Progress         Type = "progress"
	BotProgress      Type = "bot_progress"
	BotFinished      Type = "bot_finished"
	Log              Type = "log"
	CampaignFinished Type = "campaign_finished"
)

// Event is one entry of the progress stream
type Event struct {
	Type       Type                 `json:"type"`
	CampaignID string               `json:"campaign_id"`
	Bot        string               `json:"bot,omitempty"`
	Phase      domain.CampaignPhase `json:"phase"`
	Progress   int                  `json:"progress"`
	Outcome    domain.OutcomeStatus `json:"outcome,omitempty"`
	Message    string               `json:"message,omitempty"`
	Time       time.Time            `json:"time"`
}

// Droppable reports whether a full subscription may discard the event.
// Lifecycle events and outcomes are always delivered.
func (e Event) Droppable() bool {
	switch e.Type {
	case Progress, BotProgress, Log:
		return true
	}
	return false
}

// Sink receives events. Publish must not block. Producers may call it while
// holding their own locks to keep the stream ordered, so an implementation
// must not call back into the producer.
type Sink interface {
	Publish(e Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(e Event)

// Publish calls f
func (f SinkFunc) Publish(e Event) { f(e) }

// Discard drops every event
var Discard Sink = SinkFunc(func(Event) {})
