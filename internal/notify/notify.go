// Package notify tells operators when a campaign ends.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/hochfrequenz/botfleet/internal/domain"
)

// Level grades a notification
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notification describes one finished campaign
type Notification struct {
	Title      string
	Body       string
	Level      Level
	CampaignID string
	Phase      domain.CampaignPhase
	Progress   int
	FinishedAt time.Time
}

// Notifier delivers notifications somewhere an operator will see them
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Fanout delivers to every notifier, even when earlier ones fail
type Fanout []Notifier

// Send returns the joined errors of all notifiers
func (f Fanout) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range f {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
