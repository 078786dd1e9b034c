package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hochfrequenz/botfleet/internal/domain"
	"github.com/hochfrequenz/botfleet/internal/events"
)

// SendTimeout bounds each delivery made by Watch
const SendTimeout = 15 * time.Second

// FromEvent builds the notification for a finished campaign. Other events
// produce none.
func FromEvent(e events.Event) (Notification, bool) {
	if e.Type != events.CampaignFinished {
		return Notification{}, false
	}

	n := Notification{
		Body:       e.Message,
		CampaignID: e.CampaignID,
		Phase:      e.Phase,
		Progress:   e.Progress,
		FinishedAt: e.Time,
	}
	switch e.Phase {
	case domain.PhaseCompleted:
		n.Title = "Campaign completed"
		n.Level = LevelSuccess
	case domain.PhaseCancelled:
		n.Title = fmt.Sprintf("Campaign cancelled at %d%%", e.Progress)
		n.Level = LevelWarning
	case domain.PhaseFailed:
		n.Title = "Campaign failed"
		n.Level = LevelError
	default:
		n.Title = "Campaign finished"
	}
	return n, true
}

// Watch sends a notification for every finished campaign seen on sub until
// ctx is done or the subscription closes
func Watch(ctx context.Context, sub *events.Subscription, notifier Notifier, logger *zap.SugaredLogger) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			n, ok := FromEvent(e)
			if !ok {
				continue
			}
			sendCtx, cancel := context.WithTimeout(ctx, SendTimeout)
			err := notifier.Send(sendCtx, n)
			cancel()
			if err != nil {
				logger.Warnw("sending campaign notification", "campaign", e.CampaignID, "level", n.Level, "error", err)
			}
		}
	}
}
