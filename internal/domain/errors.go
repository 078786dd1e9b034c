package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateBot          = errors.New("duplicate bot")
	ErrNotFound              = errors.New("bot not found")
	ErrInvalidBot            = errors.New("invalid bot")
	ErrBotBusy               = errors.New("bot is busy in a campaign")
	ErrCampaignAlreadyActive = errors.New("campaign already active")
	ErrNoActiveCampaign      = errors.New("no active campaign")
	ErrNoParticipants        = errors.New("no participants")
	ErrInvalidCampaign       = errors.New("invalid campaign")
	ErrPoolExhausted         = errors.New("execution pool exhausted")
	ErrPersistence           = errors.New("persistence failure")
	ErrExecutorFailure       = errors.New("executor failure")
	ErrClosed                = errors.New("orchestrator closed")
)

// ExecutorError records why an executor failed for one bot.
// It matches ErrExecutorFailure with errors.Is.
type ExecutorError struct {
	Bot    string
	Reason string
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("executor failure on %s: %s", e.Bot, e.Reason)
}

// Is reports whether target is ErrExecutorFailure
func (e *ExecutorError) Is(target error) bool {
	return target == ErrExecutorFailure
}
