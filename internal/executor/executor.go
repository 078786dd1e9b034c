// Package executor defines the capability that performs one bot's share of
// a campaign and ships a simulated implementation of it.
package executor

import (
	"context"

	"github.com/hochfrequenz/botfleet/internal/domain"
)

// ProgressFunc receives the completion percentage (0-100) of one invocation.
// Values passed for a single invocation never decrease.
type ProgressFunc func(percent int)

// Executor performs the work for one bot in a campaign. Implementations must
// report progress through onProgress, stop at the next step boundary once
// ctx is cancelled, and always return a terminal outcome.
type Executor interface {
	Invoke(ctx context.Context, bot domain.Bot, spec domain.CampaignSpec, onProgress ProgressFunc) domain.Outcome
}

// Func adapts an ordinary function to the Executor interface
type Func func(ctx context.Context, bot domain.Bot, spec domain.CampaignSpec, onProgress ProgressFunc) domain.Outcome

// Invoke calls f
func (f Func) Invoke(ctx context.Context, bot domain.Bot, spec domain.CampaignSpec, onProgress ProgressFunc) domain.Outcome {
	return f(ctx, bot, spec, onProgress)
}
