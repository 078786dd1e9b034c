package executor

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/hochfrequenz/botfleet/internal/domain"
)

const (
	DefaultSteps     = 10
	DefaultStepDelay = 100 * time.Millisecond
)

// SimulatedConfig configures the simulated executor
type SimulatedConfig struct {
	Steps     int           // Equal progress increments per invocation
	StepDelay time.Duration // Pause between steps; zero runs steps back to back

	// FailBots makes the named bots fail with the given reason once they
	// have completed FailAfter steps.
	FailBots  map[string]string
	FailAfter int
}

// Simulated advances progress in fixed steps without touching the network.
// Every invocation completes unless the bot is listed in FailBots or the
// context is cancelled.
type Simulated struct {
	config SimulatedConfig
}

// NewSimulated creates a simulated executor
func NewSimulated(config SimulatedConfig) *Simulated {
	if config.Steps <= 0 {
		config.Steps = DefaultSteps
	}
	if config.StepDelay < 0 {
		config.StepDelay = 0
	}
	return &Simulated{config: config}
}

// Steps returns the number of progress increments per invocation
func (s *Simulated) Steps() int {
	return s.config.Steps
}

// Invoke runs the simulated steps for one bot
func (s *Simulated) Invoke(ctx context.Context, bot domain.Bot, spec domain.CampaignSpec, onProgress ProgressFunc) domain.Outcome {
	steps := s.config.Steps

	var limiter *rate.Limiter
	if s.config.StepDelay > 0 {
		// Burst of one: the first step starts immediately, later ones are paced.
		limiter = rate.NewLimiter(rate.Every(s.config.StepDelay), 1)
	}

	reason, failing := s.config.FailBots[bot.Name]

	for step := 1; step <= steps; step++ {
		if ctx.Err() != nil {
			return domain.Cancelled()
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return domain.Cancelled()
			}
		}
		if failing && step > s.config.FailAfter {
			if reason == "" {
				reason = "simulated failure"
			}
			return domain.Failed(reason)
		}
		if onProgress != nil {
			onProgress(step * 100 / steps)
		}
	}
	return domain.Completed()
}
