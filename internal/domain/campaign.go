package domain

import (
	"fmt"
	"time"
)

// OperationKind names what a campaign asks each bot to do
type OperationKind string

const (
	OpProbe    OperationKind = "probe"
	OpLoadTest OperationKind = "load_test"
	OpScan     OperationKind = "scan"
	OpCustom   OperationKind = "custom"
)

// ParseOperationKind parses an operation name
func ParseOperationKind(s string) (OperationKind, error) {
	switch k := OperationKind(s); k {
	case OpProbe, OpLoadTest, OpScan, OpCustom:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown operation %q", ErrInvalidCampaign, s)
}

const (
	MinIntensity = 1
	MaxIntensity = 10
)

// CampaignSpec describes one fleet-wide operation. An empty Participants
// list selects every bot that is online when the campaign starts.
type CampaignSpec struct {
	TargetAddress string
	TargetPort    int
	Operation     OperationKind
	Intensity     int
	Participants  []string
}

// AllOnline reports whether the spec targets every online bot
func (s CampaignSpec) AllOnline() bool {
	return len(s.Participants) == 0
}

// Validate checks the spec's bounded fields
func (s CampaignSpec) Validate() error {
	if s.TargetAddress == "" {
		return fmt.Errorf("%w: target address is required", ErrInvalidCampaign)
	}
	if s.TargetPort <= 0 || s.TargetPort > 65535 {
		return fmt.Errorf("%w: target port %d out of range", ErrInvalidCampaign, s.TargetPort)
	}
	if _, err := ParseOperationKind(string(s.Operation)); err != nil {
		return err
	}
	if s.Intensity < MinIntensity || s.Intensity > MaxIntensity {
		return fmt.Errorf("%w: intensity %d not in %d..%d", ErrInvalidCampaign, s.Intensity, MinIntensity, MaxIntensity)
	}
	return nil
}

// Clone returns a copy that shares no memory with s
func (s CampaignSpec) Clone() CampaignSpec {
	c := s
	if s.Participants != nil {
		c.Participants = append([]string(nil), s.Participants...)
	}
	return c
}

// Target renders the target as host:port
func (s CampaignSpec) Target() string {
	return fmt.Sprintf("%s:%d", s.TargetAddress, s.TargetPort)
}

// CampaignPhase is the lifecycle state of the orchestrator
type CampaignPhase string

const (
	PhaseIdle      CampaignPhase = "idle"
	PhaseRunning   CampaignPhase = "running"
	PhaseCompleted CampaignPhase = "completed"
	PhaseCancelled CampaignPhase = "cancelled"
	PhaseFailed    CampaignPhase = "failed"
)

// Terminal reports whether p ends a campaign
func (p CampaignPhase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled || p == PhaseFailed
}

// OutcomeStatus is the terminal result of one executor invocation
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// Outcome is what an executor returns for one bot
type Outcome struct {
	Status OutcomeStatus
	Reason string
}

// Completed is the outcome of a successful invocation
func Completed() Outcome { return Outcome{Status: OutcomeCompleted} }

// Cancelled is the outcome of an invocation stopped by cancellation
func Cancelled() Outcome { return Outcome{Status: OutcomeCancelled} }

// Failed is the outcome of an invocation that could not finish
func Failed(reason string) Outcome { return Outcome{Status: OutcomeFailed, Reason: reason} }

// Err converts a failed outcome into an *ExecutorError, nil otherwise
func (o Outcome) Err(bot string) error {
	if o.Status != OutcomeFailed {
		return nil
	}
	return &ExecutorError{Bot: bot, Reason: o.Reason}
}

// CampaignSummary is the record of a finished campaign
type CampaignSummary struct {
	ID           string
	Spec         CampaignSpec
	Phase        CampaignPhase
	Participants []string
	Outcomes     map[string]Outcome
	Progress     int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration returns how long the campaign ran
func (s *CampaignSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Count returns the number of participants that ended with status
func (s *CampaignSummary) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Failures returns one *ExecutorError per failed participant
func (s *CampaignSummary) Failures() []error {
	var errs []error
	for _, name := range s.Participants {
		if err := s.Outcomes[name].Err(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
