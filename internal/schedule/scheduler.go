// Package schedule starts campaigns from cron expressions.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hochfrequenz/botfleet/internal/config"
	"github.com/hochfrequenz/botfleet/internal/domain"
)

// DefaultInterval is how often the loop checks for due entries
const DefaultInterval = 30 * time.Second

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a five-field cron expression or a descriptor like @daily
func ParseCron(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

// Starter launches a campaign
type Starter interface {
	Start(spec domain.CampaignSpec) (string, error)
}

// Entry is one recurring campaign
type Entry struct {
	Name string
	Cron string
	Spec domain.CampaignSpec
}

// EntriesFromConfig converts the [[schedule]] tables
func EntriesFromConfig(cfgs []config.ScheduleConfig) ([]Entry, error) {
	entries := make([]Entry, 0, len(cfgs))
	for _, c := range cfgs {
		spec, err := c.Spec()
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: c.Name, Cron: c.Cron, Spec: spec})
	}
	return entries, nil
}

// Result reports what happened to one due entry
type Result struct {
	Name       string
	CampaignID string
	Skipped    bool // Another campaign was running
	Err        error
}

type job struct {
	entry    Entry
	schedule cron.Schedule
	lastRun  time.Time
}

// Scheduler fires entries whose next cron time has passed. A due entry that
// finds a campaign running is skipped until its following slot.
type Scheduler struct {
	jobs     map[string]*job
	starter  Starter
	logger   *zap.SugaredLogger
	interval time.Duration
	mu       sync.Mutex
}

// NewScheduler validates entries and anchors them at now, so nothing fires
// before its first slot after creation
func NewScheduler(entries []Entry, starter Starter, logger *zap.SugaredLogger, now time.Time) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Scheduler{
		jobs:     make(map[string]*job, len(entries)),
		starter:  starter,
		logger:   logger,
		interval: DefaultInterval,
	}

	for _, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("schedule name is required")
		}
		if _, dup := s.jobs[e.Name]; dup {
			return nil, fmt.Errorf("duplicate schedule %q", e.Name)
		}
		sched, err := ParseCron(e.Cron)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: invalid cron expression: %w", e.Name, err)
		}
		if err := e.Spec.Validate(); err != nil {
			return nil, fmt.Errorf("schedule %q: %w", e.Name, err)
		}
		e.Spec = e.Spec.Clone()
		s.jobs[e.Name] = &job{entry: e, schedule: sched, lastRun: now}
	}
	return s, nil
}

// SetInterval changes the polling interval of Run
func (s *Scheduler) SetInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.interval = d
	}
}

// Names returns the entry names in order
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextRun returns the next time the entry fires, or the zero time for an
// unknown name
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return time.Time{}
	}
	return j.schedule.Next(j.lastRun)
}

// RunDue starts every entry whose slot is at or before now
func (s *Scheduler) RunDue(now time.Time) []Result {
	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if !j.schedule.Next(j.lastRun).After(now) {
			j.lastRun = now
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(a, b int) bool { return due[a].entry.Name < due[b].entry.Name })

	results := make([]Result, 0, len(due))
	for _, j := range due {
		res := Result{Name: j.entry.Name}
		id, err := s.starter.Start(j.entry.Spec.Clone())
		switch {
		case err == nil:
			res.CampaignID = id
			s.logger.Infow("scheduled campaign started", "schedule", j.entry.Name, "campaign", id)
		case errors.Is(err, domain.ErrCampaignAlreadyActive):
			res.Skipped = true
			s.logger.Infow("scheduled campaign skipped, another campaign is running", "schedule", j.entry.Name)
		default:
			res.Err = err
			s.logger.Warnw("scheduled campaign failed to start", "schedule", j.entry.Name, "error", err)
		}
		results = append(results, res)
	}
	return results
}

// Run checks for due entries every interval until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	interval := s.interval
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.RunDue(now)
		}
	}
}
