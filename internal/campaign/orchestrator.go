// Package campaign runs fleet-wide campaigns: it selects participants from
// the registry, drives one executor invocation per bot on its own goroutine,
// folds per-bot progress into a single campaign progress stream and writes
// the final bot states back to the registry.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hochfrequenz/botfleet/internal/domain"
	"github.com/hochfrequenz/botfleet/internal/events"
	"github.com/hochfrequenz/botfleet/internal/executor"
	"github.com/hochfrequenz/botfleet/internal/fleet"
)

// DefaultGranularity is the step, in percent, at which overall progress is
// published
const DefaultGranularity = 10

// Recorder stores the summary of every finished campaign
type Recorder interface {
	RecordCampaign(summary domain.CampaignSummary) error
}

// Config tunes the orchestrator
type Config struct {
	PoolSize int
	// Overall progress is published in multiples of Granularity percent;
	// 1 publishes every change of the floor mean.
	Granularity int
}

// Option configures optional collaborators
type Option func(*Orchestrator)

// WithRecorder stores campaign summaries in r
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Orchestrator coordinates at most one campaign at a time
type Orchestrator struct {
	registry    *fleet.Registry
	executor    executor.Executor
	sink        events.Sink
	recorder    Recorder
	logger      *zap.SugaredLogger
	pool        *Pool
	granularity int

	active *run
	last   *domain.CampaignSummary
	closed bool
	mu     sync.Mutex

	units sync.WaitGroup
}

// run is the state of the campaign in flight
type run struct {
	id           string
	spec         domain.CampaignSpec
	startedAt    time.Time
	participants []string
	ctx          context.Context
	cancel       context.CancelFunc
	cancelled    atomic.Bool

	progress map[string]int
	visible  int
	outcomes map[string]domain.Outcome
	mu       sync.Mutex

	summary domain.CampaignSummary
	done    chan struct{}
}

// New creates an orchestrator and its execution pool. Close releases it.
func New(registry *fleet.Registry, exec executor.Executor, sink events.Sink, cfg Config, opts ...Option) *Orchestrator {
	if sink == nil {
		sink = events.Discard
	}
	if cfg.Granularity <= 0 || cfg.Granularity > 100 {
		cfg.Granularity = DefaultGranularity
	}

	o := &Orchestrator{
		registry:    registry,
		executor:    exec,
		sink:        sink,
		logger:      zap.NewNop().Sugar(),
		pool:        NewPool(cfg.PoolSize),
		granularity: cfg.Granularity,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.pool.SetOnSlotsChanged(func(available int) {
		o.logger.Debugw("execution slots changed", "available", available, "size", o.pool.Size())
	})
	return o
}

// Start launches a campaign and returns its id. Exactly one of several
// concurrent callers wins; the rest get ErrCampaignAlreadyActive.
func (o *Orchestrator) Start(spec domain.CampaignSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	spec = spec.Clone()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return "", domain.ErrClosed
	}
	if o.active != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrCampaignAlreadyActive, o.active.id)
	}

	candidates := resolveParticipants(spec, o.registry.List())
	if len(candidates) == 0 {
		return "", domain.ErrNoParticipants
	}
	if !o.pool.AcquireN(len(candidates)) {
		return "", fmt.Errorf("%w: %d participants, %d free slots",
			domain.ErrPoolExhausted, len(candidates), o.pool.Available())
	}

	bots := make([]domain.Bot, 0, len(candidates))
	for _, bot := range candidates {
		err := o.registry.UpdateStatus(bot.Name, domain.BotBusy)
		if errors.Is(err, domain.ErrNotFound) {
			// Removed since the listing
			o.pool.Release()
			continue
		}
		if err != nil {
			o.logger.Warnw("marking bot busy", "bot", bot.Name, "error", err)
		}
		bot.Status = domain.BotBusy
		bots = append(bots, bot)
	}
	if len(bots) == 0 {
		return "", domain.ErrNoParticipants
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:        uuid.NewString(),
		spec:      spec,
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		progress:  make(map[string]int, len(bots)),
		outcomes:  make(map[string]domain.Outcome, len(bots)),
		done:      make(chan struct{}),
	}
	for _, bot := range bots {
		r.participants = append(r.participants, bot.Name)
		r.progress[bot.Name] = 0
	}
	o.active = r

	o.logger.Infow("campaign started",
		"campaign", r.id,
		"operation", spec.Operation,
		"target", spec.Target(),
		"intensity", spec.Intensity,
		"participants", len(bots),
	)
	o.sink.Publish(events.Event{
		Type:       events.CampaignStarted,
		CampaignID: r.id,
		Phase:      domain.PhaseRunning,
		Message: fmt.Sprintf("%s against %s with %d bots at intensity %d",
			spec.Operation, spec.Target(), len(bots), spec.Intensity),
		Time: r.startedAt,
	})

	for _, bot := range bots {
		o.units.Add(1)
		go o.runUnit(r, bot)
	}
	return r.id, nil
}

// resolveParticipants picks the bots a spec names. Unknown names are
// dropped; an empty list selects every online bot.
func resolveParticipants(spec domain.CampaignSpec, bots []domain.Bot) []domain.Bot {
	if spec.AllOnline() {
		var online []domain.Bot
		for _, b := range bots {
			if b.Status == domain.BotOnline {
				online = append(online, b)
			}
		}
		return online
	}

	byName := make(map[string]domain.Bot, len(bots))
	for _, b := range bots {
		byName[b.Name] = b
	}

	var selected []domain.Bot
	seen := make(map[string]bool, len(spec.Participants))
	for _, name := range spec.Participants {
		b, ok := byName[name]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		selected = append(selected, b)
	}
	return selected
}

func (o *Orchestrator) runUnit(r *run, bot domain.Bot) {
	defer o.units.Done()
	defer o.pool.Release()

	o.sink.Publish(events.Event{
		Type:       events.Log,
		CampaignID: r.id,
		Bot:        bot.Name,
		Phase:      domain.PhaseRunning,
		Message:    fmt.Sprintf("%s engaged from port %d", bot.Name, bot.Port),
		Time:       time.Now(),
	})

	out := o.invoke(r, bot)
	o.finishUnit(r, bot.Name, out)
}

// invoke calls the executor and turns a panic or an unknown status into a
// failed outcome
func (o *Orchestrator) invoke(r *run, bot domain.Bot) (out domain.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			o.logger.Errorw("executor panicked", "campaign", r.id, "bot", bot.Name, "panic", p)
			out = domain.Failed(fmt.Sprintf("executor panic: %v", p))
		}
	}()

	out = o.executor.Invoke(r.ctx, bot, r.spec.Clone(), func(percent int) {
		o.report(r, bot.Name, percent)
	})

	switch out.Status {
	case domain.OutcomeCompleted, domain.OutcomeFailed, domain.OutcomeCancelled:
		return out
	default:
		return domain.Failed(fmt.Sprintf("executor returned unknown outcome %q", out.Status))
	}
}

// report records one bot's progress and publishes the overall value when
// its visible step changes. Publishing under r.mu keeps the stream ordered.
func (o *Orchestrator) report(r *run, bot string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, finished := r.outcomes[bot]; finished {
		return
	}
	if percent <= r.progress[bot] {
		// Regressions are clamped to the previous maximum
		return
	}
	r.progress[bot] = percent

	now := time.Now()
	o.sink.Publish(events.Event{
		Type:       events.BotProgress,
		CampaignID: r.id,
		Bot:        bot,
		Phase:      domain.PhaseRunning,
		Progress:   percent,
		Time:       now,
	})

	visible := o.visibleProgress(r.overall())
	if visible <= r.visible {
		return
	}
	r.visible = visible
	o.sink.Publish(events.Event{
		Type:       events.Progress,
		CampaignID: r.id,
		Phase:      domain.PhaseRunning,
		Progress:   visible,
		Message:    fmt.Sprintf("campaign %d%% complete", visible),
		Time:       now,
	})
}

// overall is the floor of the mean participant progress. Caller holds r.mu.
func (r *run) overall() int {
	sum := 0
	for _, p := range r.progress {
		sum += p
	}
	return sum / len(r.participants)
}

func (o *Orchestrator) visibleProgress(overall int) int {
	if overall >= 100 {
		return 100
	}
	return overall - overall%o.granularity
}

// finishUnit applies one bot's outcome and completes the campaign when it
// was the last one outstanding
func (o *Orchestrator) finishUnit(r *run, name string, out domain.Outcome) {
	if out.Status == domain.OutcomeCompleted {
		// A completed bot counts as fully done even if it never said so
		o.report(r, name, 100)
	}

	status := domain.BotOnline
	if out.Status == domain.OutcomeFailed {
		status = domain.BotOffline
	}
	o.applyOutcome(r, name, status, out)

	r.mu.Lock()
	r.outcomes[name] = out
	finished := len(r.outcomes) == len(r.participants)

	msg := fmt.Sprintf("%s %s", name, out.Status)
	if out.Reason != "" {
		msg += ": " + out.Reason
	}
	o.sink.Publish(events.Event{
		Type:       events.BotFinished,
		CampaignID: r.id,
		Bot:        name,
		Phase:      domain.PhaseRunning,
		Progress:   r.progress[name],
		Outcome:    out.Status,
		Message:    msg,
		Time:       time.Now(),
	})
	r.mu.Unlock()

	if finished {
		o.complete(r)
	}
}

func (o *Orchestrator) applyOutcome(r *run, name string, status domain.BotStatus, out domain.Outcome) {
	log := o.logger.With("campaign", r.id, "bot", name)

	if err := o.registry.UpdateStatus(name, status); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Debugw("bot removed during campaign")
			return
		}
		log.Warnw("updating bot status", "error", err)
	}
	if err := o.registry.IncrementRequests(name, 1); err != nil {
		log.Warnw("counting request", "error", err)
	}
	if out.Status == domain.OutcomeFailed {
		if err := o.registry.RecordFailure(name); err != nil {
			log.Warnw("recording failure", "error", err)
		}
		log.Warnw("bot failed", "error", out.Err(name))
	}
}

// aggregate folds the per-bot outcomes into the campaign's terminal phase.
// Any failure wins, then all-completed, otherwise the campaign was cancelled.
func aggregate(outcomes map[string]domain.Outcome) domain.CampaignPhase {
	completed := 0
	for _, out := range outcomes {
		switch out.Status {
		case domain.OutcomeFailed:
			return domain.PhaseFailed
		case domain.OutcomeCompleted:
			completed++
		}
	}
	if completed == len(outcomes) {
		return domain.PhaseCompleted
	}
	return domain.PhaseCancelled
}

// complete runs the terminal transition: persist, record, return to idle,
// announce and release waiters
func (o *Orchestrator) complete(r *run) {
	r.mu.Lock()
	outcomes := make(map[string]domain.Outcome, len(r.outcomes))
	for name, out := range r.outcomes {
		outcomes[name] = out
	}
	summary := domain.CampaignSummary{
		ID:           r.id,
		Spec:         r.spec,
		Phase:        aggregate(outcomes),
		Participants: append([]string(nil), r.participants...),
		Outcomes:     outcomes,
		Progress:     r.visible,
		StartedAt:    r.startedAt,
		FinishedAt:   time.Now(),
	}
	r.mu.Unlock()
	r.cancel()

	if err := o.registry.Persist(); err != nil {
		o.logger.Warnw("persisting fleet after campaign", "campaign", r.id, "error", err)
	}
	if o.recorder != nil {
		if err := o.recorder.RecordCampaign(summary); err != nil {
			o.logger.Warnw("recording campaign", "campaign", r.id, "error", err)
		}
	}

	o.mu.Lock()
	o.active = nil
	o.last = &summary
	r.summary = summary
	o.sink.Publish(events.Event{
		Type:       events.CampaignFinished,
		CampaignID: r.id,
		Phase:      summary.Phase,
		Progress:   summary.Progress,
		Message: fmt.Sprintf("campaign %s: %d completed, %d failed, %d cancelled",
			summary.Phase,
			summary.Count(domain.OutcomeCompleted),
			summary.Count(domain.OutcomeFailed),
			summary.Count(domain.OutcomeCancelled)),
		Time: summary.FinishedAt,
	})
	o.mu.Unlock()
	close(r.done)

	o.logger.Infow("campaign finished",
		"campaign", r.id,
		"phase", summary.Phase,
		"progress", summary.Progress,
		"duration", summary.Duration(),
	)
}

// Cancel asks every unit of the running campaign to stop at its next step
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	r := o.active
	if r == nil {
		o.mu.Unlock()
		return domain.ErrNoActiveCampaign
	}
	first := r.cancelled.CompareAndSwap(false, true)
	if first {
		r.cancel()
	}
	o.mu.Unlock()

	if first {
		o.logger.Infow("campaign cancellation requested", "campaign", r.id)
		o.sink.Publish(events.Event{
			Type:       events.Log,
			CampaignID: r.id,
			Phase:      domain.PhaseRunning,
			Message:    "cancellation requested",
			Time:       time.Now(),
		})
	}
	return nil
}

// Wait blocks until the running campaign ends and returns its summary. With
// no campaign running it returns the last summary, or ErrNoActiveCampaign
// if there has never been one.
func (o *Orchestrator) Wait(ctx context.Context) (domain.CampaignSummary, error) {
	o.mu.Lock()
	r, last := o.active, o.last
	o.mu.Unlock()

	if r == nil {
		if last == nil {
			return domain.CampaignSummary{}, domain.ErrNoActiveCampaign
		}
		return *last, nil
	}

	select {
	case <-r.done:
		return r.summary, nil
	case <-ctx.Done():
		return domain.CampaignSummary{}, ctx.Err()
	}
}

// Status is a point-in-time view of the orchestrator
type Status struct {
	Phase           domain.CampaignPhase
	CampaignID      string
	Spec            domain.CampaignSpec
	StartedAt       time.Time
	Progress        int
	BotProgress     map[string]int
	Finished        []string
	CancelRequested bool
	Last            *domain.CampaignSummary
}

// Status reports the running campaign, if any, and the last finished one
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	r := o.active
	var last *domain.CampaignSummary
	if o.last != nil {
		copied := *o.last
		last = &copied
	}
	o.mu.Unlock()

	st := Status{Phase: domain.PhaseIdle, Last: last}
	if r == nil {
		return st
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st.Phase = domain.PhaseRunning
	st.CampaignID = r.id
	st.Spec = r.spec.Clone()
	st.StartedAt = r.startedAt
	st.Progress = r.visible
	st.CancelRequested = r.cancelled.Load()
	st.BotProgress = make(map[string]int, len(r.progress))
	for name, p := range r.progress {
		st.BotProgress[name] = p
	}
	for _, name := range r.participants {
		if _, ok := r.outcomes[name]; ok {
			st.Finished = append(st.Finished, name)
		}
	}
	return st
}

// Last returns the summary of the most recently finished campaign
func (o *Orchestrator) Last() (domain.CampaignSummary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return domain.CampaignSummary{}, false
	}
	return *o.last, true
}

// Close cancels any running campaign, waits for its units to stop and
// rejects further starts
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	if r := o.active; r != nil && r.cancelled.CompareAndSwap(false, true) {
		r.cancel()
	}
	o.mu.Unlock()

	o.units.Wait()
	return nil
}
