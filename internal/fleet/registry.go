// Package fleet owns the in-memory bot table. Every read returns a copy and
// every write goes through a registry method, so no caller ever holds a
// stale reference to live state.
package fleet

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hochfrequenz/botfleet/internal/domain"
)

// Store is the persistence contract the registry writes through
type Store interface {
	LoadAll() ([]domain.Bot, error)
	SaveAll(bots []domain.Bot) error
	Upsert(bot domain.Bot) error
	Delete(name string) error
}

// entry is the live record for one bot
type entry struct {
	bot     domain.Bot
	removed bool
	mu      sync.Mutex
}

// Registry tracks the fleet
type Registry struct {
	bots   map[string]*entry
	ports  map[int]string
	store  Store
	logger *zap.SugaredLogger
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry. A nil store keeps the fleet in
// memory only.
func NewRegistry(store Store, logger *zap.SugaredLogger) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{
		bots:   make(map[string]*entry),
		ports:  make(map[int]string),
		store:  store,
		logger: logger,
	}
}

// Add inserts a new bot and persists it
func (r *Registry) Add(bot domain.Bot) error {
	if bot.Status == "" {
		bot.Status = domain.BotOffline
	}
	if err := bot.Validate(); err != nil {
		return err
	}
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = time.Now()
	}
	bot.RefreshUptime()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bots[bot.Name]; ok {
		return fmt.Errorf("%w: name %s", domain.ErrDuplicateBot, bot.Name)
	}
	if owner, ok := r.ports[bot.Port]; ok {
		return fmt.Errorf("%w: port %d held by %s", domain.ErrDuplicateBot, bot.Port, owner)
	}

	if r.store != nil {
		if err := r.store.Upsert(bot); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
	}

	r.bots[bot.Name] = &entry{bot: bot}
	r.ports[bot.Port] = bot.Name
	r.logger.Debugw("bot added", "bot", bot.Name, "port", bot.Port)
	return nil
}

// Remove deletes a bot and its stored record
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.bots[name]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, name)
	}

	if r.store != nil {
		if err := r.store.Delete(name); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
	}

	e.mu.Lock()
	e.removed = true
	port := e.bot.Port
	e.mu.Unlock()

	delete(r.bots, name)
	delete(r.ports, port)
	r.logger.Debugw("bot removed", "bot", name)
	return nil
}

// Get returns a copy of one bot
func (r *Registry) Get(name string) (domain.Bot, error) {
	e := r.lookup(name)
	if e == nil {
		return domain.Bot{}, fmt.Errorf("%w: %s", domain.ErrNotFound, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return domain.Bot{}, fmt.Errorf("%w: %s", domain.ErrNotFound, name)
	}
	return e.bot, nil
}

// List returns a copy of every bot ordered by port
func (r *Registry) List() []domain.Bot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// snapshotLocked copies the table. The caller holds r.mu.
func (r *Registry) snapshotLocked() []domain.Bot {
	result := make([]domain.Bot, 0, len(r.bots))
	for _, e := range r.bots {
		e.mu.Lock()
		result = append(result, e.bot)
		e.mu.Unlock()
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Port < result[j].Port
	})
	return result
}

// Count returns the number of bots
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bots)
}

// UpdateStatus sets a bot's status
func (r *Registry) UpdateStatus(name string, status domain.BotStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidBot, status)
	}
	return r.mutate(name, func(b *domain.Bot) {
		b.Status = status
	})
}

// SetStatus is the operator control for one bot. It brings the bot online
// or takes it offline and refuses while a campaign holds it.
func (r *Registry) SetStatus(name string, status domain.BotStatus) error {
	if status == domain.BotBusy || !status.Valid() {
		return fmt.Errorf("%w: cannot set %s to %q", domain.ErrInvalidBot, name, status)
	}
	return r.mutateErr(name, func(b *domain.Bot) error {
		if b.Status == domain.BotBusy {
			return fmt.Errorf("%w: %s", domain.ErrBotBusy, name)
		}
		b.Status = status
		return nil
	})
}

// IncrementRequests adds delta to a bot's request counter
func (r *Registry) IncrementRequests(name string, delta int) error {
	if delta < 0 {
		return fmt.Errorf("%w: request counter is monotonic, got delta %d", domain.ErrInvalidBot, delta)
	}
	return r.mutate(name, func(b *domain.Bot) {
		b.Requests += delta
		b.RefreshUptime()
	})
}

// RecordFailure counts one failed invocation against a bot's uptime
func (r *Registry) RecordFailure(name string) error {
	return r.mutate(name, func(b *domain.Bot) {
		b.Failures++
		b.RefreshUptime()
	})
}

// SetAllStatus moves every bot that is not busy to status and returns the
// names that changed, ordered by port.
func (r *Registry) SetAllStatus(status domain.BotStatus) ([]string, error) {
	if status == domain.BotBusy || !status.Valid() {
		return nil, fmt.Errorf("%w: cannot set fleet to %q", domain.ErrInvalidBot, status)
	}

	var changed []string
	for _, bot := range r.List() {
		if bot.Status == status || bot.Status == domain.BotBusy {
			continue
		}
		err := r.mutate(bot.Name, func(b *domain.Bot) {
			if b.Status != domain.BotBusy {
				b.Status = status
			}
		})
		if err != nil {
			return changed, err
		}
		changed = append(changed, bot.Name)
	}
	return changed, nil
}

// mutate applies fn to the live record under its lock and writes the result
// through to the store. Memory stays authoritative when the write fails.
func (r *Registry) mutate(name string, fn func(*domain.Bot)) error {
	return r.mutateErr(name, func(b *domain.Bot) error {
		fn(b)
		return nil
	})
}

// mutateErr is mutate for changes that may be refused. A refused change
// leaves the record untouched and writes nothing.
func (r *Registry) mutateErr(name string, fn func(*domain.Bot) error) error {
	e := r.lookup(name)
	if e == nil {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, name)
	}

	updated := e.bot
	if err := fn(&updated); err != nil {
		return err
	}
	e.bot = updated

	if r.store != nil {
		if err := r.store.Upsert(e.bot); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
	}
	return nil
}

func (r *Registry) lookup(name string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bots[name]
}

// LoadFromStore replaces the fleet with the stored set. On failure the
// registry is left empty and the error is returned for the caller to surface.
func (r *Registry) LoadFromStore() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bots = make(map[string]*entry)
	r.ports = make(map[int]string)

	if r.store == nil {
		return nil
	}

	bots, err := r.store.LoadAll()
	if err != nil {
		return fmt.Errorf("%w: loading fleet: %v", domain.ErrPersistence, err)
	}

	var stale []domain.Bot
	for _, bot := range bots {
		if err := bot.Validate(); err != nil {
			r.logger.Warnw("skipping invalid stored bot", "bot", bot.Name, "error", err)
			continue
		}
		if _, dup := r.bots[bot.Name]; dup {
			continue
		}
		if _, dup := r.ports[bot.Port]; dup {
			r.logger.Warnw("skipping stored bot with duplicate port", "bot", bot.Name, "port", bot.Port)
			continue
		}
		// No campaign survives a restart
		if bot.Status == domain.BotBusy {
			r.logger.Warnw("releasing bot left busy by an interrupted campaign", "bot", bot.Name)
			bot.Status = domain.BotOnline
			stale = append(stale, bot)
		}
		r.bots[bot.Name] = &entry{bot: bot}
		r.ports[bot.Port] = bot.Name
	}
	for _, bot := range stale {
		if err := r.store.Upsert(bot); err != nil {
			r.logger.Warnw("saving released bot", "bot", bot.Name, "error", err)
		}
	}
	r.logger.Infow("fleet loaded", "bots", len(r.bots))
	return nil
}

// Persist writes the whole fleet to the store. Membership is frozen until
// the save returns, so a concurrent Add or Remove lands after it.
func (r *Registry) Persist() error {
	if r.store == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.SaveAll(r.snapshotLocked()); err != nil {
		return fmt.Errorf("%w: saving fleet: %v", domain.ErrPersistence, err)
	}
	return nil
}
