// Package fleetstore persists the bot fleet and campaign history in SQLite.
package fleetstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hochfrequenz/botfleet/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed fleet persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// A single connection serializes writers and keeps ":memory:" databases
	// from splitting across pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

const upsertBot = `
	INSERT INTO bots (name, status, port, specialty, requests, failures, uptime, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		status = excluded.status,
		port = excluded.port,
		specialty = excluded.specialty,
		requests = excluded.requests,
		failures = excluded.failures,
		uptime = excluded.uptime,
		updated_at = excluded.updated_at
`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsert(db execer, bot domain.Bot) error {
	createdAt := bot.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := db.Exec(upsertBot,
		bot.Name,
		string(bot.Status),
		bot.Port,
		bot.Specialty,
		bot.Requests,
		bot.Failures,
		bot.Uptime,
		createdAt,
		time.Now(),
	)
	return err
}

// Upsert inserts or updates a bot. Writing the same bot twice leaves the
// same stored state as writing it once.
func (s *Store) Upsert(bot domain.Bot) error {
	if err := upsert(s.db, bot); err != nil {
		return fmt.Errorf("upserting bot %s: %w", bot.Name, err)
	}
	return nil
}

// Delete removes a bot. Deleting a bot that is not stored is not an error.
func (s *Store) Delete(name string) error {
	if _, err := s.db.Exec(`DELETE FROM bots WHERE name = ?`, name); err != nil {
		return fmt.Errorf("deleting bot %s: %w", name, err)
	}
	return nil
}

// LoadAll returns every stored bot ordered by port
func (s *Store) LoadAll() ([]domain.Bot, error) {
	rows, err := s.db.Query(`
		SELECT name, status, port, specialty, requests, failures, uptime, created_at
		FROM bots ORDER BY port
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bots []domain.Bot
	for rows.Next() {
		var bot domain.Bot
		var status string
		var createdAt sql.NullTime
		if err := rows.Scan(&bot.Name, &status, &bot.Port, &bot.Specialty, &bot.Requests, &bot.Failures, &bot.Uptime, &createdAt); err != nil {
			return nil, err
		}
		bot.Status = domain.BotStatus(status)
		if createdAt.Valid {
			bot.CreatedAt = createdAt.Time
		}
		bots = append(bots, bot)
	}
	return bots, rows.Err()
}

// SaveAll makes the stored fleet equal to bots: every bot is upserted and
// rows for bots not in the set are deleted.
func (s *Store) SaveAll(bots []domain.Bot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	keep := make(map[string]bool, len(bots))
	for _, bot := range bots {
		keep[bot.Name] = true
	}

	names, err := storedNames(tx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if keep[name] {
			continue
		}
		if _, err := tx.Exec(`DELETE FROM bots WHERE name = ?`, name); err != nil {
			return fmt.Errorf("deleting bot %s: %w", name, err)
		}
	}

	for _, bot := range bots {
		if err := upsert(tx, bot); err != nil {
			return fmt.Errorf("saving bot %s: %w", bot.Name, err)
		}
	}

	return tx.Commit()
}

func storedNames(tx *sql.Tx) ([]string, error) {
	rows, err := tx.Query(`SELECT name FROM bots`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SeedIfEmpty inserts bots only when no bot is stored yet. It reports
// whether the seed was written.
func (s *Store) SeedIfEmpty(bots []domain.Bot) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM bots`).Scan(&count); err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	for _, bot := range bots {
		if err := upsert(tx, bot); err != nil {
			return false, fmt.Errorf("seeding bot %s: %w", bot.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// RecordCampaign stores the summary of a finished campaign
func (s *Store) RecordCampaign(summary domain.CampaignSummary) error {
	participantsJSON, err := json.Marshal(summary.Participants)
	if err != nil {
		return err
	}
	outcomesJSON, err := json.Marshal(summary.Outcomes)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO campaigns (id, operation, target_address, target_port, intensity, phase, participants, outcomes, progress, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			outcomes = excluded.outcomes,
			progress = excluded.progress,
			finished_at = excluded.finished_at
	`,
		summary.ID,
		string(summary.Spec.Operation),
		summary.Spec.TargetAddress,
		summary.Spec.TargetPort,
		summary.Spec.Intensity,
		string(summary.Phase),
		string(participantsJSON),
		string(outcomesJSON),
		summary.Progress,
		summary.StartedAt,
		summary.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("recording campaign %s: %w", summary.ID, err)
	}
	return nil
}

// ListCampaigns returns the most recent campaigns, newest first
func (s *Store) ListCampaigns(limit int) ([]domain.CampaignSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, operation, target_address, target_port, intensity, phase, participants, outcomes, progress, started_at, finished_at
		FROM campaigns ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []domain.CampaignSummary
	for rows.Next() {
		var sum domain.CampaignSummary
		var operation, phase, participantsJSON, outcomesJSON string
		var startedAt, finishedAt sql.NullTime

		err := rows.Scan(&sum.ID, &operation, &sum.Spec.TargetAddress, &sum.Spec.TargetPort, &sum.Spec.Intensity,
			&phase, &participantsJSON, &outcomesJSON, &sum.Progress, &startedAt, &finishedAt)
		if err != nil {
			return nil, err
		}

		sum.Spec.Operation = domain.OperationKind(operation)
		sum.Phase = domain.CampaignPhase(phase)
		if startedAt.Valid {
			sum.StartedAt = startedAt.Time
		}
		if finishedAt.Valid {
			sum.FinishedAt = finishedAt.Time
		}
		if err := json.Unmarshal([]byte(participantsJSON), &sum.Participants); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(outcomesJSON), &sum.Outcomes); err != nil {
			return nil, err
		}

		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}
