package domain

import (
	"fmt"
	"time"
)

// BotStatus represents the runtime state of a bot
type BotStatus string

const (
	BotOffline BotStatus = "offline"
	BotOnline  BotStatus = "online"
	BotBusy    BotStatus = "busy"
)

// Valid reports whether s is one of the known statuses
func (s BotStatus) Valid() bool {
	switch s {
	case BotOffline, BotOnline, BotBusy:
		return true
	}
	return false
}

// ParseBotStatus parses a status name, case-sensitive
func ParseBotStatus(s string) (BotStatus, error) {
	status := BotStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidBot, s)
	}
	return status, nil
}

// Bot is a named worker agent tracked by the fleet registry.
// Values of this type are snapshots; the registry owns the live record.
type Bot struct {
	Name      string
	Status    BotStatus
	Port      int
	Specialty string
	Requests  int
	Failures  int
	Uptime    string
	CreatedAt time.Time
}

// Validate checks the identity fields of a bot
func (b *Bot) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidBot)
	}
	if b.Port <= 0 || b.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidBot, b.Port)
	}
	if !b.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidBot, b.Status)
	}
	if b.Requests < 0 || b.Failures < 0 {
		return fmt.Errorf("%w: counters must not be negative", ErrInvalidBot)
	}
	return nil
}

// RefreshUptime recomputes the display uptime from the invocation counters
func (b *Bot) RefreshUptime() {
	b.Uptime = UptimeString(b.Requests, b.Failures)
}

// UptimeString formats the share of successful invocations as a percentage.
// A bot that has never been invoked reports 0.0%.
func UptimeString(requests, failures int) string {
	if requests <= 0 {
		return "0.0%"
	}
	ok := requests - failures
	if ok < 0 {
		ok = 0
	}
	return fmt.Sprintf("%.1f%%", float64(ok)*100/float64(requests))
}
