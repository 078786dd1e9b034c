// Package manifest imports bots from a YAML fleet manifest and watches the
// manifest for edits.
package manifest

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/botfleet/internal/domain"
)

// Manifest is the file layout:
//
//	bots:
//	  - name: AlphaBot
//	    port: 8081
//	    specialty: Health Checks
//	    status: online
type Manifest struct {
	Bots []Entry `yaml:"bots"`
}

// Entry is one bot in the manifest. Status defaults to offline.
type Entry struct {
	Name      string `yaml:"name"`
	Port      int    `yaml:"port"`
	Specialty string `yaml:"specialty,omitempty"`
	Status    string `yaml:"status,omitempty"`
}

// Parse decodes a manifest and validates every entry
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if _, err := m.ToBots(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads and parses the manifest at path
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ToBots converts the entries, rejecting invalid ones and duplicates within
// the file
func (m *Manifest) ToBots() ([]domain.Bot, error) {
	bots := make([]domain.Bot, 0, len(m.Bots))
	names := make(map[string]bool, len(m.Bots))
	ports := make(map[int]bool, len(m.Bots))

	for i, e := range m.Bots {
		status := domain.BotOffline
		if e.Status != "" {
			s, err := domain.ParseBotStatus(e.Status)
			if err != nil {
				return nil, fmt.Errorf("bot %d (%s): %w", i, e.Name, err)
			}
			if s == domain.BotBusy {
				return nil, fmt.Errorf("bot %d (%s): %w: busy is set by campaigns only", i, e.Name, domain.ErrInvalidBot)
			}
			status = s
		}
		bot := domain.Bot{Name: e.Name, Port: e.Port, Specialty: e.Specialty, Status: status}
		if err := bot.Validate(); err != nil {
			return nil, fmt.Errorf("bot %d (%s): %w", i, e.Name, err)
		}
		if names[bot.Name] || ports[bot.Port] {
			return nil, fmt.Errorf("bot %d (%s): %w within manifest", i, e.Name, domain.ErrDuplicateBot)
		}
		names[bot.Name] = true
		ports[bot.Port] = true
		bots = append(bots, bot)
	}
	return bots, nil
}

// Adder is the part of the registry Apply needs
type Adder interface {
	Add(bot domain.Bot) error
}

// Report lists what Apply did with each entry
type Report struct {
	Added   []string
	Skipped []string // Name or port already registered
	Failed  map[string]error
}

// Apply adds every manifest bot that is not yet registered. Existing bots
// are left untouched.
func Apply(reg Adder, m *Manifest) (Report, error) {
	bots, err := m.ToBots()
	if err != nil {
		return Report{}, err
	}

	var rep Report
	for _, bot := range bots {
		err := reg.Add(bot)
		switch {
		case err == nil:
			rep.Added = append(rep.Added, bot.Name)
		case errors.Is(err, domain.ErrDuplicateBot):
			rep.Skipped = append(rep.Skipped, bot.Name)
		default:
			if rep.Failed == nil {
				rep.Failed = make(map[string]error)
			}
			rep.Failed[bot.Name] = err
		}
	}
	return rep, nil
}
