package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/hochfrequenz/botfleet/internal/domain"
)

// LocalConfigName is looked up in the working directory and its parents
const LocalConfigName = ".botfleet.toml"

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Dispatch      DispatchConfig      `toml:"dispatch"`
	Executor      ExecutorConfig      `toml:"executor"`
	Web           WebConfig           `toml:"web"`
	Notifications NotificationsConfig `toml:"notifications"`
	Logging       LoggingConfig       `toml:"logging"`
	Schedules     []ScheduleConfig    `toml:"schedule"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath string `toml:"database_path"`
	ManifestPath string `toml:"manifest_path"` // Watched for bot additions when set
}

// DispatchConfig sizes the campaign machinery
type DispatchConfig struct {
	PoolSize            int `toml:"pool_size"`
	ProgressBuffer      int `toml:"progress_buffer"`
	ProgressGranularity int `toml:"progress_granularity"`
}

// ExecutorConfig tunes the simulated executor
type ExecutorConfig struct {
	Steps       int `toml:"steps"`
	StepDelayMs int `toml:"step_delay_ms"`
}

// StepDelay returns the configured delay as a duration
func (e ExecutorConfig) StepDelay() time.Duration {
	return time.Duration(e.StepDelayMs) * time.Millisecond
}

// WebConfig holds web API settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// Addr returns host:port for the listener
func (w WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// LoggingConfig selects the log level and encoder
type LoggingConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// ScheduleConfig is one recurring campaign
type ScheduleConfig struct {
	Name          string   `toml:"name"`
	Cron          string   `toml:"cron"`
	Operation     string   `toml:"operation"`
	TargetAddress string   `toml:"target_address"`
	TargetPort    int      `toml:"target_port"`
	Intensity     int      `toml:"intensity"`
	Participants  []string `toml:"participants"`
}

// Spec converts the schedule entry to a campaign spec
func (s ScheduleConfig) Spec() (domain.CampaignSpec, error) {
	op, err := domain.ParseOperationKind(s.Operation)
	if err != nil {
		return domain.CampaignSpec{}, fmt.Errorf("schedule %q: %w", s.Name, err)
	}
	spec := domain.CampaignSpec{
		TargetAddress: s.TargetAddress,
		TargetPort:    s.TargetPort,
		Operation:     op,
		Intensity:     s.Intensity,
		Participants:  append([]string(nil), s.Participants...),
	}
	if err := spec.Validate(); err != nil {
		return domain.CampaignSpec{}, fmt.Errorf("schedule %q: %w", s.Name, err)
	}
	return spec, nil
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath: filepath.Join(home, ".botfleet", "fleet.db"),
		},
		Dispatch: DispatchConfig{
			PoolSize:            64,
			ProgressBuffer:      256,
			ProgressGranularity: 10,
		},
		Executor: ExecutorConfig{
			Steps:       10,
			StepDelayMs: 100,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Notifications: NotificationsConfig{
			Desktop: false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Expand paths
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.ManifestPath = ExpandPath(cfg.General.ManifestPath)

	return cfg, cfg.Validate()
}

// LoadWithLocalFallback loads path when given, otherwise the nearest
// LocalConfigName, otherwise the user config
func LoadWithLocalFallback(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}

// FindLocalConfig walks up from the working directory looking for
// LocalConfigName. It returns "" when none exists.
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Validate rejects values the dispatch machinery cannot run with
func (c *Config) Validate() error {
	if c.Dispatch.PoolSize < 1 {
		return fmt.Errorf("dispatch.pool_size must be at least 1, got %d", c.Dispatch.PoolSize)
	}
	if g := c.Dispatch.ProgressGranularity; g < 1 || g > 100 {
		return fmt.Errorf("dispatch.progress_granularity must be in 1..100, got %d", g)
	}
	if c.Executor.Steps < 1 {
		return fmt.Errorf("executor.steps must be at least 1, got %d", c.Executor.Steps)
	}
	if c.Executor.StepDelayMs < 0 {
		return fmt.Errorf("executor.step_delay_ms must not be negative, got %d", c.Executor.StepDelayMs)
	}
	seen := make(map[string]bool, len(c.Schedules))
	for _, s := range c.Schedules {
		if s.Name == "" {
			return fmt.Errorf("schedule entry without name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate schedule %q", s.Name)
		}
		seen[s.Name] = true
		if _, err := s.Spec(); err != nil {
			return err
		}
	}
	return nil
}

// Save writes the configuration as TOML, creating parent directories
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "botfleet", "config.toml")
}
