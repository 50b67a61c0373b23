package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Runner        RunnerConfig        `toml:"runner"`
	Trigger       TriggerConfig       `toml:"trigger"`
	Output        OutputConfig        `toml:"output"`
	Notifications NotificationsConfig `toml:"notifications"`
	Logging       LoggingConfig       `toml:"logging"`
}

// GeneralConfig holds storage locations. Empty paths are derived from DataDir.
type GeneralConfig struct {
	DataDir       string `toml:"data_dir"`
	StorePath     string `toml:"store_path"`
	LogDir        string `toml:"log_dir"`
	HistoryPath   string `toml:"history_path"`
	DashboardPath string `toml:"dashboard_path"`
}

// RunnerConfig describes how the task runner is spawned
type RunnerConfig struct {
	Binary         string   `toml:"binary"`
	WorkDir        string   `toml:"work_dir"`
	Path           string   `toml:"path"`
	TimeoutMinutes int      `toml:"timeout_minutes"`
	ExtraArgs      []string `toml:"extra_args"`
}

// TriggerConfig selects and parameterises the OS scheduler backend
type TriggerConfig struct {
	Backend   string `toml:"backend"`
	Namespace string `toml:"namespace"`
	UnitDir   string `toml:"unit_dir"`
	Program   string `toml:"program"`
	Register  bool   `toml:"register"`
	Validate  bool   `toml:"validate"`
}

// OutputConfig holds settings for publishing run output
type OutputConfig struct {
	VaultPath string `toml:"vault_path"`
}

// NotificationsConfig holds failure escalation settings
type NotificationsConfig struct {
	Desktop        bool     `toml:"desktop"`
	SlackWebhook   string   `toml:"slack_webhook"`
	TrackerCommand []string `toml:"tracker_command"`
	TrackerProject string   `toml:"tracker_project"`
	TrackerTags    []string `toml:"tracker_tags"`
}

// LoggingConfig holds diagnostic logging and log retention settings
type LoggingConfig struct {
	Level      string `toml:"level"`
	JSON       bool   `toml:"json"`
	KeepMonths int    `toml:"keep_months"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DataDir: filepath.Join(home, ".claude-sched"),
		},
		Runner: RunnerConfig{
			Binary:  "claude",
			WorkDir: home,
			Path:    "/usr/local/bin:/opt/homebrew/bin:/usr/bin:/bin:/usr/sbin:/sbin",
		},
		Trigger: TriggerConfig{
			Backend:   DefaultBackend(),
			Namespace: "com.claude-sched",
			Register:  true,
			Validate:  true,
		},
		Notifications: NotificationsConfig{
			TrackerProject: "Automation",
			TrackerTags:    []string{"claude-sched", "failed-run"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			KeepMonths: 6,
		},
	}
}

// DefaultBackend picks the native trigger backend for the running OS
func DefaultBackend() string {
	if runtime.GOOS == "darwin" {
		return "launchd"
	}
	return "systemd"
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
	} else if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}

	cfg.resolve()
	return cfg, nil
}

// resolve expands ~ and fills derived paths
func (c *Config) resolve() {
	g := &c.General
	g.DataDir = ExpandPath(g.DataDir)
	g.StorePath = derive(g.StorePath, g.DataDir, "schedules.json")
	g.LogDir = derive(g.LogDir, g.DataDir, "logs")
	g.HistoryPath = derive(g.HistoryPath, g.DataDir, "history.db")
	g.DashboardPath = derive(g.DashboardPath, g.DataDir, "Dashboard.md")

	c.Runner.WorkDir = ExpandPath(c.Runner.WorkDir)
	c.Trigger.UnitDir = ExpandPath(c.Trigger.UnitDir)
	c.Trigger.Program = ExpandPath(c.Trigger.Program)
	c.Output.VaultPath = ExpandPath(c.Output.VaultPath)

	if c.Trigger.Backend == "" {
		c.Trigger.Backend = DefaultBackend()
	}
	if c.Logging.KeepMonths <= 0 {
		c.Logging.KeepMonths = 6
	}
}

func derive(path, dataDir, name string) string {
	if path == "" {
		return filepath.Join(dataDir, name)
	}
	return ExpandPath(path)
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
	return filepath.Join(home, ".config", "claude-sched", "config.toml")
}
