// Package config handles Armada configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration structure for Armada.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Worktrees settings
	Worktrees WorktreeConfig `yaml:"worktrees" mapstructure:"worktrees"`

	// Agents settings
	Agents AgentConfig `yaml:"agents" mapstructure:"agents"`

	// Hooks settings
	Hooks HooksConfig `yaml:"hooks" mapstructure:"hooks"`

	// Skills settings
	Skills SkillsConfig `yaml:"skills" mapstructure:"skills"`
}

// GlobalConfig contains global Armada settings.
type GlobalConfig struct {
	// DataDir is where Armada stores its data (default: ~/.local/share/armada).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/armada).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// MaxConnections is the maximum number of database connections.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections"`

	// BusyTimeoutMs is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// WorktreeConfig contains settings for run worktree isolation.
type WorktreeConfig struct {
	// RepoPath is the git repository runs are created against.
	// Defaults to the current working directory.
	RepoPath string `yaml:"repo_path" mapstructure:"repo_path"`

	// Dir is where per-run worktrees are created
	// (default: DataDir/worktrees).
	Dir string `yaml:"dir" mapstructure:"dir"`

	// BranchPrefix is the prefix for generated run branches.
	BranchPrefix string `yaml:"branch_prefix" mapstructure:"branch_prefix"`
}

// AgentConfig contains default settings for agent processes.
type AgentConfig struct {
	// DefaultType is the default agent type for new runs.
	DefaultType string `yaml:"default_type" mapstructure:"default_type"`

	// Timeout is the maximum wall-clock duration per run.
	// Zero disables the timeout.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// GracePeriod is how long to wait after a termination signal
	// before force-killing the agent process.
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period"`

	// ProfileDir holds agent profile TOML files (default: ConfigDir/profiles).
	ProfileDir string `yaml:"profile_dir" mapstructure:"profile_dir"`
}

// HooksConfig contains project-defined lifecycle hook commands.
type HooksConfig struct {
	// Setup commands run inside the worktree before agent execution.
	Setup []string `yaml:"setup" mapstructure:"setup"`

	// Cleanup commands run inside the worktree after agent execution.
	Cleanup []string `yaml:"cleanup" mapstructure:"cleanup"`

	// Timeout is the per-command timeout.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SkillsConfig contains skill document resolution settings.
type SkillsConfig struct {
	// GlobalDir holds skills shared across projects
	// (default: ConfigDir/skills).
	GlobalDir string `yaml:"global_dir" mapstructure:"global_dir"`

	// LocalDir holds project-local skills; entries here override
	// global ones of the same id (default: .armada/skills).
	LocalDir string `yaml:"local_dir" mapstructure:"local_dir"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local", "share", "armada")
	configDir := filepath.Join(homeDir, ".config", "armada")

	return &Config{
		Global: GlobalConfig{
			DataDir:   dataDir,
			ConfigDir: configDir,
		},
		Database: DatabaseConfig{
			Path:           "", // Will be set to DataDir/armada.db
			MaxConnections: 10,
			BusyTimeoutMs:  5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Worktrees: WorktreeConfig{
			Dir:          "", // Will be set to DataDir/worktrees
			BranchPrefix: "armada",
		},
		Agents: AgentConfig{
			DefaultType: "claude-code",
			Timeout:     0,
			GracePeriod: 5 * time.Second,
			ProfileDir:  "", // Will be set to ConfigDir/profiles
		},
		Hooks: HooksConfig{
			Timeout: 30 * time.Second,
		},
		Skills: SkillsConfig{
			GlobalDir: "", // Will be set to ConfigDir/skills
			LocalDir:  filepath.Join(".armada", "skills"),
		},
	}
}

// ApplyDerivedDefaults fills in paths that derive from DataDir and
// ConfigDir when they were not set explicitly.
func (c *Config) ApplyDerivedDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.Global.DataDir, "armada.db")
	}
	if c.Worktrees.Dir == "" {
		c.Worktrees.Dir = filepath.Join(c.Global.DataDir, "worktrees")
	}
	if c.Worktrees.RepoPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			c.Worktrees.RepoPath = cwd
		}
	}
	if c.Agents.ProfileDir == "" {
		c.Agents.ProfileDir = filepath.Join(c.Global.ConfigDir, "profiles")
	}
	if c.Skills.GlobalDir == "" {
		c.Skills.GlobalDir = filepath.Join(c.Global.ConfigDir, "skills")
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Global.DataDir == "" {
		return fmt.Errorf("global.data_dir is required")
	}
	if c.Database.MaxConnections < 0 {
		return fmt.Errorf("database.max_connections must be >= 0")
	}
	if c.Database.BusyTimeoutMs < 0 {
		return fmt.Errorf("database.busy_timeout_ms must be >= 0")
	}
	switch c.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}
	if c.Worktrees.BranchPrefix == "" {
		return fmt.Errorf("worktrees.branch_prefix is required")
	}
	if c.Agents.Timeout < 0 {
		return fmt.Errorf("agents.timeout must be >= 0")
	}
	if c.Agents.GracePeriod <= 0 {
		return fmt.Errorf("agents.grace_period must be > 0")
	}
	if c.Hooks.Timeout <= 0 {
		return fmt.Errorf("hooks.timeout must be > 0")
	}
	return nil
}
