// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads antkeeper configuration from defaults, an optional
// YAML file, and environment variables, in that order of precedence.
//
// Chat credentials (BOT_TOKEN, BOT_USER_ID, COOLDOWN_SECONDS) are
// deliberately not part of this configuration: the event coalescer reads
// them from the environment at event-handling time.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	antkeepererrors "github.com/tombee/antkeeper/pkg/errors"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config represents the complete antkeeper configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Runs   RunsConfig   `yaml:"runs"`
	Agent  AgentConfig  `yaml:"agent"`
}

// ServerConfig configures the daemon's HTTP listener and dispatch pool.
type ServerConfig struct {
	// Listen is the host:port the daemon binds.
	// Environment: ANTKEEPER_LISTEN
	// Default: 127.0.0.1:8000
	Listen string `yaml:"listen"`

	// MaxConcurrentRuns bounds the number of workflow dispatches executing
	// at once. Further dispatches queue.
	// Environment: ANTKEEPER_MAX_CONCURRENT_RUNS
	// Default: 4
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`

	// ShutdownTimeout is the maximum duration to wait for in-flight runs
	// during graceful shutdown.
	// Environment: ANTKEEPER_SHUTDOWN_TIMEOUT
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures the daemon's own logger. Per-run log files are
// formatted separately and are not affected by these settings.
type LogConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	// Environment: LOG_LEVEL
	// Default: info
	Level string `yaml:"level"`

	// Format sets the output format (text, json).
	// Environment: LOG_FORMAT
	// Default: text
	Format string `yaml:"format"`
}

// RunsConfig configures where per-run artifacts live.
type RunsConfig struct {
	// LogDir receives one append-only log file per run.
	// Environment: ANTKEEPER_LOG_DIR
	// Default: logs
	LogDir string `yaml:"log_dir"`

	// StateDir receives one JSON state snapshot per run.
	// Environment: ANTKEEPER_STATE_DIR
	// Default: state
	StateDir string `yaml:"state_dir"`

	// WorktreeDir is where isolated git worktrees are created.
	// Environment: ANTKEEPER_WORKTREE_DIR
	// Default: worktrees
	WorktreeDir string `yaml:"worktree_dir"`

	// RepoDir is the git repository worktrees are created from.
	// Environment: ANTKEEPER_REPO_DIR
	// Default: . (the process working directory)
	RepoDir string `yaml:"repo_dir"`
}

// AgentConfig configures the Claude Code CLI wrapper.
type AgentConfig struct {
	// Model is passed to the CLI via --model. Empty uses the CLI default.
	// Environment: ANTKEEPER_MODEL
	Model string `yaml:"model,omitempty"`

	// Timeout bounds a single agent prompt. Zero means no limit.
	// Environment: ANTKEEPER_AGENT_TIMEOUT
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:            "127.0.0.1:8000",
			MaxConcurrentRuns: 4,
			ShutdownTimeout:   10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Runs: RunsConfig{
			LogDir:      "logs",
			StateDir:    "state",
			WorktreeDir: "worktrees",
			RepoDir:     ".",
		},
	}
}

// Load loads configuration from defaults, an optional YAML file, and
// environment variables, in that order. If configPath is empty, only
// defaults and environment variables are used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &antkeepererrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	// Fill zero values left by minimal config files.
	cfg.applyDefaults()

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &antkeepererrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills in zero values with defaults so minimal config files
// work without specifying every field.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Server.Listen == "" {
		c.Server.Listen = defaults.Server.Listen
	}
	if c.Server.MaxConcurrentRuns == 0 {
		c.Server.MaxConcurrentRuns = defaults.Server.MaxConcurrentRuns
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}

	if c.Runs.LogDir == "" {
		c.Runs.LogDir = defaults.Runs.LogDir
	}
	if c.Runs.StateDir == "" {
		c.Runs.StateDir = defaults.Runs.StateDir
	}
	if c.Runs.WorktreeDir == "" {
		c.Runs.WorktreeDir = defaults.Runs.WorktreeDir
	}
	if c.Runs.RepoDir == "" {
		c.Runs.RepoDir = defaults.Runs.RepoDir
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("ANTKEEPER_LISTEN"); val != "" {
		c.Server.Listen = val
	}
	if val := os.Getenv("ANTKEEPER_MAX_CONCURRENT_RUNS"); val != "" {
		if runs, err := strconv.Atoi(val); err == nil {
			c.Server.MaxConcurrentRuns = runs
		}
	}
	if val := os.Getenv("ANTKEEPER_SHUTDOWN_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Server.ShutdownTimeout = duration
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}

	if val := os.Getenv("ANTKEEPER_LOG_DIR"); val != "" {
		c.Runs.LogDir = val
	}
	if val := os.Getenv("ANTKEEPER_STATE_DIR"); val != "" {
		c.Runs.StateDir = val
	}
	if val := os.Getenv("ANTKEEPER_WORKTREE_DIR"); val != "" {
		c.Runs.WorktreeDir = val
	}
	if val := os.Getenv("ANTKEEPER_REPO_DIR"); val != "" {
		c.Runs.RepoDir = val
	}

	if val := os.Getenv("ANTKEEPER_MODEL"); val != "" {
		c.Agent.Model = val
	}
	if val := os.Getenv("ANTKEEPER_AGENT_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Agent.Timeout = duration
		}
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Listen == "" {
		errs = append(errs, "server.listen must not be empty")
	} else if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		errs = append(errs, fmt.Sprintf("server.listen must be host:port, got %q", c.Server.Listen))
	}
	if c.Server.MaxConcurrentRuns < 1 {
		errs = append(errs, fmt.Sprintf("server.max_concurrent_runs must be at least 1, got %d", c.Server.MaxConcurrentRuns))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("server.shutdown_timeout must be positive, got %v", c.Server.ShutdownTimeout))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [debug, info, warn, warning, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.Runs.LogDir == "" {
		errs = append(errs, "runs.log_dir must not be empty")
	}
	if c.Runs.StateDir == "" {
		errs = append(errs, "runs.state_dir must not be empty")
	}
	if c.Runs.WorktreeDir == "" {
		errs = append(errs, "runs.worktree_dir must not be empty")
	}

	if c.Agent.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("agent.timeout must be non-negative, got %v", c.Agent.Timeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}
