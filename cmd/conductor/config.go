// Copyright 2026 Relaymesh
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const DefaultConfigFileName = "conductor"

// Config holds all configuration for the conductor runtime.
// Priority: CLI flags > environment variables > config file > defaults.
type Config struct {
	// DataDir is where the runtime keeps agent working directories,
	// vendor config files, and the optional sqlite snapshot. Computed
	// from CONDUCTOR_DATA_DIR or ~/.conductor, not itself loaded from the
	// config file.
	DataDir string `mapstructure:"-"`

	Host         HostConfig         `mapstructure:"host"`
	LogStream    LogStreamConfig    `mapstructure:"logstream"`
	Lifecycle    LifecycleConfig    `mapstructure:"lifecycle"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	WarRoom      WarRoomConfig      `mapstructure:"warroom"`
	Guidelines   GuidelinesConfig   `mapstructure:"guidelines"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// HostConfig selects and configures the Session Host backend (§4.D).
type HostConfig struct {
	// Kind is "subprocess" or "tmux".
	Kind string `mapstructure:"kind"`
	// TmuxBinary is the tmux executable name/path, used when Kind is "tmux".
	TmuxBinary string `mapstructure:"tmux_binary"`
}

// LogStreamConfig mirrors internal/logstream.Config.
type LogStreamConfig struct {
	BufferSize             int           `mapstructure:"buffer_size"`
	MaxLogLineLength       int           `mapstructure:"max_log_line_length"`
	AutoDiscovery          bool          `mapstructure:"auto_discovery"`
	MonitorInterval        time.Duration `mapstructure:"monitor_interval"`
	SignalDetectionTimeout time.Duration `mapstructure:"signal_detection_timeout"`
	DrainGrace             time.Duration `mapstructure:"drain_grace"`
	AgentNameMarkers       []string      `mapstructure:"agent_name_markers"`
}

// LifecycleConfig points the Lifecycle Manager at its on-disk agent
// configs (§6: "model/agent configs live in a separate user-editable
// file").
type LifecycleConfig struct {
	AgentsDir string `mapstructure:"agents_dir"`
	WatchDir  bool   `mapstructure:"watch_dir"`
}

// OrchestratorConfig mirrors internal/orchestrator.Config.
type OrchestratorConfig struct {
	ModelWindow     int           `mapstructure:"model_window"`
	DegradedWindow  int           `mapstructure:"degraded_window"`
	DegradedRatio   float64       `mapstructure:"degraded_ratio"`
	HistoryLookback time.Duration `mapstructure:"history_lookback"`
	DefaultRole     string        `mapstructure:"default_role"`
}

// WarRoomConfig tunes the Context Manager (§4.G).
type WarRoomConfig struct {
	MaxItems     int    `mapstructure:"max_items"`
	SnapshotPath string `mapstructure:"snapshot_path"`
	ArchiveDays  int    `mapstructure:"archive_days"`
}

// GuidelinesConfig points the Guidelines Registry at its on-disk
// definitions (§4.H).
type GuidelinesConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// GetConductorDataDir returns the runtime's data directory, respecting
// CONDUCTOR_DATA_DIR.
func GetConductorDataDir() string {
	if dir := os.Getenv("CONDUCTOR_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".conductor"
	}
	return filepath.Join(home, ".conductor")
}

// LoadConfig loads configuration from multiple sources with proper
// priority: flags > environment variables > config file > defaults.
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(GetConductorDataDir())
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/conductor/")
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.SetEnvPrefix("CONDUCTOR")
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.DataDir = GetConductorDataDir()
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("host.kind", "subprocess")
	viper.SetDefault("host.tmux_binary", "tmux")

	viper.SetDefault("logstream.buffer_size", 1000)
	viper.SetDefault("logstream.max_log_line_length", 2000)
	viper.SetDefault("logstream.auto_discovery", true)
	viper.SetDefault("logstream.monitor_interval", 10*time.Second)
	viper.SetDefault("logstream.signal_detection_timeout", 2*time.Second)
	viper.SetDefault("logstream.drain_grace", 5*time.Second)
	viper.SetDefault("logstream.agent_name_markers", []string{"agent-", "conductor-", "worker-"})

	dataDir := GetConductorDataDir()
	viper.SetDefault("lifecycle.agents_dir", filepath.Join(dataDir, "agents"))
	viper.SetDefault("lifecycle.watch_dir", true)

	viper.SetDefault("orchestrator.model_window", 200000)
	viper.SetDefault("orchestrator.degraded_window", 50)
	viper.SetDefault("orchestrator.degraded_ratio", 0.5)
	viper.SetDefault("orchestrator.history_lookback", 10*time.Minute)
	viper.SetDefault("orchestrator.default_role", "generalist")

	viper.SetDefault("warroom.max_items", 50)
	viper.SetDefault("warroom.snapshot_path", filepath.Join(dataDir, "warroom.db"))
	viper.SetDefault("warroom.archive_days", 7)

	viper.SetDefault("guidelines.dir", filepath.Join(dataDir, "guidelines"))

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// Validate enforces the few invariants that would otherwise surface as a
// confusing failure deep inside the runtime instead of at startup.
func (c *Config) Validate() error {
	switch c.Host.Kind {
	case "subprocess", "tmux":
	default:
		return fmt.Errorf("unsupported host.kind: %s (must be subprocess or tmux)", c.Host.Kind)
	}
	if c.Orchestrator.ModelWindow <= 0 {
		return fmt.Errorf("orchestrator.model_window must be positive")
	}
	return nil
}
