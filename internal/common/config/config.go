// Package config defines the harness configuration file format and loader.
// Configuration is YAML with strict field checking so typos fail at load
// time instead of silently falling back to defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/probelab/uidriver/internal/common/yamlutil"
)

// Log level constants
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log format constants
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

// Config is the top-level harness configuration.
type Config struct {
	Target    TargetConfig  `yaml:"target"`
	Flow      FlowConfig    `yaml:"flow"`
	Chrome    ChromeConfig  `yaml:"chrome"`
	Log       LogConfig     `yaml:"log"`
	Metrics   MetricsConfig `yaml:"metrics"`
	Scenarios []string      `yaml:"scenarios,omitempty"`
}

// TargetConfig identifies the application under test.
type TargetConfig struct {
	// BaseURL is the root of the target web application. The REST API is
	// assumed at BaseURL + "/api/v1".
	BaseURL string `yaml:"base_url"`

	// Fixture starts the embedded fixture server instead of driving an
	// external deployment. BaseURL is ignored when set.
	Fixture bool `yaml:"fixture,omitempty"`

	// FixtureRedis is the redis address backing the fixture store. An empty
	// value starts an embedded in-process redis.
	FixtureRedis string `yaml:"fixture_redis,omitempty"`
}

// FlowConfig tunes the step scheduler.
type FlowConfig struct {
	WaitTimeout  Duration `yaml:"wait_timeout,omitempty"`
	PollInterval Duration `yaml:"poll_interval,omitempty"`
}

// ChromeConfig controls the browser pool.
type ChromeConfig struct {
	// PoolSize is a positive integer or "auto" to size from available RAM.
	PoolSize          string   `yaml:"pool_size,omitempty"`
	NavigateTimeout   Duration `yaml:"navigate_timeout,omitempty"`
	RestartAfterCount int      `yaml:"restart_after_count,omitempty"`
	RestartAfterTime  Duration `yaml:"restart_after_time,omitempty"`
	Headless          *bool    `yaml:"headless,omitempty"`
}

type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level,omitempty"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Format   string         `yaml:"format"`
	Level    string         `yaml:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation"`
}

type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`
	MaxAge     int  `yaml:"max_age"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaultConfig()
	if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Flow: FlowConfig{
			WaitTimeout:  Duration(5 * time.Second),
			PollInterval: Duration(50 * time.Millisecond),
		},
		Chrome: ChromeConfig{
			PoolSize:          "auto",
			NavigateTimeout:   Duration(30 * time.Second),
			RestartAfterCount: 50,
			RestartAfterTime:  Duration(30 * time.Minute),
		},
		Log: LogConfig{
			Level: LogLevelInfo,
			Console: ConsoleLogConfig{
				Enabled: true,
				Format:  LogFormatConsole,
			},
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// Validate checks invariants that strict YAML parsing cannot express.
func (c *Config) Validate() error {
	if !c.Target.Fixture && c.Target.BaseURL == "" {
		return fmt.Errorf("target.base_url is required unless target.fixture is set")
	}
	if c.Flow.WaitTimeout < 0 || c.Flow.PollInterval < 0 {
		return fmt.Errorf("flow timings must not be negative")
	}
	if c.Flow.PollInterval > 0 && c.Flow.WaitTimeout > 0 &&
		c.Flow.PollInterval.ToDuration() > c.Flow.WaitTimeout.ToDuration() {
		return fmt.Errorf("flow.poll_interval must not exceed flow.wait_timeout")
	}
	switch c.Log.Level {
	case "", LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("log.level %q is not a known level", c.Log.Level)
	}
	if c.Log.File.Enabled && c.Log.File.Path == "" {
		return fmt.Errorf("log.file.path is required when file logging is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}
	return nil
}
