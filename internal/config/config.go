// Package config assembles the agent's configuration from per-concern
// sub-configs, loaded from YAML with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deskagent/core/internal/coreerrors"
)

// Config is the root configuration.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Capture  CaptureConfig  `yaml:"capture"`
	Executor ExecutorConfig `yaml:"executor"`
	Memory   MemoryConfig   `yaml:"memory"`
	Skills   SkillsConfig   `yaml:"skills"`
	Loop     LoopConfig     `yaml:"loop"`
	Serve    ServeConfig    `yaml:"serve"`
}

// ModelConfig selects and credentials the multimodal provider.
type ModelConfig struct {
	// Provider is "anthropic" or "openai".
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	MaxRetries int    `yaml:"max_retries"`
	MaxTokens  int    `yaml:"max_tokens"`
}

// CaptureConfig tunes frame encoding.
type CaptureConfig struct {
	JPEGQuality    int `yaml:"jpeg_quality"`
	MaxEncodedSide int `yaml:"max_encoded_side"`
}

// ExecutorConfig tunes the local executor and input driver.
type ExecutorConfig struct {
	// InputBin is the host input-injection binary (e.g. "xdotool").
	InputBin             string `yaml:"input_bin"`
	MaxCorrections       int    `yaml:"max_corrections"`
	ActionTimeoutSeconds int    `yaml:"action_timeout_seconds"`
	ToolWaitMS           int    `yaml:"tool_wait_ms"`
}

// MemoryConfig tunes session persistence and history compaction.
type MemoryConfig struct {
	DatabasePath        string `yaml:"database_path"`
	Driver              string `yaml:"driver"`
	KeepImages          int    `yaml:"keep_images"`
	TokenThreshold      int    `yaml:"token_threshold"`
	KeepRecentMessages  int    `yaml:"keep_recent_messages"`
	SessionRetentionDays int   `yaml:"session_retention_days"`
	CleanupIntervalMS   int    `yaml:"cleanup_interval_ms"`
}

// SkillsConfig locates user-authored skills.
type SkillsConfig struct {
	Directory string `yaml:"directory"`
	Watch     bool   `yaml:"watch"`
}

// LoopConfig bounds the decision loop.
type LoopConfig struct {
	MaxIterations          int `yaml:"max_iterations"`
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
	DeadlineSeconds        int `yaml:"deadline_seconds"`
}

// ServeConfig configures the optional event/metrics endpoint.
type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration with every documented default
// applied.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:   "anthropic",
			MaxRetries: 3,
			MaxTokens:  4096,
		},
		Capture: CaptureConfig{
			JPEGQuality:    80,
			MaxEncodedSide: 1600,
		},
		Executor: ExecutorConfig{
			InputBin:             "xdotool",
			MaxCorrections:       5,
			ActionTimeoutSeconds: 30,
			ToolWaitMS:           500,
		},
		Memory: MemoryConfig{
			KeepImages:           10,
			TokenThreshold:       100_000,
			KeepRecentMessages:   10,
			SessionRetentionDays: 30,
			CleanupIntervalMS:    3_600_000,
		},
		Skills: SkillsConfig{
			Directory: "",
			Watch:     true,
		},
		Loop: LoopConfig{
			MaxIterations:          50,
			MaxConsecutiveFailures: 5,
		},
		Serve: ServeConfig{
			Addr: "127.0.0.1:8123",
		},
	}
}

// Load reads YAML from path (optional), layers environment overrides on
// top of the defaults, and validates the result. An empty path skips the
// file and uses defaults + environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read config: %v", coreerrors.ErrConfiguration, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("%w: parse config: %v", coreerrors.ErrConfiguration, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers environment variables over the loaded values.
func (c *Config) applyEnv() {
	setString(&c.Model.Provider, "DESKAGENT_MODEL_PROVIDER")
	setString(&c.Model.APIKey, "DESKAGENT_MODEL_API_KEY")
	setString(&c.Model.BaseURL, "DESKAGENT_MODEL_BASE_URL")
	setString(&c.Model.Model, "DESKAGENT_MODEL_NAME")
	setString(&c.Memory.DatabasePath, "DESKAGENT_DB_PATH")
	setString(&c.Skills.Directory, "DESKAGENT_SKILLS_DIR")
	setString(&c.Serve.Addr, "DESKAGENT_SERVE_ADDR")
	setInt(&c.Loop.MaxIterations, "DESKAGENT_LOOP_MAX_ITERATIONS")
	setInt(&c.Loop.MaxConsecutiveFailures, "DESKAGENT_LOOP_MAX_CONSECUTIVE_FAILURES")

	if c.Model.APIKey == "" {
		switch c.Model.Provider {
		case "openai":
			c.Model.APIKey = os.Getenv("OPENAI_API_KEY")
		default:
			c.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
}

// Validate rejects configurations the loop cannot start with.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("%w: unknown model provider %q", coreerrors.ErrConfiguration, c.Model.Provider)
	}
	if c.Loop.MaxIterations <= 0 {
		return fmt.Errorf("%w: loop.max_iterations must be positive", coreerrors.ErrConfiguration)
	}
	if c.Loop.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("%w: loop.max_consecutive_failures must be positive", coreerrors.ErrConfiguration)
	}
	if c.Memory.KeepImages < 0 || c.Memory.KeepRecentMessages < 0 {
		return fmt.Errorf("%w: memory retention knobs must be non-negative", coreerrors.ErrConfiguration)
	}
	return nil
}

// CleanupInterval returns the maintenance interval as a duration.
func (m MemoryConfig) CleanupInterval() time.Duration {
	return time.Duration(m.CleanupIntervalMS) * time.Millisecond
}

// Deadline returns the per-goal wall-clock budget, or zero when
// unbounded.
func (l LoopConfig) Deadline() time.Duration {
	return time.Duration(l.DeadlineSeconds) * time.Second
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
