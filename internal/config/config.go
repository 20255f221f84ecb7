// Package config loads the service configuration from YAML with sane
// defaults for every field.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/veristroke/veristroke/internal/agent"
)

// #region config

// Config is the full service configuration.
type Config struct {
	// DBPath is the SQLite database holding checkpoints, demonstrations
	// and the reflexion log.
	DBPath string `yaml:"db_path"`

	// ExtractorURL is the external feature-extraction endpoint. Empty
	// means features must be supplied directly (CLI, replay).
	ExtractorURL string `yaml:"extractor_url"`
	// ExtractorTimeout bounds each extraction call.
	ExtractorTimeout time.Duration `yaml:"extractor_timeout"`

	// FeedAddr is the listen address for the reflexion record stream.
	FeedAddr string `yaml:"feed_addr"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// Training holds the agent hyperparameters.
	Training agent.Config `yaml:"training"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DBPath:           "veristroke.db",
		ExtractorTimeout: 30 * time.Second,
		FeedAddr:         ":8391",
		LogLevel:         "info",
		Training:         agent.DefaultConfig(),
	}
}

// Load reads a YAML file over the defaults. A missing path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.Training.MinFeedback < 1 {
		return fmt.Errorf("training.min_feedback must be at least 1")
	}
	if c.Training.FinetuneSteps < 0 || c.Training.PretrainEpochs < 0 {
		return fmt.Errorf("training step counts must not be negative")
	}
	if c.Training.NoiseSigma < 0 {
		return fmt.Errorf("training.noise_sigma must not be negative")
	}
	return nil
}

// #endregion config
