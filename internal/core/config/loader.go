package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with all defaults applied and no file
// input, used by tests and the memory-backed dev mode.
func Default() *AppConfig {
	var cfg AppConfig
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Inference.Model == "" {
		cfg.Inference.Model = "claude-3-5-haiku-latest"
	}
	if cfg.Inference.MaxTokens == 0 {
		cfg.Inference.MaxTokens = 1024
	}
	if cfg.Inference.RequestTimeout == 0 {
		cfg.Inference.RequestTimeout = 30 * time.Second
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 4
	}
	if cfg.Worker.PollInterval == 0 {
		cfg.Worker.PollInterval = 500 * time.Millisecond
	}
	if cfg.Worker.SweepSchedule == "" {
		cfg.Worker.SweepSchedule = "@every 1m"
	}
	if cfg.Worker.DepthSchedule == "" {
		cfg.Worker.DepthSchedule = "@every 15s"
	}
	if cfg.Worker.UpgradeSchedule == "" {
		cfg.Worker.UpgradeSchedule = "@every 10m"
	}
	if cfg.Upgrade.QualityThreshold == 0 {
		cfg.Upgrade.QualityThreshold = 0.6
	}
	if cfg.Upgrade.CostThreshold == 0 {
		cfg.Upgrade.CostThreshold = 0.5
	}
}
