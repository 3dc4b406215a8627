package config

import (
	"time"

	"github.com/tcynic/resonant-sub007/internal/analysis/breaker"
	"github.com/tcynic/resonant-sub007/internal/analysis/compare"
	"github.com/tcynic/resonant-sub007/internal/analysis/dlq"
	"github.com/tcynic/resonant-sub007/internal/analysis/fallback"
	"github.com/tcynic/resonant-sub007/internal/analysis/queue"
	"github.com/tcynic/resonant-sub007/internal/analysis/retry"
	redisclient "github.com/tcynic/resonant-sub007/internal/infra/redis"
	"github.com/tcynic/resonant-sub007/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	Database   postgres.Config    `yaml:"database"`
	Redis      redisclient.Config `yaml:"redis"`
	Inference  InferenceConfig    `yaml:"inference"`
	Worker     WorkerConfig       `yaml:"worker"`
	Queue      queue.Config       `yaml:"queue"`
	Retry      retry.Config       `yaml:"retry"`
	Breaker    breaker.Config     `yaml:"breaker"`
	Fallback   fallback.Config    `yaml:"fallback"`
	Compare    compare.Config     `yaml:"compare"`
	Upgrade    UpgradeConfig      `yaml:"upgrade"`
	DeadLetter dlq.Config         `yaml:"dead_letter"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// InferenceConfig holds settings for the external analysis API.
type InferenceConfig struct {
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	MaxTokens      int           `yaml:"max_tokens"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CostPerCall    float64       `yaml:"cost_per_call"`
}

// WorkerConfig holds the processing loop and background schedules. The
// schedule fields take cron specs, including the @every form.
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	SweepSchedule   string        `yaml:"sweep_schedule"`
	DepthSchedule   string        `yaml:"depth_schedule"`
	UpgradeSchedule string        `yaml:"upgrade_schedule"`
}

// UpgradeConfig tunes the fallback upgrade scan.
type UpgradeConfig struct {
	QualityThreshold float64 `yaml:"quality_threshold"`
	CostThreshold    float64 `yaml:"cost_threshold"`
}
