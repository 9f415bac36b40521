package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the LLM worker
type Config struct {
	// Worker configuration. An empty WorkerID means a consumer name is
	// derived from host and process identity at startup.
	WorkerID string `env:"WORKER_ID"`

	// Redis configuration
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASS" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Stream configuration
	SummaryStream  string        `env:"SUMMARY_STREAM" envDefault:"summary_requests"`
	QuestionStream string        `env:"QUESTION_STREAM" envDefault:"question_requests"`
	ResultStream   string        `env:"RESULT_STREAM" envDefault:"llm_results"`
	ResultMaxLen   int64         `env:"RESULT_MAXLEN" envDefault:"1000"`
	ConsumerGroup  string        `env:"CONSUMER_GROUP" envDefault:"llm_workers"`
	BlockTime      time.Duration `env:"BLOCK_TIME" envDefault:"5s"`
	ReadCount      int64         `env:"READ_COUNT" envDefault:"1"`

	// Crash recovery. ClaimMinIdle must outlast the longest batch a live
	// worker can hold, see Validate.
	ClaimInterval time.Duration `env:"CLAIM_INTERVAL" envDefault:"30s"`
	ClaimMinIdle  time.Duration `env:"CLAIM_MIN_IDLE" envDefault:"5m"`

	// Backoff while the broker is unavailable
	BackoffInitial time.Duration `env:"BACKOFF_INITIAL" envDefault:"1s"`
	BackoffMax     time.Duration `env:"BACKOFF_MAX" envDefault:"30s"`

	// LLM configuration
	LLMTimeout         time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	DefaultTemperature float64       `env:"DEFAULT_TEMPERATURE" envDefault:"0.3"`
	DefaultModel       string        `env:"DEFAULT_MODEL"`
	ModelRegistryFile  string        `env:"MODEL_REGISTRY_FILE"`

	// CEL configuration
	AdmissionRule string `env:"ADMISSION_RULE"`

	// Health check configuration
	HealthPort int `env:"HEALTH_PORT" envDefault:"8082"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom loads configuration from the given variables instead of the
// process environment
func LoadFrom(vars map[string]string) (*Config, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}

	if c.SummaryStream == "" || c.QuestionStream == "" || c.ResultStream == "" {
		return fmt.Errorf("SUMMARY_STREAM, QUESTION_STREAM and RESULT_STREAM are required")
	}

	if c.SummaryStream == c.QuestionStream {
		return fmt.Errorf("SUMMARY_STREAM and QUESTION_STREAM must differ")
	}

	if c.ResultStream == c.SummaryStream || c.ResultStream == c.QuestionStream {
		return fmt.Errorf("RESULT_STREAM must differ from the input streams")
	}

	if c.ConsumerGroup == "" {
		return fmt.Errorf("CONSUMER_GROUP is required")
	}

	if c.BlockTime <= 0 {
		return fmt.Errorf("BLOCK_TIME must be positive")
	}

	if c.ReadCount <= 0 {
		return fmt.Errorf("READ_COUNT must be positive")
	}

	if c.ClaimInterval <= 0 || c.ClaimMinIdle <= 0 {
		return fmt.Errorf("CLAIM_INTERVAL and CLAIM_MIN_IDLE must be positive")
	}

	if c.ResultMaxLen < 0 {
		return fmt.Errorf("RESULT_MAXLEN must be non-negative")
	}

	if c.BackoffInitial <= 0 || c.BackoffMax < c.BackoffInitial {
		return fmt.Errorf("BACKOFF_INITIAL must be positive and not exceed BACKOFF_MAX")
	}

	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive")
	}

	if c.ClaimMinIdle <= c.MaxBatchDuration() {
		return fmt.Errorf("CLAIM_MIN_IDLE must exceed LLM_TIMEOUT * READ_COUNT * number of input streams (%s)", c.MaxBatchDuration())
	}

	if c.DefaultTemperature < 0 || c.DefaultTemperature > 2 {
		return fmt.Errorf("DEFAULT_TEMPERATURE must be between 0 and 2")
	}

	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("HEALTH_PORT must be between 1 and 65535")
	}

	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	return nil
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	return validLevels[level]
}

// MaxBatchDuration bounds how long a live worker holds a delivered batch:
// up to ReadCount entries per input stream, each bounded by LLMTimeout.
func (c *Config) MaxBatchDuration() time.Duration {
	return c.LLMTimeout * time.Duration(c.ReadCount) * time.Duration(len(c.InputStreams()))
}

// InputStreams returns the input streams in polling order
func (c *Config) InputStreams() []string {
	return []string{c.SummaryStream, c.QuestionStream}
}

// String returns a string representation of the config (without sensitive data)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{WorkerID=%s, RedisAddr=%s, RedisDB=%d, SummaryStream=%s, QuestionStream=%s, "+
			"ResultStream=%s, ResultMaxLen=%d, ConsumerGroup=%s, BlockTime=%s, ClaimInterval=%s, DefaultModel=%s, "+
			"RegistryFile=%s, HealthPort=%d, LogLevel=%s}",
		c.WorkerID,
		c.RedisAddr,
		c.RedisDB,
		c.SummaryStream,
		c.QuestionStream,
		c.ResultStream,
		c.ResultMaxLen,
		c.ConsumerGroup,
		c.BlockTime,
		c.ClaimInterval,
		c.DefaultModel,
		c.ModelRegistryFile,
		c.HealthPort,
		c.LogLevel,
	)
}
