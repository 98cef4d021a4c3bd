package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration. Everything the
// dispatcher, executor and collaborators need is passed in explicitly from
// here at construction time; nothing reads ambient process state later.
type Config struct {
	Environment string          `toml:"environment" validate:"oneof=development production"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	Worker      WorkerConfig    `toml:"worker"`
	LLM         LLMConfig       `toml:"llm"`
	Extract     ExtractConfig   `toml:"extract"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
	Host string `toml:"host" validate:"required"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`            // Database directory path
	QueuePath      string `toml:"queue_path" validate:"required"`      // Queue database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`                    // Delete database on startup for clean test runs
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g. "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency" validate:"gt=0"`
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g. "5m" - message visibility timeout for redelivery
	MaxReceive        int    `toml:"max_receive" validate:"gt=0"`
	QueueName         string `toml:"queue_name" validate:"required"`
}

// WorkerConfig controls the executor's resilience policy: per-stage retry
// bounds, backoff shape and the per-job wall-clock ceiling.
type WorkerConfig struct {
	MaxStageRetries    int     `toml:"max_stage_retries" validate:"gte=1"`
	InitialBackoff     string  `toml:"initial_backoff"`
	MaxBackoff         string  `toml:"max_backoff"`
	BackoffMultiplier  float64 `toml:"backoff_multiplier" validate:"gte=1"`
	JobCeiling         string  `toml:"job_ceiling"`         // per-job wall-clock ceiling, e.g. "15m"
	StalenessThreshold string  `toml:"staleness_threshold"` // running longer than this is suspect
}

type LLMConfig struct {
	Provider  string       `toml:"provider" validate:"oneof=claude gemini openai"`
	RateLimit int          `toml:"rate_limit" validate:"gt=0"` // model calls per second
	Claude    ClaudeConfig `toml:"claude"`
	Gemini    GeminiConfig `toml:"gemini"`
	OpenAI    OpenAIConfig `toml:"openai"`
}

type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
}

type GeminiConfig struct {
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	Timeout string `toml:"timeout"`
}

type OpenAIConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// ExtractConfig controls the extraction collaborator: upload limits and the
// fixed truncation budget handed to every stage.
type ExtractConfig struct {
	MaxFileSize   int64 `toml:"max_file_size" validate:"gt=0"`  // bytes
	TruncateChars int   `toml:"truncate_chars" validate:"gt=0"` // document text budget
}

type SchedulerConfig struct {
	Enabled         bool   `toml:"enabled"`
	StaleSweep      string `toml:"stale_sweep"`      // cron schedule for the stale-running sweep
	Cleanup         string `toml:"cleanup"`          // cron schedule for document cleanup
	RetainDocuments string `toml:"retain_documents"` // keep documents of terminal jobs this long
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"`
	Format string   `toml:"format"`
	Output []string `toml:"output"`
}

// NewDefaultConfig returns the default configuration
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/censeo",
				QueuePath:      "./data/censeo-queue",
				ResetOnStartup: false,
			},
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       2,
			VisibilityTimeout: "5m",
			MaxReceive:        3,
			QueueName:         "analysis",
		},
		Worker: WorkerConfig{
			MaxStageRetries:    3,
			InitialBackoff:     "2s",
			MaxBackoff:         "60s",
			BackoffMultiplier:  2.0,
			JobCeiling:         "15m",
			StalenessThreshold: "20m",
		},
		LLM: LLMConfig{
			Provider:  "claude",
			RateLimit: 2,
			Claude: ClaudeConfig{
				Model:       "claude-sonnet-4-20250514",
				Timeout:     "120s",
				MaxTokens:   8192,
				Temperature: 0.3,
			},
			Gemini: GeminiConfig{
				Model:   "gemini-2.0-flash",
				Timeout: "120s",
			},
			OpenAI: OpenAIConfig{
				Model:       "gpt-4-turbo",
				Timeout:     "120s",
				Temperature: 0.3,
			},
		},
		Extract: ExtractConfig{
			MaxFileSize:   10 * 1024 * 1024, // 10MB
			TruncateChars: 15000,
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			StaleSweep:      "*/5 * * * *",
			Cleanup:         "0 3 * * *",
			RetainDocuments: "24h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier
// files; environment variables override everything except CLI flags.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration using validator tags plus the duration
// fields that tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"queue.poll_interval":        c.Queue.PollInterval,
		"queue.visibility_timeout":   c.Queue.VisibilityTimeout,
		"worker.initial_backoff":     c.Worker.InitialBackoff,
		"worker.max_backoff":         c.Worker.MaxBackoff,
		"worker.job_ceiling":         c.Worker.JobCeiling,
		"worker.staleness_threshold": c.Worker.StalenessThreshold,
		"scheduler.retain_documents": c.Scheduler.RetainDocuments,
	}
	for field, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s=%q: %w", field, value, err)
		}
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CENSEO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("CENSEO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CENSEO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Queue configuration
	if pollInterval := os.Getenv("CENSEO_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("CENSEO_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if visibilityTimeout := os.Getenv("CENSEO_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}
	if maxReceive := os.Getenv("CENSEO_QUEUE_MAX_RECEIVE"); maxReceive != "" {
		if mr, err := strconv.Atoi(maxReceive); err == nil {
			config.Queue.MaxReceive = mr
		}
	}

	// Worker configuration
	if retries := os.Getenv("CENSEO_WORKER_MAX_STAGE_RETRIES"); retries != "" {
		if r, err := strconv.Atoi(retries); err == nil {
			config.Worker.MaxStageRetries = r
		}
	}
	if ceiling := os.Getenv("CENSEO_WORKER_JOB_CEILING"); ceiling != "" {
		config.Worker.JobCeiling = ceiling
	}

	// Storage configuration
	if badgerPath := os.Getenv("CENSEO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if queuePath := os.Getenv("CENSEO_BADGER_QUEUE_PATH"); queuePath != "" {
		config.Storage.Badger.QueuePath = queuePath
	}

	// LLM configuration
	if provider := os.Getenv("CENSEO_LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.LLM.Claude.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.LLM.Gemini.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.LLM.OpenAI.APIKey = key
	}

	// Logging configuration
	if level := os.Getenv("CENSEO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("CENSEO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Duration accessors with validated fallbacks. Validate guarantees the
// strings parse, so errors here only occur on a hand-built Config.

func (c *QueueConfig) PollIntervalDuration() time.Duration {
	return parseDurationOr(c.PollInterval, time.Second)
}

func (c *QueueConfig) VisibilityTimeoutDuration() time.Duration {
	return parseDurationOr(c.VisibilityTimeout, 5*time.Minute)
}

func (c *WorkerConfig) InitialBackoffDuration() time.Duration {
	return parseDurationOr(c.InitialBackoff, 2*time.Second)
}

func (c *WorkerConfig) MaxBackoffDuration() time.Duration {
	return parseDurationOr(c.MaxBackoff, 60*time.Second)
}

func (c *WorkerConfig) JobCeilingDuration() time.Duration {
	return parseDurationOr(c.JobCeiling, 15*time.Minute)
}

func (c *WorkerConfig) StalenessThresholdDuration() time.Duration {
	return parseDurationOr(c.StalenessThreshold, 20*time.Minute)
}

func (c *SchedulerConfig) RetainDocumentsDuration() time.Duration {
	return parseDurationOr(c.RetainDocuments, 24*time.Hour)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
