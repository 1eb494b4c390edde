package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings. Values resolve in three layers:
// struct defaults, then environment variables, then an optional YAML
// file. The file is explicit operator input, so it wins when given.
type Config struct {
	// API
	APIHost    string `envconfig:"API_HOST" yaml:"api_host" default:"0.0.0.0"`
	APIPort    int    `envconfig:"API_PORT" yaml:"api_port" default:"8000"`
	APIWorkers int    `envconfig:"API_WORKERS" yaml:"api_workers" default:"5"`

	// Backing store
	StoreHost     string `envconfig:"STORE_HOST" yaml:"store_host" default:"localhost"`
	StorePort     int    `envconfig:"STORE_PORT" yaml:"store_port" default:"6379"`
	StoreDB       int    `envconfig:"STORE_DB" yaml:"store_db" default:"0"`
	StorePassword string `envconfig:"STORE_PASSWORD" yaml:"store_password"`

	// Worker
	WorkerMemoryLimit       int `envconfig:"WORKER_MEMORY_LIMIT" yaml:"worker_memory_limit" default:"90"`
	WorkerBatchSize         int `envconfig:"WORKER_BATCH_SIZE" yaml:"worker_batch_size" default:"1"`
	WorkerMaxThreads        int `envconfig:"WORKER_MAX_THREADS" yaml:"worker_max_threads" default:"10"`
	WorkerHeartbeatInterval int `envconfig:"WORKER_HEARTBEAT_INTERVAL" yaml:"worker_heartbeat_interval" default:"30"`
	WorkerTimeout           int `envconfig:"WORKER_TIMEOUT" yaml:"worker_timeout" default:"300"`

	// Tasks
	TaskRetryLimit int `envconfig:"TASK_RETRY_LIMIT" yaml:"task_retry_limit" default:"3"`
	TaskTimeout    int `envconfig:"TASK_TIMEOUT" yaml:"task_timeout" default:"1800"`

	// Garbage collection
	GCInterval        int `envconfig:"GC_INTERVAL" yaml:"gc_interval" default:"3600"`
	TaskRetention     int `envconfig:"TASK_RETENTION_HOURS" yaml:"task_retention_hours" default:"24"`
	ConsumerIdleLimit int `envconfig:"CONSUMER_IDLE_TIMEOUT" yaml:"consumer_idle_timeout" default:"3600000"`

	// Files
	UploadDir           string   `envconfig:"UPLOAD_DIR" yaml:"upload_dir" default:"temp/uploads"`
	ResultDir           string   `envconfig:"RESULT_DIR" yaml:"result_dir" default:"temp/results"`
	MaxFileSize         int64    `envconfig:"MAX_FILE_SIZE" yaml:"max_file_size" default:"104857600"`
	AllowedAudioFormats []string `envconfig:"ALLOWED_AUDIO_FORMATS" yaml:"allowed_audio_formats" default:".mp3"`

	// Languages
	SupportedLanguages []string `envconfig:"SUPPORTED_LANGUAGES" yaml:"supported_languages" default:"en,zh,zh-CN,zh-TW,ja"`

	// Engines
	STTModel     string  `envconfig:"STT_MODEL" yaml:"stt_model" default:"base"`
	STTEndpoint  string  `envconfig:"STT_ENDPOINT" yaml:"stt_endpoint"`
	MTEndpoint   string  `envconfig:"MT_ENDPOINT" yaml:"mt_endpoint"`
	WERThreshold float64 `envconfig:"WER_THRESHOLD" yaml:"wer_threshold" default:"0.3"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" yaml:"log_level" default:"info"`
	LogJSON  bool   `envconfig:"LOG_JSON" yaml:"log_json" default:"true"`
}

// Load resolves the configuration. path may be empty (no file layer).
func Load(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations no component could run with
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", c.APIPort)
	}
	if c.WorkerMaxThreads <= 0 {
		return fmt.Errorf("worker pool size must be positive, got %d", c.WorkerMaxThreads)
	}
	if c.WorkerBatchSize <= 0 {
		return fmt.Errorf("worker batch size must be positive, got %d", c.WorkerBatchSize)
	}
	if c.WorkerMemoryLimit <= 0 || c.WorkerMemoryLimit > 100 {
		return fmt.Errorf("worker memory limit must be a percentage, got %d", c.WorkerMemoryLimit)
	}
	if c.TaskRetryLimit < 0 {
		return fmt.Errorf("task retry limit must be non-negative, got %d", c.TaskRetryLimit)
	}
	if c.WERThreshold < 0 || c.WERThreshold > 1 {
		return fmt.Errorf("WER threshold must be within [0,1], got %g", c.WERThreshold)
	}
	if len(c.SupportedLanguages) == 0 {
		return fmt.Errorf("at least one supported language is required")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.MaxFileSize)
	}
	return nil
}

// StoreAddr returns the host:port address of the backing store
func (c *Config) StoreAddr() string {
	return fmt.Sprintf("%s:%d", c.StoreHost, c.StorePort)
}

// APIAddr returns the HTTP bind address
func (c *Config) APIAddr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

// HeartbeatInterval returns the worker heartbeat cadence
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.WorkerHeartbeatInterval) * time.Second
}

// WorkerIdleTimeout returns the idle threshold past which a claimed
// stream entry is considered orphaned
func (c *Config) WorkerIdleTimeout() time.Duration {
	return time.Duration(c.WorkerTimeout) * time.Second
}

// TaskDeadline returns the per-task execution budget
func (c *Config) TaskDeadline() time.Duration {
	return time.Duration(c.TaskTimeout) * time.Second
}

// GCCycle returns the janitor interval
func (c *Config) GCCycle() time.Duration {
	return time.Duration(c.GCInterval) * time.Second
}

// RetentionWindow returns how long terminal tasks are kept
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.TaskRetention) * time.Hour
}

// ConsumerIdleThreshold returns the idle cutoff for dead consumer removal
func (c *Config) ConsumerIdleThreshold() time.Duration {
	return time.Duration(c.ConsumerIdleLimit) * time.Millisecond
}

// LanguageSupported reports whether code is in the configured set
func (c *Config) LanguageSupported(code string) bool {
	for _, l := range c.SupportedLanguages {
		if l == code {
			return true
		}
	}
	return false
}

// AudioFormatAllowed reports whether the file extension is accepted
func (c *Config) AudioFormatAllowed(ext string) bool {
	for _, f := range c.AllowedAudioFormats {
		if f == ext {
			return true
		}
	}
	return false
}
