// Package config provides the configuration structure for the voice-service.
package config

import (
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Defaults applied to fields left empty in the project configuration.
const (
	DefaultJobsSubject       = "voice.jobs"
	DefaultQueueGroup        = "voice-workers"
	DefaultMaxConcurrentJobs = 1
	DefaultJobTimeoutSeconds = 300
	DefaultMaxTextLength     = 500
	DefaultChatterboxURL     = "http://127.0.0.1:8000"
	DefaultModelTimeout      = 120
	DefaultPiperBinary       = "piper"
	DefaultPiperVoice        = "es_ES-mls_10246-low.onnx"
	DefaultMeloBinary        = "melo"
	DefaultMeloLanguage      = "ES"
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	JobsSubject            string `toml:"jobs_subject"`
	QueueGroup             string `toml:"queue_group"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
	// AudioCreatedSubject receives an AudioChunkCreatedEvent per stored clip; empty disables it.
	AudioCreatedSubject string `toml:"audio_created_subject"`
}

// WorkerConfig controls how many jobs the host runs at once and for how long.
type WorkerConfig struct {
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"`
	JobTimeoutSeconds int `toml:"job_timeout_seconds"`
}

// JobTimeout returns the per-job deadline.
func (w WorkerConfig) JobTimeout() time.Duration {
	return time.Duration(w.JobTimeoutSeconds) * time.Second
}

// HandlerConfig holds the request handler settings.
type HandlerConfig struct {
	MaxTextLength  int      `toml:"max_text_length"`
	DefaultBackend string   `toml:"default_backend"`
	TempDir        string   `toml:"temp_dir"`
	Preload        []string `toml:"preload"`
}

// ChatterboxConfig points at the co-located Chatterbox model server.
type ChatterboxConfig struct {
	ServiceURL     string `toml:"service_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the HTTP timeout for model server calls.
func (c ChatterboxConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PiperConfig holds the Piper binary and voice model settings.
type PiperConfig struct {
	BinaryPath string `toml:"binary_path"`
	ModelPath  string `toml:"model_path"`
}

// MeloConfig holds the MeloTTS CLI settings.
type MeloConfig struct {
	BinaryPath string `toml:"binary_path"`
	Language   string `toml:"language"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS       NATSConfig       `toml:"nats"`
	Worker     WorkerConfig     `toml:"worker"`
	Handler    HandlerConfig    `toml:"handler"`
	Chatterbox ChatterboxConfig `toml:"chatterbox"`
	Piper      PiperConfig      `toml:"piper"`
	Melo       MeloConfig       `toml:"melo"`
	Paths      PathsConfig      `toml:"paths"`
}

// Load loads the configuration for the voice-service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.NATS.JobsSubject == "" {
		c.NATS.JobsSubject = DefaultJobsSubject
	}

	if c.NATS.QueueGroup == "" {
		c.NATS.QueueGroup = DefaultQueueGroup
	}

	if c.Worker.MaxConcurrentJobs <= 0 {
		c.Worker.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}

	if c.Worker.JobTimeoutSeconds <= 0 {
		c.Worker.JobTimeoutSeconds = DefaultJobTimeoutSeconds
	}

	if c.Handler.MaxTextLength <= 0 {
		c.Handler.MaxTextLength = DefaultMaxTextLength
	}

	if c.Chatterbox.ServiceURL == "" {
		c.Chatterbox.ServiceURL = DefaultChatterboxURL
	}

	if c.Chatterbox.TimeoutSeconds <= 0 {
		c.Chatterbox.TimeoutSeconds = DefaultModelTimeout
	}

	if c.Piper.BinaryPath == "" {
		c.Piper.BinaryPath = DefaultPiperBinary
	}

	if c.Piper.ModelPath == "" {
		c.Piper.ModelPath = DefaultPiperVoice
	}

	if c.Melo.BinaryPath == "" {
		c.Melo.BinaryPath = DefaultMeloBinary
	}

	if c.Melo.Language == "" {
		c.Melo.Language = DefaultMeloLanguage
	}
}
