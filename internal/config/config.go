// Package config provides configuration loading for intaked.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/intaked/internal/extraction"
	"github.com/fyrsmithlabs/intaked/internal/logging"
	"github.com/fyrsmithlabs/intaked/internal/scoring"
)

// Config is the root configuration for the intaked daemon.
type Config struct {
	Server     ServerConfig      `koanf:"server"`
	Logging    logging.Config    `koanf:"logging"`
	Database   DatabaseConfig    `koanf:"database"`
	Pipeline   PipelineConfig    `koanf:"pipeline"`
	Extract    extraction.Config `koanf:"extract"`
	Scoring    scoring.Config    `koanf:"scoring"`
	Queue      QueueConfig       `koanf:"queue"`
	Undo       UndoConfig        `koanf:"undo"`
	Patterns   PatternsConfig    `koanf:"patterns"`
	Store      StoreConfig       `koanf:"store"`
	Intake     IntakeConfig      `koanf:"intake"`
	LLM        LLMConfig         `koanf:"llm"`
	Transcribe TranscribeConfig  `koanf:"transcribe"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// DatabaseConfig holds the embedded database location.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// PipelineConfig holds capture pipeline settings.
type PipelineConfig struct {
	// ReviewCollection receives low-confidence captures.
	ReviewCollection string `koanf:"review_collection"`
}

// QueueConfig holds offline queue settings.
type QueueConfig struct {
	MaxRetries int `koanf:"max_retries"`
}

// UndoConfig holds soft-delete undo settings.
type UndoConfig struct {
	Window Duration `koanf:"window"`
}

// PatternsConfig holds learned-pattern settings.
type PatternsConfig struct {
	// ApplyThreshold is the minimum confidence for a pattern to pre-adjust extraction.
	ApplyThreshold int `koanf:"apply_threshold"`
	// InitialConfidence is assigned to newly learned patterns.
	InitialConfidence int `koanf:"initial_confidence"`
	// ConfirmStep / WrongStep move pattern confidence on reinforcement / contradiction.
	ConfirmStep int `koanf:"confirm_step"`
	WrongStep   int `koanf:"wrong_step"`
}

// StoreConfig holds remote record store client settings.
type StoreConfig struct {
	BaseURL   string   `koanf:"base_url"`
	APIKey    Secret   `koanf:"api_key"`
	Timeout   Duration `koanf:"timeout"`
	RateLimit float64  `koanf:"rate_limit"`
	RateBurst int      `koanf:"rate_burst"`
}

// TranscribeConfig holds the external speech-to-text service settings.
type TranscribeConfig struct {
	Enabled bool     `koanf:"enabled"`
	URL     string   `koanf:"url"`
	Timeout Duration `koanf:"timeout"`
}

// IntakeConfig holds NATS capture intake settings.
type IntakeConfig struct {
	Enabled      bool   `koanf:"enabled"`
	URL          string `koanf:"url"`
	TextSubject  string `koanf:"text_subject"`
	VoiceSubject string `koanf:"voice_subject"`
	ReplyPrefix  string `koanf:"reply_prefix"`
}

// LLMConfig holds the optional LLM intent provider settings.
type LLMConfig struct {
	Enabled bool     `koanf:"enabled"`
	Model   string   `koanf:"model"`
	APIKey  Secret   `koanf:"api_key"`
	Timeout Duration `koanf:"timeout"`
}

// NewDefaultConfig returns config with working defaults for local use.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 9820,
		},
		Logging:  *logging.NewDefaultConfig(),
		Database: DatabaseConfig{Path: "intaked.db"},
		Pipeline: PipelineConfig{
			ReviewCollection: "review",
		},
		Extract: extraction.DefaultConfig(),
		Scoring: scoring.DefaultConfig(),
		Queue: QueueConfig{
			MaxRetries: 5,
		},
		Undo: UndoConfig{
			Window: Duration(5 * time.Minute),
		},
		Patterns: PatternsConfig{
			ApplyThreshold:    70,
			InitialConfidence: 40,
			ConfirmStep:       15,
			WrongStep:         20,
		},
		Store: StoreConfig{
			BaseURL:   "http://localhost:9821",
			Timeout:   Duration(10 * time.Second),
			RateLimit: 5,
			RateBurst: 10,
		},
		Intake: IntakeConfig{
			Enabled:      false,
			URL:          "nats://localhost:4222",
			TextSubject:  "intake.text",
			VoiceSubject: "intake.voice",
			ReplyPrefix:  "intake.reply.",
		},
		LLM: LLMConfig{
			Enabled: false,
			Model:   "gpt-4o-mini",
			Timeout: Duration(15 * time.Second),
		},
		Transcribe: TranscribeConfig{
			Enabled: false,
			URL:     "http://localhost:9822",
			Timeout: Duration(30 * time.Second),
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	if err := c.Extract.Validate(); err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue max_retries cannot be negative")
	}
	if c.Undo.Window.Duration() <= 0 {
		return fmt.Errorf("undo window must be positive")
	}
	if c.Patterns.ApplyThreshold < 0 || c.Patterns.ApplyThreshold > 100 {
		return fmt.Errorf("patterns apply_threshold must be 0-100")
	}
	if c.Store.BaseURL == "" {
		return fmt.Errorf("store base_url is required")
	}
	if c.Store.Timeout.Duration() <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}
	if c.LLM.Enabled && !c.LLM.APIKey.IsSet() {
		return fmt.Errorf("llm api_key is required when llm is enabled")
	}
	if c.Transcribe.Enabled && c.Transcribe.URL == "" {
		return fmt.Errorf("transcribe url is required when transcription is enabled")
	}
	return nil
}
