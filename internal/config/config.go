// Package config provides configuration for the orchestrator.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/xiaot623/improv/internal/domain"
)

// Config holds the orchestrator configuration.
type Config struct {
	// Server settings
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// Database
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:improv.db?mode=rwc&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"`

	// Ingress JSON-RPC address; empty disables pushes.
	IngressRPCAddr string `env:"INGRESS_RPC_ADDR" envDefault:"localhost:8091"`

	// LLM settings
	LiteLLMURL    string        `env:"LITELLM_URL" envDefault:"http://localhost:4000"`
	LiteLLMAPIKey string        `env:"LITELLM_API_KEY"`
	LLMModel      string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMTimeout    time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`

	// Timeouts
	AgentTimeout       time.Duration `env:"AGENT_TIMEOUT" envDefault:"30s"`
	StoreTimeout       time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"0s"`

	// Scene defaults
	MaxTurns        int   `env:"MAX_TURNS" envDefault:"15"`
	PhaseBoundaries []int `env:"PHASE_BOUNDARIES" envDefault:"4" envSeparator:","`
	ContextWindow   int   `env:"CONTEXT_WINDOW" envDefault:"3"`

	// Optional files
	CatalogPath string `env:"CATALOG_PATH"`
	PolicyPath  string `env:"POLICY_PATH"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load loads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.MaxTurns <= 0 {
		return fmt.Errorf("MAX_TURNS must be positive, got %d", c.MaxTurns)
	}
	if err := domain.ValidatePhaseBoundaries(c.PhaseBoundaries, c.MaxTurns); err != nil {
		return fmt.Errorf("PHASE_BOUNDARIES: %w", err)
	}
	if c.ContextWindow <= 0 {
		return fmt.Errorf("CONTEXT_WINDOW must be positive, got %d", c.ContextWindow)
	}
	if c.AgentTimeout <= 0 {
		return fmt.Errorf("AGENT_TIMEOUT must be positive")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	if c.SessionIdleTimeout < 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must not be negative")
	}
	return nil
}
