// Package config provides configuration for the ingress service.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the ingress configuration.
type Config struct {
	// Server settings
	WSPort   int    `env:"WS_PORT" envDefault:"8090"`   // External WebSocket port
	HTTPPort int    `env:"HTTP_PORT" envDefault:"8092"` // Internal HTTP port for /health
	RPCAddr  string `env:"RPC_ADDR" envDefault:":8091"` // JSON-RPC listener for orchestrator pushes

	// Orchestrator settings
	OrchestratorURL     string        `env:"ORCHESTRATOR_URL" envDefault:"http://localhost:8080"`
	OrchestratorTimeout time.Duration `env:"ORCHESTRATOR_TIMEOUT" envDefault:"60s"`

	// Auth settings
	APIKey string `env:"API_KEY"` // Static API key for hello.api_key validation

	// WebSocket settings
	PingInterval   time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	WriteTimeout   time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
	ReadTimeout    time.Duration `env:"WS_READ_TIMEOUT" envDefault:"60s"`
	MaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE" envDefault:"65536"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.PingInterval >= cfg.ReadTimeout {
		return nil, fmt.Errorf("WS_PING_INTERVAL (%s) must be shorter than WS_READ_TIMEOUT (%s)", cfg.PingInterval, cfg.ReadTimeout)
	}
	if cfg.MaxMessageSize <= 0 {
		return nil, fmt.Errorf("WS_MAX_MESSAGE_SIZE must be positive")
	}
	return cfg, nil
}
