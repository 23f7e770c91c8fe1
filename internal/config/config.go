// Package config loads service settings from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"batepapo/internal/logger"
)

// Config holds every tunable of the chat server.
type Config struct {
	Host string `env:"CHAT_HOST,default=0.0.0.0"`
	Port int    `env:"CHAT_PORT,default=9000"`

	// WSAddr enables the WebSocket gateway when set, e.g. ":9001".
	WSAddr string `env:"CHAT_WS_ADDR"`

	// NatsURL enables event publishing when set. Chat delivery never
	// depends on it.
	NatsURL string `env:"NATS_URL"`

	SessionQueue    int           `env:"SESSION_QUEUE,default=64"`
	MaxFrameSize    int           `env:"MAX_FRAME_SIZE,default=65536"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s"`

	Logging logger.Config
}

// Load reads the configuration from the environment. A missing .env file
// is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CHAT_PORT out of range: %d", cfg.Port)
	}
	if cfg.SessionQueue <= 0 {
		return nil, fmt.Errorf("SESSION_QUEUE must be positive, got %d", cfg.SessionQueue)
	}
	if cfg.MaxFrameSize <= 0 {
		return nil, fmt.Errorf("MAX_FRAME_SIZE must be positive, got %d", cfg.MaxFrameSize)
	}
	return &cfg, nil
}

// Addr returns the TCP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
