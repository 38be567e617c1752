// Package config loads Pulse's runtime configuration from the environment,
// following the teacher corpus's dotenv-then-env-vars bootstrap.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full set of knobs a running Pulse server needs: transport
// binding, router admission limits, session heartbeat timing, metrics, and
// the optional NATS egress bridge and JWT validator.
type Config struct {
	Host string `env:"PULSE_HOST" envDefault:"127.0.0.1"`
	Port int    `env:"PULSE_PORT" envDefault:"8080"`

	WebSocketPath   string `env:"PULSE_WS_PATH" envDefault:"/ws"`
	EnableWebSocket bool   `env:"PULSE_ENABLE_WEBSOCKET" envDefault:"true"`
	EnableQUIC      bool   `env:"PULSE_ENABLE_QUIC" envDefault:"false"`

	MaxConnections    int `env:"PULSE_MAX_CONNECTIONS" envDefault:"100000"`
	MaxChannels       int `env:"PULSE_MAX_CHANNELS" envDefault:"10000"`
	MaxSubsPerConn    int `env:"PULSE_MAX_SUBSCRIPTIONS_PER_CONNECTION" envDefault:"100"`
	MaxMessageSize    int `env:"PULSE_MAX_MESSAGE_SIZE" envDefault:"65536"`
	ChannelCapacity   int `env:"PULSE_CHANNEL_CAPACITY" envDefault:"131072"`
	AutoCreateChannels      bool `env:"PULSE_AUTO_CREATE_CHANNELS" envDefault:"true"`
	AutoDeleteEmptyChannels bool `env:"PULSE_AUTO_DELETE_EMPTY_CHANNELS" envDefault:"true"`

	HeartbeatIntervalMS uint32 `env:"PULSE_HEARTBEAT_MS" envDefault:"30000"`
	HeartbeatTimeoutMS  uint64 `env:"PULSE_HEARTBEAT_TIMEOUT_MS" envDefault:"60000"`
	PresenceStaleMS     uint64 `env:"PULSE_PRESENCE_STALE_MS" envDefault:"60000"`

	PublishRatePerSec float64 `env:"PULSE_PUBLISH_RATE_PER_SEC" envDefault:"500"`
	PublishBurst      int     `env:"PULSE_PUBLISH_BURST" envDefault:"1000"`

	MetricsEnabled bool   `env:"PULSE_METRICS_ENABLED" envDefault:"true"`
	MetricsAddr    string `env:"PULSE_METRICS_ADDR" envDefault:":9090"`

	LogLevel   string `env:"PULSE_LOG_LEVEL" envDefault:"info"`
	Development bool  `env:"PULSE_DEV" envDefault:"false"`

	JWTSecret   string `env:"PULSE_JWT_SECRET" envDefault:""`
	RequireAuth bool   `env:"PULSE_REQUIRE_AUTH" envDefault:"false"`

	NATSURL string `env:"PULSE_NATS_URL" envDefault:""`
}

// Load reads an optional ".env" file (ignored if absent) and then parses
// the process environment into a Config, applying envDefault tags for
// anything unset.
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// BindAddr returns the "host:port" the transport listener should bind.
func (c Config) BindAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
