package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the bridge's full configuration surface, loaded from BRIDGE_*
// environment variables.
type Config struct {
	// DeviceAddress is the serial port to open ("auto" scans for a known
	// USB-serial device) or "tcp://host:port" for a simulated device.
	DeviceAddress string `env:"BRIDGE_DEVICE_ADDRESS" envDefault:"auto"`
	BaudRate      int    `env:"BRIDGE_BAUD_RATE" envDefault:"9600"`

	PushInterval    time.Duration `env:"BRIDGE_PUSH_INTERVAL" envDefault:"15s"`
	MinPushInterval time.Duration `env:"BRIDGE_MIN_PUSH_INTERVAL" envDefault:"15s"`

	CandidateCount int      `env:"BRIDGE_CANDIDATE_COUNT" envDefault:"4"`
	CandidateNames []string `env:"BRIDGE_CANDIDATE_NAMES" envSeparator:"," envDefault:"Japan,Germany,Switzerland,Norway"`

	StoragePath string `env:"BRIDGE_STORAGE_PATH" envDefault:"./data"`
	RedisURL    string `env:"BRIDGE_REDIS_URL"`

	RemoteBaseURL string `env:"BRIDGE_REMOTE_BASE_URL" envDefault:"https://api.thingspeak.com"`
	ChannelID     string `env:"BRIDGE_CHANNEL_ID"`
	WriteAPIKey   string `env:"BRIDGE_WRITE_API_KEY"`
	ReadAPIKey    string `env:"BRIDGE_READ_API_KEY"`

	HTTPAddr string `env:"BRIDGE_HTTP_ADDR" envDefault:":8081"`

	KafkaBrokers []string `env:"BRIDGE_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"BRIDGE_KAFKA_TOPIC" envDefault:"votes"`

	ConnectRetries      uint64        `env:"BRIDGE_CONNECT_RETRIES" envDefault:"5"`
	ReconnectMaxBackoff time.Duration `env:"BRIDGE_RECONNECT_MAX_BACKOFF" envDefault:"30s"`
}

// Load reads and validates configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.CandidateCount < 1 {
		return errors.New("BRIDGE_CANDIDATE_COUNT must be at least 1")
	}
	if c.WriteAPIKey == "" {
		return errors.New("BRIDGE_WRITE_API_KEY is required")
	}
	if c.ChannelID == "" {
		return errors.New("BRIDGE_CHANNEL_ID is required")
	}
	if c.PushInterval <= 0 || c.MinPushInterval <= 0 {
		return errors.New("push intervals must be positive")
	}
	return nil
}

// CandidateName returns the display name for a candidate, falling back to a
// numeric label when fewer names than candidates were configured.
func (c Config) CandidateName(id int) string {
	if id >= 1 && id <= len(c.CandidateNames) {
		return c.CandidateNames[id-1]
	}
	return fmt.Sprintf("Candidate %d", id)
}
