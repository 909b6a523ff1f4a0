package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the interview client
type Config struct {
	// Realtime endpoint. The URL is derived from the page the client is hosted
	// on (https -> wss, otherwise ws) unless RealtimeURL overrides it.
	PageURL      string `envconfig:"PAGE_URL" default:"http://localhost:3000"`
	RealtimeURL  string `envconfig:"REALTIME_URL" default:""`
	RealtimePort int    `envconfig:"REALTIME_PORT" default:"8000"`

	// Session payload
	JobDescription string `envconfig:"JOB_DESCRIPTION" default:""`
	SessionID      string `envconfig:"SESSION_ID" default:""`
	ProfilePath    string `envconfig:"INTERVIEW_PROFILE" default:""` // YAML profile, overrides the two above

	// Audio devices. "-" means raw PCM16 on stdin/stdout, anything else is a WAV path.
	AudioInput  string `envconfig:"AUDIO_INPUT" default:"-"`
	AudioOutput string `envconfig:"AUDIO_OUTPUT" default:"-"`
	SampleRate  int    `envconfig:"SAMPLE_RATE" default:"24000"`
	FrameSize   int    `envconfig:"FRAME_SIZE" default:"4096"` // samples per captured block

	// Transport configuration
	DialTimeout     int `envconfig:"DIAL_TIMEOUT" default:"10"`     // seconds
	DialMaxAttempts int `envconfig:"DIAL_MAX_ATTEMPTS" default:"3"` // attempts before giving up
	DialBackoff     int `envconfig:"DIAL_BACKOFF" default:"250"`    // milliseconds
	WriteTimeout    int `envconfig:"WRITE_TIMEOUT" default:"5"`     // seconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // console output for development
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // serve /metrics on StatusPort
	StatusPort     string `envconfig:"STATUS_PORT" default:"9090"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the values that would otherwise fail deep inside a session
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("SAMPLE_RATE must be positive, got %d", c.SampleRate)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("FRAME_SIZE must be positive, got %d", c.FrameSize)
	}
	if c.RealtimePort <= 0 || c.RealtimePort > 65535 {
		return fmt.Errorf("REALTIME_PORT out of range: %d", c.RealtimePort)
	}
	if c.DialMaxAttempts < 1 {
		return fmt.Errorf("DIAL_MAX_ATTEMPTS must be at least 1, got %d", c.DialMaxAttempts)
	}
	if c.RealtimeURL != "" {
		u, err := url.Parse(c.RealtimeURL)
		if err != nil {
			return fmt.Errorf("invalid REALTIME_URL: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("REALTIME_URL must use ws or wss, got %q", u.Scheme)
		}
	} else if _, err := url.Parse(c.PageURL); err != nil {
		return fmt.Errorf("invalid PAGE_URL: %w", err)
	}
	return nil
}

// DialTimeoutDuration returns the handshake timeout
func (c *Config) DialTimeoutDuration() time.Duration {
	return time.Duration(c.DialTimeout) * time.Second
}

// DialBackoffDuration returns the initial backoff between dial attempts
func (c *Config) DialBackoffDuration() time.Duration {
	return time.Duration(c.DialBackoff) * time.Millisecond
}

// WriteTimeoutDuration returns the per-message write deadline
func (c *Config) WriteTimeoutDuration() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}
