// Package config loads and validates the burrow configuration file.
// Values come from three sources with rising precedence: built-in defaults,
// the YAML file, and BURROW_* environment variables. Command-line flags sit
// above all three and are merged by the CLI.
package config

import (
	"time"

	"github.com/getburrow/burrow/pkg/middleware"
	"github.com/getburrow/burrow/pkg/relay"
)

// Defaults applied before the file and environment are read.
const (
	DefaultBackendURL   = "http://localhost:3000"
	DefaultInspectAddr  = "127.0.0.1:4040"
	DefaultPingInterval = "30s"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

// Config is the complete burrow configuration.
type Config struct {
	Relay   RelayConfig             `yaml:"relay" json:"relay"`
	Backend BackendConfig           `yaml:"backend" json:"backend"`
	Inspect InspectConfig           `yaml:"inspect" json:"inspect"`
	Rules   []middleware.RuleConfig `yaml:"rules,omitempty" json:"rules,omitempty"`
	Logging LoggingConfig           `yaml:"logging" json:"logging"`
}

// RelayConfig configures the connection to the relay.
type RelayConfig struct {
	// URL is the relay endpoint. The scheme selects the transport:
	// wss/ws for WebSocket, quic for QUIC.
	URL string `yaml:"url" json:"url"`

	// Token authenticates this client with the relay.
	Token string `yaml:"token,omitempty" json:"token,omitempty"`

	// Tunnel is the requested routing name. Empty lets the relay assign one.
	Tunnel string `yaml:"tunnel,omitempty" json:"tunnel,omitempty"`

	// PingInterval is the keepalive interval as a duration string ("30s").
	PingInterval string `yaml:"pingInterval,omitempty" json:"pingInterval,omitempty"`

	// Reconnect enables automatic reconnection after connection loss.
	Reconnect bool `yaml:"reconnect" json:"reconnect"`

	// TLSInsecure skips relay certificate verification. Development relays
	// with self-signed certificates only.
	TLSInsecure bool `yaml:"tlsInsecure,omitempty" json:"tlsInsecure,omitempty"`
}

// PingIntervalDuration returns the parsed ping interval, or the default when
// unset or unparseable. Validate catches bad values before this runs.
func (r RelayConfig) PingIntervalDuration() time.Duration {
	if r.PingInterval == "" {
		return relay.DefaultPingInterval
	}
	d, err := time.ParseDuration(r.PingInterval)
	if err != nil {
		return relay.DefaultPingInterval
	}
	return d
}

// BackendConfig configures the local service requests are forwarded to.
type BackendConfig struct {
	URL string `yaml:"url" json:"url"`
}

// InspectConfig configures the local inspection API.
type InspectConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr,omitempty" json:"addr,omitempty"`
}

// LoggingConfig configures operational logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`

	// Format is text or json.
	Format string `yaml:"format" json:"format"`

	// File is an optional log file path. Empty logs to stderr.
	File string `yaml:"file,omitempty" json:"file,omitempty"`
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			URL:          relay.DefaultRelayURL,
			PingInterval: DefaultPingInterval,
			Reconnect:    true,
		},
		Backend: BackendConfig{
			URL: DefaultBackendURL,
		},
		Inspect: InspectConfig{
			Enabled: true,
			Addr:    DefaultInspectAddr,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
