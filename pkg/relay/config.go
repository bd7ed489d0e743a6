package relay

import (
	"errors"
	"time"
)

// Default configuration values.
const (
	DefaultRelayURL          = "wss://relay.burrow.dev/tunnel"
	DefaultReconnectDelay    = 1 * time.Second
	DefaultMaxReconnectDelay = 30 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
)

// Config holds relay client configuration.
type Config struct {
	// RelayURL is the WebSocket URL of the relay server.
	RelayURL string

	// Token is the authentication token presented to the relay.
	Token string

	// Tunnel is the requested routing name (the first path segment under
	// which the backend is exposed). If empty, the relay auto-assigns one.
	Tunnel string

	// Auth is the authentication configuration for incoming requests.
	// If nil, no authentication is required.
	Auth *AuthConfig

	// ReconnectDelay is the initial delay before reconnecting after disconnect.
	ReconnectDelay time.Duration

	// MaxReconnectDelay is the maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration

	// PingInterval is the interval between keepalive pings.
	PingInterval time.Duration

	// RequestTimeout bounds the handling of a single relayed request.
	RequestTimeout time.Duration

	// AutoReconnect enables automatic reconnection on disconnect.
	AutoReconnect bool

	// TLSInsecure skips relay certificate verification. Development relays
	// with self-signed certificates only.
	TLSInsecure bool

	// OnConnect is called when the tunnel connects.
	OnConnect func(publicURL string)

	// OnDisconnect is called when the tunnel disconnects.
	OnDisconnect func(err error)

	// OnRequest is called for each request received through the tunnel.
	OnRequest func(method, path string)

	// ClientVersion is the client version string sent to the relay.
	ClientVersion string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		RelayURL:          DefaultRelayURL,
		ReconnectDelay:    DefaultReconnectDelay,
		MaxReconnectDelay: DefaultMaxReconnectDelay,
		PingInterval:      DefaultPingInterval,
		RequestTimeout:    DefaultRequestTimeout,
		AutoReconnect:     true,
		ClientVersion:     "0.1.0",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RelayURL == "" {
		return errors.New("RelayURL is required")
	}
	if c.Token == "" {
		return errors.New("Token is required")
	}
	return nil
}

// WithToken sets the token and returns the config for chaining.
func (c *Config) WithToken(token string) *Config {
	c.Token = token
	return c
}

// WithTunnel sets the requested routing name and returns the config.
func (c *Config) WithTunnel(name string) *Config {
	c.Tunnel = name
	return c
}

// WithRelayURL sets the relay URL and returns the config.
func (c *Config) WithRelayURL(url string) *Config {
	c.RelayURL = url
	return c
}

// WithAuth sets the incoming-request authentication and returns the config.
func (c *Config) WithAuth(auth *AuthConfig) *Config {
	c.Auth = auth
	return c
}

// WithTokenAuth requires a token from callers and returns the config.
func (c *Config) WithTokenAuth(token string) *Config {
	c.Auth = &AuthConfig{
		Type:  "token",
		Token: token,
	}
	return c
}

// WithBasicAuth requires basic auth from callers and returns the config.
func (c *Config) WithBasicAuth(username, password string) *Config {
	c.Auth = &AuthConfig{
		Type:     "basic",
		Username: username,
		Password: password,
	}
	return c
}

// WithIPAuth restricts callers to a set of IPs and returns the config.
func (c *Config) WithIPAuth(allowedIPs []string) *Config {
	c.Auth = &AuthConfig{
		Type:       "ip",
		AllowedIPs: allowedIPs,
	}
	return c
}
