package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileNames are the file names searched for in the working directory,
// in order.
var ConfigFileNames = []string{"burrow.yaml", "burrow.yml"}

// EnvConfigFile names the configuration file explicitly, overriding the
// search.
const EnvConfigFile = "BURROW_CONFIG"

// Find locates the configuration file: the BURROW_CONFIG environment
// variable if set, otherwise the first of burrow.yaml or burrow.yml in the
// working directory. Returns empty when none exists.
func Find() string {
	if path := os.Getenv(EnvConfigFile); path != "" {
		return path
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for _, name := range ConfigFileNames {
		path := filepath.Join(cwd, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Load reads the configuration file at path over the defaults, applies
// environment overrides, and validates the result. An empty path skips the
// file and loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Environment variables overriding file values.
const (
	EnvRelayURL    = "BURROW_RELAY_URL"
	EnvToken       = "BURROW_TOKEN"
	EnvTunnel      = "BURROW_TUNNEL"
	EnvBackendURL  = "BURROW_BACKEND_URL"
	EnvInspectAddr = "BURROW_INSPECT_ADDR"
	EnvLogLevel    = "BURROW_LOG_LEVEL"
	EnvLogFormat   = "BURROW_LOG_FORMAT"
)

// applyEnv overrides cfg fields from BURROW_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvRelayURL); v != "" {
		cfg.Relay.URL = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		cfg.Relay.Token = v
	}
	if v := os.Getenv(EnvTunnel); v != "" {
		cfg.Relay.Tunnel = v
	}
	if v := os.Getenv(EnvBackendURL); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv(EnvInspectAddr); v != "" {
		cfg.Inspect.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
}
