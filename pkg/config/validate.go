package config

import (
	"net"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/getburrow/burrow/pkg/middleware"
)

// Validate checks the configuration for structural errors: malformed URLs,
// unknown log levels, uncompilable rules. It does not check reachability.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Relay, validation.By(validateRelayConfig)),
		validation.Field(&c.Backend, validation.By(validateBackendConfig)),
		validation.Field(&c.Inspect, validation.By(validateInspectConfig)),
		validation.Field(&c.Logging, validation.By(validateLoggingConfig)),
		validation.Field(&c.Rules, validation.Each(validation.By(validateRuleConfig))),
	)
}

func validateRelayConfig(value interface{}) error {
	rc, ok := value.(RelayConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a RelayConfig")
	}
	return validation.ValidateStruct(&rc,
		validation.Field(&rc.URL,
			validation.Required,
			validation.By(validateRelayURL),
		),
		validation.Field(&rc.PingInterval,
			validation.By(validateDuration),
		),
	)
}

func validateRelayURL(value interface{}) error {
	raw, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}
	switch u.Scheme {
	case "ws", "wss", "quic":
	default:
		return validation.NewError("validation_invalid_scheme", "relay URL must use ws, wss, or quic scheme")
	}
	if u.Hostname() == "" {
		return validation.NewError("validation_missing_host", "relay URL must have a host")
	}
	return nil
}

func validateBackendConfig(value interface{}) error {
	bc, ok := value.(BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BackendConfig")
	}
	return validation.ValidateStruct(&bc,
		validation.Field(&bc.URL,
			validation.Required,
			validation.By(validateBackendURL),
		),
	)
}

func validateBackendURL(value interface{}) error {
	raw, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "backend URL must use http or https scheme")
	}
	if u.Host == "" {
		return validation.NewError("validation_missing_host", "backend URL must have a host")
	}
	return nil
}

func validateInspectConfig(value interface{}) error {
	ic, ok := value.(InspectConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be an InspectConfig")
	}
	if ic.Addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(ic.Addr); err != nil {
		return validation.NewError("validation_invalid_hostport", "inspect addr must be in host:port format")
	}
	return nil
}

func validateLoggingConfig(value interface{}) error {
	lc, ok := value.(LoggingConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
	}
	return validation.ValidateStruct(&lc,
		validation.Field(&lc.Level,
			validation.Required,
			validation.In("debug", "info", "warn", "error"),
		),
		validation.Field(&lc.Format,
			validation.Required,
			validation.In("text", "json"),
		),
	)
}

// validateRuleConfig compiles the rule so pattern and expression errors fail
// validation instead of startup.
func validateRuleConfig(value interface{}) error {
	rc, ok := value.(middleware.RuleConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a RuleConfig")
	}
	if _, err := middleware.NewRule(rc); err != nil {
		return validation.NewError("validation_invalid_rule", err.Error())
	}
	return nil
}

func validateDuration(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if s == "" {
		return nil
	}
	if _, err := time.ParseDuration(s); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 30s, 1m)")
	}
	return nil
}
