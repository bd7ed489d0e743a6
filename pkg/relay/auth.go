package relay

import (
	"encoding/base64"
	"errors"
	"strings"
)

// AuthConfig optionally protects requests arriving through the tunnel. The
// check runs at the transport boundary, before the request reaches the
// forwarding engine, so rejected callers never touch the local backend.
type AuthConfig struct {
	// Type is the authentication type: none, token, basic, ip.
	Type string

	// Token is the required value of the X-Auth-Token header for token auth.
	Token string

	// Username and Password are the credentials for basic auth.
	Username string
	Password string

	// AllowedIPs is a list of allowed client IPs for ip auth.
	AllowedIPs []string
}

// Check validates a request against the configured authentication. A nil
// config allows everything.
func (a *AuthConfig) Check(req *Request) error {
	if a == nil || a.Type == "" || a.Type == "none" {
		return nil
	}

	switch a.Type {
	case "token":
		if headerValue(req.Headers, "X-Auth-Token") != a.Token {
			return errors.New("invalid or missing auth token")
		}
	case "basic":
		auth := headerValue(req.Headers, "Authorization")
		if !strings.HasPrefix(auth, "Basic ") {
			return errors.New("missing basic auth header")
		}
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
		if err != nil {
			return errors.New("invalid basic auth encoding")
		}
		user, pass, ok := strings.Cut(string(decoded), ":")
		if !ok || user != a.Username || pass != a.Password {
			return errors.New("invalid credentials")
		}
	case "ip":
		clientIP := headerValue(req.Headers, "X-Forwarded-For")
		if clientIP == "" {
			clientIP = headerValue(req.Headers, "X-Real-IP")
		}
		// Take the first hop of a comma-separated chain.
		if idx := strings.Index(clientIP, ","); idx > 0 {
			clientIP = strings.TrimSpace(clientIP[:idx])
		}
		for _, ip := range a.AllowedIPs {
			if clientIP == ip {
				return nil
			}
		}
		return errors.New("IP not allowed")
	default:
		return errors.New("unknown auth type")
	}
	return nil
}

// headerValue returns the first value for name, matching case-insensitively
// since relays differ in how they case header names.
func headerValue(pairs []HeaderPair, name string) string {
	for _, p := range pairs {
		if strings.EqualFold(p.Name, name) {
			return p.Value
		}
	}
	return ""
}
