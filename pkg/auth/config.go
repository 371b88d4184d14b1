package auth

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Strategy names a token validation policy.
type Strategy string

const (
	// StrategyClaims decodes the token without verifying its signature and
	// checks the audience. It admits forged tokens.
	StrategyClaims Strategy = "claims"
	// StrategyIntrospection asks the identity provider's userinfo endpoint.
	StrategyIntrospection Strategy = "introspection"
	// StrategyJWKS verifies the signature against the provider's published keys.
	StrategyJWKS Strategy = "jwks"
)

const (
	defaultUserInfoURL = "https://graph.microsoft.com/v1.0/me"
	jwksURLFormat      = "https://login.microsoftonline.com/%s/discovery/v2.0/keys"
	defaultTimeout     = 5 * time.Second
)

// Config selects and parameterizes the validation strategy.
type Config struct {
	Strategy    Strategy      `json:"strategy" yaml:"strategy"`
	TenantID    string        `json:"tenant_id" yaml:"tenant_id"`
	ClientID    string        `json:"client_id" yaml:"client_id"`
	Audience    string        `json:"audience,omitempty" yaml:"audience,omitempty"` // defaults to ClientID
	UserInfoURL string        `json:"userinfo_url,omitempty" yaml:"userinfo_url,omitempty"`
	JWKSURL     string        `json:"jwks_url,omitempty" yaml:"jwks_url,omitempty"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns the multi-tenant defaults.
// Strategy is left empty and must be chosen explicitly.
func DefaultConfig() Config {
	return Config{
		TenantID: "common",
		ClientID: "client-id",
		Timeout:  defaultTimeout,
	}
}

func (c Config) audience() string {
	if c.Audience != "" {
		return c.Audience
	}
	return c.ClientID
}

func (c Config) userInfoURL() string {
	if c.UserInfoURL != "" {
		return c.UserInfoURL
	}
	return defaultUserInfoURL
}

func (c Config) jwksURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return fmt.Sprintf(jwksURLFormat, c.TenantID)
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

// Validate reports a strategy that is missing or unknown.
func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyClaims, StrategyJWKS:
		if c.audience() == "" {
			return errors.Errorf("auth strategy %q needs a client id or audience", c.Strategy)
		}
		return nil
	case StrategyIntrospection:
		return nil
	case "":
		return errors.New("auth.strategy must be set to one of: claims, introspection, jwks")
	default:
		return errors.Errorf("unknown auth strategy %q", c.Strategy)
	}
}
