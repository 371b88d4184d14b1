package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Claims are the token attributes reported by a Validator.
type Claims map[string]any

// Validator decides whether a bearer token is acceptable.
type Validator interface {
	Validate(ctx context.Context, token string) (Claims, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, token string) (Claims, error)

func (f ValidatorFunc) Validate(ctx context.Context, token string) (Claims, error) {
	return f(ctx, token)
}

// Gate admits or rejects requests based on their bearer token.
// Each request gets exactly one validation attempt; results are not cached.
type Gate struct {
	validator Validator
	strategy  Strategy
	timeout   time.Duration
	logger    zerolog.Logger
}

// Option customizes a Gate.
type Option func(*Gate)

// WithLogger sets the gate's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Gate) {
		g.logger = l
	}
}

// WithHTTPClient sets the client used to reach the identity provider.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gate) {
		switch v := g.validator.(type) {
		case *Introspector:
			v.client = c
		case *KeyVerifier:
			v.client = c
		}
	}
}

// New builds the gate for the configured strategy.
func New(cfg Config, opts ...Option) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var v Validator
	switch cfg.Strategy {
	case StrategyClaims:
		v = NewClaimCheck(cfg.audience())
	case StrategyIntrospection:
		v = NewIntrospector(cfg.userInfoURL(), cfg.timeout())
	case StrategyJWKS:
		v = NewKeyVerifier(cfg.jwksURL(), cfg.audience(), cfg.timeout())
	}

	g := NewGate(v, opts...)
	g.strategy = cfg.Strategy
	g.timeout = cfg.timeout()
	if cfg.Strategy != StrategyJWKS {
		g.logger.Warn().Str("strategy", string(cfg.Strategy)).Msg("token signatures are not verified locally; only the jwks strategy is secure")
	}
	return g, nil
}

// NewGate wraps an arbitrary validator.
func NewGate(v Validator, opts ...Option) *Gate {
	g := &Gate{
		validator: v,
		timeout:   defaultTimeout,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if in, ok := v.(*Introspector); ok {
		in.logger = g.logger
	}
	return g
}

// Strategy reports the configured strategy, empty for custom validators.
func (g *Gate) Strategy() Strategy {
	return g.strategy
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Authenticate validates the request's bearer token.
// Every failure, including an unreachable identity provider, is an *Error.
func (g *Gate) Authenticate(r *http.Request) (string, Claims, error) {
	token, ok := bearerToken(r)
	if !ok {
		return "", nil, notAuthenticated()
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
	defer cancel()

	claims, err := g.validator.Validate(ctx, token)
	if err != nil {
		return "", nil, invalidCredentials(err)
	}
	return token, claims, nil
}

// Middleware rejects unauthenticated requests with 401 and passes the raw
// token and claims to next through the request context.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := g.Authenticate(r)
		if err != nil {
			g.logger.Info().Err(err).Str("path", r.URL.Path).Msg("request rejected")
			writeUnauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token, claims)))
	})
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	detail := "Not authenticated"
	var authErr *Error
	if errors.As(err, &authErr) {
		detail = authErr.Detail
	}
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
