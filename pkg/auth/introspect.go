package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Introspector forwards the token to the identity provider's "who am I"
// endpoint. A 2xx answer proves validity; anything else is a rejection.
type Introspector struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewIntrospector creates an Introspector calling url with a bounded client.
func NewIntrospector(url string, timeout time.Duration) *Introspector {
	return &Introspector{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: zerolog.Nop(),
	}
}

func (i *Introspector) Validate(ctx context.Context, token string) (Claims, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create userinfo request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "userinfo request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Wrapf(ErrRejected, "userinfo status %d", resp.StatusCode)
	}

	// The status alone admits the token; the profile only fills claims.
	claims := Claims{}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&claims); err != nil {
		if !errors.Is(err, io.EOF) {
			i.logger.Warn().Err(err).Str("url", i.url).Msg("userinfo body unreadable, continuing without profile claims")
		}
		return Claims{}, nil
	}
	return claims, nil
}
