package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
)

// minRSAExponent rejects degenerate public exponents (0, 1, 2).
const minRSAExponent = 3

// KeyVerifier verifies RS256 signatures against the identity provider's
// JSON Web Key Set, then checks the standard time claims and audience.
// Keys are fetched on every validation.
type KeyVerifier struct {
	url      string
	audience string
	client   *http.Client
}

// NewKeyVerifier creates a KeyVerifier for the JWKS at url.
func NewKeyVerifier(url, audience string, timeout time.Duration) *KeyVerifier {
	return &KeyVerifier{
		url:      url,
		audience: audience,
		client:   &http.Client{Timeout: timeout},
	}
}

// fetchKeys downloads the key set under ctx and parses it.
func (k *KeyVerifier) fetchKeys(ctx context.Context) (*keyfunc.JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create jwks request")
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch jwks")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetch jwks: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read jwks")
	}
	set, err := keyfunc.NewJSON(json.RawMessage(raw))
	if err != nil {
		return nil, errors.Wrap(err, "parse jwks")
	}
	return set, nil
}

// keyFor selects the RSA key named by the token's kid.
func keyFor(set *keyfunc.JWKS) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		key, err := set.Keyfunc(t)
		if err != nil {
			kid, _ := t.Header["kid"].(string)
			return nil, errors.Wrapf(ErrUnknownKey, "kid %q: %v", kid, err)
		}
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownKey, "key type %T", key)
		}
		if pub.E < minRSAExponent {
			return nil, errors.Wrapf(ErrWeakKey, "exponent %d", pub.E)
		}
		return pub, nil
	}
}

func (k *KeyVerifier) Validate(ctx context.Context, token string) (Claims, error) {
	set, err := k.fetchKeys(ctx)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token, claims, keyFor(set),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return nil, errors.Wrap(err, "verify token")
	}
	if !claims.VerifyAudience(k.audience, true) {
		return nil, ErrInvalidAudience
	}
	return Claims(claims), nil
}
