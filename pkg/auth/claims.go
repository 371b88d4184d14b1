package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
)

// ClaimCheck accepts any well-formed JWT whose audience matches.
// The signature is never verified, so forged tokens pass; it checks
// shape, not authenticity.
type ClaimCheck struct {
	audience string
	parser   *jwt.Parser
}

// NewClaimCheck creates a ClaimCheck for the given audience.
func NewClaimCheck(audience string) *ClaimCheck {
	return &ClaimCheck{audience: audience, parser: jwt.NewParser()}
}

func (c *ClaimCheck) Validate(_ context.Context, token string) (Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := c.parser.ParseUnverified(token, claims); err != nil {
		return nil, errors.Wrap(err, "decode token claims")
	}
	if !claims.VerifyAudience(c.audience, true) {
		return nil, ErrInvalidAudience
	}
	return Claims(claims), nil
}
