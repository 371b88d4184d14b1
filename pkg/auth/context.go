package auth

import "context"

type keyToken struct{}

type keyClaims struct{}

// WithToken stores the raw bearer token and its claims in ctx.
func WithToken(ctx context.Context, token string, claims Claims) context.Context {
	ctx = context.WithValue(ctx, keyToken{}, token)
	return context.WithValue(ctx, keyClaims{}, claims)
}

// TokenFromContext returns the bearer token admitted by the Gate.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(keyToken{}).(string)
	return token
}

// ClaimsFromContext returns the claims reported by the active validator.
func ClaimsFromContext(ctx context.Context) Claims {
	claims, _ := ctx.Value(keyClaims{}).(Claims)
	return claims
}
