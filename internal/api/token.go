package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a token fixed at construction time.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(t)) == "" {
		return "", ErrUnauthorized
	}
	return string(t), nil
}

// FileToken reads the token from a file on every call, so an external
// login helper can rotate it without restarting the process.
type FileToken struct {
	Path string
}

func (f FileToken) Token(context.Context) (string, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: token file %s not found", ErrUnauthorized, f.Path)
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	tok := strings.TrimSpace(string(b))
	if tok == "" {
		return "", fmt.Errorf("%w: token file %s is empty", ErrUnauthorized, f.Path)
	}
	return tok, nil
}

// ExpiryCheckingSource refuses JWT tokens whose exp claim has passed.
// Tokens that are not JWTs, or carry no exp claim, pass through unchanged.
// The signature is not verified; the backend does that.
type ExpiryCheckingSource struct {
	Source TokenSource
	Leeway time.Duration
	Now    func() time.Time
}

func (s ExpiryCheckingSource) Token(ctx context.Context) (string, error) {
	tok, err := s.Source.Token(ctx)
	if err != nil {
		return "", err
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return tok, nil
	}
	if claims.ExpiresAt == nil {
		return tok, nil
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	if now().Add(s.Leeway).After(claims.ExpiresAt.Time) {
		return "", fmt.Errorf("%w: expired at %s", ErrTokenExpired, claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	return tok, nil
}
