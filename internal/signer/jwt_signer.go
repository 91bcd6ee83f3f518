package signer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PlaybackClaims are the claims embedded in a playback token.
type PlaybackClaims struct {
	jwt.RegisteredClaims
	Resource string `json:"resource"`
}

// JWTSigner signs playback locators as HS256 tokens appended to the
// playback base URL. The edge/CDN validates the token with the shared
// secret; no per-request authorization calls are needed.
type JWTSigner struct {
	secret       []byte
	issuer       string
	playbackBase string
}

// NewJWTSigner creates a token-based URL signer.
func NewJWTSigner(secret, issuer, playbackBase string) (*JWTSigner, error) {
	if secret == "" {
		return nil, errors.New("signer secret must not be empty")
	}
	return &JWTSigner{
		secret:       []byte(secret),
		issuer:       issuer,
		playbackBase: strings.TrimSuffix(playbackBase, "/"),
	}, nil
}

// Sign returns a signed playback URL valid for ttl.
func (s *JWTSigner) Sign(_ context.Context, resourcePath string, ttl time.Duration) (*SignedLocator, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := &PlaybackClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Resource: resourcePath,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign playback token: %w", err)
	}

	u := fmt.Sprintf("%s/%s?token=%s",
		s.playbackBase,
		strings.TrimPrefix(resourcePath, "/"),
		url.QueryEscape(token),
	)
	return &SignedLocator{URL: u, ExpiresAt: expiresAt}, nil
}

// Verify parses and validates a playback token, returning its claims.
// Used by tests and by edges that share the secret.
func (s *JWTSigner) Verify(tokenString string) (*PlaybackClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PlaybackClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*PlaybackClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid playback token")
	}
	return claims, nil
}
