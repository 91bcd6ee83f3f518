package signer

import (
	"context"
	"time"
)

// SignedLocator is a time-limited URL authorizing media retrieval without
// further authorization calls.
type SignedLocator struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// URLSigner produces signed playback locators for a resource path. The
// access evaluator requests locators but never holds a signing key itself.
type URLSigner interface {
	Sign(ctx context.Context, resourcePath string, ttl time.Duration) (*SignedLocator, error)
}
