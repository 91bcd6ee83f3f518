package cache

import (
	"context"
	"time"

	"github.com/fanstage/live-service/internal/domain"
)

// SessionCacheResult wraps the cached session payload.
type SessionCacheResult struct {
	Session domain.LiveSession `json:"session"`
}

// SessionCache is a read cache in front of the session repository.
type SessionCache interface {
	Get(ctx context.Context, key string) (*SessionCacheResult, error)
	Set(ctx context.Context, key string, result *SessionCacheResult, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	BuildKeyByID(sessionID string) string
	Close() error
}
