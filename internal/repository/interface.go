package repository

import (
	"context"
	"errors"

	"github.com/fanstage/live-service/internal/domain"
)

var (
	// ErrSessionNotFound indicates no session row matches the id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStatusConflict indicates a compare-and-set update lost the race:
	// the persisted status no longer matches the expected one.
	ErrStatusConflict = errors.New("session status changed concurrently")
)

// SessionRepository is the authoritative store for live sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.LiveSession) error
	GetByID(ctx context.Context, id string) (*domain.LiveSession, error)
	List(ctx context.Context, page, pageSize int, status string) ([]domain.LiveSession, int, error)
	GetOwnerSessions(ctx context.Context, ownerID string) ([]domain.LiveSession, error)
	CountActiveByOwner(ctx context.Context, ownerID string) (int, error)

	// UpdateStatus persists session's current fields guarded by the
	// expected previous status; returns ErrStatusConflict if another
	// writer moved the session first.
	UpdateStatus(ctx context.Context, session *domain.LiveSession, expected domain.SessionStatus) error
}

// ChatMessageRepository appends chat history. Long-term storage and reads
// are an external concern; this core only writes through.
type ChatMessageRepository interface {
	Append(ctx context.Context, event *domain.SessionEvent, content string) error
}
