package session

import (
	"context"

	"github.com/fanstage/live-service/internal/domain"
)

// LifecycleManager owns every live session state transition. Sessions are
// mutated nowhere else.
type LifecycleManager interface {
	Create(ctx context.Context, ownerID, ownerUsername string, req *domain.CreateSessionRequest) (*domain.LiveSession, error)
	Get(ctx context.Context, id string) (*domain.LiveSession, error)
	List(ctx context.Context, page, pageSize int, status string) (*domain.ListSessionsResponse, error)
	OwnerSessions(ctx context.Context, ownerID string) ([]domain.LiveSession, error)

	Start(ctx context.Context, sessionID, actorID string) (*domain.LiveSession, error)
	Stop(ctx context.Context, sessionID, actorID string) (*domain.LiveSession, error)
	Cancel(ctx context.Context, sessionID, actorID string) (*domain.LiveSession, error)
}

// TierDirectory validates that tier references used to gate a session
// belong to the creating artist.
type TierDirectory interface {
	OwnsTiers(ctx context.Context, ownerID string, tierIDs []string) (bool, error)
}
