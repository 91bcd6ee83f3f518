package service

import (
	"context"

	"github.com/fanstage/live-service/internal/access"
	"github.com/fanstage/live-service/internal/domain"
	"github.com/fanstage/live-service/internal/hub"
)

// LiveService orchestrates the realtime surface: topic subscriptions,
// client-emitted events, viewer accounting, and the watch decision.
type LiveService interface {
	HandleSubscribe(ctx context.Context, client *hub.Client, msg *domain.SubscribeMessage)
	HandleUnsubscribe(ctx context.Context, client *hub.Client, msg *domain.UnsubscribeMessage)
	HandleEmit(ctx context.Context, client *hub.Client, msg *domain.EmitMessage)

	// HandleDisconnect releases everything a closed connection held:
	// viewer slots, subscriptions, and the departure events that go with
	// them. Attached to the registry's close hooks.
	HandleDisconnect(client *hub.Client)

	// Watch evaluates playback access for a viewer over HTTP.
	Watch(ctx context.Context, sessionID, viewerID string) (*access.Decision, error)
}
