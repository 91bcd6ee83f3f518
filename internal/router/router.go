// Package router resolves topics to live connections and pushes events to
// them. Delivery is best-effort and at-most-once per open connection: no
// retry, no durable queue. Callers needing durability persist events
// themselves and replay on reconnect.
package router

import (
	"encoding/json"
	"errors"

	"github.com/fanstage/live-service/internal/domain"
	"github.com/fanstage/live-service/internal/hub"
	"github.com/fanstage/live-service/internal/subscription"
	"github.com/fanstage/live-service/pkg/log"
)

// PublishOptions tunes a single publish call.
type PublishOptions struct {
	// ExcludeConnectionID suppresses delivery to one connection,
	// typically the sender of a chat message.
	ExcludeConnectionID string
}

// Broadcaster is the event distribution surface consumed by the session
// manager and the live service.
type Broadcaster interface {
	Publish(topic domain.Topic, event *domain.SessionEvent, opts PublishOptions) int
	PublishToUser(userID string, event *domain.SessionEvent) int
}

// Router wires the subscription index to the connection registry.
type Router struct {
	registry *hub.Registry
	index    *subscription.Index
}

// New creates a broadcast router over the given registry and index.
func New(registry *hub.Registry, index *subscription.Index) *Router {
	return &Router{registry: registry, index: index}
}

// Publish delivers an event to every current subscriber of a topic and
// returns the number of successful sends. Connections that turn out dead
// are closed, which drops them from the index via the registry's close
// hooks; one dead or slow subscriber never aborts delivery to the rest.
func (r *Router) Publish(topic domain.Topic, event *domain.SessionEvent, opts PublishOptions) int {
	data, err := json.Marshal(domain.NewEventMessage(topic, event))
	if err != nil {
		l := log.L()
		l.Error().Err(err).Str(log.FieldTopic, topic.Key()).Msg("failed to encode event")
		return 0
	}

	delivered := 0
	for _, connID := range r.index.SubscribersOf(topic) {
		if connID == opts.ExcludeConnectionID {
			continue
		}
		if err := r.registry.Send(connID, data); err != nil {
			if errors.Is(err, hub.ErrDeadConnection) {
				// Implicit close; the close hook cleans the index.
				r.registry.Close(connID)
			}
			continue
		}
		delivered++
	}

	l := log.L()
	l.Debug().
		Str(log.FieldTopic, topic.Key()).
		Str(log.FieldEventType, string(event.Type)).
		Int("delivered", delivered).
		Msg("event published")
	return delivered
}

// PublishToUser delivers an event to every open connection of one user via
// the registry's reverse index.
func (r *Router) PublishToUser(userID string, event *domain.SessionEvent) int {
	topic := domain.NewUserTopic(userID)
	data, err := json.Marshal(domain.NewEventMessage(topic, event))
	if err != nil {
		l := log.L()
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to encode event")
		return 0
	}

	delivered := 0
	for _, connID := range r.registry.ConnectionsOf(userID) {
		if err := r.registry.Send(connID, data); err != nil {
			if errors.Is(err, hub.ErrDeadConnection) {
				r.registry.Close(connID)
			}
			continue
		}
		delivered++
	}
	return delivered
}
