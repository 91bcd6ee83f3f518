package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/fanstage/live-service/pkg/log"
	"github.com/fanstage/live-service/pkg/pubsub"
)

// Listener consumes asynchronous encoder confirmations from the event bus
// and forwards them to the ConfirmationHandler.
type Listener struct {
	bus     pubsub.Subscriber
	handler ConfirmationHandler
}

// NewListener creates a confirmation listener.
func NewListener(bus pubsub.Subscriber, handler ConfirmationHandler) *Listener {
	return &Listener{bus: bus, handler: handler}
}

// Run subscribes to every session's encoder channel and dispatches events
// until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	events, err := l.bus.SubscribePattern(ctx, pubsub.PatternEncoderEvents)
	if err != nil {
		return fmt.Errorf("failed to subscribe to encoder events: %w", err)
	}

	logger := log.L()
	logger.Info().Str("pattern", pubsub.PatternEncoderEvents).Msg("encoder confirmation listener started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			l.dispatch(ctx, event)
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, event *pubsub.Event) {
	logger := log.L()

	sessionID := event.SessionID
	if sessionID == "" {
		return
	}

	switch event.Type {
	case pubsub.EventChannelReady:
		l.handler.HandleChannelReady(ctx, sessionID)

	case pubsub.EventChannelStopped:
		l.handler.HandleChannelStopped(ctx, sessionID)

	case pubsub.EventChannelError:
		var payload struct {
			Reason string `json:"reason"`
		}
		if len(event.Payload) > 0 {
			if err := event.UnmarshalPayload(&payload); err != nil {
				logger.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("malformed channel_error payload")
			}
		}
		l.handler.HandleChannelError(ctx, sessionID, strings.TrimSpace(payload.Reason))

	default:
		logger.Warn().Str("type", event.Type).Str(log.FieldSessionID, sessionID).Msg("unknown encoder event type")
	}
}
