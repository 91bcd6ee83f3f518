package kafka

import (
	"context"

	"github.com/fanstage/live-service/internal/domain"
)

// EventProducer forwards session events into the persistence pipeline.
// Chat events are consumed downstream by the chat history services; this
// core only produces.
type EventProducer interface {
	ProduceEvent(ctx context.Context, event *domain.SessionEvent) error
	Close()
}
