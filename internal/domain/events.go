package domain

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType tags the variants of SessionEvent.
type EventType string

const (
	EventChat          EventType = "chat"
	EventReaction      EventType = "reaction"
	EventViewerJoined  EventType = "viewer_joined"
	EventViewerLeft    EventType = "viewer_left"
	EventStatusChanged EventType = "status_changed"
)

// SessionEvent is a single immutable event scoped to a live session.
// IDs are ULIDs so persisted events sort by creation time.
type SessionEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id,omitempty"`
	Username  string          `json:"username,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewSessionEvent creates an event with a fresh ULID and timestamp.
func NewSessionEvent(t EventType, sessionID string, payload interface{}) (*SessionEvent, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return &SessionEvent{
		ID:        ulid.Make().String(),
		Type:      t,
		SessionID: sessionID,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// WithActor attaches the acting user to the event.
func (e *SessionEvent) WithActor(userID, username string) *SessionEvent {
	e.UserID = userID
	e.Username = username
	return e
}

// ChatPayload carries a chat message.
type ChatPayload struct {
	Content string `json:"content"`
}

// ReactionPayload carries a like/emoji reaction.
type ReactionPayload struct {
	Kind string `json:"kind"`
}

// StatusChangedPayload carries a lifecycle status change.
type StatusChangedPayload struct {
	Status SessionStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

// ViewerCountPayload carries the viewer count after a join/leave.
type ViewerCountPayload struct {
	CurrentViewers int `json:"current_viewers"`
}
