package domain

import "encoding/json"

// WebSocket message types (client -> server).
const (
	MsgTypeSubscribe   = "subscribe"
	MsgTypeUnsubscribe = "unsubscribe"
	MsgTypeEmit        = "emit"
	MsgTypePing        = "ping"
)

// WebSocket message types (server -> client).
const (
	MsgTypeSubscribed   = "subscribed"
	MsgTypeUnsubscribed = "unsubscribed"
	MsgTypeEvent        = "event"
	MsgTypeError        = "error"
	MsgTypePong         = "pong"
)

// Protocol error codes.
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeAccessDenied  = "ACCESS_DENIED"
	ErrCodeNotSubscribed = "NOT_SUBSCRIBED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BaseMessage is used to sniff the message type before full decoding.
type BaseMessage struct {
	Type string `json:"type"`
}

// SubscribeMessage asks to join a topic.
type SubscribeMessage struct {
	Type  string `json:"type"`
	Topic Topic  `json:"topic"`
}

// UnsubscribeMessage asks to leave a topic.
type UnsubscribeMessage struct {
	Type  string `json:"type"`
	Topic Topic  `json:"topic"`
}

// EmitMessage publishes an event to a topic the client is subscribed to.
type EmitMessage struct {
	Type      string          `json:"type"`
	Topic     Topic           `json:"topic"`
	EventType EventType       `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SubscribedMessage confirms a subscription.
type SubscribedMessage struct {
	Type  string `json:"type"`
	Topic Topic  `json:"topic"`
}

// UnsubscribedMessage confirms an unsubscription.
type UnsubscribedMessage struct {
	Type  string `json:"type"`
	Topic Topic  `json:"topic"`
}

// EventMessage delivers a session event to a subscriber.
type EventMessage struct {
	Type  string        `json:"type"`
	Topic Topic         `json:"topic"`
	Event *SessionEvent `json:"event"`
}

// NewEventMessage wraps an event for delivery on a topic.
func NewEventMessage(topic Topic, event *SessionEvent) *EventMessage {
	return &EventMessage{Type: MsgTypeEvent, Topic: topic, Event: event}
}

// ErrorMessage reports a protocol-level error to the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// NewErrorMessage creates an error message.
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{Type: MsgTypeError, Code: code, Message: message}
}
