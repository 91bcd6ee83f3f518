package pubsub

// Pattern matching the per-session confirmation channels the encoding
// provider publishes on (encoder:session:<id>:events).
const PatternEncoderEvents = "encoder:session:*:events"

// Event types published by the encoding provider.
const (
	EventChannelReady   = "channel_ready"
	EventChannelStopped = "channel_stopped"
	EventChannelError   = "channel_error"
)
