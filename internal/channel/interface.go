package channel

import "context"

// Provider is the external live-encoding service that actually moves
// video/audio bytes. Start/Stop are synchronous commands acknowledging that
// the request was accepted; readiness is confirmed asynchronously on the
// encoder event channel (see Listener).
type Provider interface {
	StartChannel(ctx context.Context, channelRef string) error
	StopChannel(ctx context.Context, channelRef string) error
}

// ConfirmationHandler receives asynchronous encoder confirmations.
// The session lifecycle manager implements this to complete the
// Starting->Live and Stopping->Ended edges.
type ConfirmationHandler interface {
	HandleChannelReady(ctx context.Context, sessionID string)
	HandleChannelStopped(ctx context.Context, sessionID string)
	HandleChannelError(ctx context.Context, sessionID string, reason string)
}
