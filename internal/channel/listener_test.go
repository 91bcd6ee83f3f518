package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanstage/live-service/pkg/pubsub"
)

type fakeBus struct {
	events chan *pubsub.Event
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan *pubsub.Event, error) {
	return b.events, nil
}

func (b *fakeBus) SubscribePattern(context.Context, string) (<-chan *pubsub.Event, error) {
	return b.events, nil
}

type recordingHandler struct {
	mu      sync.Mutex
	ready   []string
	stopped []string
	failed  map[string]string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{failed: make(map[string]string)}
}

func (h *recordingHandler) HandleChannelReady(_ context.Context, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = append(h.ready, sessionID)
}

func (h *recordingHandler) HandleChannelStopped(_ context.Context, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = append(h.stopped, sessionID)
}

func (h *recordingHandler) HandleChannelError(_ context.Context, sessionID, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed[sessionID] = reason
}

func (h *recordingHandler) snapshot() (ready, stopped []string, failed map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	failed = make(map[string]string, len(h.failed))
	for k, v := range h.failed {
		failed[k] = v
	}
	return append([]string(nil), h.ready...), append([]string(nil), h.stopped...), failed
}

func TestListenerDispatchesConfirmations(t *testing.T) {
	bus := &fakeBus{events: make(chan *pubsub.Event, 8)}
	handler := newRecordingHandler()
	listener := NewListener(bus, handler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		listener.Run(ctx)
	}()

	ready, err := pubsub.NewEvent(pubsub.EventChannelReady, "s1", nil)
	require.NoError(t, err)
	bus.events <- ready

	stopped, err := pubsub.NewEvent(pubsub.EventChannelStopped, "s2", nil)
	require.NoError(t, err)
	bus.events <- stopped

	failed, err := pubsub.NewEvent(pubsub.EventChannelError, "s3", map[string]string{"reason": "ingest lost"})
	require.NoError(t, err)
	bus.events <- failed

	// Events without a session id and unknown types are dropped.
	orphan, err := pubsub.NewEvent(pubsub.EventChannelReady, "", nil)
	require.NoError(t, err)
	bus.events <- orphan
	unknown, err := pubsub.NewEvent("channel_rebooted", "s4", nil)
	require.NoError(t, err)
	bus.events <- unknown

	require.Eventually(t, func() bool {
		readyIDs, stoppedIDs, failedIDs := handler.snapshot()
		return len(readyIDs) == 1 && len(stoppedIDs) == 1 && len(failedIDs) == 1
	}, time.Second, 5*time.Millisecond)

	readyIDs, stoppedIDs, failedIDs := handler.snapshot()
	assert.Equal(t, []string{"s1"}, readyIDs)
	assert.Equal(t, []string{"s2"}, stoppedIDs)
	assert.Equal(t, "ingest lost", failedIDs["s3"])

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not stop on context cancel")
	}
}

func TestListenerStopsWhenBusCloses(t *testing.T) {
	bus := &fakeBus{events: make(chan *pubsub.Event)}
	listener := NewListener(bus, newRecordingHandler())

	done := make(chan error, 1)
	go func() {
		done <- listener.Run(context.Background())
	}()

	close(bus.events)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop when the event channel closed")
	}
}
