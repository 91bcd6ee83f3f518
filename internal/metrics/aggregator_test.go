package metrics

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanstage/live-service/internal/domain"
)

func event(t *testing.T, typ domain.EventType, sessionID string) *domain.SessionEvent {
	t.Helper()
	e, err := domain.NewSessionEvent(typ, sessionID, nil)
	require.NoError(t, err)
	return e
}

func TestViewerCounting(t *testing.T) {
	agg := NewAggregator()

	for i := 0; i < 5; i++ {
		require.True(t, agg.TryJoin("s1", 0))
	}
	agg.Leave("s1")
	agg.Leave("s1")

	m := agg.Snapshot("s1")
	assert.Equal(t, 3, m.CurrentViewers)
	assert.Equal(t, 5, m.PeakViewers)
	assert.Equal(t, 3, agg.CurrentViewers("s1"))
}

func TestTryJoinEnforcesMax(t *testing.T) {
	agg := NewAggregator()

	assert.True(t, agg.TryJoin("s1", 2))
	assert.True(t, agg.TryJoin("s1", 2))
	assert.False(t, agg.TryJoin("s1", 2))
	assert.Equal(t, 2, agg.CurrentViewers("s1"))

	// A leave frees the slot.
	agg.Leave("s1")
	assert.True(t, agg.TryJoin("s1", 2))
}

// Two viewers racing for the last slot must not both get it: the check
// and the increment happen under one lock.
func TestTryJoinIsAtomicUnderContention(t *testing.T) {
	agg := NewAggregator()
	const max = 10

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if agg.TryJoin("s1", max) {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(max), granted.Load())
	assert.Equal(t, max, agg.CurrentViewers("s1"))
	assert.Equal(t, max, agg.Snapshot("s1").PeakViewers)
}

func TestPeakTracksHighWaterMark(t *testing.T) {
	agg := NewAggregator()

	require.True(t, agg.TryJoin("s1", 0))
	require.True(t, agg.TryJoin("s1", 0))
	agg.Leave("s1")
	require.True(t, agg.TryJoin("s1", 0))

	m := agg.Snapshot("s1")
	assert.Equal(t, 2, m.CurrentViewers)
	assert.Equal(t, 2, m.PeakViewers)
}

func TestViewerCountNeverGoesNegative(t *testing.T) {
	agg := NewAggregator()

	agg.Leave("s1")
	agg.Leave("s1")

	assert.Equal(t, 0, agg.CurrentViewers("s1"))
}

func TestChatAndReactionCounters(t *testing.T) {
	agg := NewAggregator()

	agg.OnEvent(event(t, domain.EventChat, "s1"))
	agg.OnEvent(event(t, domain.EventChat, "s1"))
	agg.OnEvent(event(t, domain.EventReaction, "s1"))

	m := agg.Snapshot("s1")
	assert.Equal(t, 2, m.ChatCount)
	assert.Equal(t, 1, m.LikeCount)
}

func TestSessionsAreIsolated(t *testing.T) {
	agg := NewAggregator()

	require.True(t, agg.TryJoin("s1", 0))
	agg.OnEvent(event(t, domain.EventChat, "s2"))

	assert.Equal(t, 1, agg.CurrentViewers("s1"))
	assert.Equal(t, 0, agg.CurrentViewers("s2"))
	assert.Equal(t, 1, agg.Snapshot("s2").ChatCount)
}

func TestUnknownEventTypeAndStatusChangedIgnored(t *testing.T) {
	agg := NewAggregator()

	agg.OnEvent(event(t, domain.EventStatusChanged, "s1"))
	assert.Equal(t, Metrics{}, agg.Snapshot("s1"))
}

func TestForget(t *testing.T) {
	agg := NewAggregator()

	require.True(t, agg.TryJoin("s1", 0))
	agg.Forget("s1")

	assert.Equal(t, Metrics{}, agg.Snapshot("s1"))
	assert.Equal(t, 0, agg.CurrentViewers("s1"))
}
