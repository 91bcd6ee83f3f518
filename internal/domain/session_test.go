package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	cases := []struct {
		from SessionStatus
		to   SessionStatus
		ok   bool
	}{
		{StatusScheduled, StatusStarting, true},
		{StatusScheduled, StatusEnded, true},
		{StatusStarting, StatusLive, true},
		{StatusStarting, StatusEnded, true},
		{StatusLive, StatusStopping, true},
		{StatusLive, StatusEnded, true},
		{StatusStopping, StatusEnded, true},

		{StatusLive, StatusScheduled, false},
		{StatusLive, StatusStarting, false},
		{StatusStopping, StatusLive, false},
		{StatusEnded, StatusScheduled, false},
		{StatusEnded, StatusLive, false},
		{StatusEnded, StatusEnded, false},
		{StatusScheduled, StatusScheduled, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}

	assert.False(t, SessionStatus("bogus").CanTransition(StatusLive))
	assert.False(t, StatusScheduled.CanTransition(SessionStatus("bogus")))
}

func TestGatePredicates(t *testing.T) {
	s := LiveSession{}
	assert.False(t, s.TierGated())
	assert.False(t, s.MoneyGated())

	s.RequiredTierIDs = []string{"tier-1"}
	assert.True(t, s.TierGated())

	s.Gate = GateNone
	assert.False(t, s.MoneyGated())
	s.Gate = GateOneTime
	assert.True(t, s.MoneyGated())
	s.Gate = GateRecurring
	assert.True(t, s.MoneyGated())
}

// Ingestion credentials must never leak through the viewer-facing
// representation, only through the owner's.
func TestResponsesHideCredentialsFromViewers(t *testing.T) {
	s := LiveSession{
		ID:           "s1",
		OwnerID:      "artist-1",
		Title:        "show",
		Status:       StatusLive,
		StreamKey:    "secret-key",
		IngestURL:    "rtmp://ingest/live/secret-key",
		ChannelRef:   "ch-s1",
		PlaybackPath: "live/s1/stream.m3u8",
	}

	viewerJSON, err := json.Marshal(s.ToResponse())
	require.NoError(t, err)
	assert.NotContains(t, string(viewerJSON), "secret-key")
	assert.NotContains(t, string(viewerJSON), "rtmp://")

	sessionJSON, err := json.Marshal(&s)
	require.NoError(t, err)
	assert.NotContains(t, string(sessionJSON), "secret-key")

	owner := s.ToOwnerResponse()
	assert.Equal(t, "secret-key", owner.StreamKey)
	assert.Equal(t, "rtmp://ingest/live/secret-key", owner.IngestURL)
}

func TestNewSessionEventIDsAreSortable(t *testing.T) {
	first, err := NewSessionEvent(EventChat, "s1", ChatPayload{Content: "a"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := NewSessionEvent(EventChat, "s1", ChatPayload{Content: "b"})
	require.NoError(t, err)

	assert.Len(t, first.ID, 26)
	assert.Less(t, first.ID, second.ID)
	assert.False(t, first.Timestamp.IsZero())
}
