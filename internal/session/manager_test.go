package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanstage/live-service/internal/cache"
	"github.com/fanstage/live-service/internal/config"
	"github.com/fanstage/live-service/internal/domain"
	"github.com/fanstage/live-service/internal/metrics"
	"github.com/fanstage/live-service/internal/repository"
	"github.com/fanstage/live-service/internal/router"
)

type fakeRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.LiveSession
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: make(map[string]domain.LiveSession)}
}

func (r *fakeRepo) Create(_ context.Context, session *domain.LiveSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = *session
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*domain.LiveSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return &s, nil
}

func (r *fakeRepo) List(_ context.Context, _, _ int, status string) ([]domain.LiveSession, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.LiveSession
	for _, s := range r.sessions {
		if status == "" || string(s.Status) == status {
			out = append(out, s)
		}
	}
	return out, len(out), nil
}

func (r *fakeRepo) GetOwnerSessions(_ context.Context, ownerID string) ([]domain.LiveSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.LiveSession
	for _, s := range r.sessions {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeRepo) CountActiveByOwner(_ context.Context, ownerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.OwnerID == ownerID && s.Status != domain.StatusEnded {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, session *domain.LiveSession, expected domain.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[session.ID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	if stored.Status != expected {
		return repository.ErrStatusConflict
	}
	r.sessions[session.ID] = *session
	return nil
}

func (r *fakeRepo) statusOf(t *testing.T, id string) domain.SessionStatus {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	require.True(t, ok)
	return s.Status
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (*cache.SessionCacheResult, error) {
	return nil, cache.ErrCacheMiss
}
func (noopCache) Set(context.Context, string, *cache.SessionCacheResult, time.Duration) error {
	return nil
}
func (noopCache) Delete(context.Context, ...string) error { return nil }
func (noopCache) BuildKeyByID(id string) string           { return "test:id:" + id }
func (noopCache) Close() error                            { return nil }

type fakeProvider struct {
	mu         sync.Mutex
	startErr   error
	stopErr    error
	startCalls int
	stopCalls  int
}

func (p *fakeProvider) StartChannel(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startCalls++
	return p.startErr
}

func (p *fakeProvider) StopChannel(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopCalls++
	return p.stopErr
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []*domain.SessionEvent
}

func (b *recordingBroadcaster) Publish(_ domain.Topic, event *domain.SessionEvent, _ router.PublishOptions) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return 0
}

func (b *recordingBroadcaster) PublishToUser(_ string, event *domain.SessionEvent) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return 0
}

func (b *recordingBroadcaster) statusEvents(t *testing.T) []domain.StatusChangedPayload {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.StatusChangedPayload
	for _, e := range b.events {
		if e.Type != domain.EventStatusChanged {
			continue
		}
		var p domain.StatusChangedPayload
		require.NoError(t, json.Unmarshal(e.Payload, &p))
		out = append(out, p)
	}
	return out
}

type fakeTiers struct {
	owned bool
	err   error
}

func (f *fakeTiers) OwnsTiers(context.Context, string, []string) (bool, error) {
	return f.owned, f.err
}

func testManagerConfig(confirmTimeout time.Duration) *config.Config {
	return &config.Config{
		Cache:   config.CacheConfig{TTL: time.Minute},
		Encoder: config.EncoderConfig{IngestURL: "rtmp://ingest.test/live"},
		Session: config.SessionConfig{
			MaxActivePerOwner: 1,
			MaxViewersLimit:   100,
			ConfirmTimeout:    confirmTimeout,
		},
	}
}

type fixture struct {
	repo        *fakeRepo
	provider    *fakeProvider
	broadcaster *recordingBroadcaster
	tiers       *fakeTiers
	manager     *Manager
}

func newTestManager(t *testing.T) *fixture {
	// A generous timeout so confirmation timers never fire in tests that
	// are not about them.
	return newTestManagerWithTimeout(t, time.Minute)
}

func newTestManagerWithTimeout(t *testing.T, confirmTimeout time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		repo:        newFakeRepo(),
		provider:    &fakeProvider{},
		broadcaster: &recordingBroadcaster{},
		tiers:       &fakeTiers{owned: true},
	}
	f.manager = NewManager(f.repo, noopCache{}, f.tiers, f.provider, f.broadcaster,
		metrics.NewAggregator(), testManagerConfig(confirmTimeout))
	t.Cleanup(f.manager.Shutdown)
	return f
}

func futureTime() *time.Time {
	ts := time.Now().Add(time.Hour)
	return &ts
}

func TestCreateScheduledSession(t *testing.T) {
	f := newTestManager(t)

	sess, err := f.manager.Create(context.Background(), "artist-1", "alice", &domain.CreateSessionRequest{
		Title:       "Acoustic set",
		ScheduledAt: futureTime(),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusScheduled, sess.Status)
	assert.Equal(t, domain.VisibilityPublic, sess.Visibility)
	assert.Equal(t, domain.GateNone, sess.Gate)
	assert.Equal(t, 100, sess.MaxViewers)
	assert.NotEmpty(t, sess.StreamKey)
	assert.Contains(t, sess.IngestURL, "rtmp://ingest.test/live/")
	assert.Contains(t, sess.PlaybackPath, sess.ID)
	assert.Equal(t, 0, f.provider.startCalls)
}

func TestCreateWithoutScheduleStartsImmediately(t *testing.T) {
	f := newTestManager(t)

	sess, err := f.manager.Create(context.Background(), "artist-1", "alice", &domain.CreateSessionRequest{
		Title: "Surprise stream",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusStarting, sess.Status)
	assert.Equal(t, 1, f.provider.startCalls)

	statuses := f.broadcaster.statusEvents(t)
	require.Len(t, statuses, 1)
	assert.Equal(t, domain.StatusStarting, statuses[0].Status)
}

func TestCreateValidation(t *testing.T) {
	f := newTestManager(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.CreateSessionRequest
	}{
		{"amount without gate", domain.CreateSessionRequest{Title: "t", AmountCents: 100, ScheduledAt: futureTime()}},
		{"gate without amount", domain.CreateSessionRequest{Title: "t", Gate: domain.GateOneTime, ScheduledAt: futureTime()}},
		{"unknown gate", domain.CreateSessionRequest{Title: "t", Gate: "weekly", ScheduledAt: futureTime()}},
		{"unknown visibility", domain.CreateSessionRequest{Title: "t", Visibility: "secret", ScheduledAt: futureTime()}},
		{"negative max viewers", domain.CreateSessionRequest{Title: "t", MaxViewers: -1, ScheduledAt: futureTime()}},
		{"max viewers over limit", domain.CreateSessionRequest{Title: "t", MaxViewers: 101, ScheduledAt: futureTime()}},
		{"schedule in the past", domain.CreateSessionRequest{Title: "t", ScheduledAt: func() *time.Time { ts := time.Now().Add(-time.Hour); return &ts }()}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.manager.Create(ctx, "artist-1", "alice", &tc.req)
			assert.True(t, domain.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestCreateRejectsForeignTiers(t *testing.T) {
	f := newTestManager(t)
	f.tiers.owned = false

	_, err := f.manager.Create(context.Background(), "artist-1", "alice", &domain.CreateSessionRequest{
		Title:           "t",
		RequiredTierIDs: []string{"tier-of-someone-else"},
		ScheduledAt:     futureTime(),
	})
	assert.True(t, domain.IsValidation(err))
}

func TestCreateTierLookupFailureIsUpstream(t *testing.T) {
	f := newTestManager(t)
	f.tiers.err = errors.New("billing down")

	_, err := f.manager.Create(context.Background(), "artist-1", "alice", &domain.CreateSessionRequest{
		Title:           "t",
		RequiredTierIDs: []string{"tier-gold"},
		ScheduledAt:     futureTime(),
	})
	assert.True(t, domain.IsUpstream(err))
}

func TestCreateEnforcesActiveLimit(t *testing.T) {
	f := newTestManager(t)
	ctx := context.Background()

	_, err := f.manager.Create(ctx, "artist-1", "alice", &domain.CreateSessionRequest{
		Title: "first", ScheduledAt: futureTime(),
	})
	require.NoError(t, err)

	_, err = f.manager.Create(ctx, "artist-1", "alice", &domain.CreateSessionRequest{
		Title: "second", ScheduledAt: futureTime(),
	})
	assert.ErrorIs(t, err, domain.ErrMaxActiveSessions)

	// Another artist is unaffected.
	_, err = f.manager.Create(ctx, "artist-2", "bob", &domain.CreateSessionRequest{
		Title: "other", ScheduledAt: futureTime(),
	})
	assert.NoError(t, err)
}

func TestStartRequiresOwnership(t *testing.T) {
	f := newTestManager(t)
	ctx := context.Background()

	sess, err := f.manager.Create(ctx, "artist-1", "alice", &domain.CreateSessionRequest{
		Title: "t", ScheduledAt: futureTime(),
	})
	require.NoError(t, err)

	_, err = f.manager.Start(ctx, sess.ID, "intruder")
	assert.ErrorIs(t, err, domain.ErrNotSessionOwner)
	assert.Equal(t, domain.StatusScheduled, f.repo.statusOf(t, sess.ID))
}

func TestFullLifecycle(t *testing.T) {
	f := newTestManager(t)
	ctx := context.Background()

	sess, err := f.manager.Create(ctx, "artist-1", "alice", &domain.CreateSessionRequest{
		Title: "t", ScheduledAt: futureTime(),
	})
	require.NoError(t, err)

	started, err := f.manager.Start(ctx, sess.ID, "artist-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStarting, started.Status)

	f.manager.HandleChannelReady(ctx, sess.ID)
	assert.Equal(t, domain.StatusLive, f.repo.statusOf(t, sess.ID))

	live, err := f.manager.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, live.StartedAt)

	stopped, err := f.manager.Stop(ctx, sess.ID, "artist-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopping, stopped.Status)

	f.manager.HandleChannelStopped(ctx, sess.ID)

	final, err := f.manager.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, final.Status)
	assert.Equal(t, domain.EndReasonCompleted, final.EndReason)
	require.NotNil(t, final.EndedAt)

	statuses := f.broadcaster.statusEvents(t)
	require.Len(t, statuses, 4)
	assert.Equal(t, domain.StatusStarting, statuses[0].Status)
	assert.Equal(t, domain.StatusLive, statuses[1].Status)
	assert.Equal(t, domain.StatusStopping, statuses[2].Status)
	assert.Equal(t, domain.StatusEnded, statuses[3].Status)
}

func TestTransitionsAreMonotonic(t *testing.T) {
	f := newTestManager(t)
	ctx := context.Background()

	sess, err := f.manager.Create(ctx, "artist-1", "alice", &domain.CreateSessionRequest{
		Title: "t", ScheduledAt: futureTime(),
	})
	require.NoError(t, err)

	// Stop before the session ever went live.
	_, err = f.manager.Stop(ctx, sess.ID, "artist-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.manager.Start(ctx, sess.ID, "artist-1")
	require.NoError(t, err)
	f.manager.HandleChannelReady(ctx, sess.ID)

	// A live session cannot be started again.
	_, err = f.manager.Start(ctx, sess.ID, "artist-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	// Cancel only applies before going live.
	_, err = f.manager.Cancel(ctx, sess.ID, "artist-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.manager.Stop(ctx, sess.ID, "artist-1")
	require.NoError(t, err)
	f.manager.HandleChannelStopped(ctx, sess.ID)

	// Ended is terminal.
	_, err = f.manager.Start(ctx, sess.ID, "artist-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.manager.Stop(ctx, sess.ID, "artist-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestStartRollsBackOnEncoderFailure(t *testing.T) {
	f := newTestManager(t)
	ctx := context.Background()

	sess, err := f.manager.Create(ctx, "artist-1", "alice", &domain.CreateSessionRequest{
		Title: "t", ScheduledAt: futureTime(),
	})
	require.NoError(t, err)

	f.provider.startErr = errors.New("encoder unavailable")
	_, err = f.manager.Start(ctx, sess.ID, "artist-1")
	assert.True(t, domain.IsUpstream(err))
	assert.Equal(t, domain.StatusScheduled, f.repo.statusOf(t, sess.ID))

	// The action is retryable once the encoder recovers.
	f.provider.startErr = nil
	_, err = f.manager.Start(ctx, sess.ID, "artist-1")
	assert.NoError(t, err)
}

func TestStopRollsBackOnEncoderFailure(t *testing.T) {
	f := newTestManager(t)
	ctx := context.Background()

	sess, err := f.manager.Create(ctx, "artist-1", "alice", &domain.CreateSessionRequest{
		Title: "t", ScheduledAt: futureTime(),
	})
	require.NoError(t, err)
	_, err = f.manager.Start(ctx, sess.ID, "artist-1")
	require.NoError(t, err)
	f.manager.HandleChannelReady(ctx, sess.ID)

	f.provider.stopErr = errors.New("encoder unavailable")
	_, err = f.manager.Stop(ctx, sess.ID, "artist-1")
	assert.True(t, domain.IsUpstream(err))
	assert.Equal(t, domain.StatusLive, f.repo.statusOf(t, sess.ID))
}

func TestCancelScheduledSession(t *testing.T) {
	f := newTestManager(t)
	ctx := context.Background()

	sess, err := f.manager.Create(ctx, "artist-1", "alice", &domain.CreateSessionRequest{
		Title: "t", ScheduledAt: futureTime(),
	})
	require.NoError(t, err)

	cancelled, err := f.manager.Cancel(ctx, sess.ID, "artist-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, cancelled.Status)
	assert.Equal(t, domain.EndReasonCancelled, cancelled.EndReason)
	assert.Equal(t, 0, f.provider.startCalls)
	assert.Equal(t, 0, f.provider.stopCalls)
}

func TestMissingConfirmationForcesEnd(t *testing.T) {
	f := newTestManagerWithTimeout(t, 30*time.Millisecond)
	ctx := context.Background()

	sess, err := f.manager.Create(ctx, "artist-1", "alice", &domain.CreateSessionRequest{
		Title: "t", ScheduledAt: futureTime(),
	})
	require.NoError(t, err)

	_, err = f.manager.Start(ctx, sess.ID, "artist-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.repo.statusOf(t, sess.ID) == domain.StatusEnded
	}, time.Second, 5*time.Millisecond)

	final, err := f.manager.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EndReasonTimeout, final.EndReason)

	// A forced end is final: neither a late confirmation nor a restart
	// revives the session.
	f.manager.HandleChannelReady(ctx, sess.ID)
	assert.Equal(t, domain.StatusEnded, f.repo.statusOf(t, sess.ID))

	_, err = f.manager.Start(ctx, sess.ID, "artist-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestConfirmationCancelsTimeout(t *testing.T) {
	f := newTestManagerWithTimeout(t, 30*time.Millisecond)
	ctx := context.Background()

	sess, err := f.manager.Create(ctx, "artist-1", "alice", &domain.CreateSessionRequest{
		Title: "t", ScheduledAt: futureTime(),
	})
	require.NoError(t, err)

	_, err = f.manager.Start(ctx, sess.ID, "artist-1")
	require.NoError(t, err)
	f.manager.HandleChannelReady(ctx, sess.ID)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, domain.StatusLive, f.repo.statusOf(t, sess.ID))
}

func TestHandleChannelError(t *testing.T) {
	f := newTestManager(t)
	ctx := context.Background()

	sess, err := f.manager.Create(ctx, "artist-1", "alice", &domain.CreateSessionRequest{
		Title: "t", ScheduledAt: futureTime(),
	})
	require.NoError(t, err)
	_, err = f.manager.Start(ctx, sess.ID, "artist-1")
	require.NoError(t, err)
	f.manager.HandleChannelReady(ctx, sess.ID)

	f.manager.HandleChannelError(ctx, sess.ID, "ingest lost")

	final, err := f.manager.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, final.Status)
	assert.Equal(t, "ingest lost", final.EndReason)
}

func TestGetUnknownSession(t *testing.T) {
	f := newTestManager(t)
	_, err := f.manager.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
