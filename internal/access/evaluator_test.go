package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanstage/live-service/internal/domain"
	"github.com/fanstage/live-service/internal/signer"
)

type fakeEntitlements struct {
	tierOK  bool
	tierErr error
	paidOK  bool
	paidErr error

	tierCalls int
	paidCalls int
}

func (f *fakeEntitlements) HasActiveTier(_ context.Context, _ string, _ []string) (bool, error) {
	f.tierCalls++
	return f.tierOK, f.tierErr
}

func (f *fakeEntitlements) HasPaid(_ context.Context, _, _ string) (bool, error) {
	f.paidCalls++
	return f.paidOK, f.paidErr
}

type fakeSigner struct {
	err   error
	calls int
}

func (f *fakeSigner) Sign(_ context.Context, resourcePath string, ttl time.Duration) (*signer.SignedLocator, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &signer.SignedLocator{
		URL:       "https://play.test/" + resourcePath + "?token=x",
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

type fixedViewers int

func (f fixedViewers) CurrentViewers(string) int { return int(f) }

func liveSession() *domain.LiveSession {
	return &domain.LiveSession{
		ID:           "s1",
		OwnerID:      "artist-1",
		Status:       domain.StatusLive,
		Visibility:   domain.VisibilityPublic,
		Gate:         domain.GateNone,
		MaxViewers:   100,
		PlaybackPath: "live/s1/stream.m3u8",
	}
}

func TestGrantPublicLiveSession(t *testing.T) {
	ent := &fakeEntitlements{}
	sig := &fakeSigner{}
	ev := NewEvaluator(ent, sig, fixedViewers(0), time.Hour)

	decision, err := ev.Evaluate(context.Background(), liveSession(), "viewer-1")
	require.NoError(t, err)
	require.True(t, decision.Granted)
	assert.Contains(t, decision.PlaybackURL, "live/s1/stream.m3u8")
	assert.Greater(t, decision.ExpiresAt, time.Now().Unix())
	assert.Zero(t, ent.tierCalls)
	assert.Zero(t, ent.paidCalls)
}

func TestDenyWhenNotLive(t *testing.T) {
	ev := NewEvaluator(&fakeEntitlements{}, &fakeSigner{}, fixedViewers(0), time.Hour)

	for _, status := range []domain.SessionStatus{
		domain.StatusScheduled, domain.StatusStarting, domain.StatusStopping, domain.StatusEnded,
	} {
		sess := liveSession()
		sess.Status = status

		decision, err := ev.Evaluate(context.Background(), sess, "viewer-1")
		require.NoError(t, err)
		assert.False(t, decision.Granted)
		assert.Equal(t, DenyNotLive, decision.Reason)
	}
}

func TestTierGate(t *testing.T) {
	sess := liveSession()
	sess.RequiredTierIDs = []string{"tier-gold"}

	t.Run("denied without tier", func(t *testing.T) {
		ev := NewEvaluator(&fakeEntitlements{tierOK: false}, &fakeSigner{}, fixedViewers(0), time.Hour)
		decision, err := ev.Evaluate(context.Background(), sess, "viewer-1")
		require.NoError(t, err)
		assert.False(t, decision.Granted)
		assert.Equal(t, DenyTierRequired, decision.Reason)
	})

	t.Run("granted with tier", func(t *testing.T) {
		sig := &fakeSigner{}
		ev := NewEvaluator(&fakeEntitlements{tierOK: true}, sig, fixedViewers(0), time.Hour)
		decision, err := ev.Evaluate(context.Background(), sess, "viewer-1")
		require.NoError(t, err)
		assert.True(t, decision.Granted)
		assert.Equal(t, 1, sig.calls)
	})

	t.Run("lookup failure is an error, not a deny", func(t *testing.T) {
		ev := NewEvaluator(&fakeEntitlements{tierErr: errors.New("billing down")}, &fakeSigner{}, fixedViewers(0), time.Hour)
		decision, err := ev.Evaluate(context.Background(), sess, "viewer-1")
		assert.Nil(t, decision)
		var evalErr *EvaluationError
		require.ErrorAs(t, err, &evalErr)
	})
}

func TestMonetaryGate(t *testing.T) {
	sess := liveSession()
	sess.Gate = domain.GateOneTime
	sess.AmountCents = 500

	t.Run("denied without payment", func(t *testing.T) {
		ev := NewEvaluator(&fakeEntitlements{paidOK: false}, &fakeSigner{}, fixedViewers(0), time.Hour)
		decision, err := ev.Evaluate(context.Background(), sess, "viewer-1")
		require.NoError(t, err)
		assert.False(t, decision.Granted)
		assert.Equal(t, DenyPaymentRequired, decision.Reason)
	})

	t.Run("granted after payment", func(t *testing.T) {
		ev := NewEvaluator(&fakeEntitlements{paidOK: true}, &fakeSigner{}, fixedViewers(0), time.Hour)
		decision, err := ev.Evaluate(context.Background(), sess, "viewer-1")
		require.NoError(t, err)
		assert.True(t, decision.Granted)
	})
}

func TestCapacityGate(t *testing.T) {
	sess := liveSession()
	sess.MaxViewers = 2

	ev := NewEvaluator(&fakeEntitlements{}, &fakeSigner{}, fixedViewers(2), time.Hour)
	decision, err := ev.Evaluate(context.Background(), sess, "viewer-1")
	require.NoError(t, err)
	assert.False(t, decision.Granted)
	assert.Equal(t, DenyCapacity, decision.Reason)

	ev = NewEvaluator(&fakeEntitlements{}, &fakeSigner{}, fixedViewers(1), time.Hour)
	decision, err = ev.Evaluate(context.Background(), sess, "viewer-1")
	require.NoError(t, err)
	assert.True(t, decision.Granted)
}

func TestOwnerBypassesAllGates(t *testing.T) {
	sess := liveSession()
	sess.RequiredTierIDs = []string{"tier-gold"}
	sess.Gate = domain.GateRecurring
	sess.AmountCents = 900
	sess.MaxViewers = 1

	ent := &fakeEntitlements{}
	ev := NewEvaluator(ent, &fakeSigner{}, fixedViewers(5), time.Hour)

	decision, err := ev.Evaluate(context.Background(), sess, sess.OwnerID)
	require.NoError(t, err)
	assert.True(t, decision.Granted)
	assert.Zero(t, ent.tierCalls)
	assert.Zero(t, ent.paidCalls)
}

// CheckGates applies the entitlement gates regardless of status, so a
// scheduled gated session can vet lobby subscribers, and it never signs
// a locator.
func TestCheckGatesAppliesBeforeLive(t *testing.T) {
	sess := liveSession()
	sess.Status = domain.StatusScheduled
	sess.RequiredTierIDs = []string{"tier-gold"}

	t.Run("denied without tier", func(t *testing.T) {
		ev := NewEvaluator(&fakeEntitlements{tierOK: false}, &fakeSigner{}, fixedViewers(0), time.Hour)
		decision, err := ev.CheckGates(context.Background(), sess, "viewer-1")
		require.NoError(t, err)
		assert.False(t, decision.Granted)
		assert.Equal(t, DenyTierRequired, decision.Reason)
	})

	t.Run("granted with tier, no locator", func(t *testing.T) {
		sig := &fakeSigner{}
		ev := NewEvaluator(&fakeEntitlements{tierOK: true}, sig, fixedViewers(0), time.Hour)
		decision, err := ev.CheckGates(context.Background(), sess, "viewer-1")
		require.NoError(t, err)
		assert.True(t, decision.Granted)
		assert.Empty(t, decision.PlaybackURL)
		assert.Zero(t, sig.calls)
	})

	t.Run("owner bypasses", func(t *testing.T) {
		ent := &fakeEntitlements{}
		ev := NewEvaluator(ent, &fakeSigner{}, fixedViewers(0), time.Hour)
		decision, err := ev.CheckGates(context.Background(), sess, sess.OwnerID)
		require.NoError(t, err)
		assert.True(t, decision.Granted)
		assert.Zero(t, ent.tierCalls)
	})

	t.Run("capacity is not a gate here", func(t *testing.T) {
		full := liveSession()
		full.Status = domain.StatusScheduled
		full.MaxViewers = 1
		ev := NewEvaluator(&fakeEntitlements{}, &fakeSigner{}, fixedViewers(5), time.Hour)
		decision, err := ev.CheckGates(context.Background(), full, "viewer-1")
		require.NoError(t, err)
		assert.True(t, decision.Granted)
	})
}

func TestSignerFailureIsEvaluationError(t *testing.T) {
	ev := NewEvaluator(&fakeEntitlements{}, &fakeSigner{err: errors.New("no key")}, fixedViewers(0), time.Hour)

	decision, err := ev.Evaluate(context.Background(), liveSession(), "viewer-1")
	assert.Nil(t, decision)
	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
}
