package access

import (
	"context"
	"time"

	"github.com/fanstage/live-service/internal/domain"
	"github.com/fanstage/live-service/internal/signer"
	"github.com/fanstage/live-service/pkg/log"
)

// ViewerCounter reports the current viewer count of a session, used for
// the capacity check. Implemented by the metrics aggregator.
type ViewerCounter interface {
	CurrentViewers(sessionID string) int
}

// Evaluator decides whether a viewer may watch a session and, on grant,
// requests a time-limited playback locator from the signer.
type Evaluator struct {
	entitlements EntitlementService
	urlSigner    signer.URLSigner
	viewers      ViewerCounter
	playbackTTL  time.Duration
}

// NewEvaluator creates an access evaluator.
func NewEvaluator(entitlements EntitlementService, urlSigner signer.URLSigner, viewers ViewerCounter, playbackTTL time.Duration) *Evaluator {
	return &Evaluator{
		entitlements: entitlements,
		urlSigner:    urlSigner,
		viewers:      viewers,
		playbackTTL:  playbackTTL,
	}
}

// Evaluate runs the decision chain for one viewer against one session:
// liveness, tier gate, monetary gate, capacity, then locator signing.
// The session owner is always granted access to their own broadcast.
func (e *Evaluator) Evaluate(ctx context.Context, session *domain.LiveSession, viewerID string) (*Decision, error) {
	l := log.Ctx(ctx)

	if session.Status != domain.StatusLive {
		return Deny(DenyNotLive), nil
	}

	gate, err := e.CheckGates(ctx, session, viewerID)
	if err != nil {
		return nil, err
	}
	if !gate.Granted {
		return gate, nil
	}

	if viewerID != session.OwnerID &&
		session.MaxViewers > 0 && e.viewers.CurrentViewers(session.ID) >= session.MaxViewers {
		l.Debug().Str(log.FieldSessionID, session.ID).Int("max_viewers", session.MaxViewers).Msg("access denied: capacity reached")
		return Deny(DenyCapacity), nil
	}

	locator, err := e.urlSigner.Sign(ctx, session.PlaybackPath, e.playbackTTL)
	if err != nil {
		return nil, &EvaluationError{Op: "locator signing", Err: err}
	}

	return Grant(locator.URL, locator.ExpiresAt.Unix()), nil
}

// CheckGates runs only the entitlement gates: tier membership and payment.
// No liveness or capacity check and no locator. Used on its own to vet
// subscribers of a gated session before it goes live; the gates apply
// regardless of status, so a fan cannot sit in a gated session's lobby
// without the entitlements they would need once the broadcast starts.
func (e *Evaluator) CheckGates(ctx context.Context, session *domain.LiveSession, viewerID string) (*Decision, error) {
	l := log.Ctx(ctx)

	if viewerID == session.OwnerID {
		return &Decision{Granted: true}, nil
	}

	if session.TierGated() {
		ok, err := e.entitlements.HasActiveTier(ctx, viewerID, session.RequiredTierIDs)
		if err != nil {
			return nil, &EvaluationError{Op: "tier lookup", Err: err}
		}
		if !ok {
			l.Debug().Str(log.FieldSessionID, session.ID).Str(log.FieldUserID, viewerID).Msg("access denied: tier required")
			return Deny(DenyTierRequired), nil
		}
	}

	if session.MoneyGated() {
		ok, err := e.entitlements.HasPaid(ctx, viewerID, session.ID)
		if err != nil {
			return nil, &EvaluationError{Op: "payment lookup", Err: err}
		}
		if !ok {
			l.Debug().Str(log.FieldSessionID, session.ID).Str(log.FieldUserID, viewerID).Msg("access denied: payment required")
			return Deny(DenyPaymentRequired), nil
		}
	}

	return &Decision{Granted: true}, nil
}
