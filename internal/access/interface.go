package access

import (
	"context"
	"fmt"
)

// EntitlementService answers membership and payment questions. Backed by
// the billing system; this core never computes entitlements itself.
type EntitlementService interface {
	HasActiveTier(ctx context.Context, userID string, tierIDs []string) (bool, error)
	HasPaid(ctx context.Context, userID, sessionID string) (bool, error)
}

// DenyReason explains a deny outcome. Deny is a normal business result,
// distinct from an evaluation failure.
type DenyReason string

const (
	DenyNotLive         DenyReason = "not_live"
	DenyTierRequired    DenyReason = "tier_required"
	DenyPaymentRequired DenyReason = "payment_required"
	DenyCapacity        DenyReason = "capacity"
)

// Decision is the outcome of an access evaluation. When Granted, the
// decision carries a signed playback locator.
type Decision struct {
	Granted     bool       `json:"granted"`
	Reason      DenyReason `json:"reason,omitempty"`
	PlaybackURL string     `json:"playback_url,omitempty"`
	ExpiresAt   int64      `json:"expires_at,omitempty"` // unix seconds
}

// Grant constructs a granted decision.
func Grant(playbackURL string, expiresAt int64) *Decision {
	return &Decision{Granted: true, PlaybackURL: playbackURL, ExpiresAt: expiresAt}
}

// Deny constructs a denied decision.
func Deny(reason DenyReason) *Decision {
	return &Decision{Granted: false, Reason: reason}
}

// EvaluationError indicates the evaluation itself failed (entitlement or
// signer lookup errored). Retryable, and never conflated with a Deny.
type EvaluationError struct {
	Op  string
	Err error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("access evaluation %s failed: %v", e.Op, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }
