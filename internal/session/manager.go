package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/fanstage/live-service/internal/audit"
	"github.com/fanstage/live-service/internal/cache"
	"github.com/fanstage/live-service/internal/channel"
	"github.com/fanstage/live-service/internal/config"
	"github.com/fanstage/live-service/internal/domain"
	"github.com/fanstage/live-service/internal/metrics"
	"github.com/fanstage/live-service/internal/repository"
	"github.com/fanstage/live-service/internal/router"
	"github.com/fanstage/live-service/pkg/log"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Manager implements LifecycleManager and channel.ConfirmationHandler.
// All status writes go through the repository's compare-and-set update, so
// concurrent actions on the same session resolve to exactly one winner.
type Manager struct {
	repo        repository.SessionRepository
	cache       cache.SessionCache
	tiers       TierDirectory
	provider    channel.Provider
	broadcaster router.Broadcaster
	metrics     *metrics.Aggregator

	sessionCfg config.SessionConfig
	cacheTTL   time.Duration
	ingestBase string

	sf singleflight.Group

	// confirmTimers force a session to Ended when the encoder never
	// confirms a Starting or Stopping transition.
	timerMu       sync.Mutex
	confirmTimers map[string]*time.Timer
}

// NewManager wires the session lifecycle manager.
func NewManager(
	repo repository.SessionRepository,
	sessionCache cache.SessionCache,
	tiers TierDirectory,
	provider channel.Provider,
	broadcaster router.Broadcaster,
	agg *metrics.Aggregator,
	cfg *config.Config,
) *Manager {
	return &Manager{
		repo:          repo,
		cache:         sessionCache,
		tiers:         tiers,
		provider:      provider,
		broadcaster:   broadcaster,
		metrics:       agg,
		sessionCfg:    cfg.Session,
		cacheTTL:      cfg.Cache.TTL,
		ingestBase:    cfg.Encoder.IngestURL,
		confirmTimers: make(map[string]*time.Timer),
	}
}

// Create validates and persists a new session. When no scheduled time is
// given the session goes live immediately: the Starting transition runs in
// the same call, and an encoder failure leaves the session Scheduled so the
// owner can retry start.
func (m *Manager) Create(ctx context.Context, ownerID, ownerUsername string, req *domain.CreateSessionRequest) (*domain.LiveSession, error) {
	if err := m.validateCreate(ctx, ownerID, req); err != nil {
		return nil, err
	}

	active, err := m.repo.CountActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count active sessions: %w", err)
	}
	if active >= m.sessionCfg.MaxActivePerOwner {
		return nil, domain.ErrMaxActiveSessions
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	streamKey := uuid.NewString()

	session := &domain.LiveSession{
		ID:              id,
		OwnerID:         ownerID,
		OwnerUsername:   ownerUsername,
		Title:           req.Title,
		Description:     req.Description,
		Visibility:      req.Visibility,
		RequiredTierIDs: req.RequiredTierIDs,
		Gate:            req.Gate,
		AmountCents:     req.AmountCents,
		Status:          domain.StatusScheduled,
		MaxViewers:      req.MaxViewers,
		ScheduledAt:     req.ScheduledAt,
		StreamKey:       streamKey,
		IngestURL:       fmt.Sprintf("%s/%s", m.ingestBase, streamKey),
		ChannelRef:      "ch-" + id,
		PlaybackPath:    fmt.Sprintf("live/%s/stream.m3u8", id),
		CreatedAt:       now,
	}
	if session.Visibility == "" {
		session.Visibility = domain.VisibilityPublic
	}
	if session.Gate == "" {
		session.Gate = domain.GateNone
	}
	if session.MaxViewers == 0 {
		session.MaxViewers = m.sessionCfg.MaxViewersLimit
	}

	if err := m.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	audit.Log(ctx, audit.ActionCreateSession, ownerID, session.ID, "live session created")

	if req.ScheduledAt == nil {
		if err := m.transitionStart(ctx, session); err != nil {
			return session, err
		}
	}

	return session, nil
}

func (m *Manager) validateCreate(ctx context.Context, ownerID string, req *domain.CreateSessionRequest) error {
	switch req.Visibility {
	case "", domain.VisibilityPublic, domain.VisibilityPrivate:
	default:
		return domain.NewValidationError("visibility", "must be public or private")
	}

	switch req.Gate {
	case "", domain.GateNone:
		if req.AmountCents != 0 {
			return domain.NewValidationError("amount_cents", "must be zero without a monetary gate")
		}
	case domain.GateOneTime, domain.GateRecurring:
		if req.AmountCents <= 0 {
			return domain.NewValidationError("amount_cents", "must be positive for a monetary gate")
		}
	default:
		return domain.NewValidationError("gate", "must be none, one_time or recurring")
	}

	if req.MaxViewers < 0 || req.MaxViewers > m.sessionCfg.MaxViewersLimit {
		return domain.NewValidationError("max_viewers",
			fmt.Sprintf("must be between 0 and %d", m.sessionCfg.MaxViewersLimit))
	}

	if req.ScheduledAt != nil && req.ScheduledAt.Before(time.Now()) {
		return domain.NewValidationError("scheduled_at", "must be in the future")
	}

	if len(req.RequiredTierIDs) > 0 {
		owned, err := m.tiers.OwnsTiers(ctx, ownerID, req.RequiredTierIDs)
		if err != nil {
			return domain.NewUpstreamError("tier lookup", err)
		}
		if !owned {
			return domain.NewValidationError("required_tier_ids", "must reference the owner's tiers")
		}
	}

	return nil
}

// Get loads a session through the read cache. Concurrent misses for the
// same id collapse into one repository read.
func (m *Manager) Get(ctx context.Context, id string) (*domain.LiveSession, error) {
	key := m.cache.BuildKeyByID(id)
	if res, err := m.cache.Get(ctx, key); err == nil {
		s := res.Session
		return &s, nil
	}

	v, err, _ := m.sf.Do(key, func() (interface{}, error) {
		s, err := m.loadSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := m.cache.Set(ctx, key, &cache.SessionCacheResult{Session: *s}, m.cacheTTL); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldSessionID, id).Msg("failed to cache session")
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.LiveSession), nil
}

// List returns a page of sessions, optionally filtered by status.
func (m *Manager) List(ctx context.Context, page, pageSize int, status string) (*domain.ListSessionsResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	sessions, total, err := m.repo.List(ctx, page, pageSize, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	resp := &domain.ListSessionsResponse{
		Sessions:   make([]domain.SessionResponse, 0, len(sessions)),
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
	for i := range sessions {
		resp.Sessions = append(resp.Sessions, sessions[i].ToResponse())
	}
	return resp, nil
}

// OwnerSessions returns every session belonging to one artist.
func (m *Manager) OwnerSessions(ctx context.Context, ownerID string) ([]domain.LiveSession, error) {
	sessions, err := m.repo.GetOwnerSessions(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load owner sessions: %w", err)
	}
	return sessions, nil
}

// Start moves a Scheduled session toward Live. The encoder channel is
// started after the Starting status is persisted; on encoder failure the
// session rolls back to Scheduled and the error surfaces as upstream.
func (m *Manager) Start(ctx context.Context, sessionID, actorID string) (*domain.LiveSession, error) {
	session, err := m.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != actorID {
		return nil, domain.ErrNotSessionOwner
	}
	if err := m.transitionStart(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (m *Manager) transitionStart(ctx context.Context, session *domain.LiveSession) error {
	if session.Status != domain.StatusScheduled {
		return domain.ErrInvalidState
	}

	session.Status = domain.StatusStarting
	if err := m.updateStatus(ctx, session, domain.StatusScheduled); err != nil {
		session.Status = domain.StatusScheduled
		return err
	}

	if err := m.provider.StartChannel(ctx, session.ChannelRef); err != nil {
		m.rollbackStatus(ctx, session, domain.StatusStarting, domain.StatusScheduled)
		return domain.NewUpstreamError("encoder start", err)
	}

	m.publishStatus(session, "")
	m.armConfirmTimer(session.ID)
	audit.Log(ctx, audit.ActionStartSession, session.OwnerID, session.ID, "live session starting")
	return nil
}

// Stop moves a Live session toward Ended. Like Start, the Stopping status
// is persisted before the encoder call and rolled back if the call fails.
func (m *Manager) Stop(ctx context.Context, sessionID, actorID string) (*domain.LiveSession, error) {
	session, err := m.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != actorID {
		return nil, domain.ErrNotSessionOwner
	}
	if session.Status != domain.StatusLive {
		return nil, domain.ErrInvalidState
	}

	session.Status = domain.StatusStopping
	if err := m.updateStatus(ctx, session, domain.StatusLive); err != nil {
		session.Status = domain.StatusLive
		return nil, err
	}

	if err := m.provider.StopChannel(ctx, session.ChannelRef); err != nil {
		m.rollbackStatus(ctx, session, domain.StatusStopping, domain.StatusLive)
		return nil, domain.NewUpstreamError("encoder stop", err)
	}

	m.publishStatus(session, "")
	m.armConfirmTimer(session.ID)
	audit.Log(ctx, audit.ActionStopSession, actorID, session.ID, "live session stopping")
	return session, nil
}

// Cancel ends a Scheduled session that never went live. No encoder call is
// made because no channel was ever started.
func (m *Manager) Cancel(ctx context.Context, sessionID, actorID string) (*domain.LiveSession, error) {
	session, err := m.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != actorID {
		return nil, domain.ErrNotSessionOwner
	}
	if session.Status != domain.StatusScheduled {
		return nil, domain.ErrInvalidState
	}

	now := time.Now().UTC()
	session.Status = domain.StatusEnded
	session.EndedAt = &now
	session.EndReason = domain.EndReasonCancelled
	if err := m.updateStatus(ctx, session, domain.StatusScheduled); err != nil {
		session.Status = domain.StatusScheduled
		session.EndedAt = nil
		session.EndReason = ""
		return nil, err
	}

	m.publishStatus(session, domain.EndReasonCancelled)
	m.metrics.Forget(session.ID)
	audit.Log(ctx, audit.ActionCancelSession, actorID, session.ID, "live session cancelled")
	return session, nil
}

// HandleChannelReady completes the Starting->Live edge when the encoder
// confirms the channel is up. Confirmations for sessions not in Starting
// are ignored; the forced-end timer may have fired first.
func (m *Manager) HandleChannelReady(ctx context.Context, sessionID string) {
	m.cancelConfirmTimer(sessionID)

	session, err := m.loadSession(ctx, sessionID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("channel ready for unknown session")
		return
	}
	if session.Status != domain.StatusStarting {
		l := log.Ctx(ctx)
		l.Debug().
			Str(log.FieldSessionID, sessionID).
			Str("status", string(session.Status)).
			Msg("ignoring channel ready confirmation")
		return
	}

	now := time.Now().UTC()
	session.Status = domain.StatusLive
	session.StartedAt = &now
	if err := m.updateStatus(ctx, session, domain.StatusStarting); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to mark session live")
		return
	}

	m.publishStatus(session, "")
	l := log.Ctx(ctx)
	l.Info().Str(log.FieldSessionID, sessionID).Msg("session is live")
}

// HandleChannelStopped completes the Stopping->Ended edge. A stop
// confirmation on a Live session (the encoder detected the ingest went
// away) also ends the session.
func (m *Manager) HandleChannelStopped(ctx context.Context, sessionID string) {
	m.cancelConfirmTimer(sessionID)

	session, err := m.loadSession(ctx, sessionID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("channel stopped for unknown session")
		return
	}

	switch session.Status {
	case domain.StatusStopping, domain.StatusLive:
		m.finalize(ctx, session, domain.EndReasonCompleted)
	default:
		l := log.Ctx(ctx)
		l.Debug().
			Str(log.FieldSessionID, sessionID).
			Str("status", string(session.Status)).
			Msg("ignoring channel stopped confirmation")
	}
}

// HandleChannelError force-ends a session after an unrecoverable encoder
// failure.
func (m *Manager) HandleChannelError(ctx context.Context, sessionID string, reason string) {
	m.cancelConfirmTimer(sessionID)

	session, err := m.loadSession(ctx, sessionID)
	if err != nil {
		return
	}
	if session.IsTerminal() {
		return
	}

	l := log.Ctx(ctx)
	l.Warn().
		Str(log.FieldSessionID, sessionID).
		Str("reason", reason).
		Msg("channel error, ending session")
	m.finalize(ctx, session, reason)
}

// finalize moves a session to Ended from whatever non-terminal status it
// holds and broadcasts the final status change.
func (m *Manager) finalize(ctx context.Context, session *domain.LiveSession, reason string) {
	prev := session.Status
	now := time.Now().UTC()
	session.Status = domain.StatusEnded
	session.EndedAt = &now
	session.EndReason = reason

	if err := m.updateStatus(ctx, session, prev); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldSessionID, session.ID).Msg("failed to finalize session")
		return
	}

	m.publishStatus(session, reason)
	m.metrics.Forget(session.ID)
}

// updateStatus persists the session's current fields via compare-and-set
// and invalidates the read cache. A lost race surfaces as ErrInvalidState:
// from the caller's view the action arrived in a state that forbids it.
func (m *Manager) updateStatus(ctx context.Context, session *domain.LiveSession, expected domain.SessionStatus) error {
	if err := m.repo.UpdateStatus(ctx, session, expected); err != nil {
		switch {
		case errors.Is(err, repository.ErrStatusConflict):
			return domain.ErrInvalidState
		case errors.Is(err, repository.ErrSessionNotFound):
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("failed to update session status: %w", err)
	}
	m.invalidate(ctx, session.ID)
	return nil
}

func (m *Manager) rollbackStatus(ctx context.Context, session *domain.LiveSession, from, to domain.SessionStatus) {
	session.Status = to
	if err := m.repo.UpdateStatus(ctx, session, from); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldSessionID, session.ID).Msg("failed to roll back session status")
	}
	m.invalidate(ctx, session.ID)
}

func (m *Manager) loadSession(ctx context.Context, id string) (*domain.LiveSession, error) {
	session, err := m.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

func (m *Manager) invalidate(ctx context.Context, id string) {
	if err := m.cache.Delete(ctx, m.cache.BuildKeyByID(id)); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldSessionID, id).Msg("failed to invalidate session cache")
	}
}

func (m *Manager) publishStatus(session *domain.LiveSession, reason string) {
	event, err := domain.NewSessionEvent(domain.EventStatusChanged, session.ID, domain.StatusChangedPayload{
		Status: session.Status,
		Reason: reason,
	})
	if err != nil {
		l := log.L()
		l.Error().Err(err).Str(log.FieldSessionID, session.ID).Msg("failed to build status event")
		return
	}
	m.broadcaster.Publish(session.StreamTopic(), event, router.PublishOptions{})
}

// armConfirmTimer schedules a forced end if the encoder never confirms the
// pending transition. Re-arming replaces any previous timer.
func (m *Manager) armConfirmTimer(sessionID string) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	if t, ok := m.confirmTimers[sessionID]; ok {
		t.Stop()
	}
	m.confirmTimers[sessionID] = time.AfterFunc(m.sessionCfg.ConfirmTimeout, func() {
		m.onConfirmTimeout(sessionID)
	})
}

func (m *Manager) cancelConfirmTimer(sessionID string) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	if t, ok := m.confirmTimers[sessionID]; ok {
		t.Stop()
		delete(m.confirmTimers, sessionID)
	}
}

func (m *Manager) onConfirmTimeout(sessionID string) {
	m.timerMu.Lock()
	delete(m.confirmTimers, sessionID)
	m.timerMu.Unlock()

	ctx := context.Background()
	session, err := m.loadSession(ctx, sessionID)
	if err != nil {
		return
	}
	if session.Status != domain.StatusStarting && session.Status != domain.StatusStopping {
		return
	}

	l := log.L()
	l.Warn().
		Str(log.FieldSessionID, sessionID).
		Str("status", string(session.Status)).
		Msg("encoder confirmation timed out, ending session")
	m.finalize(ctx, session, domain.EndReasonTimeout)
}

// RecoverPending re-arms confirmation timers for sessions a previous
// process left mid-transition, so they still time out to Ended if the
// encoder never confirms.
func (m *Manager) RecoverPending(ctx context.Context) {
	for _, status := range []domain.SessionStatus{domain.StatusStarting, domain.StatusStopping} {
		sessions, _, err := m.repo.List(ctx, 1, maxPageSize, string(status))
		if err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Msg("failed to recover pending sessions")
			continue
		}
		for i := range sessions {
			m.armConfirmTimer(sessions[i].ID)
		}
	}
}

// Shutdown stops all pending confirmation timers. RecoverPending picks the
// affected sessions back up on the next start.
func (m *Manager) Shutdown() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	for id, t := range m.confirmTimers {
		t.Stop()
		delete(m.confirmTimers, id)
	}
}
