// Package metrics maintains advisory real-time counters per live session.
// These are not the system of record: historical analytics are rebuilt
// externally from persisted events.
package metrics

import (
	"sync"

	"github.com/fanstage/live-service/internal/domain"
)

// Metrics is a read-only snapshot of one session's live counters.
type Metrics struct {
	CurrentViewers int `json:"current_viewers"`
	PeakViewers    int `json:"peak_viewers"`
	ChatCount      int `json:"chat_count"`
	LikeCount      int `json:"like_count"`
}

// Aggregator consumes session events and keeps per-session counters.
type Aggregator struct {
	mu       sync.RWMutex
	sessions map[string]*Metrics
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{sessions: make(map[string]*Metrics)}
}

// OnEvent updates counters from one fan-emitted session event. Viewer
// slot accounting does not go through here: joins and leaves use TryJoin
// and Leave so the capacity check and the increment share one lock.
// Unknown event types are ignored.
func (a *Aggregator) OnEvent(event *domain.SessionEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.sessions[event.SessionID]
	if !ok {
		m = &Metrics{}
		a.sessions[event.SessionID] = m
	}

	switch event.Type {
	case domain.EventChat:
		m.ChatCount++
	case domain.EventReaction:
		m.LikeCount++
	}
}

// TryJoin claims a viewer slot, atomically with the capacity check it
// performs. Returns false when the session is already at max. A max of
// zero means unlimited.
func (a *Aggregator) TryJoin(sessionID string, max int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.sessions[sessionID]
	if !ok {
		m = &Metrics{}
		a.sessions[sessionID] = m
	}

	if max > 0 && m.CurrentViewers >= max {
		return false
	}
	m.CurrentViewers++
	if m.CurrentViewers > m.PeakViewers {
		m.PeakViewers = m.CurrentViewers
	}
	return true
}

// Leave releases a viewer slot taken by TryJoin. Never goes below zero.
func (a *Aggregator) Leave(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if m, ok := a.sessions[sessionID]; ok && m.CurrentViewers > 0 {
		m.CurrentViewers--
	}
}

// Snapshot returns a copy of the counters for a session. The zero value is
// returned for sessions with no recorded events.
func (a *Aggregator) Snapshot(sessionID string) Metrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if m, ok := a.sessions[sessionID]; ok {
		return *m
	}
	return Metrics{}
}

// CurrentViewers returns the live viewer count for a session. Satisfies
// the access evaluator's capacity check.
func (a *Aggregator) CurrentViewers(sessionID string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if m, ok := a.sessions[sessionID]; ok {
		return m.CurrentViewers
	}
	return 0
}

// Forget drops the counters of an ended session.
func (a *Aggregator) Forget(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionID)
}
