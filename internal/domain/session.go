package domain

import (
	"time"
)

// SessionStatus represents the lifecycle state of a live session.
type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusStarting  SessionStatus = "starting"
	StatusLive      SessionStatus = "live"
	StatusStopping  SessionStatus = "stopping"
	StatusEnded     SessionStatus = "ended"
)

// statusRank orders statuses so transitions can be checked for monotonicity.
// A session never moves to a lower-ranked status.
var statusRank = map[SessionStatus]int{
	StatusScheduled: 0,
	StatusStarting:  1,
	StatusLive:      2,
	StatusStopping:  3,
	StatusEnded:     4,
}

// CanTransition reports whether moving from to next respects monotonic
// ordering. Ended is terminal.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	if s == StatusEnded {
		return false
	}
	return to > from
}

// Visibility controls who can discover and watch a session.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// MonetaryGate describes the payment requirement for a session.
type MonetaryGate string

const (
	GateNone      MonetaryGate = "none"
	GateOneTime   MonetaryGate = "one_time"
	GateRecurring MonetaryGate = "recurring"
)

// End reasons recorded when a session reaches Ended.
const (
	EndReasonCompleted = "completed"
	EndReasonCancelled = "cancelled"
	EndReasonTimeout   = "timeout"
)

// LiveSession represents a live broadcast session owned by an artist.
type LiveSession struct {
	ID              string        `json:"id"`
	OwnerID         string        `json:"owner_id"`
	OwnerUsername   string        `json:"owner_username"`
	Title           string        `json:"title"`
	Description     string        `json:"description,omitempty"`
	Visibility      Visibility    `json:"visibility"`
	RequiredTierIDs []string      `json:"required_tier_ids,omitempty"`
	Gate            MonetaryGate  `json:"gate"`
	AmountCents     int64         `json:"amount_cents,omitempty"`
	Status          SessionStatus `json:"status"`
	MaxViewers      int           `json:"max_viewers"`
	ScheduledAt     *time.Time    `json:"scheduled_at,omitempty"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	EndReason       string        `json:"end_reason,omitempty"`
	StreamKey       string        `json:"-"`
	IngestURL       string        `json:"-"`
	ChannelRef      string        `json:"-"`
	PlaybackPath    string        `json:"-"`
	CreatedAt       time.Time     `json:"created_at"`
}

// IsTerminal reports whether the session reached its immutable final state.
func (s *LiveSession) IsTerminal() bool {
	return s.Status == StatusEnded
}

// TierGated reports whether tier membership is required to watch.
func (s *LiveSession) TierGated() bool {
	return len(s.RequiredTierIDs) > 0
}

// MoneyGated reports whether a payment record is required to watch.
func (s *LiveSession) MoneyGated() bool {
	return s.Gate != "" && s.Gate != GateNone
}

// StreamTopic returns the session's broadcast topic.
func (s *LiveSession) StreamTopic() Topic {
	return NewStreamTopic(s.ID)
}

// CreateSessionRequest represents a create session request.
type CreateSessionRequest struct {
	Title           string       `json:"title" binding:"required,min=1,max=200"`
	Description     string       `json:"description"`
	Visibility      Visibility   `json:"visibility"`
	RequiredTierIDs []string     `json:"required_tier_ids"`
	Gate            MonetaryGate `json:"gate"`
	AmountCents     int64        `json:"amount_cents"`
	MaxViewers      int          `json:"max_viewers"`
	ScheduledAt     *time.Time   `json:"scheduled_at"`
}

// ListSessionsRequest represents a list sessions request.
type ListSessionsRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Status   string `form:"status"`
}

// SessionResponse is the viewer-facing representation of a session.
// Ingestion credentials are never included.
type SessionResponse struct {
	ID            string        `json:"id"`
	OwnerID       string        `json:"owner_id"`
	OwnerUsername string        `json:"owner_username"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	Visibility    Visibility    `json:"visibility"`
	Gate          MonetaryGate  `json:"gate"`
	AmountCents   int64         `json:"amount_cents,omitempty"`
	Status        SessionStatus `json:"status"`
	MaxViewers    int           `json:"max_viewers"`
	ScheduledAt   *time.Time    `json:"scheduled_at,omitempty"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	EndedAt       *time.Time    `json:"ended_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// OwnerSessionResponse additionally carries the ingest credentials.
// Returned only to the owning artist.
type OwnerSessionResponse struct {
	SessionResponse
	StreamKey string `json:"stream_key"`
	IngestURL string `json:"ingest_url"`
}

// ListSessionsResponse represents a paginated list response.
type ListSessionsResponse struct {
	Sessions   []SessionResponse `json:"sessions"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// ToResponse converts LiveSession to SessionResponse.
func (s *LiveSession) ToResponse() SessionResponse {
	return SessionResponse{
		ID:            s.ID,
		OwnerID:       s.OwnerID,
		OwnerUsername: s.OwnerUsername,
		Title:         s.Title,
		Description:   s.Description,
		Visibility:    s.Visibility,
		Gate:          s.Gate,
		AmountCents:   s.AmountCents,
		Status:        s.Status,
		MaxViewers:    s.MaxViewers,
		ScheduledAt:   s.ScheduledAt,
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		CreatedAt:     s.CreatedAt,
	}
}

// ToOwnerResponse converts LiveSession to OwnerSessionResponse.
func (s *LiveSession) ToOwnerResponse() OwnerSessionResponse {
	return OwnerSessionResponse{
		SessionResponse: s.ToResponse(),
		StreamKey:       s.StreamKey,
		IngestURL:       s.IngestURL,
	}
}
