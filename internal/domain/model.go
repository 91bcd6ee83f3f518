package domain

import (
	"time"

	"gorm.io/gorm"

	"github.com/fanstage/live-service/pkg/database"
)

// LiveSessionModel is the GORM model for the live_sessions table.
type LiveSessionModel struct {
	ID              string               `gorm:"type:varchar(36);primaryKey"`
	OwnerID         string               `gorm:"type:varchar(36);index;not null"`
	OwnerUsername   string               `gorm:"type:varchar(50);not null"`
	Title           string               `gorm:"type:varchar(200);not null"`
	Description     string               `gorm:"type:text"`
	Visibility      string               `gorm:"type:varchar(20);not null;default:'public'"`
	RequiredTierIDs database.StringArray `gorm:"type:text"`
	Gate            string               `gorm:"type:varchar(20);not null;default:'none'"`
	AmountCents     int64                `gorm:"default:0"`
	Status          string               `gorm:"type:varchar(20);index;not null"`
	MaxViewers      int                  `gorm:"not null"`
	ScheduledAt     *time.Time
	StartedAt       *time.Time
	EndedAt         *time.Time
	EndReason       string `gorm:"type:varchar(20)"`
	StreamKey       string `gorm:"type:varchar(64)"`
	IngestURL       string `gorm:"type:varchar(255)"`
	ChannelRef      string `gorm:"type:varchar(128)"`
	PlaybackPath    string `gorm:"type:varchar(255)"`
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}

// TableName specifies the table name for LiveSessionModel.
func (LiveSessionModel) TableName() string {
	return "live_sessions"
}

// ToDomain converts LiveSessionModel to a domain LiveSession.
func (m *LiveSessionModel) ToDomain() *LiveSession {
	return &LiveSession{
		ID:              m.ID,
		OwnerID:         m.OwnerID,
		OwnerUsername:   m.OwnerUsername,
		Title:           m.Title,
		Description:     m.Description,
		Visibility:      Visibility(m.Visibility),
		RequiredTierIDs: []string(m.RequiredTierIDs),
		Gate:            MonetaryGate(m.Gate),
		AmountCents:     m.AmountCents,
		Status:          SessionStatus(m.Status),
		MaxViewers:      m.MaxViewers,
		ScheduledAt:     m.ScheduledAt,
		StartedAt:       m.StartedAt,
		EndedAt:         m.EndedAt,
		EndReason:       m.EndReason,
		StreamKey:       m.StreamKey,
		IngestURL:       m.IngestURL,
		ChannelRef:      m.ChannelRef,
		PlaybackPath:    m.PlaybackPath,
		CreatedAt:       m.CreatedAt,
	}
}

// SessionToModel converts a domain LiveSession to LiveSessionModel.
func SessionToModel(s *LiveSession) *LiveSessionModel {
	return &LiveSessionModel{
		ID:              s.ID,
		OwnerID:         s.OwnerID,
		OwnerUsername:   s.OwnerUsername,
		Title:           s.Title,
		Description:     s.Description,
		Visibility:      string(s.Visibility),
		RequiredTierIDs: database.StringArray(s.RequiredTierIDs),
		Gate:            string(s.Gate),
		AmountCents:     s.AmountCents,
		Status:          string(s.Status),
		MaxViewers:      s.MaxViewers,
		ScheduledAt:     s.ScheduledAt,
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
		EndReason:       s.EndReason,
		StreamKey:       s.StreamKey,
		IngestURL:       s.IngestURL,
		ChannelRef:      s.ChannelRef,
		PlaybackPath:    s.PlaybackPath,
		CreatedAt:       s.CreatedAt,
	}
}

// ChatMessageModel is the GORM model for persisted chat messages.
type ChatMessageModel struct {
	ID        string    `gorm:"type:varchar(26);primaryKey"`
	SessionID string    `gorm:"type:varchar(36);index;not null"`
	UserID    string    `gorm:"type:varchar(36);index;not null"`
	Username  string    `gorm:"type:varchar(50)"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for ChatMessageModel.
func (ChatMessageModel) TableName() string {
	return "chat_messages"
}
