package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fanstage/live-service/internal/domain"
	"github.com/fanstage/live-service/pkg/log"
)

// GormSessionRepository implements SessionRepository using GORM.
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a new GORM-based session repository.
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// Create persists a new session.
func (r *GormSessionRepository) Create(ctx context.Context, session *domain.LiveSession) error {
	l := log.Ctx(ctx)

	if session.ID == "" {
		session.ID = uuid.New().String()
	}

	model := domain.SessionToModel(session)
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		l.Error().Err(result.Error).Msg("failed to create session in db")
		return result.Error
	}

	session.CreatedAt = model.CreatedAt
	l.Debug().Str(log.FieldSessionID, session.ID).Msg("session created in db")
	return nil
}

// GetByID retrieves a session by ID.
func (r *GormSessionRepository) GetByID(ctx context.Context, id string) (*domain.LiveSession, error) {
	l := log.Ctx(ctx)

	var model domain.LiveSessionModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldSessionID, id).Msg("failed to get session by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// List retrieves sessions with pagination, optionally filtered by status.
func (r *GormSessionRepository) List(ctx context.Context, page, pageSize int, status string) ([]domain.LiveSession, int, error) {
	l := log.Ctx(ctx)

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := r.db.WithContext(ctx).Model(&domain.LiveSessionModel{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		l.Error().Err(err).Msg("failed to count sessions")
		return nil, 0, err
	}

	var models []domain.LiveSessionModel
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&models).Error; err != nil {
		l.Error().Err(err).Msg("failed to list sessions from db")
		return nil, 0, err
	}

	sessions := make([]domain.LiveSession, len(models))
	for i, model := range models {
		sessions[i] = *model.ToDomain()
	}

	return sessions, int(total), nil
}

// GetOwnerSessions retrieves sessions owned by a user.
func (r *GormSessionRepository) GetOwnerSessions(ctx context.Context, ownerID string) ([]domain.LiveSession, error) {
	l := log.Ctx(ctx)

	var models []domain.LiveSessionModel
	result := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&models)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldUserID, ownerID).Msg("failed to get owner sessions from db")
		return nil, result.Error
	}

	sessions := make([]domain.LiveSession, len(models))
	for i, model := range models {
		sessions[i] = *model.ToDomain()
	}

	return sessions, nil
}

// CountActiveByOwner counts sessions of an owner that are not yet Ended.
func (r *GormSessionRepository) CountActiveByOwner(ctx context.Context, ownerID string) (int, error) {
	l := log.Ctx(ctx)

	var count int64
	result := r.db.WithContext(ctx).Model(&domain.LiveSessionModel{}).
		Where("owner_id = ? AND status <> ?", ownerID, string(domain.StatusEnded)).
		Count(&count)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldUserID, ownerID).Msg("failed to count active sessions")
	}
	return int(count), result.Error
}

// UpdateStatus persists the session guarded by its expected previous status.
func (r *GormSessionRepository) UpdateStatus(ctx context.Context, session *domain.LiveSession, expected domain.SessionStatus) error {
	l := log.Ctx(ctx)

	model := domain.SessionToModel(session)
	result := r.db.WithContext(ctx).Model(&domain.LiveSessionModel{}).
		Where("id = ? AND status = ?", session.ID, string(expected)).
		Updates(map[string]interface{}{
			"status":     model.Status,
			"started_at": model.StartedAt,
			"ended_at":   model.EndedAt,
			"end_reason": model.EndReason,
		})
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldSessionID, session.ID).Msg("failed to update session status in db")
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Either the row is gone or another writer moved the status.
		var count int64
		r.db.WithContext(ctx).Model(&domain.LiveSessionModel{}).Where("id = ?", session.ID).Count(&count)
		if count == 0 {
			return ErrSessionNotFound
		}
		return ErrStatusConflict
	}
	l.Debug().
		Str(log.FieldSessionID, session.ID).
		Str("from", string(expected)).
		Str("to", string(session.Status)).
		Msg("session status updated in db")
	return nil
}

// GormChatMessageRepository implements ChatMessageRepository using GORM.
type GormChatMessageRepository struct {
	db *gorm.DB
}

// NewGormChatMessageRepository creates a new GORM-based chat repository.
func NewGormChatMessageRepository(db *gorm.DB) *GormChatMessageRepository {
	return &GormChatMessageRepository{db: db}
}

// Append persists one chat message from its originating event.
func (r *GormChatMessageRepository) Append(ctx context.Context, event *domain.SessionEvent, content string) error {
	l := log.Ctx(ctx)

	model := &domain.ChatMessageModel{
		ID:        event.ID,
		SessionID: event.SessionID,
		UserID:    event.UserID,
		Username:  event.Username,
		Content:   content,
		CreatedAt: event.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Str(log.FieldSessionID, event.SessionID).Msg("failed to append chat message")
		return err
	}
	return nil
}
