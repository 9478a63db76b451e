package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/ProfDash/internal/models"
)

// SessionRepository 聊天会话仓储
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateWithMessages 写入会话及其消息
func (r *SessionRepository) CreateWithMessages(ctx context.Context, session *models.Session) error {
	return translate(r.db.WithContext(ctx).Create(session).Error)
}

// Get 获取会话 (不含消息)
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

// GetWithMessages 获取会话及按时间排序的消息
func (r *SessionRepository) GetWithMessages(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

// List 群组会话列表, 最新的在前
func (r *SessionRepository) List(ctx context.Context, groupID uint, limit, offset int) ([]models.Session, int64, error) {
	var sessions []models.Session
	var total int64

	limit, offset = clampPage(limit, offset)
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Session{}).Where("group_id = ?", groupID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Where("group_id = ?", groupID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&sessions).Error
	return sessions, total, err
}

// GetMessage 获取会话内的某条消息
func (r *SessionRepository) GetMessage(ctx context.Context, sessionID string, messageID uint) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).Where("id = ? AND session_id = ?", messageID, sessionID).First(&message).Error
	if err != nil {
		return nil, translate(err)
	}
	return &message, nil
}

// Delete 删除会话及关联的消息和反馈
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&models.AdminFeedback{}, &models.UserFeedback{}, &models.Message{}} {
			if err := tx.Where("session_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}

		res := tx.Where("id = ?", id).Delete(&models.Session{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	}))
}
