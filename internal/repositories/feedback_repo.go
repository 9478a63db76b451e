package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/ProfDash/internal/models"
)

// AdminFeedbackFilter 管理员反馈查询条件, 零值字段不参与过滤
type AdminFeedbackFilter struct {
	GroupID   uint
	Verdict   string
	Applied   *bool
	SessionID string
	Limit     int
	Offset    int
}

type UserFeedbackFilter struct {
	GroupID uint
	Verdict string
	Limit   int
	Offset  int
}

// FeedbackRepository 反馈仓储
type FeedbackRepository struct {
	db *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) CreateAdmin(ctx context.Context, fb *models.AdminFeedback) error {
	return translate(r.db.WithContext(ctx).Create(fb).Error)
}

func (r *FeedbackRepository) GetAdmin(ctx context.Context, id uint) (*models.AdminFeedback, error) {
	var fb models.AdminFeedback
	if err := r.db.WithContext(ctx).First(&fb, id).Error; err != nil {
		return nil, translate(err)
	}
	return &fb, nil
}

func (r *FeedbackRepository) UpdateAdmin(ctx context.Context, fb *models.AdminFeedback) error {
	return translate(r.db.WithContext(ctx).Save(fb).Error)
}

func (r *FeedbackRepository) DeleteAdmin(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.AdminFeedback{}, id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAdmin 按条件列出管理员反馈, 最新的在前
func (r *FeedbackRepository) ListAdmin(ctx context.Context, f AdminFeedbackFilter) ([]models.AdminFeedback, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.AdminFeedback{}).Where("group_id = ?", f.GroupID)
	if f.Verdict != "" {
		query = query.Where("verdict = ?", f.Verdict)
	}
	if f.Applied != nil {
		query = query.Where("apply = ?", *f.Applied)
	}
	if f.SessionID != "" {
		query = query.Where("session_id = ?", f.SessionID)
	}

	var items []models.AdminFeedback
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit, offset := clampPage(f.Limit, f.Offset)
	err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&items).Error
	return items, total, err
}

func (r *FeedbackRepository) CreateUser(ctx context.Context, fb *models.UserFeedback) error {
	return translate(r.db.WithContext(ctx).Create(fb).Error)
}

// ListUser 按条件列出用户反馈, 最新的在前
func (r *FeedbackRepository) ListUser(ctx context.Context, f UserFeedbackFilter) ([]models.UserFeedback, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.UserFeedback{}).Where("group_id = ?", f.GroupID)
	if f.Verdict != "" {
		query = query.Where("verdict = ?", f.Verdict)
	}

	var items []models.UserFeedback
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit, offset := clampPage(f.Limit, f.Offset)
	err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&items).Error
	return items, total, err
}
