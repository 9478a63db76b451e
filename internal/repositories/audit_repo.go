package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/ProfDash/internal/models"
)

// AuditRepository 审计事件仓储
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create 写入审计事件, 同一 ID 重复写入时忽略
func (r *AuditRepository) Create(ctx context.Context, event *models.AuditEvent) error {
	return translate(r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event).Error)
}

// ListByGroup 群组审计事件, 最新的在前
func (r *AuditRepository) ListByGroup(ctx context.Context, groupID uint, limit, offset int) ([]models.AuditEvent, int64, error) {
	var events []models.AuditEvent
	var total int64

	limit, offset = clampPage(limit, offset)
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.AuditEvent{}).Where("group_id = ?", groupID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Where("group_id = ?", groupID).Order("id DESC").Limit(limit).Offset(offset).Find(&events).Error
	return events, total, err
}
