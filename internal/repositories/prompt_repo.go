package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/ProfDash/internal/models"
)

// postgres 上先锁住群组行串行化写入; sqlite 没有行锁, 靠唯一索引冲突后重试
const promptVersionRetries = 3

// PromptRepository 提示词仓储
type PromptRepository struct {
	db *gorm.DB
}

func NewPromptRepository(db *gorm.DB) *PromptRepository {
	return &PromptRepository{db: db}
}

// Latest 获取群组当前生效的提示词 (最高版本)
func (r *PromptRepository) Latest(ctx context.Context, groupID uint) (*models.Prompt, error) {
	var prompt models.Prompt
	err := r.db.WithContext(ctx).Where("group_id = ?", groupID).Order("version DESC").First(&prompt).Error
	if err != nil {
		return nil, translate(err)
	}
	return &prompt, nil
}

// GetVersion 获取指定版本
func (r *PromptRepository) GetVersion(ctx context.Context, groupID uint, version int) (*models.Prompt, error) {
	var prompt models.Prompt
	err := r.db.WithContext(ctx).Where("group_id = ? AND version = ?", groupID, version).First(&prompt).Error
	if err != nil {
		return nil, translate(err)
	}
	return &prompt, nil
}

// List 历史版本, 新版本在前
func (r *PromptRepository) List(ctx context.Context, groupID uint, limit, offset int) ([]models.Prompt, int64, error) {
	var prompts []models.Prompt
	var total int64

	limit, offset = clampPage(limit, offset)
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Prompt{}).Where("group_id = ?", groupID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Where("group_id = ?", groupID).Order("version DESC").Limit(limit).Offset(offset).Find(&prompts).Error
	return prompts, total, err
}

// CreateNextVersion 以 max(version)+1 写入新版本
func (r *PromptRepository) CreateNextVersion(ctx context.Context, prompt *models.Prompt) error {
	var err error
	for range promptVersionRetries {
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if tx.Dialector.Name() == "postgres" {
				var locked models.Group
				if err := lockGroup(tx, prompt.GroupID).Take(&locked).Error; err != nil {
					return err
				}
			}

			var current int
			if err := tx.Model(&models.Prompt{}).
				Where("group_id = ?", prompt.GroupID).
				Select("COALESCE(MAX(version), 0)").
				Scan(&current).Error; err != nil {
				return err
			}

			prompt.ID = 0
			prompt.Version = current + 1
			return tx.Create(prompt).Error
		})
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
	}
	return translate(err)
}

// lockGroup 以 SELECT ... FOR UPDATE 锁住群组行
func lockGroup(tx *gorm.DB, groupID uint) *gorm.DB {
	return tx.Model(&models.Group{}).
		Select("id").
		Where("id = ?", groupID).
		Clauses(clause.Locking{Strength: "UPDATE"})
}
