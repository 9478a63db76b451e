package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/ProfDash/internal/models"
)

// GroupRepository 群组仓储
type GroupRepository struct {
	db *gorm.DB
}

// NewGroupRepository 创建群组仓储实例
func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// CreateWithAdmin 创建群组, 并在同一事务里把管理员加为 admin 成员
func (r *GroupRepository) CreateWithAdmin(ctx context.Context, group *models.Group) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group.MemberCount = 1
		if err := tx.Create(group).Error; err != nil {
			return err
		}
		return tx.Create(&models.GroupMember{
			GroupID: group.ID,
			UserID:  group.AdministratorID,
			Role:    models.MemberRoleAdmin,
		}).Error
	}))
}

// GetByID 根据ID获取群组
func (r *GroupRepository) GetByID(ctx context.Context, id uint) (*models.Group, error) {
	var group models.Group
	if err := r.db.WithContext(ctx).First(&group, id).Error; err != nil {
		return nil, translate(err)
	}
	return &group, nil
}

// GetByInviteCode 根据邀请码获取群组
func (r *GroupRepository) GetByInviteCode(ctx context.Context, code string) (*models.Group, error) {
	var group models.Group
	if err := r.db.WithContext(ctx).Where("invite_code = ?", code).First(&group).Error; err != nil {
		return nil, translate(err)
	}
	return &group, nil
}

// UpdateFields 按字段更新群组
func (r *GroupRepository) UpdateFields(ctx context.Context, id uint, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Group{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAll 获取全部群组 (超级管理员)
func (r *GroupRepository) ListAll(ctx context.Context, limit, offset int) ([]models.Group, int64, error) {
	return r.list(r.db.WithContext(ctx).Model(&models.Group{}), limit, offset)
}

// ListForUser 获取用户管理或加入的群组
func (r *GroupRepository) ListForUser(ctx context.Context, userID uint, limit, offset int) ([]models.Group, int64, error) {
	db := r.db.WithContext(ctx)
	memberOf := db.Model(&models.GroupMember{}).Select("group_id").Where("user_id = ?", userID)
	query := db.Model(&models.Group{}).Where("administrator_id = ? OR id IN (?)", userID, memberOf)
	return r.list(query, limit, offset)
}

func (r *GroupRepository) list(query *gorm.DB, limit, offset int) ([]models.Group, int64, error) {
	var groups []models.Group
	var total int64

	limit, offset = clampPage(limit, offset)
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&groups).Error
	return groups, total, err
}

// IDsForUser 用户可见的全部群组 ID, 供 WebSocket 订阅使用
func (r *GroupRepository) IDsForUser(ctx context.Context, userID uint) ([]uint, error) {
	db := r.db.WithContext(ctx)
	memberOf := db.Model(&models.GroupMember{}).Select("group_id").Where("user_id = ?", userID)

	var ids []uint
	err := db.Model(&models.Group{}).
		Where("administrator_id = ? OR id IN (?)", userID, memberOf).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// AllIDs 全部群组 ID
func (r *GroupRepository) AllIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Group{}).Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

// CountAdministeredBy 统计用户作为管理员的群组数量
func (r *GroupRepository) CountAdministeredBy(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Group{}).Where("administrator_id = ?", userID).Count(&count).Error
	return count, err
}

// ReassignAdministrator 把 from 管理的所有群组转交给 to, 并确保 to 是这些群的 admin 成员
func (r *GroupRepository) ReassignAdministrator(ctx context.Context, from, to uint) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return reassignAdministrator(tx, from, to)
	}))
}

// reassignAdministrator 在调用方的事务里执行转交
func reassignAdministrator(tx *gorm.DB, from, to uint) error {
	var groupIDs []uint
	if err := tx.Model(&models.Group{}).Where("administrator_id = ?", from).Pluck("id", &groupIDs).Error; err != nil {
		return err
	}

	for _, groupID := range groupIDs {
		var member models.GroupMember
		err := tx.Where("group_id = ? AND user_id = ?", groupID, to).First(&member).Error
		switch {
		case err == nil:
			if err := tx.Model(&member).Update("role", models.MemberRoleAdmin).Error; err != nil {
				return err
			}
		case translate(err) == ErrNotFound:
			if err := tx.Create(&models.GroupMember{GroupID: groupID, UserID: to, Role: models.MemberRoleAdmin}).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Group{}).Where("id = ?", groupID).
				Update("member_count", gorm.Expr("member_count + 1")).Error; err != nil {
				return err
			}
		default:
			return err
		}
	}

	if len(groupIDs) == 0 {
		return nil
	}
	return tx.Model(&models.Group{}).Where("id IN ?", groupIDs).Update("administrator_id", to).Error
}

// AddMember 添加成员并增加成员数
func (r *GroupRepository) AddMember(ctx context.Context, member *models.GroupMember) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(member).Error; err != nil {
			return err
		}
		return tx.Model(&models.Group{}).Where("id = ?", member.GroupID).
			Update("member_count", gorm.Expr("member_count + 1")).Error
	}))
}

// RemoveMember 移除成员并减少成员数
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID uint) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.GroupMember{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&models.Group{}).Where("id = ?", groupID).
			Update("member_count", gorm.Expr("member_count - 1")).Error
	}))
}

// GetMember 获取成员关系
func (r *GroupRepository) GetMember(ctx context.Context, groupID, userID uint) (*models.GroupMember, error) {
	var member models.GroupMember
	err := r.db.WithContext(ctx).Where("group_id = ? AND user_id = ?", groupID, userID).First(&member).Error
	if err != nil {
		return nil, translate(err)
	}
	return &member, nil
}

// ListMembers 获取群组成员
func (r *GroupRepository) ListMembers(ctx context.Context, groupID uint, limit, offset int) ([]models.GroupMember, int64, error) {
	var members []models.GroupMember
	var total int64

	limit, offset = clampPage(limit, offset)
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.GroupMember{}).Where("group_id = ?", groupID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Where("group_id = ?", groupID).
		Preload("User").
		Order("joined_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&members).Error
	return members, total, err
}

// DeleteCascade 在一个事务里删除群组及其全部数据
func (r *GroupRepository) DeleteCascade(ctx context.Context, groupID uint) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := tx.First(&group, groupID).Error; err != nil {
			return err
		}

		sessions := tx.Model(&models.Session{}).Select("id").Where("group_id = ?", groupID)
		steps := []struct {
			model any
			where string
			args  []any
		}{
			{&models.AdminFeedback{}, "group_id = ?", []any{groupID}},
			{&models.UserFeedback{}, "group_id = ?", []any{groupID}},
			{&models.Message{}, "session_id IN (?)", []any{sessions}},
			{&models.Session{}, "group_id = ?", []any{groupID}},
			{&models.Prompt{}, "group_id = ?", []any{groupID}},
			{&models.GroupMember{}, "group_id = ?", []any{groupID}},
			{&models.AuditEvent{}, "group_id = ?", []any{groupID}},
		}
		for _, step := range steps {
			if err := tx.Where(step.where, step.args...).Delete(step.model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&group).Error
	}))
}
