package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Gopher0727/ProfDash/internal/models"
)

const (
	userCacheKeyPrefix = "profdash:user:" // Redis String, 值是 user JSON
	userCacheTTL       = 1 * time.Hour
)

type UserRepository struct {
	db    *gorm.DB
	redis *redis.Client
}

// NewUserRepository redis 可以为 nil, 此时不走缓存
func NewUserRepository(db *gorm.DB, redis *redis.Client) *UserRepository {
	return &UserRepository{db: db, redis: redis}
}

func userCacheKey(id uint) string {
	return fmt.Sprintf("%s%d", userCacheKeyPrefix, id)
}

// Create 创建用户
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return translate(r.db.WithContext(ctx).Create(user).Error)
}

// GetByID 根据 ID 获取用户 (带缓存)
func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	if r.redis != nil {
		val, err := r.redis.Get(ctx, userCacheKey(id)).Result()
		if err == nil {
			var user models.User
			if json.Unmarshal([]byte(val), &user) == nil {
				return &user, nil
			}
		}
	}

	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}

	// 回填 Redis
	r.cache(ctx, &user)
	return &user, nil
}

// GetByEmail 根据邮箱获取用户
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// ExistsByEmail 检查邮箱是否存在
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

// UpdateFields 按字段更新用户 (同时清除缓存)
// 缓存中的用户不含密码哈希, 所以这里不接受整行 Save
func (r *UserRepository) UpdateFields(ctx context.Context, id uint, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	r.evict(ctx, id)
	return nil
}

// Delete 删除用户及其全部群组成员关系, 并同步各群成员数
func (r *UserRepository) Delete(ctx context.Context, id uint) error {
	return r.delete(ctx, id, nil)
}

// DeleteAndReassign 在同一个事务里把 id 管理的群组转交给 to 再删除 id
func (r *UserRepository) DeleteAndReassign(ctx context.Context, id, to uint) error {
	return r.delete(ctx, id, func(tx *gorm.DB) error {
		return reassignAdministrator(tx, id, to)
	})
}

func (r *UserRepository) delete(ctx context.Context, id uint, before func(tx *gorm.DB) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if before != nil {
			if err := before(tx); err != nil {
				return err
			}
		}

		var groupIDs []uint
		if err := tx.Model(&models.GroupMember{}).Where("user_id = ?", id).Pluck("group_id", &groupIDs).Error; err != nil {
			return err
		}
		if len(groupIDs) > 0 {
			if err := tx.Model(&models.Group{}).Where("id IN ?", groupIDs).
				Update("member_count", gorm.Expr("member_count - 1")).Error; err != nil {
				return err
			}
			if err := tx.Where("user_id = ?", id).Delete(&models.GroupMember{}).Error; err != nil {
				return err
			}
		}

		res := tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return translate(err)
	}

	r.evict(ctx, id)
	return nil
}

// List 获取用户列表
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]models.User, int64, error) {
	var users []models.User
	var total int64

	limit, offset = clampPage(limit, offset)
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Order("id ASC").Limit(limit).Offset(offset).Find(&users).Error
	return users, total, err
}

// GetByIDs 批量获取用户信息 (带缓存)
func (r *UserRepository) GetByIDs(ctx context.Context, ids []uint) (map[uint]*models.User, error) {
	result := make(map[uint]*models.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	missingIDs := ids
	if r.redis != nil {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = userCacheKey(id)
		}

		// MGet 一次性获取所有 key
		if vals, err := r.redis.MGet(ctx, keys...).Result(); err == nil {
			missingIDs = missingIDs[:0:0]
			for i, val := range vals {
				var user models.User
				if s, ok := val.(string); ok && json.Unmarshal([]byte(s), &user) == nil {
					result[ids[i]] = &user
					continue
				}
				missingIDs = append(missingIDs, ids[i])
			}
		}
	}
	if len(missingIDs) == 0 {
		return result, nil
	}

	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", missingIDs).Find(&users).Error; err != nil {
		return result, err // 返回已获取的部分
	}
	for i := range users {
		result[users[i].ID] = &users[i]
		r.cache(ctx, &users[i])
	}
	return result, nil
}

func (r *UserRepository) cache(ctx context.Context, user *models.User) {
	if r.redis == nil {
		return
	}
	if data, err := json.Marshal(user); err == nil {
		r.redis.Set(ctx, userCacheKey(user.ID), data, userCacheTTL)
	}
}

func (r *UserRepository) evict(ctx context.Context, id uint) {
	if r.redis != nil {
		r.redis.Del(ctx, userCacheKey(id))
	}
}
