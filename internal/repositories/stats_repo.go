package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/ProfDash/internal/models"
)

// UsageStats 群组在某段时间内的使用统计
type UsageStats struct {
	Sessions       int64            `json:"sessions"`
	Messages       int64            `json:"messages"`
	ActiveUsers    int64            `json:"active_users"`
	AdminVerdicts  map[string]int64 `json:"admin_verdicts"`
	UserLikes      int64            `json:"user_likes"`
	UserDislikes   int64            `json:"user_dislikes"`
	SessionsPerDay map[string]int64 `json:"sessions_per_day"`
}

// StatsRepository 统计查询
type StatsRepository struct {
	db *gorm.DB
}

func NewStatsRepository(db *gorm.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Usage 统计 since 之后的使用情况, 按天聚合使用 UTC 日期
func (r *StatsRepository) Usage(ctx context.Context, groupID uint, since time.Time) (*UsageStats, error) {
	db := r.db.WithContext(ctx)
	stats := &UsageStats{
		AdminVerdicts:  make(map[string]int64),
		SessionsPerDay: make(map[string]int64),
	}

	sessions := db.Model(&models.Session{}).Where("group_id = ? AND created_at >= ?", groupID, since)
	if err := sessions.Session(&gorm.Session{}).Count(&stats.Sessions).Error; err != nil {
		return nil, err
	}
	if err := sessions.Session(&gorm.Session{}).Distinct("user_id").Count(&stats.ActiveUsers).Error; err != nil {
		return nil, err
	}

	var createdAt []time.Time
	if err := sessions.Session(&gorm.Session{}).Pluck("created_at", &createdAt).Error; err != nil {
		return nil, err
	}
	for _, ts := range createdAt {
		stats.SessionsPerDay[ts.UTC().Format(time.DateOnly)]++
	}

	sessionIDs := db.Model(&models.Session{}).Select("id").Where("group_id = ? AND created_at >= ?", groupID, since)
	if err := db.Model(&models.Message{}).Where("session_id IN (?)", sessionIDs).Count(&stats.Messages).Error; err != nil {
		return nil, err
	}

	var verdicts []struct {
		Verdict string
		Count   int64
	}
	err := db.Model(&models.AdminFeedback{}).
		Select("verdict, COUNT(*) AS count").
		Where("group_id = ? AND created_at >= ?", groupID, since).
		Group("verdict").
		Scan(&verdicts).Error
	if err != nil {
		return nil, err
	}
	for _, v := range verdicts {
		stats.AdminVerdicts[v.Verdict] = v.Count
	}

	var reactions []struct {
		Verdict string
		Count   int64
	}
	err = db.Model(&models.UserFeedback{}).
		Select("verdict, COUNT(*) AS count").
		Where("group_id = ? AND created_at >= ?", groupID, since).
		Group("verdict").
		Scan(&reactions).Error
	if err != nil {
		return nil, err
	}
	for _, v := range reactions {
		switch v.Verdict {
		case models.VerdictLike:
			stats.UserLikes = v.Count
		case models.VerdictDislike:
			stats.UserDislikes = v.Count
		}
	}
	return stats, nil
}
