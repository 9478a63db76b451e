package models

import "time"

// Prompt 群组的系统提示词, 按版本递增保存, 最高版本即当前生效版本
type Prompt struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	GroupID  uint   `gorm:"not null;uniqueIndex:idx_group_version" json:"group_id"`
	Version  int    `gorm:"not null;uniqueIndex:idx_group_version" json:"version"`
	Content  string `gorm:"type:text;not null" json:"content"`
	AuthorID uint   `gorm:"not null" json:"author_id"`
	Note     string `json:"note"`

	CreatedAt time.Time `json:"created_at"`
}

func (Prompt) TableName() string {
	return "prompts"
}
