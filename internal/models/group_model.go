package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	GroupStatusActive   = "active"
	GroupStatusArchived = "archived"
)

// Group 群组模型 (一个班级/课程)
type Group struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Name            string `gorm:"size:100;not null" json:"name"`
	Description     string `json:"description"`
	AdministratorID uint   `gorm:"not null;index" json:"administrator_id"`
	InviteCode      string `gorm:"size:8;uniqueIndex;not null" json:"invite_code"`
	AvatarURL       string `json:"avatar_url"`
	MemberCount     int    `gorm:"default:1" json:"member_count"`
	Status          string `gorm:"default:active" json:"status"` // active, archived

	// 聊天界面定制
	ChatTitle          string                      `json:"chat_title"`
	WelcomeMessage     string                      `json:"welcome_message"`
	ThemeColor         string                      `gorm:"size:7" json:"theme_color"`
	SuggestedQuestions datatypes.JSONSlice[string] `json:"suggested_questions"`

	// 仅保存关联的向量库 ID, 不做任何远程调用
	VectorStoreID string `json:"vector_store_id"`

	Administrator *User         `gorm:"foreignKey:AdministratorID" json:"-"`
	Members       []GroupMember `gorm:"foreignKey:GroupID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Group) TableName() string {
	return "groups"
}

func (g *Group) IsArchived() bool {
	return g.Status == GroupStatusArchived
}
