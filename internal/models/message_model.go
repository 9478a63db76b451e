package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// Session 一次聊天会话
type Session struct {
	ID      string `gorm:"primaryKey;size:36" json:"id"`
	GroupID uint   `gorm:"not null;index" json:"group_id"`
	UserID  uint   `gorm:"not null;index" json:"user_id"`
	Title   string `json:"title"`

	Messages []Message `gorm:"foreignKey:SessionID" json:"messages,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (Session) TableName() string {
	return "sessions"
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Message 会话中的一条消息
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"size:36;not null;index" json:"session_id"`
	Role      string    `gorm:"not null" json:"role"` // user, assistant
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}
