package models

import "time"

const (
	VerdictCorrect   = "correct"
	VerdictIncorrect = "incorrect"
	VerdictPartial   = "partial"

	VerdictLike    = "like"
	VerdictDislike = "dislike"
)

// AdminFeedback 管理员对某条回复的评审
type AdminFeedback struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	GroupID    uint   `gorm:"not null;index" json:"group_id"`
	SessionID  string `gorm:"size:36;not null;index" json:"session_id"`
	MessageID  uint   `gorm:"not null" json:"message_id"`
	ReviewerID uint   `gorm:"not null" json:"reviewer_id"`
	Verdict    string `gorm:"not null" json:"verdict"` // correct, incorrect, partial
	Text       string `gorm:"type:text" json:"text"`
	Correction string `gorm:"type:text" json:"correction"`
	Apply      bool   `gorm:"default:false" json:"apply"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AdminFeedback) TableName() string {
	return "admin_feedback"
}

// UserFeedback 学生对回复的点赞/点踩
type UserFeedback struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	GroupID   uint   `gorm:"not null;index" json:"group_id"`
	SessionID string `gorm:"size:36;not null;index" json:"session_id"`
	MessageID uint   `gorm:"not null" json:"message_id"`
	UserID    uint   `gorm:"not null" json:"user_id"`
	Verdict   string `gorm:"not null" json:"verdict"` // like, dislike
	Comment   string `json:"comment"`

	CreatedAt time.Time `json:"created_at"`
}

func (UserFeedback) TableName() string {
	return "user_feedback"
}
