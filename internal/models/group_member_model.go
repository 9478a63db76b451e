package models

import "time"

const (
	MemberRoleAdmin  = "admin"
	MemberRoleMember = "member"
)

// GroupMember 群组成员模型
type GroupMember struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	GroupID  uint      `gorm:"not null;uniqueIndex:idx_group_user" json:"group_id"`
	UserID   uint      `gorm:"not null;uniqueIndex:idx_group_user;index" json:"user_id"`
	Role     string    `gorm:"default:member" json:"role"` // admin, member
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`

	Group *Group `gorm:"foreignKey:GroupID" json:"-"`
	User  *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (GroupMember) TableName() string {
	return "group_members"
}
