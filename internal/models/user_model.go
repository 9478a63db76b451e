package models

import "time"

const (
	RoleStudent    = "student"
	RoleProfessor  = "professor"
	RoleSuperAdmin = "superadmin"
)

// User 用户模型
type User struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	DisplayName  string `json:"display_name"`
	PasswordHash string `gorm:"not null" json:"-"`
	Role         string `gorm:"default:student;index" json:"role"` // student, professor, superadmin
	AvatarURL    string `json:"avatar_url"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsSuperAdmin() bool {
	return u.Role == RoleSuperAdmin
}
