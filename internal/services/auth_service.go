package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/internal/repositories"
	"github.com/Gopher0727/ProfDash/internal/utils"
	"github.com/Gopher0727/ProfDash/middleware/jwt"
)

// AuthService 认证服务
type AuthService struct {
	users  *repositories.UserRepository
	tokens *jwt.TokenManager
}

// NewAuthService 创建认证服务实例
func NewAuthService(users *repositories.UserRepository, tokens *jwt.TokenManager) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// CreateUserRequest 创建账号请求 (超级管理员或 dashctl)
type CreateUserRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"max=100"`
	Role        string `json:"role" binding:"required,oneof=student professor superadmin"`
}

// UpdateProfileRequest 修改个人资料
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name" binding:"omitempty,max=100"`
	AvatarURL   *string `json:"avatar_url" binding:"omitempty,url"`
}

// ChangePasswordRequest 修改密码
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expires_in"` // seconds
	User      *models.User `json:"user,omitempty"`
}

// CreateUser 创建账号
func (s *AuthService) CreateUser(ctx context.Context, req *CreateUserRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !utils.ValidateEmail(email) {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if !utils.ValidatePassword(req.Password) {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, utils.MinPasswordLength)
	}
	switch req.Role {
	case models.RoleStudent, models.RoleProfessor, models.RoleSuperAdmin:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, ErrEmailTaken
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = email[:strings.IndexByte(email, '@')]
	}
	user := &models.User{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         req.Role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// 并发注册同一邮箱时由唯一索引兜底
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login 登录
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &AuthResponse{
		Token:     token,
		ExpiresIn: int64(s.tokens.ExpiresIn().Seconds()),
		User:      user,
	}, nil
}

// Refresh 在刷新窗口内换发新 token
func (s *AuthService) Refresh(ctx context.Context, token string) (*AuthResponse, error) {
	fresh, err := s.tokens.RefreshToken(token)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		Token:     fresh,
		ExpiresIn: int64(s.tokens.ExpiresIn().Seconds()),
	}, nil
}

// Me 当前用户
func (s *AuthService) Me(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// UpdateProfile 修改显示名和头像
func (s *AuthService) UpdateProfile(ctx context.Context, userID uint, req *UpdateProfileRequest) (*models.User, error) {
	fields := map[string]any{}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if !utils.LengthBetween(name, 1, 100) {
			return nil, fmt.Errorf("%w: display name must be 1-100 characters", ErrInvalidInput)
		}
		fields["display_name"] = name
	}
	if req.AvatarURL != nil {
		fields["avatar_url"] = strings.TrimSpace(*req.AvatarURL)
	}
	if len(fields) > 0 {
		err := s.users.UpdateFields(ctx, userID, fields)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
	}
	return s.Me(ctx, userID)
}

// ChangePassword 修改密码, 需要校验旧密码
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, req *ChangePasswordRequest) error {
	me, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	// 缓存里的用户不带密码哈希, 需要按邮箱回源
	user, err := s.users.GetByEmail(ctx, me.Email)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !utils.CheckPassword(user.PasswordHash, req.OldPassword) {
		return ErrInvalidCredentials
	}
	if !utils.ValidatePassword(req.NewPassword) {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, utils.MinPasswordLength)
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.UpdateFields(ctx, userID, map[string]any{"password_hash": hash})
}
