package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/Gopher0727/ProfDash/internal/events"
	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/internal/repositories"
	"github.com/Gopher0727/ProfDash/internal/utils"
)

const (
	maxGroupNameLength      = 100
	maxSuggestedQuestions   = 10
	inviteCodeAttempts      = 5
	maxSuggestedQuestionLen = 200
)

// GroupService 群组服务
type GroupService struct {
	groupAccess
	emitter *events.Emitter
}

// NewGroupService 创建群组服务实例
func NewGroupService(groups *repositories.GroupRepository, emitter *events.Emitter) *GroupService {
	return &GroupService{groupAccess: groupAccess{groups: groups}, emitter: emitter}
}

// CreateGroupRequest 创建群组请求
type CreateGroupRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description" binding:"max=1000"`
}

// UpdateGroupRequest 修改名称和描述, nil 表示不修改
type UpdateGroupRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=100"`
	Description *string `json:"description" binding:"omitempty,max=1000"`
}

// ChatSettingsRequest 聊天界面定制
type ChatSettingsRequest struct {
	ChatTitle          *string  `json:"chat_title" binding:"omitempty,max=100"`
	WelcomeMessage     *string  `json:"welcome_message" binding:"omitempty,max=2000"`
	ThemeColor         *string  `json:"theme_color"`
	SuggestedQuestions []string `json:"suggested_questions"`
}

// Create 创建群组, 创建者成为管理员
func (s *GroupService) Create(ctx context.Context, actor Actor, req *CreateGroupRequest) (*models.Group, error) {
	if !actor.CanOwnGroups() {
		return nil, ErrForbidden
	}
	name := strings.TrimSpace(req.Name)
	if !utils.LengthBetween(name, 1, maxGroupNameLength) {
		return nil, fmt.Errorf("%w: group name must be 1-%d characters", ErrInvalidInput, maxGroupNameLength)
	}

	group := &models.Group{
		Name:            name,
		Description:     strings.TrimSpace(req.Description),
		AdministratorID: actor.UserID,
		Status:          models.GroupStatusActive,
		ChatTitle:       name,
	}

	// 邀请码碰撞时重新生成
	var err error
	for range inviteCodeAttempts {
		group.ID = 0
		group.InviteCode = utils.GenerateInviteCode()
		if err = s.groups.CreateWithAdmin(ctx, group); !errors.Is(err, repositories.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}

	s.emitter.Emit(ctx, events.KindGroupUpdated, group.ID, actor.UserID, map[string]any{"action": "created", "name": group.Name})
	return group, nil
}

// Get 获取群组详情
func (s *GroupService) Get(ctx context.Context, actor Actor, groupID uint) (*models.Group, error) {
	return s.view(ctx, actor, groupID)
}

// ListMine 用户管理或加入的群组, 超级管理员看到全部
func (s *GroupService) ListMine(ctx context.Context, actor Actor, limit, offset int) ([]models.Group, int64, error) {
	if actor.IsSuperAdmin() {
		return s.groups.ListAll(ctx, limit, offset)
	}
	return s.groups.ListForUser(ctx, actor.UserID, limit, offset)
}

// VisibleGroupIDs 看板 WebSocket 订阅的群组
func (s *GroupService) VisibleGroupIDs(ctx context.Context, userID uint, role string) ([]uint, error) {
	if role == models.RoleSuperAdmin {
		return s.groups.AllIDs(ctx)
	}
	return s.groups.IDsForUser(ctx, userID)
}

// Update 修改名称/描述
func (s *GroupService) Update(ctx context.Context, actor Actor, groupID uint, req *UpdateGroupRequest) (*models.Group, error) {
	fields := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if !utils.LengthBetween(name, 1, maxGroupNameLength) {
			return nil, fmt.Errorf("%w: group name must be 1-%d characters", ErrInvalidInput, maxGroupNameLength)
		}
		fields["name"] = name
	}
	if req.Description != nil {
		fields["description"] = strings.TrimSpace(*req.Description)
	}
	return s.update(ctx, actor, groupID, fields, "details")
}

// UpdateChatSettings 修改聊天界面定制
func (s *GroupService) UpdateChatSettings(ctx context.Context, actor Actor, groupID uint, req *ChatSettingsRequest) (*models.Group, error) {
	fields := map[string]any{}
	if req.ChatTitle != nil {
		fields["chat_title"] = strings.TrimSpace(*req.ChatTitle)
	}
	if req.WelcomeMessage != nil {
		fields["welcome_message"] = *req.WelcomeMessage
	}
	if req.ThemeColor != nil {
		color := strings.TrimSpace(*req.ThemeColor)
		if color != "" && !utils.ValidateThemeColor(color) {
			return nil, fmt.Errorf("%w: theme color must look like #rrggbb", ErrInvalidInput)
		}
		fields["theme_color"] = strings.ToLower(color)
	}
	if req.SuggestedQuestions != nil {
		questions, err := cleanQuestions(req.SuggestedQuestions)
		if err != nil {
			return nil, err
		}
		fields["suggested_questions"] = datatypes.NewJSONSlice(questions)
	}
	return s.update(ctx, actor, groupID, fields, "chat_settings")
}

func cleanQuestions(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, q := range in {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if !utils.LengthBetween(q, 1, maxSuggestedQuestionLen) {
			return nil, fmt.Errorf("%w: suggested question longer than %d characters", ErrInvalidInput, maxSuggestedQuestionLen)
		}
		out = append(out, q)
	}
	if len(out) > maxSuggestedQuestions {
		return nil, fmt.Errorf("%w: at most %d suggested questions", ErrInvalidInput, maxSuggestedQuestions)
	}
	return out, nil
}

// SetAvatar 设置群头像 URL
func (s *GroupService) SetAvatar(ctx context.Context, actor Actor, groupID uint, url string) (*models.Group, error) {
	return s.update(ctx, actor, groupID, map[string]any{"avatar_url": strings.TrimSpace(url)}, "avatar")
}

// SetVectorStore 记录关联的向量库 ID
func (s *GroupService) SetVectorStore(ctx context.Context, actor Actor, groupID uint, vectorStoreID string) (*models.Group, error) {
	return s.update(ctx, actor, groupID, map[string]any{"vector_store_id": strings.TrimSpace(vectorStoreID)}, "vector_store")
}

// Archive 归档群组, 归档后不能再加入或修改提示词
func (s *GroupService) Archive(ctx context.Context, actor Actor, groupID uint) (*models.Group, error) {
	return s.update(ctx, actor, groupID, map[string]any{"status": models.GroupStatusArchived}, "archived")
}

func (s *GroupService) update(ctx context.Context, actor Actor, groupID uint, fields map[string]any, action string) (*models.Group, error) {
	group, err := s.manage(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return group, nil
	}
	if err := s.groups.UpdateFields(ctx, groupID, fields); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("update group: %w", err)
	}

	s.emitter.Emit(ctx, events.KindGroupUpdated, groupID, actor.UserID, map[string]any{"action": action})
	return s.load(ctx, groupID)
}

// Join 通过邀请码加入群组
func (s *GroupService) Join(ctx context.Context, actor Actor, inviteCode string) (*models.Group, error) {
	group, err := s.groups.GetByInviteCode(ctx, strings.ToUpper(strings.TrimSpace(inviteCode)))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInviteCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup invite code: %w", err)
	}
	if group.IsArchived() {
		return nil, ErrGroupArchived
	}

	err = s.groups.AddMember(ctx, &models.GroupMember{
		GroupID: group.ID,
		UserID:  actor.UserID,
		Role:    models.MemberRoleMember,
	})
	if errors.Is(err, repositories.ErrDuplicate) {
		return nil, ErrAlreadyMember
	}
	if err != nil {
		return nil, fmt.Errorf("join group: %w", err)
	}

	s.emitter.Emit(ctx, events.KindMemberJoined, group.ID, actor.UserID, map[string]any{"user_id": actor.UserID})
	return s.load(ctx, group.ID)
}

// Leave 退出群组, 管理员不能退出
func (s *GroupService) Leave(ctx context.Context, actor Actor, groupID uint) error {
	group, err := s.load(ctx, groupID)
	if err != nil {
		return err
	}
	if group.AdministratorID == actor.UserID {
		return ErrAdministratorCannotLeave
	}
	return s.removeMember(ctx, groupID, actor.UserID, actor.UserID)
}

// RemoveMember 管理员移除成员
func (s *GroupService) RemoveMember(ctx context.Context, actor Actor, groupID, userID uint) error {
	group, err := s.manage(ctx, actor, groupID)
	if err != nil {
		return err
	}
	if group.AdministratorID == userID {
		return ErrAdministratorCannotLeave
	}
	return s.removeMember(ctx, groupID, userID, actor.UserID)
}

func (s *GroupService) removeMember(ctx context.Context, groupID, userID, actorID uint) error {
	err := s.groups.RemoveMember(ctx, groupID, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNotMember
	}
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	s.emitter.Emit(ctx, events.KindMemberLeft, groupID, actorID, map[string]any{"user_id": userID})
	return nil
}

// Members 成员列表
func (s *GroupService) Members(ctx context.Context, actor Actor, groupID uint, limit, offset int) ([]models.GroupMember, int64, error) {
	if _, err := s.view(ctx, actor, groupID); err != nil {
		return nil, 0, err
	}
	return s.groups.ListMembers(ctx, groupID, limit, offset)
}

// RegenerateInviteCode 重新生成邀请码, 旧码立即失效
func (s *GroupService) RegenerateInviteCode(ctx context.Context, actor Actor, groupID uint) (string, error) {
	if _, err := s.manage(ctx, actor, groupID); err != nil {
		return "", err
	}

	var err error
	for range inviteCodeAttempts {
		code := utils.GenerateInviteCode()
		err = s.groups.UpdateFields(ctx, groupID, map[string]any{"invite_code": code})
		if err == nil {
			s.emitter.Emit(ctx, events.KindGroupUpdated, groupID, actor.UserID, map[string]any{"action": "invite_code"})
			return code, nil
		}
		if !errors.Is(err, repositories.ErrDuplicate) {
			break
		}
	}
	return "", fmt.Errorf("regenerate invite code: %w", err)
}
