package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Gopher0727/ProfDash/internal/events"
	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/internal/repositories"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
)

// AdminService 超级管理员操作和审计日志查询
type AdminService struct {
	groupAccess
	users   *repositories.UserRepository
	audit   *repositories.AuditRepository
	emitter *events.Emitter
	log     *logger.Logger
}

func NewAdminService(
	groups *repositories.GroupRepository,
	users *repositories.UserRepository,
	audit *repositories.AuditRepository,
	emitter *events.Emitter,
	log *logger.Logger,
) *AdminService {
	return &AdminService{
		groupAccess: groupAccess{groups: groups},
		users:       users,
		audit:       audit,
		emitter:     emitter,
		log:         log,
	}
}

// DeleteUserRequest ReassignTo 为空时, 仍在管理群组的用户不能删除
type DeleteUserRequest struct {
	ReassignTo *uint `json:"reassign_to" form:"reassign_to"`
}

// DeleteGroup 在一个事务里删除群组及其全部数据
func (s *AdminService) DeleteGroup(ctx context.Context, actor Actor, groupID uint) error {
	if !actor.IsSuperAdmin() {
		return ErrForbidden
	}
	group, err := s.load(ctx, groupID)
	if err != nil {
		return err
	}
	if err := s.groups.DeleteCascade(ctx, groupID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrGroupNotFound
		}
		return fmt.Errorf("delete group: %w", err)
	}

	s.log.InfoContext(ctx, "group deleted", zap.Uint("group_id", groupID), zap.Uint("actor_id", actor.UserID))
	s.emitter.Emit(ctx, events.KindGroupDeleted, groupID, actor.UserID, map[string]any{"name": group.Name})
	return nil
}

// DeleteUser 删除用户, 必要时先把其管理的群组转交给他人
func (s *AdminService) DeleteUser(ctx context.Context, actor Actor, userID uint, req *DeleteUserRequest) error {
	if !actor.IsSuperAdmin() {
		return ErrForbidden
	}
	if userID == actor.UserID {
		return ErrCannotDeleteSelf
	}
	if _, err := s.user(ctx, userID); err != nil {
		return err
	}

	administered, err := s.groups.CountAdministeredBy(ctx, userID)
	if err != nil {
		return fmt.Errorf("count administered groups: %w", err)
	}
	if administered == 0 {
		if err := s.users.Delete(ctx, userID); err != nil {
			return deleteUserErr(err)
		}
		s.log.InfoContext(ctx, "user deleted", zap.Uint("user_id", userID), zap.Uint("actor_id", actor.UserID))
		return nil
	}

	if req == nil || req.ReassignTo == nil {
		return ErrUserAdministersGroups
	}
	target, err := s.user(ctx, *req.ReassignTo)
	if err != nil {
		return err
	}
	if target.ID == userID || (target.Role != models.RoleProfessor && target.Role != models.RoleSuperAdmin) {
		return ErrInvalidReassignTarget
	}
	// 转交和删除同一个事务, 删除失败时群组不会被转走
	if err := s.users.DeleteAndReassign(ctx, userID, target.ID); err != nil {
		return deleteUserErr(err)
	}
	s.log.InfoContext(ctx, "user deleted",
		zap.Uint("user_id", userID),
		zap.Uint("actor_id", actor.UserID),
		zap.Uint("groups_reassigned_to", target.ID),
		zap.Int64("groups", administered),
	)
	return nil
}

func deleteUserErr(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrUserNotFound
	}
	return fmt.Errorf("delete user: %w", err)
}

func (s *AdminService) user(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// ListUsers 用户列表
func (s *AdminService) ListUsers(ctx context.Context, actor Actor, limit, offset int) ([]models.User, int64, error) {
	if !actor.IsSuperAdmin() {
		return nil, 0, ErrForbidden
	}
	return s.users.List(ctx, limit, offset)
}

// AuditLog 群组的审计事件, 最新的在前
func (s *AdminService) AuditLog(ctx context.Context, actor Actor, groupID uint, limit, offset int) ([]models.AuditEvent, int64, error) {
	if _, err := s.manage(ctx, actor, groupID); err != nil {
		return nil, 0, err
	}
	return s.audit.ListByGroup(ctx, groupID, limit, offset)
}
