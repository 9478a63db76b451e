package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/internal/repositories"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID uint
	Role   string
}

func (a Actor) IsSuperAdmin() bool {
	return a.Role == models.RoleSuperAdmin
}

func (a Actor) CanOwnGroups() bool {
	return a.Role == models.RoleProfessor || a.Role == models.RoleSuperAdmin
}

// groupAccess resolves a group and checks what the actor may do with it.
type groupAccess struct {
	groups *repositories.GroupRepository
}

func (g groupAccess) load(ctx context.Context, groupID uint) (*models.Group, error) {
	group, err := g.groups.GetByID(ctx, groupID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load group %d: %w", groupID, err)
	}
	return group, nil
}

// manage allows the administrator and superadmins.
func (g groupAccess) manage(ctx context.Context, actor Actor, groupID uint) (*models.Group, error) {
	group, err := g.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if actor.IsSuperAdmin() || group.AdministratorID == actor.UserID {
		return group, nil
	}
	return nil, ErrForbidden
}

// view additionally allows members.
func (g groupAccess) view(ctx context.Context, actor Actor, groupID uint) (*models.Group, error) {
	group, err := g.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if actor.IsSuperAdmin() || group.AdministratorID == actor.UserID {
		return group, nil
	}
	_, err = g.groups.GetMember(ctx, groupID, actor.UserID)
	switch {
	case err == nil:
		return group, nil
	case errors.Is(err, repositories.ErrNotFound):
		return nil, ErrForbidden
	default:
		return nil, fmt.Errorf("check membership: %w", err)
	}
}
