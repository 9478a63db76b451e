package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/ProfDash/internal/events"
	"github.com/Gopher0727/ProfDash/internal/models"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
)

func (f *fixture) adminService() *AdminService {
	return NewAdminService(f.groups, f.users, f.audit, f.emitter, logger.NewNop())
}

func TestAdminService_DeleteGroup(t *testing.T) {
	f := newFixture(t)
	svc := f.adminService()
	ctx := context.Background()
	prof := f.actor(t, "prof@uni.edu", models.RoleProfessor)
	root := f.actor(t, "root@uni.edu", models.RoleSuperAdmin)
	student := f.actor(t, "s@uni.edu", models.RoleStudent)
	g := f.newGroup(t, prof, "CS101")
	f.join(t, student, g)
	f.newSession(t, student, g.ID)

	assert.ErrorIs(t, svc.DeleteGroup(ctx, prof, g.ID), ErrForbidden)
	assert.ErrorIs(t, svc.DeleteGroup(ctx, root, 999), ErrGroupNotFound)

	require.NoError(t, svc.DeleteGroup(ctx, root, g.ID))
	_, err := f.groups.GetByID(ctx, g.ID)
	assert.Error(t, err)

	var sessions int64
	require.NoError(t, f.db.Model(&models.Session{}).Count(&sessions).Error)
	assert.Zero(t, sessions)

	kinds := f.events.kinds()
	assert.Equal(t, events.KindGroupDeleted, kinds[len(kinds)-1])
}

func TestAdminService_DeleteUser(t *testing.T) {
	f := newFixture(t)
	svc := f.adminService()
	ctx := context.Background()
	root := f.actor(t, "root@uni.edu", models.RoleSuperAdmin)
	leaving := f.actor(t, "old@uni.edu", models.RoleProfessor)
	successor := f.actor(t, "new@uni.edu", models.RoleProfessor)
	student := f.actor(t, "s@uni.edu", models.RoleStudent)
	g := f.newGroup(t, leaving, "CS101")
	f.join(t, student, g)

	assert.ErrorIs(t, svc.DeleteUser(ctx, leaving, student.UserID, nil), ErrForbidden)
	assert.ErrorIs(t, svc.DeleteUser(ctx, root, root.UserID, nil), ErrCannotDeleteSelf)
	assert.ErrorIs(t, svc.DeleteUser(ctx, root, 999, nil), ErrUserNotFound)

	assert.ErrorIs(t, svc.DeleteUser(ctx, root, leaving.UserID, nil), ErrUserAdministersGroups)
	assert.ErrorIs(t, svc.DeleteUser(ctx, root, leaving.UserID, &DeleteUserRequest{ReassignTo: &student.UserID}), ErrInvalidReassignTarget)

	require.NoError(t, svc.DeleteUser(ctx, root, leaving.UserID, &DeleteUserRequest{ReassignTo: &successor.UserID}))

	got, err := f.groups.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, successor.UserID, got.AdministratorID)
	member, err := f.groups.GetMember(ctx, g.ID, successor.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.MemberRoleAdmin, member.Role)
	// old admin gone, successor added, student stays
	assert.Equal(t, 2, got.MemberCount)

	// plain students go without reassignment
	require.NoError(t, svc.DeleteUser(ctx, root, student.UserID, nil))

	users, total, err := svc.ListUsers(ctx, root, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, users, 2)

	_, _, err = svc.ListUsers(ctx, successor, 10, 0)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAdminService_AuditLog(t *testing.T) {
	f := newFixture(t)
	svc := f.adminService()
	ctx := context.Background()
	prof := f.actor(t, "prof@uni.edu", models.RoleProfessor)
	student := f.actor(t, "s@uni.edu", models.RoleStudent)
	g := f.newGroup(t, prof, "CS101")
	f.join(t, student, g)

	require.NoError(t, f.audit.Create(ctx, &models.AuditEvent{ID: 1, Kind: string(events.KindGroupUpdated), GroupID: g.ID, ActorID: prof.UserID}))
	require.NoError(t, f.audit.Create(ctx, &models.AuditEvent{ID: 2, Kind: string(events.KindMemberJoined), GroupID: g.ID, ActorID: student.UserID}))

	items, total, err := svc.AuditLog(ctx, prof, g.ID, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, int64(2), items[0].ID)

	_, _, err = svc.AuditLog(ctx, student, g.ID, 10, 0)
	assert.ErrorIs(t, err, ErrForbidden)
}
