package repositories

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/internal/storage/storagetest"
)

func seedUser(t *testing.T, db *gorm.DB, email, role string) *models.User {
	t.Helper()
	u := &models.User{Email: email, DisplayName: email, PasswordHash: "x", Role: role}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedGroup(t *testing.T, repo *GroupRepository, adminID uint, code string) *models.Group {
	t.Helper()
	g := &models.Group{Name: "CS101 " + code, AdministratorID: adminID, InviteCode: code, Status: models.GroupStatusActive}
	require.NoError(t, repo.CreateWithAdmin(context.Background(), g))
	return g
}

func TestGroupRepository_CreateWithAdmin(t *testing.T) {
	db := storagetest.NewDB(t)
	repo := NewGroupRepository(db)
	ctx := context.Background()
	prof := seedUser(t, db, "prof@uni.edu", models.RoleProfessor)

	g := seedGroup(t, repo, prof.ID, "AAAA1111")

	member, err := repo.GetMember(ctx, g.ID, prof.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MemberRoleAdmin, member.Role)

	got, err := repo.GetByInviteCode(ctx, "AAAA1111")
	require.NoError(t, err)
	assert.Equal(t, 1, got.MemberCount)

	dup := &models.Group{Name: "dup", AdministratorID: prof.ID, InviteCode: "AAAA1111"}
	assert.ErrorIs(t, repo.CreateWithAdmin(ctx, dup), ErrDuplicate)

	_, err = repo.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGroupRepository_Membership(t *testing.T) {
	db := storagetest.NewDB(t)
	repo := NewGroupRepository(db)
	ctx := context.Background()
	prof := seedUser(t, db, "prof@uni.edu", models.RoleProfessor)
	student := seedUser(t, db, "s@uni.edu", models.RoleStudent)
	g := seedGroup(t, repo, prof.ID, "BBBB2222")
	other := seedGroup(t, repo, prof.ID, "CCCC3333")

	require.NoError(t, repo.AddMember(ctx, &models.GroupMember{GroupID: g.ID, UserID: student.ID, Role: models.MemberRoleMember}))
	assert.ErrorIs(t, repo.AddMember(ctx, &models.GroupMember{GroupID: g.ID, UserID: student.ID}), ErrDuplicate)

	got, err := repo.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MemberCount)

	groups, total, err := repo.ListForUser(ctx, student.ID, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, groups, 1)
	assert.Equal(t, g.ID, groups[0].ID)

	ids, err := repo.IDsForUser(ctx, prof.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{g.ID, other.ID}, ids)

	members, total, err := repo.ListMembers(ctx, g.ID, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.NotNil(t, members[1].User)
	assert.Equal(t, "s@uni.edu", members[1].User.Email)

	require.NoError(t, repo.RemoveMember(ctx, g.ID, student.ID))
	assert.ErrorIs(t, repo.RemoveMember(ctx, g.ID, student.ID), ErrNotFound)
	got, err = repo.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MemberCount)
}

func TestGroupRepository_ReassignAdministrator(t *testing.T) {
	db := storagetest.NewDB(t)
	repo := NewGroupRepository(db)
	ctx := context.Background()
	from := seedUser(t, db, "old@uni.edu", models.RoleProfessor)
	to := seedUser(t, db, "new@uni.edu", models.RoleProfessor)
	g := seedGroup(t, repo, from.ID, "DDDD4444")

	require.NoError(t, repo.ReassignAdministrator(ctx, from.ID, to.ID))

	got, err := repo.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, to.ID, got.AdministratorID)
	assert.Equal(t, 2, got.MemberCount)

	member, err := repo.GetMember(ctx, g.ID, to.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MemberRoleAdmin, member.Role)

	n, err := repo.CountAdministeredBy(ctx, from.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGroupRepository_DeleteCascade(t *testing.T) {
	db := storagetest.NewDB(t)
	repo := NewGroupRepository(db)
	ctx := context.Background()
	prof := seedUser(t, db, "prof@uni.edu", models.RoleProfessor)
	g := seedGroup(t, repo, prof.ID, "EEEE5555")
	keep := seedGroup(t, repo, prof.ID, "FFFF6666")

	for _, groupID := range []uint{g.ID, keep.ID} {
		s := &models.Session{GroupID: groupID, UserID: prof.ID, Messages: []models.Message{
			{Role: models.MessageRoleUser, Content: "hi"},
			{Role: models.MessageRoleAssistant, Content: "hello"},
		}}
		require.NoError(t, db.Create(s).Error)
		require.NoError(t, db.Create(&models.Prompt{GroupID: groupID, Version: 1, Content: "p", AuthorID: prof.ID}).Error)
		require.NoError(t, db.Create(&models.AdminFeedback{GroupID: groupID, SessionID: s.ID, MessageID: s.Messages[1].ID, ReviewerID: prof.ID, Verdict: models.VerdictCorrect}).Error)
		require.NoError(t, db.Create(&models.AuditEvent{ID: int64(groupID), Kind: "group.updated", GroupID: groupID}).Error)
	}

	require.NoError(t, repo.DeleteCascade(ctx, g.ID))
	assert.ErrorIs(t, repo.DeleteCascade(ctx, g.ID), ErrNotFound)

	for _, model := range []any{&models.Session{}, &models.Prompt{}, &models.AdminFeedback{}, &models.GroupMember{}, &models.AuditEvent{}} {
		var n int64
		require.NoError(t, db.Model(model).Where("group_id = ?", g.ID).Count(&n).Error)
		assert.Zero(t, n, "%T rows left behind", model)

		require.NoError(t, db.Model(model).Where("group_id = ?", keep.ID).Count(&n).Error)
		assert.NotZero(t, n, "%T rows of other group removed", model)
	}

	var messages int64
	require.NoError(t, db.Model(&models.Message{}).Count(&messages).Error)
	assert.EqualValues(t, 2, messages)
}

func TestPromptRepository_Versions(t *testing.T) {
	db := storagetest.NewDB(t)
	repo := NewPromptRepository(db)
	ctx := context.Background()

	_, err := repo.Latest(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	for i := 1; i <= 3; i++ {
		p := &models.Prompt{GroupID: 1, Content: fmt.Sprintf("v%d", i), AuthorID: 7}
		require.NoError(t, repo.CreateNextVersion(ctx, p))
		assert.Equal(t, i, p.Version)
	}
	other := &models.Prompt{GroupID: 2, Content: "other", AuthorID: 7}
	require.NoError(t, repo.CreateNextVersion(ctx, other))
	assert.Equal(t, 1, other.Version)

	latest, err := repo.Latest(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "v3", latest.Content)

	v2, err := repo.GetVersion(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "v2", v2.Content)

	history, total, err := repo.List(ctx, 1, 2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, history, 2)
	assert.Equal(t, 3, history[0].Version)
	assert.Equal(t, 2, history[1].Version)
}

func TestPromptRepository_LocksGroupRow(t *testing.T) {
	db, err := gorm.Open(postgres.Open("host=127.0.0.1 user=profdash dbname=profdash sslmode=disable"), &gorm.Config{
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	query := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return lockGroup(tx, 4).Take(&models.Group{})
	})
	assert.Contains(t, query, `FROM "groups"`)
	assert.Contains(t, query, "id = 4")
	assert.Contains(t, query, "FOR UPDATE")
}

func TestSessionRepository(t *testing.T) {
	db := storagetest.NewDB(t)
	repo := NewSessionRepository(db)
	feedback := NewFeedbackRepository(db)
	ctx := context.Background()

	s := &models.Session{GroupID: 1, UserID: 2, Title: "week 1", Messages: []models.Message{
		{Role: models.MessageRoleUser, Content: "what is a monad"},
		{Role: models.MessageRoleAssistant, Content: "a monoid in the category of endofunctors"},
	}}
	require.NoError(t, repo.CreateWithMessages(ctx, s))
	require.Len(t, s.ID, 36)

	got, err := repo.GetWithMessages(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, models.MessageRoleUser, got.Messages[0].Role)

	msg, err := repo.GetMessage(ctx, s.ID, got.Messages[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageRoleAssistant, msg.Role)
	_, err = repo.GetMessage(ctx, "other", got.Messages[1].ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, feedback.CreateUser(ctx, &models.UserFeedback{GroupID: 1, SessionID: s.ID, MessageID: msg.ID, UserID: 2, Verdict: models.VerdictLike}))

	list, total, err := repo.List(ctx, 1, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, s.ID))
	assert.ErrorIs(t, repo.Delete(ctx, s.ID), ErrNotFound)

	var left int64
	require.NoError(t, db.Model(&models.UserFeedback{}).Count(&left).Error)
	assert.Zero(t, left)
}

func TestFeedbackRepository_ListAdminFilters(t *testing.T) {
	db := storagetest.NewDB(t)
	repo := NewFeedbackRepository(db)
	ctx := context.Background()

	rows := []models.AdminFeedback{
		{GroupID: 1, SessionID: "s1", MessageID: 1, ReviewerID: 9, Verdict: models.VerdictCorrect, Apply: true},
		{GroupID: 1, SessionID: "s1", MessageID: 2, ReviewerID: 9, Verdict: models.VerdictIncorrect},
		{GroupID: 1, SessionID: "s2", MessageID: 3, ReviewerID: 9, Verdict: models.VerdictIncorrect, Apply: true},
		{GroupID: 2, SessionID: "s3", MessageID: 4, ReviewerID: 9, Verdict: models.VerdictIncorrect},
	}
	for i := range rows {
		require.NoError(t, repo.CreateAdmin(ctx, &rows[i]))
	}

	applied := true
	tests := []struct {
		name   string
		filter AdminFeedbackFilter
		want   int64
	}{
		{"group only", AdminFeedbackFilter{GroupID: 1}, 3},
		{"verdict", AdminFeedbackFilter{GroupID: 1, Verdict: models.VerdictIncorrect}, 2},
		{"applied", AdminFeedbackFilter{GroupID: 1, Applied: &applied}, 2},
		{"session", AdminFeedbackFilter{GroupID: 1, SessionID: "s1"}, 2},
		{"combined", AdminFeedbackFilter{GroupID: 1, Verdict: models.VerdictIncorrect, Applied: &applied}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, total, err := repo.ListAdmin(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, total)
			assert.Len(t, items, int(tt.want))
		})
	}

	require.NoError(t, repo.DeleteAdmin(ctx, rows[0].ID))
	assert.ErrorIs(t, repo.DeleteAdmin(ctx, rows[0].ID), ErrNotFound)
}

func TestAuditRepository_IdempotentCreate(t *testing.T) {
	db := storagetest.NewDB(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()

	e := &models.AuditEvent{ID: 42, Kind: "prompt.updated", GroupID: 1, ActorID: 3}
	require.NoError(t, repo.Create(ctx, e))
	require.NoError(t, repo.Create(ctx, &models.AuditEvent{ID: 42, Kind: "prompt.updated", GroupID: 1, ActorID: 3}))
	require.NoError(t, repo.Create(ctx, &models.AuditEvent{ID: 43, Kind: "group.updated", GroupID: 1, ActorID: 3}))

	events, total, err := repo.ListByGroup(ctx, 1, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.EqualValues(t, 43, events[0].ID)
}

func TestStatsRepository_Usage(t *testing.T) {
	db := storagetest.NewDB(t)
	repo := NewStatsRepository(db)
	ctx := context.Background()

	day1 := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	sessions := []models.Session{
		{GroupID: 1, UserID: 1, CreatedAt: day1, Messages: []models.Message{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}}},
		{GroupID: 1, UserID: 2, CreatedAt: day1.Add(time.Hour), Messages: []models.Message{{Role: "user", Content: "c"}}},
		{GroupID: 1, UserID: 1, CreatedAt: day2},
		{GroupID: 1, UserID: 3, CreatedAt: day1.Add(-30 * 24 * time.Hour)},
		{GroupID: 2, UserID: 1, CreatedAt: day2},
	}
	for i := range sessions {
		require.NoError(t, db.Create(&sessions[i]).Error)
	}
	require.NoError(t, db.Create(&models.AdminFeedback{GroupID: 1, SessionID: sessions[0].ID, MessageID: 2, ReviewerID: 1, Verdict: models.VerdictCorrect, CreatedAt: day2}).Error)
	require.NoError(t, db.Create(&models.UserFeedback{GroupID: 1, SessionID: sessions[0].ID, MessageID: 2, UserID: 1, Verdict: models.VerdictLike, CreatedAt: day2}).Error)
	require.NoError(t, db.Create(&models.UserFeedback{GroupID: 1, SessionID: sessions[0].ID, MessageID: 2, UserID: 2, Verdict: models.VerdictDislike, CreatedAt: day2}).Error)

	stats, err := repo.Usage(ctx, 1, day1.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Sessions)
	assert.EqualValues(t, 3, stats.Messages)
	assert.EqualValues(t, 2, stats.ActiveUsers)
	assert.EqualValues(t, 1, stats.AdminVerdicts[models.VerdictCorrect])
	assert.EqualValues(t, 1, stats.UserLikes)
	assert.EqualValues(t, 1, stats.UserDislikes)
	assert.Equal(t, map[string]int64{"2025-03-03": 2, "2025-03-04": 1}, stats.SessionsPerDay)
}

func TestUserRepository_CacheAndDelete(t *testing.T) {
	db := storagetest.NewDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	repo := NewUserRepository(db, rdb)
	groups := NewGroupRepository(db)
	ctx := context.Background()

	prof := seedUser(t, db, "prof@uni.edu", models.RoleProfessor)
	student := seedUser(t, db, "s@uni.edu", models.RoleStudent)
	g := seedGroup(t, groups, prof.ID, "GGGG7777")
	require.NoError(t, groups.AddMember(ctx, &models.GroupMember{GroupID: g.ID, UserID: student.ID}))

	got, err := repo.GetByID(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, "s@uni.edu", got.Email)
	assert.True(t, mr.Exists(userCacheKey(student.ID)))

	require.NoError(t, repo.UpdateFields(ctx, student.ID, map[string]any{"display_name": "Sam"}))
	assert.False(t, mr.Exists(userCacheKey(student.ID)))

	byIDs, err := repo.GetByIDs(ctx, []uint{prof.ID, student.ID})
	require.NoError(t, err)
	assert.Equal(t, "Sam", byIDs[student.ID].DisplayName)

	require.NoError(t, repo.Delete(ctx, student.ID))
	_, err = repo.GetByID(ctx, student.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, student.ID), ErrNotFound)

	updated, err := groups.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.MemberCount)

	users, total, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, prof.ID, users[0].ID)
}

func TestUserRepository_DeleteAndReassignIsAtomic(t *testing.T) {
	db := storagetest.NewDB(t)
	repo := NewUserRepository(db, nil)
	groups := NewGroupRepository(db)
	ctx := context.Background()

	from := seedUser(t, db, "old@uni.edu", models.RoleProfessor)
	to := seedUser(t, db, "new@uni.edu", models.RoleProfessor)
	g := seedGroup(t, groups, from.ID, "HHHH8888")

	// fail the user row delete after the reassignment has run
	const failUserDelete = "test:fail_user_delete"
	require.NoError(t, db.Callback().Delete().Before("gorm:delete").Register(failUserDelete, func(tx *gorm.DB) {
		if tx.Statement.Table == "users" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	require.Error(t, repo.DeleteAndReassign(ctx, from.ID, to.ID))

	got, err := groups.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, from.ID, got.AdministratorID)
	assert.Equal(t, 1, got.MemberCount)
	_, err = groups.GetMember(ctx, g.ID, to.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetByID(ctx, from.ID)
	require.NoError(t, err)

	require.NoError(t, db.Callback().Delete().Remove(failUserDelete))
	require.NoError(t, repo.DeleteAndReassign(ctx, from.ID, to.ID))

	got, err = groups.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, to.ID, got.AdministratorID)
	assert.Equal(t, 1, got.MemberCount)
	_, err = repo.GetByID(ctx, from.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
