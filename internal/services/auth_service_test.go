package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/middleware/jwt"
)

func TestAuthService(t *testing.T) {
	f := newFixture(t)
	tokens := jwt.NewTokenManager("test-secret", 24, 2)
	svc := NewAuthService(f.users, tokens)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, &CreateUserRequest{
		Email:    " Prof@Uni.edu ",
		Password: "s3cret-pass",
		Role:     models.RoleProfessor,
	})
	require.NoError(t, err)
	assert.Equal(t, "prof@uni.edu", user.Email)
	assert.Equal(t, "prof", user.DisplayName)
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)

	t.Run("create validation", func(t *testing.T) {
		_, err := svc.CreateUser(ctx, &CreateUserRequest{Email: "prof@uni.edu", Password: "another-pass", Role: models.RoleStudent})
		assert.ErrorIs(t, err, ErrEmailTaken)

		_, err = svc.CreateUser(ctx, &CreateUserRequest{Email: "x@uni.edu", Password: "short", Role: models.RoleStudent})
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = svc.CreateUser(ctx, &CreateUserRequest{Email: "x@uni.edu", Password: "long-enough", Role: "dean"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("login", func(t *testing.T) {
		resp, err := svc.Login(ctx, &LoginRequest{Email: "PROF@uni.edu", Password: "s3cret-pass"})
		require.NoError(t, err)
		assert.EqualValues(t, 24*3600, resp.ExpiresIn)

		claims, err := tokens.ParseToken(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.UserID)
		assert.Equal(t, models.RoleProfessor, claims.Role)

		_, err = svc.Login(ctx, &LoginRequest{Email: "prof@uni.edu", Password: "wrong"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		_, err = svc.Login(ctx, &LoginRequest{Email: "nobody@uni.edu", Password: "s3cret-pass"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		// a fresh token is outside the refresh window
		_, err = svc.Refresh(ctx, resp.Token)
		assert.ErrorIs(t, err, jwt.ErrRefreshTooEarly)
	})

	t.Run("profile", func(t *testing.T) {
		me, err := svc.UpdateProfile(ctx, user.ID, &UpdateProfileRequest{DisplayName: ptr("Dr. Prof")})
		require.NoError(t, err)
		assert.Equal(t, "Dr. Prof", me.DisplayName)

		_, err = svc.UpdateProfile(ctx, user.ID, &UpdateProfileRequest{DisplayName: ptr("  ")})
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = svc.Me(ctx, 999)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("change password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, user.ID, &ChangePasswordRequest{OldPassword: "wrong", NewPassword: "new-password"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		require.NoError(t, svc.ChangePassword(ctx, user.ID, &ChangePasswordRequest{OldPassword: "s3cret-pass", NewPassword: "new-password"}))
		_, err = svc.Login(ctx, &LoginRequest{Email: "prof@uni.edu", Password: "new-password"})
		assert.NoError(t, err)
	})
}
