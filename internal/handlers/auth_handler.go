package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/internal/services"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
)

// AuthAPI is the part of the auth service the handlers use.
type AuthAPI interface {
	Login(ctx context.Context, req *services.LoginRequest) (*services.AuthResponse, error)
	Refresh(ctx context.Context, token string) (*services.AuthResponse, error)
	Me(ctx context.Context, userID uint) (*models.User, error)
	UpdateProfile(ctx context.Context, userID uint, req *services.UpdateProfileRequest) (*models.User, error)
	ChangePassword(ctx context.Context, userID uint, req *services.ChangePasswordRequest) error
	CreateUser(ctx context.Context, req *services.CreateUserRequest) (*models.User, error)
}

// AuthHandler 认证处理器
type AuthHandler struct {
	auth AuthAPI
	log  *logger.Logger
}

// NewAuthHandler 创建认证处理器实例
func NewAuthHandler(auth AuthAPI, log *logger.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, log: log}
}

// Login 用户登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.auth.Login(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, resp)
}

// Refresh 换发 token, 旧 token 取自 Authorization 头
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || token == "" {
		fail(c, http.StatusUnauthorized, "missing token")
		return
	}

	resp, err := h.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, resp)
}

// Me 当前用户
func (h *AuthHandler) Me(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	user, err := h.auth.Me(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, user)
}

// UpdateMe 修改个人资料
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req services.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.auth.UpdateProfile(c.Request.Context(), actor.UserID, &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, user)
}

// ChangePassword 修改密码
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req services.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.auth.ChangePassword(c.Request.Context(), actor.UserID, &req); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
