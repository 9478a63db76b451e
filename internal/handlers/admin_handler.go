package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/internal/services"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
)

// AdminAPI is the part of the admin service the handlers use.
type AdminAPI interface {
	DeleteGroup(ctx context.Context, actor services.Actor, groupID uint) error
	DeleteUser(ctx context.Context, actor services.Actor, userID uint, req *services.DeleteUserRequest) error
	ListUsers(ctx context.Context, actor services.Actor, limit, offset int) ([]models.User, int64, error)
	AuditLog(ctx context.Context, actor services.Actor, groupID uint, limit, offset int) ([]models.AuditEvent, int64, error)
}

// AdminHandler 超级管理员接口与审计日志
type AdminHandler struct {
	admin AdminAPI
	auth  AuthAPI
	log   *logger.Logger
}

// NewAdminHandler 创建管理处理器实例
func NewAdminHandler(admin AdminAPI, auth AuthAPI, log *logger.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, auth: auth, log: log}
}

// DeleteGroup 级联删除群组
func (h *AdminHandler) DeleteGroup(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	if err := h.admin.DeleteGroup(c.Request.Context(), actor, groupID); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteUser 删除用户, ?reassign_to= 转交其管理的群组
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	userID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req services.DeleteUserRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.admin.DeleteUser(c.Request.Context(), actor, userID, &req); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListUsers 用户列表
func (h *AdminHandler) ListUsers(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	limit, offset := pageQuery(c)
	users, total, err := h.admin.ListUsers(c.Request.Context(), actor, limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	page(c, users, total, limit, offset)
}

// CreateUser 创建账号, 路由层限定超级管理员
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req services.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.auth.CreateUser(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusCreated, user)
}

// Audit 群组审计日志
func (h *AdminHandler) Audit(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	limit, offset := pageQuery(c)
	events, total, err := h.admin.AuditLog(c.Request.Context(), actor, groupID, limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	page(c, events, total, limit, offset)
}
