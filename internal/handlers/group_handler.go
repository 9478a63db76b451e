package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/internal/services"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
)

// GroupAPI is the part of the group service the handlers use.
type GroupAPI interface {
	Create(ctx context.Context, actor services.Actor, req *services.CreateGroupRequest) (*models.Group, error)
	Get(ctx context.Context, actor services.Actor, groupID uint) (*models.Group, error)
	ListMine(ctx context.Context, actor services.Actor, limit, offset int) ([]models.Group, int64, error)
	Update(ctx context.Context, actor services.Actor, groupID uint, req *services.UpdateGroupRequest) (*models.Group, error)
	UpdateChatSettings(ctx context.Context, actor services.Actor, groupID uint, req *services.ChatSettingsRequest) (*models.Group, error)
	SetAvatar(ctx context.Context, actor services.Actor, groupID uint, url string) (*models.Group, error)
	SetVectorStore(ctx context.Context, actor services.Actor, groupID uint, vectorStoreID string) (*models.Group, error)
	Archive(ctx context.Context, actor services.Actor, groupID uint) (*models.Group, error)
	Join(ctx context.Context, actor services.Actor, inviteCode string) (*models.Group, error)
	Leave(ctx context.Context, actor services.Actor, groupID uint) error
	Members(ctx context.Context, actor services.Actor, groupID uint, limit, offset int) ([]models.GroupMember, int64, error)
	RemoveMember(ctx context.Context, actor services.Actor, groupID, userID uint) error
	RegenerateInviteCode(ctx context.Context, actor services.Actor, groupID uint) (string, error)
}

// GroupHandler 群组处理器
type GroupHandler struct {
	groups GroupAPI
	log    *logger.Logger
}

// NewGroupHandler 创建群组处理器实例
func NewGroupHandler(groups GroupAPI, log *logger.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, log: log}
}

// groupRequest 解析当前用户和路径中的群组 ID
func groupRequest(c *gin.Context) (services.Actor, uint, bool) {
	actor, ok := requireActor(c)
	if !ok {
		return actor, 0, false
	}
	groupID, ok := uintParam(c, "id")
	return actor, groupID, ok
}

func (h *GroupHandler) respondGroup(c *gin.Context, status int, group *models.Group, err error) {
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, status, group)
}

// Create 创建群组
func (h *GroupHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req services.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	group, err := h.groups.Create(c.Request.Context(), actor, &req)
	h.respondGroup(c, http.StatusCreated, group, err)
}

// List 我的群组
func (h *GroupHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	limit, offset := pageQuery(c)
	groups, total, err := h.groups.ListMine(c.Request.Context(), actor, limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	page(c, groups, total, limit, offset)
}

// Get 群组详情
func (h *GroupHandler) Get(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	group, err := h.groups.Get(c.Request.Context(), actor, groupID)
	h.respondGroup(c, http.StatusOK, group, err)
}

// Update 修改名称和描述
func (h *GroupHandler) Update(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	var req services.UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	group, err := h.groups.Update(c.Request.Context(), actor, groupID, &req)
	h.respondGroup(c, http.StatusOK, group, err)
}

// UpdateChatSettings 修改聊天界面定制
func (h *GroupHandler) UpdateChatSettings(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	var req services.ChatSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	group, err := h.groups.UpdateChatSettings(c.Request.Context(), actor, groupID, &req)
	h.respondGroup(c, http.StatusOK, group, err)
}

// SetAvatar 设置群头像
func (h *GroupHandler) SetAvatar(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	var req struct {
		AvatarURL string `json:"avatar_url" binding:"omitempty,url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	group, err := h.groups.SetAvatar(c.Request.Context(), actor, groupID, req.AvatarURL)
	h.respondGroup(c, http.StatusOK, group, err)
}

// SetVectorStore 关联向量库
func (h *GroupHandler) SetVectorStore(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	var req struct {
		VectorStoreID string `json:"vector_store_id" binding:"max=128"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	group, err := h.groups.SetVectorStore(c.Request.Context(), actor, groupID, req.VectorStoreID)
	h.respondGroup(c, http.StatusOK, group, err)
}

// Archive 归档群组
func (h *GroupHandler) Archive(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	group, err := h.groups.Archive(c.Request.Context(), actor, groupID)
	h.respondGroup(c, http.StatusOK, group, err)
}

// Join 通过邀请码加入
func (h *GroupHandler) Join(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req struct {
		InviteCode string `json:"invite_code" binding:"required,notblank"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	group, err := h.groups.Join(c.Request.Context(), actor, req.InviteCode)
	h.respondGroup(c, http.StatusOK, group, err)
}

// Leave 退出群组
func (h *GroupHandler) Leave(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	if err := h.groups.Leave(c.Request.Context(), actor, groupID); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Members 成员列表
func (h *GroupHandler) Members(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	limit, offset := pageQuery(c)
	members, total, err := h.groups.Members(c.Request.Context(), actor, groupID, limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	page(c, members, total, limit, offset)
}

// RemoveMember 移除成员
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	userID, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	if err := h.groups.RemoveMember(c.Request.Context(), actor, groupID, userID); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RegenerateInviteCode 重置邀请码
func (h *GroupHandler) RegenerateInviteCode(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	code, err := h.groups.RegenerateInviteCode(c.Request.Context(), actor, groupID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, gin.H{"invite_code": code})
}
