package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/internal/services"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
)

// FeedbackAPI is the part of the feedback service the handlers use.
type FeedbackAPI interface {
	CreateAdmin(ctx context.Context, actor services.Actor, groupID uint, req *services.AdminFeedbackRequest) (*models.AdminFeedback, error)
	UpdateAdmin(ctx context.Context, actor services.Actor, groupID, id uint, req *services.UpdateAdminFeedbackRequest) (*models.AdminFeedback, error)
	SetApply(ctx context.Context, actor services.Actor, groupID, id uint, apply bool) (*models.AdminFeedback, error)
	DeleteAdmin(ctx context.Context, actor services.Actor, groupID, id uint) error
	ListAdmin(ctx context.Context, actor services.Actor, groupID uint, q *services.AdminFeedbackQuery) ([]models.AdminFeedback, int64, error)
	CreateUser(ctx context.Context, actor services.Actor, groupID uint, req *services.UserFeedbackRequest) (*models.UserFeedback, error)
	ListUser(ctx context.Context, actor services.Actor, groupID uint, q *services.UserFeedbackQuery) ([]models.UserFeedback, int64, error)
}

// FeedbackHandler 反馈处理器
type FeedbackHandler struct {
	feedback FeedbackAPI
	log      *logger.Logger
}

// NewFeedbackHandler 创建反馈处理器实例
func NewFeedbackHandler(feedback FeedbackAPI, log *logger.Logger) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback, log: log}
}

// feedbackRequest 解析群组 ID 和反馈 ID
func feedbackRequest(c *gin.Context) (services.Actor, uint, uint, bool) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return actor, 0, 0, false
	}
	id, ok := uintParam(c, "feedbackId")
	return actor, groupID, id, ok
}

func (h *FeedbackHandler) respondAdmin(c *gin.Context, status int, fb *models.AdminFeedback, err error) {
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, status, fb)
}

// CreateAdmin 教师反馈
func (h *FeedbackHandler) CreateAdmin(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	var req services.AdminFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	fb, err := h.feedback.CreateAdmin(c.Request.Context(), actor, groupID, &req)
	h.respondAdmin(c, http.StatusCreated, fb, err)
}

// UpdateAdmin 修改教师反馈
func (h *FeedbackHandler) UpdateAdmin(c *gin.Context) {
	actor, groupID, id, ok := feedbackRequest(c)
	if !ok {
		return
	}
	var req services.UpdateAdminFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	fb, err := h.feedback.UpdateAdmin(c.Request.Context(), actor, groupID, id, &req)
	h.respondAdmin(c, http.StatusOK, fb, err)
}

// SetApply 切换 apply 标记
func (h *FeedbackHandler) SetApply(c *gin.Context) {
	actor, groupID, id, ok := feedbackRequest(c)
	if !ok {
		return
	}
	var req struct {
		Apply *bool `json:"apply" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	fb, err := h.feedback.SetApply(c.Request.Context(), actor, groupID, id, *req.Apply)
	h.respondAdmin(c, http.StatusOK, fb, err)
}

// DeleteAdmin 删除教师反馈
func (h *FeedbackHandler) DeleteAdmin(c *gin.Context) {
	actor, groupID, id, ok := feedbackRequest(c)
	if !ok {
		return
	}
	if err := h.feedback.DeleteAdmin(c.Request.Context(), actor, groupID, id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListAdmin 教师反馈列表
func (h *FeedbackHandler) ListAdmin(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	var q services.AdminFeedbackQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	q.Limit, q.Offset = pageQuery(c)
	items, total, err := h.feedback.ListAdmin(c.Request.Context(), actor, groupID, &q)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	page(c, items, total, q.Limit, q.Offset)
}

// CreateUser 学生点赞/点踩
func (h *FeedbackHandler) CreateUser(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	var req services.UserFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	fb, err := h.feedback.CreateUser(c.Request.Context(), actor, groupID, &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusCreated, fb)
}

// ListUser 学生反馈列表
func (h *FeedbackHandler) ListUser(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	var q services.UserFeedbackQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	q.Limit, q.Offset = pageQuery(c)
	items, total, err := h.feedback.ListUser(c.Request.Context(), actor, groupID, &q)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	page(c, items, total, q.Limit, q.Offset)
}
