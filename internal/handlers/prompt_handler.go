package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/internal/services"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
)

// PromptAPI is the part of the prompt service the handlers use.
type PromptAPI interface {
	Current(ctx context.Context, actor services.Actor, groupID uint) (*models.Prompt, error)
	History(ctx context.Context, actor services.Actor, groupID uint, limit, offset int) ([]models.Prompt, int64, error)
	Version(ctx context.Context, actor services.Actor, groupID uint, version int) (*models.Prompt, error)
	Create(ctx context.Context, actor services.Actor, groupID uint, req *services.CreatePromptRequest) (*models.Prompt, error)
	Revert(ctx context.Context, actor services.Actor, groupID uint, version int) (*models.Prompt, error)
}

// PromptHandler 系统提示词处理器
type PromptHandler struct {
	prompts PromptAPI
	log     *logger.Logger
}

// NewPromptHandler 创建提示词处理器实例
func NewPromptHandler(prompts PromptAPI, log *logger.Logger) *PromptHandler {
	return &PromptHandler{prompts: prompts, log: log}
}

func (h *PromptHandler) respond(c *gin.Context, status int, prompt *models.Prompt, err error) {
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, status, prompt)
}

// Current 当前生效的提示词
func (h *PromptHandler) Current(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	prompt, err := h.prompts.Current(c.Request.Context(), actor, groupID)
	h.respond(c, http.StatusOK, prompt, err)
}

// History 历史版本, 新版本在前
func (h *PromptHandler) History(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	limit, offset := pageQuery(c)
	prompts, total, err := h.prompts.History(c.Request.Context(), actor, groupID, limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	page(c, prompts, total, limit, offset)
}

// Version 指定版本
func (h *PromptHandler) Version(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	version, ok := intParam(c, "version")
	if !ok {
		return
	}
	prompt, err := h.prompts.Version(c.Request.Context(), actor, groupID, version)
	h.respond(c, http.StatusOK, prompt, err)
}

// Create 发布新版本
func (h *PromptHandler) Create(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	var req services.CreatePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	prompt, err := h.prompts.Create(c.Request.Context(), actor, groupID, &req)
	h.respond(c, http.StatusCreated, prompt, err)
}

// Revert 以旧版本内容发布新版本
func (h *PromptHandler) Revert(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	version, ok := intParam(c, "version")
	if !ok {
		return
	}
	prompt, err := h.prompts.Revert(c.Request.Context(), actor, groupID, version)
	h.respond(c, http.StatusCreated, prompt, err)
}
