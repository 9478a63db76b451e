package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/internal/services"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
)

// SessionAPI is the part of the session service the handlers use.
type SessionAPI interface {
	Ingest(ctx context.Context, actor services.Actor, groupID uint, req *services.IngestSessionRequest) (*models.Session, error)
	List(ctx context.Context, actor services.Actor, groupID uint, limit, offset int) ([]models.Session, int64, error)
	Get(ctx context.Context, actor services.Actor, groupID uint, sessionID string) (*models.Session, error)
	Delete(ctx context.Context, actor services.Actor, groupID uint, sessionID string) error
}

// SessionHandler 聊天记录处理器
type SessionHandler struct {
	sessions SessionAPI
	log      *logger.Logger
}

// NewSessionHandler 创建聊天记录处理器实例
func NewSessionHandler(sessions SessionAPI, log *logger.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, log: log}
}

// Ingest 写入一段会话及其消息
func (h *SessionHandler) Ingest(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	var req services.IngestSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	session, err := h.sessions.Ingest(c.Request.Context(), actor, groupID, &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusCreated, session)
}

// List 群组会话列表
func (h *SessionHandler) List(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	limit, offset := pageQuery(c)
	sessions, total, err := h.sessions.List(c.Request.Context(), actor, groupID, limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	page(c, sessions, total, limit, offset)
}

// Get 会话详情, 含消息
func (h *SessionHandler) Get(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	session, err := h.sessions.Get(c.Request.Context(), actor, groupID, c.Param("sessionId"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, session)
}

// Delete 删除会话
func (h *SessionHandler) Delete(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), actor, groupID, c.Param("sessionId")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
