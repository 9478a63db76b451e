package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/ProfDash/internal/services"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
)

// AnalyticsAPI is the part of the analytics service the handlers use.
type AnalyticsAPI interface {
	DailyAggregates(ctx context.Context, actor services.Actor, groupID uint, model string) (*services.DailyAggregates, error)
	InvalidateSheetCache(ctx context.Context, actor services.Actor, groupID uint) error
	Usage(ctx context.Context, actor services.Actor, groupID uint, days int) (*services.UsageReport, error)
}

type dailyQuery struct {
	Model string `form:"model" binding:"omitempty,noisemodel"`
}

type usageQuery struct {
	Days int `form:"days" binding:"omitempty,min=1,max=365"`
}

// AnalyticsHandler 统计图表处理器
type AnalyticsHandler struct {
	analytics AnalyticsAPI
	log       *logger.Logger
}

// NewAnalyticsHandler 创建统计处理器实例
func NewAnalyticsHandler(analytics AnalyticsAPI, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, log: log}
}

// Daily 每日指标, ?model=simple|improved|realistic
func (h *AnalyticsHandler) Daily(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	var q dailyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.analytics.DailyAggregates(c.Request.Context(), actor, groupID, q.Model)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, result)
}

// Refresh 丢弃表格缓存
func (h *AnalyticsHandler) Refresh(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	if err := h.analytics.InvalidateSheetCache(c.Request.Context(), actor, groupID); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Usage 使用统计, ?days=N
func (h *AnalyticsHandler) Usage(c *gin.Context) {
	actor, groupID, ok := groupRequest(c)
	if !ok {
		return
	}
	var q usageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	report, err := h.analytics.Usage(c.Request.Context(), actor, groupID, q.Days)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, report)
}
