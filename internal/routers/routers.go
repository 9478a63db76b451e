package routers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/ProfDash/config"
	"github.com/Gopher0727/ProfDash/internal/handlers"
	"github.com/Gopher0727/ProfDash/internal/middlewares"
	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/internal/utils"
	"github.com/Gopher0727/ProfDash/middleware/jwt"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
	"github.com/Gopher0727/ProfDash/pkg/ws"
	"github.com/Gopher0727/ProfDash/utils/ratelimit"
)

// Handlers 所有 HTTP 处理器
type Handlers struct {
	Auth      *handlers.AuthHandler
	Groups    *handlers.GroupHandler
	Prompts   *handlers.PromptHandler
	Sessions  *handlers.SessionHandler
	Feedback  *handlers.FeedbackHandler
	Analytics *handlers.AnalyticsHandler
	Admin     *handlers.AdminHandler
}

// Deps 路由依赖; Limiter, Pool 可以为 nil
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Tokens   *jwt.TokenManager
	Limiter  ratelimit.Limiter
	Pool     *utils.WorkerPool
	Hub      *ws.Hub
	Groups   ws.GroupResolver
	Handlers Handlers
}

// SetupRoutes 设置所有路由
func SetupRoutes(r *gin.Engine, d Deps) {
	handlers.RegisterValidators()

	r.Use(logger.GinMiddleware(d.Logger))
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(d.Config.Server.AllowedOrigins)))
	if n := d.Config.RateLimit.MaxConcurrency; n > 0 {
		r.Use(middlewares.MaxConcurrencyMiddleware(n))
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// WebSocket 路由 (必须在 AsyncMiddleware 之前注册, 避免长连接占住 worker)
	r.GET("/ws", middlewares.AuthMiddleware(d.Tokens), func(c *gin.Context) {
		ws.ServeWs(d.Hub, d.Groups, c)
	})

	api := r.Group("/api/v1")
	if d.Pool != nil {
		api.Use(middlewares.AsyncMiddleware(d.Pool))
	}

	limit := func(c *gin.Context) { c.Next() }
	if d.Limiter != nil {
		window := time.Duration(d.Config.RateLimit.WindowSec) * time.Second
		limit = middlewares.RateLimitMiddleware(d.Limiter, d.Config.RateLimit.Limit, window)
	}

	RegisterAuthRoutes(api, d, limit)

	authed := api.Group("", middlewares.AuthMiddleware(d.Tokens), limit)
	RegisterGroupRoutes(authed, d.Handlers)
	RegisterAdminRoutes(authed, d.Handlers.Admin)
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	cfg.ExposeHeaders = []string{logger.TraceHeader}
	return cfg
}

// RegisterAuthRoutes 登录与个人信息
func RegisterAuthRoutes(api *gin.RouterGroup, d Deps, limit gin.HandlerFunc) {
	h := d.Handlers.Auth
	auth := api.Group("/auth", limit)
	{
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
	}

	me := api.Group("/me", middlewares.AuthMiddleware(d.Tokens), limit)
	{
		me.GET("", h.Me)
		me.PATCH("", h.UpdateMe)
		me.PUT("/password", h.ChangePassword)
	}
}

// RegisterGroupRoutes 群组及其下属资源
func RegisterGroupRoutes(api *gin.RouterGroup, h Handlers) {
	groups := api.Group("/groups")
	{
		groups.POST("", middlewares.RequireRole(models.RoleProfessor, models.RoleSuperAdmin), h.Groups.Create)
		groups.GET("", h.Groups.List)
		groups.POST("/join", h.Groups.Join)

		groups.GET("/:id", h.Groups.Get)
		groups.PATCH("/:id", h.Groups.Update)
		groups.PUT("/:id/chat-settings", h.Groups.UpdateChatSettings)
		groups.PUT("/:id/avatar", h.Groups.SetAvatar)
		groups.PUT("/:id/vector-store", h.Groups.SetVectorStore)
		groups.POST("/:id/archive", h.Groups.Archive)
		groups.POST("/:id/leave", h.Groups.Leave)
		groups.POST("/:id/invite-code", h.Groups.RegenerateInviteCode)

		// 成员
		groups.GET("/:id/members", h.Groups.Members)
		groups.DELETE("/:id/members/:userId", h.Groups.RemoveMember)

		// 提示词
		groups.GET("/:id/prompt", h.Prompts.Current)
		groups.GET("/:id/prompts", h.Prompts.History)
		groups.POST("/:id/prompts", h.Prompts.Create)
		groups.GET("/:id/prompts/:version", h.Prompts.Version)
		groups.POST("/:id/prompts/:version/revert", h.Prompts.Revert)

		// 会话
		groups.POST("/:id/sessions", h.Sessions.Ingest)
		groups.GET("/:id/sessions", h.Sessions.List)
		groups.GET("/:id/sessions/:sessionId", h.Sessions.Get)
		groups.DELETE("/:id/sessions/:sessionId", h.Sessions.Delete)

		// 反馈
		groups.POST("/:id/feedback/admin", h.Feedback.CreateAdmin)
		groups.GET("/:id/feedback/admin", h.Feedback.ListAdmin)
		groups.PATCH("/:id/feedback/admin/:feedbackId", h.Feedback.UpdateAdmin)
		groups.PUT("/:id/feedback/admin/:feedbackId/apply", h.Feedback.SetApply)
		groups.DELETE("/:id/feedback/admin/:feedbackId", h.Feedback.DeleteAdmin)
		groups.POST("/:id/feedback/user", h.Feedback.CreateUser)
		groups.GET("/:id/feedback/user", h.Feedback.ListUser)

		// 统计
		groups.GET("/:id/analytics/daily", h.Analytics.Daily)
		groups.POST("/:id/analytics/refresh", h.Analytics.Refresh)
		groups.GET("/:id/analytics/usage", h.Analytics.Usage)

		groups.GET("/:id/audit", h.Admin.Audit)
	}
}

// RegisterAdminRoutes 超级管理员接口
func RegisterAdminRoutes(api *gin.RouterGroup, h *handlers.AdminHandler) {
	admin := api.Group("/admin", middlewares.RequireRole(models.RoleSuperAdmin))
	{
		admin.GET("/users", h.ListUsers)
		admin.POST("/users", h.CreateUser)
		admin.DELETE("/users/:id", h.DeleteUser)
		admin.DELETE("/groups/:id", h.DeleteGroup)
	}
}
