package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/ProfDash/internal/services"
	"github.com/Gopher0727/ProfDash/middleware/jwt"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
)

// Page is the data envelope of list endpoints.
type Page[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

func success(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

func page[T any](c *gin.Context, items []T, total int64, limit, offset int) {
	if items == nil {
		items = []T{}
	}
	success(c, http.StatusOK, Page[T]{Items: items, Total: total, Limit: limit, Offset: offset})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, err error) {
	fail(c, http.StatusBadRequest, bindingMessage(err))
}

// statusOf maps service errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrInvalidReassignTarget),
		errors.Is(err, jwt.ErrRefreshTooEarly):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, jwt.ErrInvalidToken),
		errors.Is(err, jwt.ErrExpiredToken),
		errors.Is(err, jwt.ErrTokenNotYetValid),
		errors.Is(err, jwt.ErrRefreshTooLate):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrGroupNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrInviteCodeNotFound),
		errors.Is(err, services.ErrNotMember),
		errors.Is(err, services.ErrPromptNotFound),
		errors.Is(err, services.ErrPromptVersionNotFound),
		errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrMessageNotFound),
		errors.Is(err, services.ErrFeedbackNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrEmailTaken),
		errors.Is(err, services.ErrAlreadyMember),
		errors.Is(err, services.ErrGroupArchived),
		errors.Is(err, services.ErrAdministratorCannotLeave),
		errors.Is(err, services.ErrUserAdministersGroups),
		errors.Is(err, services.ErrCannotDeleteSelf):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Unexpected errors are
// logged and hidden from the client.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.ErrorContext(c.Request.Context(), "request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		_ = c.Error(err)
		fail(c, status, "internal server error")
		return
	}
	fail(c, status, err.Error())
}

// actorFrom reads the identity stored by the auth middleware.
func actorFrom(c *gin.Context) (services.Actor, bool) {
	userID, ok := c.Get("user_id")
	if !ok {
		return services.Actor{}, false
	}
	id, ok := userID.(uint)
	if !ok || id == 0 {
		return services.Actor{}, false
	}
	return services.Actor{UserID: id, Role: c.GetString("role")}, true
}

// requireActor aborts with 401 when the request is unauthenticated.
func requireActor(c *gin.Context) (services.Actor, bool) {
	actor, ok := actorFrom(c)
	if !ok {
		fail(c, http.StatusUnauthorized, "unauthorized")
	}
	return actor, ok
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		fail(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return uint(v), true
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		fail(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

// pageQuery reads ?limit=&offset=; the repositories clamp the values.
func pageQuery(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
