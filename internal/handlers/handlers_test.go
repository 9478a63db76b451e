package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/internal/services"
	"github.com/Gopher0727/ProfDash/middleware/jwt"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
)

func init() {
	gin.SetMode(gin.TestMode)
	RegisterValidators()
}

type mockPrompts struct{ mock.Mock }

func (m *mockPrompts) Current(ctx context.Context, actor services.Actor, groupID uint) (*models.Prompt, error) {
	args := m.Called(ctx, actor, groupID)
	p, _ := args.Get(0).(*models.Prompt)
	return p, args.Error(1)
}

func (m *mockPrompts) History(ctx context.Context, actor services.Actor, groupID uint, limit, offset int) ([]models.Prompt, int64, error) {
	args := m.Called(ctx, actor, groupID, limit, offset)
	items, _ := args.Get(0).([]models.Prompt)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *mockPrompts) Version(ctx context.Context, actor services.Actor, groupID uint, version int) (*models.Prompt, error) {
	args := m.Called(ctx, actor, groupID, version)
	p, _ := args.Get(0).(*models.Prompt)
	return p, args.Error(1)
}

func (m *mockPrompts) Create(ctx context.Context, actor services.Actor, groupID uint, req *services.CreatePromptRequest) (*models.Prompt, error) {
	args := m.Called(ctx, actor, groupID, req)
	p, _ := args.Get(0).(*models.Prompt)
	return p, args.Error(1)
}

func (m *mockPrompts) Revert(ctx context.Context, actor services.Actor, groupID uint, version int) (*models.Prompt, error) {
	args := m.Called(ctx, actor, groupID, version)
	p, _ := args.Get(0).(*models.Prompt)
	return p, args.Error(1)
}

type mockAnalytics struct{ mock.Mock }

func (m *mockAnalytics) DailyAggregates(ctx context.Context, actor services.Actor, groupID uint, model string) (*services.DailyAggregates, error) {
	args := m.Called(ctx, actor, groupID, model)
	r, _ := args.Get(0).(*services.DailyAggregates)
	return r, args.Error(1)
}

func (m *mockAnalytics) InvalidateSheetCache(ctx context.Context, actor services.Actor, groupID uint) error {
	return m.Called(ctx, actor, groupID).Error(0)
}

func (m *mockAnalytics) Usage(ctx context.Context, actor services.Actor, groupID uint, days int) (*services.UsageReport, error) {
	args := m.Called(ctx, actor, groupID, days)
	r, _ := args.Get(0).(*services.UsageReport)
	return r, args.Error(1)
}

var professor = services.Actor{UserID: 7, Role: models.RoleProfessor}

// newRouter mounts routes behind a fake auth step that injects actor.
func newRouter(actor *services.Actor, mount func(r gin.IRouter)) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if actor != nil {
			c.Set("user_id", actor.UserID)
			c.Set("role", actor.Role)
		}
		c.Next()
	})
	mount(r)
	return r
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func promptRouter(prompts PromptAPI, actor *services.Actor) *gin.Engine {
	h := NewPromptHandler(prompts, logger.NewNop())
	return newRouter(actor, func(r gin.IRouter) {
		r.GET("/groups/:id/prompt", h.Current)
		r.GET("/groups/:id/prompts", h.History)
		r.GET("/groups/:id/prompts/:version", h.Version)
		r.POST("/groups/:id/prompts", h.Create)
		r.POST("/groups/:id/prompts/:version/revert", h.Revert)
	})
}

func TestPromptHandler_Create(t *testing.T) {
	prompts := new(mockPrompts)
	prompts.On("Create", mock.Anything, professor, uint(3), &services.CreatePromptRequest{Content: "be kind", Note: "v2"}).
		Return(&models.Prompt{ID: 1, GroupID: 3, Version: 2, Content: "be kind"}, nil)
	r := promptRouter(prompts, &professor)

	w := do(r, http.MethodPost, "/groups/3/prompts", gin.H{"content": "be kind", "note": "v2"})
	require.Equal(t, http.StatusCreated, w.Code)
	env := decode(t, w)
	assert.Equal(t, 0, env.Code)

	var p models.Prompt
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, 2, p.Version)
	prompts.AssertExpectations(t)
}

func TestPromptHandler_CreateValidation(t *testing.T) {
	prompts := new(mockPrompts)
	r := promptRouter(prompts, &professor)

	w := do(r, http.MethodPost, "/groups/3/prompts", gin.H{"note": "missing content"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w).Error, "content is required")
	prompts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPromptHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"forbidden", services.ErrForbidden, http.StatusForbidden},
		{"missing version", fmt.Errorf("load: %w", services.ErrPromptVersionNotFound), http.StatusNotFound},
		{"archived", services.ErrGroupArchived, http.StatusConflict},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompts := new(mockPrompts)
			prompts.On("Revert", mock.Anything, professor, uint(3), 4).Return(nil, tt.err)
			r := promptRouter(prompts, &professor)

			w := do(r, http.MethodPost, "/groups/3/prompts/4/revert", nil)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", decode(t, w).Error)
			}
		})
	}
}

func TestPromptHandler_BadParams(t *testing.T) {
	prompts := new(mockPrompts)
	r := promptRouter(prompts, &professor)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/groups/abc/prompt", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/groups/0/prompt", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/groups/3/prompts/-1", nil).Code)
	prompts.AssertExpectations(t)
}

func TestPromptHandler_Unauthenticated(t *testing.T) {
	prompts := new(mockPrompts)
	r := promptRouter(prompts, nil)

	w := do(r, http.MethodGet, "/groups/3/prompt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPromptHandler_HistoryPage(t *testing.T) {
	prompts := new(mockPrompts)
	prompts.On("History", mock.Anything, professor, uint(3), 100, 5).
		Return([]models.Prompt(nil), int64(0), nil)
	r := promptRouter(prompts, &professor)

	w := do(r, http.MethodGet, "/groups/3/prompts?limit=1000&offset=5", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var pg Page[models.Prompt]
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &pg))
	assert.NotNil(t, pg.Items)
	assert.Empty(t, pg.Items)
	assert.Equal(t, 100, pg.Limit)
	assert.Equal(t, 5, pg.Offset)
	prompts.AssertExpectations(t)
}

func TestAnalyticsHandler_Daily(t *testing.T) {
	a := new(mockAnalytics)
	a.On("DailyAggregates", mock.Anything, professor, uint(3), "realistic").
		Return(&services.DailyAggregates{GroupID: 3, Source: services.SourceFallback, Window: 30}, nil)
	h := NewAnalyticsHandler(a, logger.NewNop())
	r := newRouter(&professor, func(r gin.IRouter) {
		r.GET("/groups/:id/analytics/daily", h.Daily)
	})

	w := do(r, http.MethodGet, "/groups/3/analytics/daily?model=realistic", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got services.DailyAggregates
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, services.SourceFallback, got.Source)

	w = do(r, http.MethodGet, "/groups/3/analytics/daily?model=chaotic", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w).Error, "model must be one of")
	a.AssertExpectations(t)
}

func TestAnalyticsHandler_Usage(t *testing.T) {
	a := new(mockAnalytics)
	a.On("Usage", mock.Anything, professor, uint(3), 14).
		Return(&services.UsageReport{GroupID: 3, Days: 14}, nil)
	h := NewAnalyticsHandler(a, logger.NewNop())
	r := newRouter(&professor, func(r gin.IRouter) {
		r.GET("/groups/:id/analytics/usage", h.Usage)
	})

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/groups/3/analytics/usage?days=14", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/groups/3/analytics/usage?days=400", nil).Code)
	a.AssertExpectations(t)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, statusOf(jwt.ErrExpiredToken))
	assert.Equal(t, http.StatusBadRequest, statusOf(jwt.ErrRefreshTooEarly))
	assert.Equal(t, http.StatusConflict, statusOf(fmt.Errorf("x: %w", services.ErrUserAdministersGroups)))
	assert.Equal(t, http.StatusNotFound, statusOf(services.ErrNotMember))
	assert.Equal(t, http.StatusInternalServerError, statusOf(context.DeadlineExceeded))
}
