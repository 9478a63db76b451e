package middlewares

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Gopher0727/ProfDash/internal/utils"
	"github.com/Gopher0727/ProfDash/middleware/jwt"
	"github.com/Gopher0727/ProfDash/utils/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(r http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	tokens := jwt.NewTokenManager("secret", 1, 1)
	token, err := tokens.GenerateToken(42, "prof@example.edu", "professor")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", AuthMiddleware(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.MustGet("user_id"),
			"role":    c.GetString("role"),
			"email":   c.GetString("email"),
		})
	})

	t.Run("bearer header", func(t *testing.T) {
		w := get(r, "/me", http.Header{"Authorization": {"Bearer " + token}})
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"user_id":42,"role":"professor","email":"prof@example.edu"}`, w.Body.String())
	})

	t.Run("query token", func(t *testing.T) {
		w := get(r, "/me?token="+token, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing", func(t *testing.T) {
		w := get(r, "/me", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		w := get(r, "/me", http.Header{"Authorization": {"Basic " + token}})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("foreign secret", func(t *testing.T) {
		other, err := jwt.NewTokenManager("other", 1, 1).GenerateToken(42, "x@y.z", "superadmin")
		require.NoError(t, err)
		w := get(r, "/me", http.Header{"Authorization": {"Bearer " + other}})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	r := gin.New()
	r.GET("/admin", func(c *gin.Context) {
		c.Set("role", c.Query("role"))
		c.Next()
	}, RequireRole("superadmin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, get(r, "/admin?role=superadmin", nil).Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/admin?role=professor", nil).Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/admin", nil).Code)
}

func TestAsyncMiddleware(t *testing.T) {
	pool := utils.NewWorkerPool(2, 8, zap.NewNop())
	pool.Start()

	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, _ any) {
		c.AbortWithStatus(http.StatusInternalServerError)
	}))
	r.Use(AsyncMiddleware(pool))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "done") })
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := get(r, "/ok", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "done", w.Body.String())

	assert.Equal(t, http.StatusInternalServerError, get(r, "/boom", nil).Code)

	// the pool survives a panicking handler
	assert.Equal(t, http.StatusOK, get(r, "/ok", nil).Code)

	pool.Stop()
	assert.Equal(t, http.StatusServiceUnavailable, get(r, "/ok", nil).Code)
}

func TestAsyncMiddleware_NilPool(t *testing.T) {
	r := gin.New()
	r.Use(AsyncMiddleware(nil))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(r, "/ok", nil).Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := ratelimit.NewFixedWindowLimiter(client, zap.NewNop(), false)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id := c.Query("uid"); id != "" {
			c.Set("user_id", id)
		}
		c.Next()
	})
	r.Use(RateLimitMiddleware(limiter, 2, time.Minute))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for range 2 {
		require.Equal(t, http.StatusOK, get(r, "/x?uid=1", nil).Code)
	}
	w := get(r, "/x?uid=1", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// a different user has its own budget
	assert.Equal(t, http.StatusOK, get(r, "/x?uid=2", nil).Code)

	mr.Close()
	assert.Equal(t, http.StatusServiceUnavailable, get(r, "/x?uid=3", nil).Code)
}

func TestMaxConcurrencyMiddleware(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	r := gin.New()
	r.Use(MaxConcurrencyMiddleware(1))
	r.GET("/slow", func(c *gin.Context) {
		close(entered)
		<-release
		c.Status(http.StatusOK)
	})
	r.GET("/fast", func(c *gin.Context) { c.Status(http.StatusOK) })

	var wg sync.WaitGroup
	var slow *httptest.ResponseRecorder
	wg.Go(func() { slow = get(r, "/slow", nil) })

	<-entered
	assert.Equal(t, http.StatusServiceUnavailable, get(r, "/fast", nil).Code)
	close(release)
	wg.Wait()

	assert.Equal(t, http.StatusOK, slow.Code)
	assert.Equal(t, http.StatusOK, get(r, "/fast", nil).Code)
}
