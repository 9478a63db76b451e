package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/ProfDash/internal/utils"
)

// AsyncMiddleware 异步处理中间件
// 将请求的处理逻辑提交到 Worker Pool 中执行, 严格控制同时处理的请求数量 (DB 密集型操作)。
// 队列满时请求排队而不是被拒绝。pool 为 nil 时同步执行。
func AsyncMiddleware(pool *utils.WorkerPool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if pool == nil {
			c.Next()
			return
		}

		done := make(chan struct{})
		var panicked any

		// 主 goroutine 阻塞在 <-done 上, 同一时间只有 worker 在操作 c
		task := func() {
			defer close(done)
			defer func() { panicked = recover() }()
			c.Next()
		}

		if err := pool.SubmitContext(c.Request.Context(), task); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
			return
		}
		<-done

		// 交还给 gin 的 Recovery 处理
		if panicked != nil {
			panic(panicked)
		}
	}
}
