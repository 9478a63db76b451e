package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/ProfDash/config"
	"github.com/Gopher0727/ProfDash/internal/analytics"
	"github.com/Gopher0727/ProfDash/internal/consumer"
	"github.com/Gopher0727/ProfDash/internal/events"
	"github.com/Gopher0727/ProfDash/internal/handlers"
	grpcserver "github.com/Gopher0727/ProfDash/internal/pkg/grpc"
	"github.com/Gopher0727/ProfDash/internal/repositories"
	"github.com/Gopher0727/ProfDash/internal/routers"
	"github.com/Gopher0727/ProfDash/internal/services"
	"github.com/Gopher0727/ProfDash/internal/storage"
	"github.com/Gopher0727/ProfDash/internal/utils"
	"github.com/Gopher0727/ProfDash/middleware/jwt"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
	"github.com/Gopher0727/ProfDash/pkg/mq"
	"github.com/Gopher0727/ProfDash/pkg/ws"
	"github.com/Gopher0727/ProfDash/utils/ratelimit"
	"github.com/Gopher0727/ProfDash/utils/snowflake"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("配置初始化失败: %v", err)
	}

	l, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer l.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		l.Error("server exited", zap.Error(err))
		_ = l.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, l *logger.Logger) error {
	db, err := storage.NewDB(&cfg.Database)
	if err != nil {
		return err
	}
	defer storage.Close(db)
	if err := storage.Migrate(db); err != nil {
		return err
	}

	redisClient, err := storage.InitRedis(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		l.Warn("redis disabled: no sheet cache, rate limiting or cross-instance fan-out")
	}

	// 协程池, 控制同时处理的请求数量
	pool := utils.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, l.Logger)
	pool.Start()
	defer pool.Stop()

	// 仓储层
	userRepo := repositories.NewUserRepository(db, redisClient)
	groupRepo := repositories.NewGroupRepository(db)
	promptRepo := repositories.NewPromptRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	feedbackRepo := repositories.NewFeedbackRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	statsRepo := repositories.NewStatsRepository(db)

	// WebSocket Hub, 多实例之间经由 redis pub/sub 广播
	hub := ws.NewHub(redisClient, l)
	if err := hub.Start(ctx); err != nil {
		return err
	}

	// 事件: 配置了 kafka 时经由 kafka, 否则直接在进程内处理 (降级模式)
	eventConsumer := consumer.NewEventConsumer(auditRepo, hub, l)
	publisher, closePublisher, err := newPublisher(ctx, cfg, eventConsumer, l)
	if err != nil {
		return err
	}
	defer closePublisher()

	ids, err := snowflake.NewNode(cfg.Server.NodeID)
	if err != nil {
		return fmt.Errorf("snowflake node: %w", err)
	}
	emitter := events.NewEmitter(ids, publisher, l)

	// 服务层
	tokens := jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours, cfg.JWT.RefreshHours)
	authService := services.NewAuthService(userRepo, tokens)
	groupService := services.NewGroupService(groupRepo, emitter)
	promptService := services.NewPromptService(groupRepo, promptRepo, emitter)
	sessionService := services.NewSessionService(groupRepo, sessionRepo, emitter)
	feedbackService := services.NewFeedbackService(groupRepo, sessionRepo, feedbackRepo, emitter)
	adminService := services.NewAdminService(groupRepo, userRepo, auditRepo, emitter, l)
	fetcher := analytics.NewFetcher(time.Duration(cfg.Analytics.FetchTimeoutSec) * time.Second)
	analyticsService := services.NewAnalyticsService(groupRepo, statsRepo, fetcher, redisClient, cfg.Analytics, l)

	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewFixedWindowLimiter(redisClient, l.Logger, cfg.RateLimit.FailOpen)
	}

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	routers.SetupRoutes(r, routers.Deps{
		Config:  cfg,
		Logger:  l,
		Tokens:  tokens,
		Limiter: limiter,
		Pool:    pool,
		Hub:     hub,
		Groups:  groupService,
		Handlers: routers.Handlers{
			Auth:      handlers.NewAuthHandler(authService, l),
			Groups:    handlers.NewGroupHandler(groupService, l),
			Prompts:   handlers.NewPromptHandler(promptService, l),
			Sessions:  handlers.NewSessionHandler(sessionService, l),
			Feedback:  handlers.NewFeedbackHandler(feedbackService, l),
			Analytics: handlers.NewAnalyticsHandler(analyticsService, l),
			Admin:     handlers.NewAdminHandler(adminService, authService, l),
		},
	})

	if cfg.GRPC.Address != "" {
		health, err := grpcserver.NewServer(cfg.GRPC.Address, probes(db, redisClient), 15*time.Second, l)
		if err != nil {
			return err
		}
		go func() {
			if err := health.Start(ctx); err != nil {
				l.Error("grpc server stopped", zap.Error(err))
			}
		}()
		defer health.Stop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		l.Info("http server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	l.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newPublisher 返回事件发布器以及对应的关闭函数
func newPublisher(ctx context.Context, cfg *config.Config, handler *consumer.EventConsumer, l *logger.Logger) (events.Publisher, func(), error) {
	if !cfg.KafkaEnabled() {
		l.Warn("kafka brokers not configured, events are handled in-process")
		return events.NewDirect(handler), func() {}, nil
	}

	producer, err := mq.NewKafkaProducer(&cfg.Kafka, l)
	if err != nil {
		l.Warn("kafka producer unavailable, falling back to in-process events", zap.Error(err))
		return events.NewDirect(handler), func() {}, nil
	}

	runner, err := consumer.Start(ctx, &cfg.Kafka, handler.WithRetry(&cfg.Kafka, producer), l)
	if err != nil {
		_ = producer.Close()
		return nil, nil, err
	}

	return producer, func() {
		if err := runner.Stop(); err != nil {
			l.Warn("consumer stop", zap.Error(err))
		}
		if err := producer.Close(); err != nil {
			l.Warn("producer close", zap.Error(err))
		}
	}, nil
}

func probes(db *gorm.DB, redisClient *redis.Client) map[string]grpcserver.Probe {
	p := map[string]grpcserver.Probe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		p["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return p
}
