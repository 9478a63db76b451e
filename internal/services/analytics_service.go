package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/twmb/murmur3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Gopher0727/ProfDash/config"
	"github.com/Gopher0727/ProfDash/internal/analytics"
	"github.com/Gopher0727/ProfDash/internal/repositories"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
)

const (
	SourceSheet    = "sheet"
	SourceFallback = "fallback"

	sheetCacheKeyPrefix = "profdash:sheet:"
	maxUsageDays        = 365
)

var errSheetNotConfigured = errors.New("metrics sheet url not configured")

// SheetFetcher downloads the CSV export of the metrics sheet.
type SheetFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// AnalyticsService 指标图表数据与使用统计
type AnalyticsService struct {
	groupAccess
	stats   *repositories.StatsRepository
	fetcher SheetFetcher
	redis   *redis.Client
	cfg     config.AnalyticsConfig
	log     *logger.Logger
	flight  singleflight.Group
	now     func() time.Time
}

// NewAnalyticsService redis 可以为 nil, 此时每次请求都会拉取表格
func NewAnalyticsService(
	groups *repositories.GroupRepository,
	stats *repositories.StatsRepository,
	fetcher SheetFetcher,
	redisClient *redis.Client,
	cfg config.AnalyticsConfig,
	log *logger.Logger,
) *AnalyticsService {
	return &AnalyticsService{
		groupAccess: groupAccess{groups: groups},
		stats:       stats,
		fetcher:     fetcher,
		redis:       redisClient,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// DailyAggregates 图表数据: 窗口内每天一行, 缺失的天由最近的真实数据推算
type DailyAggregates struct {
	GroupID  uint                    `json:"group_id"`
	Model    analytics.NoiseModel    `json:"model"`
	Source   string                  `json:"source"`
	Window   int                     `json:"window"`
	RealDays int                     `json:"real_days"`
	Rows     []analytics.DailyMetric `json:"rows"`
}

// UsageReport 数据库中的使用统计
type UsageReport struct {
	GroupID uint      `json:"group_id"`
	Days    int       `json:"days"`
	Since   time.Time `json:"since"`
	*repositories.UsageStats
}

// DailyAggregates 读取表格 (带缓存), 过滤到该群组并补齐缺失日期
// 拉取失败或没有数据时退化为完全模拟的窗口
func (s *AnalyticsService) DailyAggregates(ctx context.Context, actor Actor, groupID uint, model string) (*DailyAggregates, error) {
	group, err := s.manage(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}

	if model == "" {
		model = s.cfg.NoiseModel
	}
	noise, err := analytics.ParseNoiseModel(model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	out := &DailyAggregates{
		GroupID: groupID,
		Model:   noise,
		Window:  s.window(),
	}
	seedKey := fmt.Sprintf("group:%d", groupID)

	rows, err := s.sheetRows(ctx, group.Name)
	if err == nil && len(rows) == 0 {
		err = fmt.Errorf("no sheet rows for group %q", group.Name)
	}
	if err != nil {
		level := s.log.WarnContext
		if errors.Is(err, errSheetNotConfigured) {
			level = s.log.DebugContext
		}
		level(ctx, "using synthetic analytics", zap.Uint("group_id", groupID), zap.Error(err))

		end := s.now()
		out.Source = SourceFallback
		out.Rows = analytics.Synthesize(end, analytics.Options{
			Window: out.Window,
			Model:  noise,
			Rand:   analytics.Seed(seedKey, end),
		})
		return out, nil
	}

	// ParseCSV 按日期升序返回
	end := rows[len(rows)-1].Date
	out.Source = SourceSheet
	out.Rows = analytics.Backfill(rows, analytics.Options{
		Window: out.Window,
		Model:  noise,
		End:    end,
		Rand:   analytics.Seed(seedKey, end),
	})
	for _, r := range out.Rows {
		if !r.IsSimulated {
			out.RealDays++
		}
	}
	return out, nil
}

func (s *AnalyticsService) window() int {
	if s.cfg.WindowDays > 0 {
		return s.cfg.WindowDays
	}
	return analytics.DefaultWindow
}

func sheetCacheKey(url, group string) string {
	return fmt.Sprintf("%s%016x:%s", sheetCacheKeyPrefix, murmur3.Sum64([]byte(url)), strings.ToLower(strings.TrimSpace(group)))
}

// sheetRows 先查 Redis, 未命中时拉取并解析, 相同 key 的并发请求只拉取一次
func (s *AnalyticsService) sheetRows(ctx context.Context, group string) ([]analytics.DailyMetric, error) {
	url := s.cfg.SheetURL
	if url == "" {
		return nil, errSheetNotConfigured
	}
	key := sheetCacheKey(url, group)

	if s.redis != nil {
		if data, err := s.redis.Get(ctx, key).Bytes(); err == nil {
			var rows []analytics.DailyMetric
			if json.Unmarshal(data, &rows) == nil {
				return rows, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.log.WarnContext(ctx, "sheet cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	v, err, _ := s.flight.Do(key, func() (any, error) {
		// 共享的拉取不随第一个请求取消, 超时由 Fetcher 控制
		fetchCtx := context.WithoutCancel(ctx)
		body, err := s.fetcher.Fetch(fetchCtx, url)
		if err != nil {
			return nil, err
		}
		rows, err := analytics.ParseCSV(bytes.NewReader(body), analytics.ParseOptions{Group: group})
		if err != nil {
			return nil, fmt.Errorf("parse sheet: %w", err)
		}
		s.cacheRows(fetchCtx, key, rows)
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]analytics.DailyMetric), nil
}

func (s *AnalyticsService) cacheRows(ctx context.Context, key string, rows []analytics.DailyMetric) {
	if s.redis == nil || len(rows) == 0 {
		return
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return
	}
	ttl := time.Duration(s.cfg.CacheTTLSec) * time.Second
	if err := s.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		s.log.WarnContext(ctx, "sheet cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateSheetCache 丢弃该群组的表格缓存, 下次请求重新拉取
func (s *AnalyticsService) InvalidateSheetCache(ctx context.Context, actor Actor, groupID uint) error {
	group, err := s.manage(ctx, actor, groupID)
	if err != nil {
		return err
	}
	if s.redis == nil || s.cfg.SheetURL == "" {
		return nil
	}
	return s.redis.Del(ctx, sheetCacheKey(s.cfg.SheetURL, group.Name)).Err()
}

// Usage 最近 days 天 (含今天, UTC) 的使用统计
func (s *AnalyticsService) Usage(ctx context.Context, actor Actor, groupID uint, days int) (*UsageReport, error) {
	if _, err := s.manage(ctx, actor, groupID); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = s.window()
	}
	if days > maxUsageDays {
		return nil, fmt.Errorf("%w: days must be at most %d", ErrInvalidInput, maxUsageDays)
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))
	stats, err := s.stats.Usage(ctx, groupID, since)
	if err != nil {
		return nil, fmt.Errorf("usage stats: %w", err)
	}
	return &UsageReport{GroupID: groupID, Days: days, Since: since, UsageStats: stats}, nil
}
