package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/ProfDash/config"
	"github.com/Gopher0727/ProfDash/internal/analytics"
	"github.com/Gopher0727/ProfDash/internal/models"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	args := m.Called(ctx, url)
	body, _ := args.Get(0).([]byte)
	return body, args.Error(1)
}

const sheetURL = "https://sheets.example/export?format=csv"

const sheetCSV = `Date,Group,Accuracy,Relevance,Helpful,Clarity,Engagement,CSAT
2025-03-01,CS101,0.80,0.70,0.90,0.85,0.60,80%
2025-03-03,cs101,0.82,0.72,0.88,0.86,0.62,0.81
2025-03-03,CS102,0.10,0.10,0.10,0.10,0.10,0.10
2025-03-05,CS101,0.84,0.74,0.86,0.87,0.64,0.82
`

func newAnalyticsFixture(t *testing.T, url string, fetcher SheetFetcher, rdb *redis.Client) (*fixture, *AnalyticsService, Actor, *models.Group) {
	t.Helper()
	f := newFixture(t)
	svc := NewAnalyticsService(f.groups, f.stats, fetcher, rdb, config.AnalyticsConfig{
		SheetURL:    url,
		WindowDays:  7,
		NoiseModel:  "improved",
		CacheTTLSec: 60,
	}, logger.NewNop())
	svc.now = func() time.Time { return time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC) }

	prof := f.actor(t, "prof@uni.edu", models.RoleProfessor)
	return f, svc, prof, f.newGroup(t, prof, "CS101")
}

func TestAnalyticsService_SheetWithCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, sheetURL).Return([]byte(sheetCSV), nil).Once()

	_, svc, prof, g := newAnalyticsFixture(t, sheetURL, fetcher, rdb)
	ctx := context.Background()

	out, err := svc.DailyAggregates(ctx, prof, g.ID, "")
	require.NoError(t, err)
	assert.Equal(t, SourceSheet, out.Source)
	assert.Equal(t, analytics.NoiseImproved, out.Model)
	require.Len(t, out.Rows, 7)
	assert.Equal(t, 3, out.RealDays)

	// window ends at the latest real date for this group
	assert.Equal(t, "2025-03-05", out.Rows[6].Date.Format(analytics.DateLayout))
	assert.False(t, out.Rows[6].IsSimulated)
	assert.InDelta(t, 0.84, out.Rows[6].Accuracy, 1e-9)
	assert.True(t, out.Rows[3].IsSimulated) // 2025-03-02

	assert.True(t, mr.Exists(sheetCacheKey(sheetURL, "CS101")))

	// second call is served from redis and yields the same placeholders
	again, err := svc.DailyAggregates(ctx, prof, g.ID, "improved")
	require.NoError(t, err)
	assert.Equal(t, out.Rows, again.Rows)
	fetcher.AssertExpectations(t)

	require.NoError(t, svc.InvalidateSheetCache(ctx, prof, g.ID))
	assert.False(t, mr.Exists(sheetCacheKey(sheetURL, "CS101")))
}

func TestAnalyticsService_Fallback(t *testing.T) {
	t.Run("fetch error", func(t *testing.T) {
		fetcher := &mockFetcher{}
		fetcher.On("Fetch", mock.Anything, sheetURL).Return(nil, errors.New("502 bad gateway"))

		_, svc, prof, g := newAnalyticsFixture(t, sheetURL, fetcher, nil)
		out, err := svc.DailyAggregates(context.Background(), prof, g.ID, "realistic")
		require.NoError(t, err)
		assert.Equal(t, SourceFallback, out.Source)
		assert.Equal(t, analytics.NoiseRealistic, out.Model)
		require.Len(t, out.Rows, 7)
		assert.Equal(t, "2025-03-10", out.Rows[6].Date.Format(analytics.DateLayout))
		for _, r := range out.Rows {
			assert.True(t, r.IsSimulated)
		}

		// seeded by group and date, so a reload shows the same numbers
		again, err := svc.DailyAggregates(context.Background(), prof, g.ID, "realistic")
		require.NoError(t, err)
		assert.Equal(t, out.Rows, again.Rows)
	})

	t.Run("no rows for group", func(t *testing.T) {
		fetcher := &mockFetcher{}
		fetcher.On("Fetch", mock.Anything, sheetURL).Return([]byte("date,group,accuracy\n2025-03-01,OTHER,0.5\n"), nil)

		_, svc, prof, g := newAnalyticsFixture(t, sheetURL, fetcher, nil)
		out, err := svc.DailyAggregates(context.Background(), prof, g.ID, "simple")
		require.NoError(t, err)
		assert.Equal(t, SourceFallback, out.Source)
	})

	t.Run("no sheet configured", func(t *testing.T) {
		fetcher := &mockFetcher{}
		_, svc, prof, g := newAnalyticsFixture(t, "", fetcher, nil)
		out, err := svc.DailyAggregates(context.Background(), prof, g.ID, "")
		require.NoError(t, err)
		assert.Equal(t, SourceFallback, out.Source)
		fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
	})
}

func TestAnalyticsService_Validation(t *testing.T) {
	f, svc, prof, g := newAnalyticsFixture(t, "", &mockFetcher{}, nil)
	ctx := context.Background()

	_, err := svc.DailyAggregates(ctx, prof, g.ID, "chaotic")
	assert.ErrorIs(t, err, ErrInvalidInput)

	student := f.actor(t, "s@uni.edu", models.RoleStudent)
	f.join(t, student, g)
	_, err = svc.DailyAggregates(ctx, student, g.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Usage(ctx, prof, g.ID, maxUsageDays+1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAnalyticsService_Usage(t *testing.T) {
	f, svc, prof, g := newAnalyticsFixture(t, "", &mockFetcher{}, nil)
	ctx := context.Background()
	student := f.actor(t, "s@uni.edu", models.RoleStudent)
	f.join(t, student, g)
	s := f.newSession(t, student, g.ID)

	fb := NewFeedbackService(f.groups, f.sessions, f.feedback, f.emitter)
	_, err := fb.CreateUser(ctx, student, g.ID, &UserFeedbackRequest{SessionID: s.ID, MessageID: s.Messages[1].ID, Verdict: models.VerdictLike})
	require.NoError(t, err)

	// sessions are stamped with the wall clock, so report over a wide window
	svc.now = time.Now
	report, err := svc.Usage(ctx, prof, g.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, report.Days)
	assert.EqualValues(t, 1, report.Sessions)
	assert.EqualValues(t, 2, report.Messages)
	assert.EqualValues(t, 1, report.ActiveUsers)
	assert.EqualValues(t, 1, report.UserLikes)
}

// gatedFetcher blocks until release is closed and fails if its context was
// cancelled in the meantime.
type gatedFetcher struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []byte(sheetCSV), nil
}

func TestAnalyticsService_SharedFetchOutlivesCancelledCaller(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	fetcher := &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
	_, svc, prof, g := newAnalyticsFixture(t, sheetURL, fetcher, rdb)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *DailyAggregates, 1)
	go func() {
		out, err := svc.DailyAggregates(ctx, prof, g.ID, "")
		assert.NoError(t, err)
		done <- out
	}()

	<-fetcher.started
	cancel()
	close(fetcher.release)

	first := <-done
	require.NotNil(t, first)
	assert.Equal(t, SourceSheet, first.Source)
	assert.True(t, mr.Exists(sheetCacheKey(sheetURL, "CS101")))

	again, err := svc.DailyAggregates(context.Background(), prof, g.ID, "")
	require.NoError(t, err)
	assert.Equal(t, SourceSheet, again.Source)
	assert.Equal(t, 3, again.RealDays)
	assert.EqualValues(t, 1, fetcher.calls.Load())
}
