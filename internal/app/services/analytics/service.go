package analytics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conedex/conedex/internal/app/domain/analytics"
	"github.com/conedex/conedex/internal/app/storage"
	"github.com/conedex/conedex/internal/cache"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/pkg/logger"
)

const (
	// CacheTTL is how long computed dashboards are served from cache.
	CacheTTL = 5 * time.Minute

	DefaultWindowDays = 30
	maxWindowDays     = 365
	dayLayout         = "2006-01-02"
)

// Service computes admin dashboard figures.
type Service struct {
	store storage.AnalyticsStore
	cache cache.Cache
	log   *logger.Logger
	now   func() time.Time
}

// New constructs an analytics service. A nil cache uses an in-process one.
func New(store storage.AnalyticsStore, c cache.Cache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("analytics")
	}
	if c == nil {
		c = cache.NewMemory()
	}
	return &Service{
		store: store,
		cache: c,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// cached serves key from the cache or computes and stores it. Cache errors
// are logged and fall through to compute.
func cached[T any](ctx context.Context, s *Service, key string, compute func() (T, error)) (T, error) {
	var value T
	hit, err := s.cache.Get(ctx, key, &value)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("analytics cache read failed")
	}
	if hit {
		return value, nil
	}
	value, err = compute()
	if err != nil {
		return value, err
	}
	if err := s.cache.Set(ctx, key, value, CacheTTL); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("analytics cache write failed")
	}
	return value, nil
}

func windowDays(days int) (int, error) {
	if days == 0 {
		return DefaultWindowDays, nil
	}
	if days < 1 || days > maxWindowDays {
		return 0, svcerrors.Validation("window must be between 1 and %d days", maxWindowDays)
	}
	return days, nil
}

// Overview returns platform totals and growth over the last days.
func (s *Service) Overview(ctx context.Context, days int) (analytics.Overview, error) {
	days, err := windowDays(days)
	if err != nil {
		return analytics.Overview{}, err
	}
	return cached(ctx, s, overviewKey(days), func() (analytics.Overview, error) {
		return s.computeOverview(ctx, days)
	})
}

func overviewKey(days int) string { return fmt.Sprintf("analytics:overview:%d", days) }

func (s *Service) computeOverview(ctx context.Context, days int) (analytics.Overview, error) {
	now := s.now()
	window := time.Duration(days) * 24 * time.Hour
	currentFrom := now.Add(-window)
	previousFrom := currentFrom.Add(-window)

	out := analytics.Overview{WindowDays: days, GeneratedAt: now}
	counts := map[string]*analytics.Growth{
		storage.EntityUsers: &out.NewUsers,
		storage.EntityShops: &out.NewShops,
		storage.EntityLogs:  &out.NewLogs,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		totals, err := s.store.Totals(gctx)
		if err != nil {
			return fmt.Errorf("totals: %w", err)
		}
		out.Totals = totals
		return nil
	})
	for entity, growth := range counts {
		g.Go(func() error {
			n, err := s.store.CountCreated(gctx, entity, currentFrom, now)
			if err != nil {
				return fmt.Errorf("count %s: %w", entity, err)
			}
			growth.Current = n
			return nil
		})
		g.Go(func() error {
			n, err := s.store.CountCreated(gctx, entity, previousFrom, currentFrom)
			if err != nil {
				return fmt.Errorf("count previous %s: %w", entity, err)
			}
			growth.Previous = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return analytics.Overview{}, err
	}
	for _, growth := range counts {
		growth.Trend = analytics.TrendPercent(growth.Current, growth.Previous)
	}
	return out, nil
}

// TopFlavors ranks flavors by log count over the last days.
func (s *Service) TopFlavors(ctx context.Context, limit, days int) ([]analytics.RankedFlavor, error) {
	limit = clampLimit(limit)
	days, err := windowDays(days)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("analytics:top-flavors:%d:%d", limit, days)
	return cached(ctx, s, key, func() ([]analytics.RankedFlavor, error) {
		return s.store.TopFlavors(ctx, limit, s.now().AddDate(0, 0, -days))
	})
}

// TopShops ranks shops by log count over the last days.
func (s *Service) TopShops(ctx context.Context, limit, days int) ([]analytics.RankedShop, error) {
	limit = clampLimit(limit)
	days, err := windowDays(days)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("analytics:top-shops:%d:%d", limit, days)
	return cached(ctx, s, key, func() ([]analytics.RankedShop, error) {
		return s.store.TopShops(ctx, limit, s.now().AddDate(0, 0, -days))
	})
}

// RatingDistribution counts logs per rating for one shop, or all shops when
// shopID is empty. Every rating from 1 to 5 is present.
func (s *Service) RatingDistribution(ctx context.Context, shopID string) (map[int]int, error) {
	key := "analytics:ratings:" + shopID
	return cached(ctx, s, key, func() (map[int]int, error) {
		dist, err := s.store.RatingDistribution(ctx, shopID)
		if err != nil {
			return nil, err
		}
		out := make(map[int]int, 5)
		for r := 1; r <= 5; r++ {
			out[r] = dist[r]
		}
		return out, nil
	})
}

// DailyActivity returns log counts for each of the last days UTC days,
// oldest first, including days without logs.
func (s *Service) DailyActivity(ctx context.Context, days int) ([]analytics.DailyCount, error) {
	days, err := windowDays(days)
	if err != nil {
		return nil, err
	}
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := today.AddDate(0, 0, -(days - 1))
	key := fmt.Sprintf("analytics:daily:%d:%s", days, today.Format(dayLayout))

	return cached(ctx, s, key, func() ([]analytics.DailyCount, error) {
		raw, err := s.store.DailyLogCounts(ctx, since)
		if err != nil {
			return nil, err
		}
		byDay := make(map[string]int, len(raw))
		for _, d := range raw {
			byDay[d.Day] = d.Count
		}
		out := make([]analytics.DailyCount, 0, days)
		for d := since; !d.After(today); d = d.AddDate(0, 0, 1) {
			day := d.Format(dayLayout)
			out = append(out, analytics.DailyCount{Day: day, Count: byDay[day]})
		}
		return out, nil
	})
}

// Rollup recomputes the default overview and refreshes its cache entry.
func (s *Service) Rollup(ctx context.Context) (analytics.Overview, error) {
	overview, err := s.computeOverview(ctx, DefaultWindowDays)
	if err != nil {
		return analytics.Overview{}, err
	}
	if err := s.cache.Set(ctx, overviewKey(DefaultWindowDays), overview, CacheTTL); err != nil {
		s.log.WithError(err).Warn("analytics rollup cache write failed")
	}
	s.log.WithFields(map[string]interface{}{
		"users": overview.Totals.Users,
		"shops": overview.Totals.Shops,
		"logs":  overview.Totals.Logs,
	}).Info("analytics rollup complete")
	return overview, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	if limit > 100 {
		return 100
	}
	return limit
}
