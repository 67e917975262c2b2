package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"financas/internal/analytics"
	"financas/internal/cache"
	"financas/internal/core"
)

const (
	dashboardTopN   = 6
	trendMonths     = 6
	trendLookback   = 12
	keySummary      = "summary:"
	keyCategories   = "categories:"
	keySubcategory  = "subcategories:"
	keyRecurrences  = "recurrences"
	keyMonthlyTotal = "totals:"
)

// AnalyticsBackend is the read side of the backend.
type AnalyticsBackend interface {
	MonthlySummary(ctx context.Context, year, month int) (core.MonthSummary, error)
	CategoryBreakdown(ctx context.Context, year, month int) ([]core.CategoryTotal, error)
	SubcategoryBreakdown(ctx context.Context, category string, year, month int) ([]core.CategoryTotal, error)
	RecurrenceReport(ctx context.Context) ([]core.DetectedRecurrence, error)
	MonthlyTotals(ctx context.Context, months int) ([]core.MonthTotal, error)
}

// AnalyticsCaches holds one cache per result type.
type AnalyticsCaches struct {
	Summaries   cache.Cache[core.MonthSummary]
	Breakdowns  cache.Cache[[]core.CategoryTotal]
	Recurrences cache.Cache[[]core.DetectedRecurrence]
	Totals      cache.Cache[[]core.MonthTotal]
}

// NewMemoryCaches builds in-process LRU caches and registers them for cleanup.
func NewMemoryCaches(size int, ttl time.Duration, manager *cache.Manager) AnalyticsCaches {
	summaries := cache.NewLRUCache[core.MonthSummary](size, ttl)
	breakdowns := cache.NewLRUCache[[]core.CategoryTotal](size, ttl)
	recurrences := cache.NewLRUCache[[]core.DetectedRecurrence](4, ttl)
	totals := cache.NewLRUCache[[]core.MonthTotal](16, ttl)
	if manager != nil {
		manager.Register(summaries)
		manager.Register(breakdowns)
		manager.Register(recurrences)
		manager.Register(totals)
	}
	return AnalyticsCaches{
		Summaries:   summaries,
		Breakdowns:  breakdowns,
		Recurrences: recurrences,
		Totals:      totals,
	}
}

// NewRedisCaches builds caches shared by every instance through Redis.
func NewRedisCaches(client *redis.Client, ttl time.Duration) AnalyticsCaches {
	return AnalyticsCaches{
		Summaries:   cache.NewRedisCacheFromClient[core.MonthSummary](client, "financas:analytics:", ttl),
		Breakdowns:  cache.NewRedisCacheFromClient[[]core.CategoryTotal](client, "financas:analytics:", ttl),
		Recurrences: cache.NewRedisCacheFromClient[[]core.DetectedRecurrence](client, "financas:analytics:", ttl),
		Totals:      cache.NewRedisCacheFromClient[[]core.MonthTotal](client, "financas:analytics:", ttl),
	}
}

// Dashboard is everything the overview page shows for one month.
type Dashboard struct {
	Year        int
	Month       int
	Summary     core.MonthSummary
	Categories  []analytics.Slice
	Monthly     []analytics.MonthPoint
	Trends      []analytics.TrendLine
	Recurrences []core.DetectedRecurrence
}

// AnalyticsService serves backend aggregates through a cache, collapsing
// concurrent identical requests into one backend call.
type AnalyticsService struct {
	backend AnalyticsBackend
	caches  AnalyticsCaches
	flight  singleflight.Group
}

func NewAnalyticsService(backend AnalyticsBackend, caches AnalyticsCaches) *AnalyticsService {
	return &AnalyticsService{backend: backend, caches: caches}
}

func monthKey(year, month int) string {
	return core.NewDate(year, month, 1).MonthKey()
}

func cached[T any](ctx context.Context, s *AnalyticsService, c cache.Cache[T], key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, shared := s.flight.Do(key, func() (any, error) {
		val, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, val)
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if shared {
		slog.DebugContext(ctx, "Analytics request shared", "key", key)
	}
	return v.(T), nil
}

func (s *AnalyticsService) MonthlySummary(ctx context.Context, year, month int) (core.MonthSummary, error) {
	return cached(ctx, s, s.caches.Summaries, keySummary+monthKey(year, month),
		func(ctx context.Context) (core.MonthSummary, error) {
			return s.backend.MonthlySummary(ctx, year, month)
		})
}

func (s *AnalyticsService) CategoryBreakdown(ctx context.Context, year, month int) ([]core.CategoryTotal, error) {
	return cached(ctx, s, s.caches.Breakdowns, keyCategories+monthKey(year, month),
		func(ctx context.Context) ([]core.CategoryTotal, error) {
			return s.backend.CategoryBreakdown(ctx, year, month)
		})
}

func (s *AnalyticsService) SubcategoryBreakdown(ctx context.Context, category string, year, month int) ([]core.CategoryTotal, error) {
	return cached(ctx, s, s.caches.Breakdowns, keySubcategory+monthKey(year, month)+":"+category,
		func(ctx context.Context) ([]core.CategoryTotal, error) {
			return s.backend.SubcategoryBreakdown(ctx, category, year, month)
		})
}

func (s *AnalyticsService) RecurrenceReport(ctx context.Context) ([]core.DetectedRecurrence, error) {
	return cached(ctx, s, s.caches.Recurrences, keyRecurrences,
		func(ctx context.Context) ([]core.DetectedRecurrence, error) {
			return s.backend.RecurrenceReport(ctx)
		})
}

func (s *AnalyticsService) MonthlyTotals(ctx context.Context, months int) ([]core.MonthTotal, error) {
	return cached(ctx, s, s.caches.Totals, keyMonthlyTotal+strconv.Itoa(months),
		func(ctx context.Context) ([]core.MonthTotal, error) {
			return s.backend.MonthlyTotals(ctx, months)
		})
}

// Dashboard loads the month's summary, distribution and trends in parallel.
// The recurrence report is optional: its failure is logged and the rest is returned.
func (s *AnalyticsService) Dashboard(ctx context.Context, year, month int) (Dashboard, error) {
	d := Dashboard{Year: year, Month: month}
	end := core.NewDate(year, month, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary, err := s.MonthlySummary(gctx, year, month)
		if err != nil {
			return fmt.Errorf("monthly summary: %w", err)
		}
		d.Summary = summary
		return nil
	})
	g.Go(func() error {
		totals, err := s.CategoryBreakdown(gctx, year, month)
		if err != nil {
			return fmt.Errorf("category breakdown: %w", err)
		}
		d.Categories = analytics.Distribution(totals, dashboardTopN)
		return nil
	})
	g.Go(func() error {
		points, err := s.MonthlyTotals(gctx, trendLookback)
		if err != nil {
			return fmt.Errorf("monthly totals: %w", err)
		}
		d.Monthly = analytics.MonthlySeries(points, end, trendMonths)
		d.Trends = analytics.CategoryTrend(points, end, trendMonths)
		if len(d.Trends) > dashboardTopN {
			d.Trends = d.Trends[:dashboardTopN]
		}
		return nil
	})
	g.Go(func() error {
		recs, err := s.RecurrenceReport(gctx)
		if err != nil {
			slog.WarnContext(gctx, "Recurrence report unavailable", "error", err)
			return nil
		}
		d.Recurrences = recs
		return nil
	})

	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

// Invalidate drops cached data for a month plus the cross-month aggregates.
func (s *AnalyticsService) Invalidate(year, month int) {
	key := monthKey(year, month)
	n := s.caches.Summaries.DeletePrefix(keySummary + key)
	n += s.caches.Breakdowns.DeletePrefix(keyCategories + key)
	n += s.caches.Breakdowns.DeletePrefix(keySubcategory + key)
	n += s.caches.Totals.DeletePrefix(keyMonthlyTotal)
	n += s.caches.Recurrences.DeletePrefix(keyRecurrences)
	slog.Debug("Analytics cache invalidated", "year", year, "month", month, "entries", n)
}

// InvalidateAll empties every analytics cache.
func (s *AnalyticsService) InvalidateAll() {
	n := s.caches.Summaries.DeletePrefix(keySummary)
	n += s.caches.Breakdowns.DeletePrefix(keyCategories)
	n += s.caches.Breakdowns.DeletePrefix(keySubcategory)
	n += s.caches.Totals.DeletePrefix(keyMonthlyTotal)
	n += s.caches.Recurrences.DeletePrefix(keyRecurrences)
	slog.Debug("Analytics cache cleared", "entries", n)
}
