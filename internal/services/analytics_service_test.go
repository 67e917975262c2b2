package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"financas/internal/cache"
	"financas/internal/core"
)

type countingBackend struct {
	summaryCalls    atomic.Int32
	categoryCalls   atomic.Int32
	totalsCalls     atomic.Int32
	recurrenceErr   error
	summaryDelay    time.Duration
	categoryTotals  []core.CategoryTotal
	monthlyTotals   []core.MonthTotal
	subcategoryCall atomic.Int32
}

func (b *countingBackend) MonthlySummary(_ context.Context, year, month int) (core.MonthSummary, error) {
	b.summaryCalls.Add(1)
	time.Sleep(b.summaryDelay)
	return core.MonthSummary{Year: year, Month: month, Income: core.Money{Cents: 500000}, Expenses: core.Money{Cents: 320000}, Balance: core.Money{Cents: 180000}}, nil
}

func (b *countingBackend) CategoryBreakdown(context.Context, int, int) ([]core.CategoryTotal, error) {
	b.categoryCalls.Add(1)
	return b.categoryTotals, nil
}

func (b *countingBackend) SubcategoryBreakdown(_ context.Context, category string, _, _ int) ([]core.CategoryTotal, error) {
	b.subcategoryCall.Add(1)
	return []core.CategoryTotal{{Name: category + "/Geral", Amount: core.Money{Cents: 100}}}, nil
}

func (b *countingBackend) RecurrenceReport(context.Context) ([]core.DetectedRecurrence, error) {
	if b.recurrenceErr != nil {
		return nil, b.recurrenceErr
	}
	return []core.DetectedRecurrence{{Description: "Aluguel", Frequency: core.Monthly}}, nil
}

func (b *countingBackend) MonthlyTotals(context.Context, int) ([]core.MonthTotal, error) {
	b.totalsCalls.Add(1)
	return b.monthlyTotals, nil
}

func newAnalytics(b *countingBackend) *AnalyticsService {
	return NewAnalyticsService(b, NewMemoryCaches(32, time.Minute, nil))
}

func TestAnalyticsService_CachesSummary(t *testing.T) {
	b := &countingBackend{}
	svc := newAnalytics(b)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s, err := svc.MonthlySummary(ctx, 2024, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(180000), s.Balance.Cents)
	}
	assert.Equal(t, int32(1), b.summaryCalls.Load())

	_, err := svc.MonthlySummary(ctx, 2024, 4)
	require.NoError(t, err)
	assert.Equal(t, int32(2), b.summaryCalls.Load())
}

func TestAnalyticsService_CollapsesConcurrentRequests(t *testing.T) {
	b := &countingBackend{summaryDelay: 50 * time.Millisecond}
	svc := newAnalytics(b)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.MonthlySummary(context.Background(), 2024, 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), b.summaryCalls.Load())
}

func TestAnalyticsService_Invalidate(t *testing.T) {
	b := &countingBackend{}
	svc := newAnalytics(b)
	ctx := context.Background()

	_, _ = svc.MonthlySummary(ctx, 2024, 3)
	_, _ = svc.MonthlySummary(ctx, 2024, 4)
	_, _ = svc.SubcategoryBreakdown(ctx, "Casa", 2024, 3)

	svc.Invalidate(2024, 3)

	_, _ = svc.MonthlySummary(ctx, 2024, 3)
	_, _ = svc.MonthlySummary(ctx, 2024, 4)
	_, _ = svc.SubcategoryBreakdown(ctx, "Casa", 2024, 3)
	assert.Equal(t, int32(3), b.summaryCalls.Load())
	assert.Equal(t, int32(2), b.subcategoryCall.Load())

	svc.InvalidateAll()
	_, _ = svc.MonthlySummary(ctx, 2024, 4)
	assert.Equal(t, int32(4), b.summaryCalls.Load())
}

func TestAnalyticsService_Dashboard(t *testing.T) {
	b := &countingBackend{
		categoryTotals: []core.CategoryTotal{
			{Name: "Casa", Amount: core.Money{Cents: 150000}},
			{Name: "Alimentação", Amount: core.Money{Cents: 50000}},
		},
		monthlyTotals: []core.MonthTotal{
			{Year: 2024, Month: 2, Category: "Casa", Amount: core.Money{Cents: 1000}},
			{Year: 2024, Month: 3, Category: "Casa", Amount: core.Money{Cents: 2000}},
			{Year: 2024, Month: 3, Category: "Lazer", Amount: core.Money{Cents: 500}},
		},
		recurrenceErr: errors.New("report unavailable"),
	}
	svc := newAnalytics(b)

	d, err := svc.Dashboard(context.Background(), 2024, 3)
	require.NoError(t, err)

	assert.Equal(t, 2024, d.Year)
	assert.Equal(t, int64(180000), d.Summary.Balance.Cents)
	require.Len(t, d.Categories, 2)
	assert.Equal(t, "Casa", d.Categories[0].Name)
	assert.Equal(t, 75, d.Categories[0].Percent)

	require.Len(t, d.Monthly, trendMonths)
	assert.Equal(t, "2024-03", d.Monthly[trendMonths-1].Key)
	assert.Equal(t, int64(2500), d.Monthly[trendMonths-1].Amount.Cents)
	require.Len(t, d.Trends, 2)
	assert.Equal(t, "Casa", d.Trends[0].Category)

	assert.Empty(t, d.Recurrences)
}

func TestNewMemoryCaches_RegistersWithManager(t *testing.T) {
	m := cache.NewManager()
	caches := NewMemoryCaches(8, time.Nanosecond, m)
	caches.Summaries.Set("summary:2024-03", core.MonthSummary{})
	time.Sleep(time.Millisecond)

	assert.Equal(t, 1, m.CleanNow())
}
