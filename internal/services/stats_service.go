package services

import (
	"context"

	"moneta/internal/core"
	"moneta/internal/storage"
)

// ChartData bundles the two breakdowns the dashboard charts consume.
// Both are rebuilt from scratch on every call; there is no incremental
// update contract.
type ChartData struct {
	Categories []core.CategoryBreakdown
	Monthly    []core.MonthBreakdown
}

// StatsService computes the aggregation views over a filtered transaction
// set. All sums are integer cents, so summation order cannot drift.
type StatsService struct {
	store *storage.SQLiteRepository
}

func NewStatsService(store *storage.SQLiteRepository) *StatsService {
	return &StatsService{store: store}
}

// Summary returns income, expense, net and count for the filtered set.
func (s *StatsService) Summary(ctx context.Context, f core.Filter) (core.Summary, error) {
	return s.store.Summarize(ctx, f)
}

// ChartData returns the per-category and per-month breakdowns for the
// filtered set.
func (s *StatsService) ChartData(ctx context.Context, f core.Filter) (ChartData, error) {
	categories, err := s.store.CategoryBreakdown(ctx, f)
	if err != nil {
		return ChartData{}, err
	}
	monthly, err := s.store.MonthlyBreakdown(ctx, f)
	if err != nil {
		return ChartData{}, err
	}
	return ChartData{Categories: categories, Monthly: monthly}, nil
}
