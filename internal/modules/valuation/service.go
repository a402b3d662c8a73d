package valuation

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/aristath/madfolio/internal/domain"
)

// PriceProvider resolves a dataset name to its price table.
// Implemented by pricedata.Store.
type PriceProvider interface {
	Series(ctx context.Context, dataset string) (domain.PriceSeries, error)
}

// Service runs valuations against the loaded price data.
type Service struct {
	prices PriceProvider
	engine *Engine
}

// NewService creates a new valuation service.
func NewService(prices PriceProvider, engine *Engine) *Service {
	return &Service{prices: prices, engine: engine}
}

func (s *Service) series(ctx context.Context, dataset string) (domain.PriceSeries, error) {
	prices, err := s.prices.Series(ctx, dataset)
	if err != nil {
		return domain.PriceSeries{}, fmt.Errorf("failed to load dataset %q: %w", dataset, err)
	}
	return prices, nil
}

// PortfolioValue values fixed dollar holdings at the end of [from, to].
func (s *Service) PortfolioValue(ctx context.Context, dataset string, holdings map[string]float64, from, to time.Time) (float64, error) {
	prices, err := s.series(ctx, dataset)
	if err != nil {
		return 0, err
	}
	return s.engine.ValueAtEnd(prices, holdings, from, to)
}

// Backtest runs a periodic-rebalance backtest of weights over [from, to].
func (s *Service) Backtest(ctx context.Context, dataset string, freq Frequency, weights map[string]float64, from, to time.Time) (*domain.PerformanceResult, error) {
	prices, err := s.series(ctx, dataset)
	if err != nil {
		return nil, err
	}
	symbols := slices.Sorted(maps.Keys(weights))
	selected, err := prices.Slice(from, to).Select(symbols)
	if err != nil {
		return nil, err
	}
	return s.engine.PeriodicRebalance(selected, freq, weights)
}

// InstrumentSeries returns one instrument's normalized history.
func (s *Service) InstrumentSeries(ctx context.Context, dataset, symbol string, from, to time.Time) (*domain.PerformanceResult, error) {
	prices, err := s.series(ctx, dataset)
	if err != nil {
		return nil, err
	}
	return s.engine.InstrumentSeries(prices, symbol, from, to)
}
