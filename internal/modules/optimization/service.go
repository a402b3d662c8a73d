package optimization

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/madfolio/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

// Selection picks the price table an optimization runs on.
type Selection struct {
	Dataset string    // empty selects the default universe
	Symbols []string  // empty keeps every instrument
	From    time.Time // zero leaves the range open
	To      time.Time
}

// Service runs the optimizers against the loaded price data.
type Service struct {
	prices     PriceProvider
	cache      ResultCache
	cacheTTL   time.Duration
	mad        *MADOptimizer
	rebalancer *RebalanceOptimizer
	group      singleflight.Group
	log        zerolog.Logger
}

// NewService creates a new optimization service. cache may be nil.
func NewService(prices PriceProvider, cache ResultCache, cacheTTL time.Duration, cfg Config, log zerolog.Logger) *Service {
	return &Service{
		prices:     prices,
		cache:      cache,
		cacheTTL:   cacheTTL,
		mad:        NewMADOptimizer(cfg, log),
		rebalancer: NewRebalanceOptimizer(cfg, log),
		log:        log.With().Str("service", "optimization").Logger(),
	}
}

// Prices resolves a selection to a validated price table.
func (s *Service) Prices(ctx context.Context, sel Selection) (domain.PriceSeries, error) {
	series, err := s.prices.Series(ctx, sel.Dataset)
	if err != nil {
		return domain.PriceSeries{}, fmt.Errorf("failed to load dataset %q: %w", sel.Dataset, err)
	}
	series = series.Slice(sel.From, sel.To)
	if len(sel.Symbols) > 0 {
		series, err = series.Select(sel.Symbols)
		if err != nil {
			return domain.PriceSeries{}, err
		}
	}
	if err := series.Validate(); err != nil {
		return domain.PriceSeries{}, err
	}
	return series, nil
}

// Portfolio builds a MAD allocation.
func (s *Service) Portfolio(ctx context.Context, sel Selection, params AllocationParams) (*domain.Allocation, error) {
	prices, err := s.Prices(ctx, sel)
	if err != nil {
		return nil, err
	}
	return s.mad.Allocate(ctx, prices, params)
}

// FrontierSweep prepares a lazy frontier sweep, for streaming.
func (s *Service) FrontierSweep(ctx context.Context, sel Selection, allowShort bool) (*FrontierSweep, error) {
	prices, err := s.Prices(ctx, sel)
	if err != nil {
		return nil, err
	}
	return s.mad.Frontier(prices, allowShort)
}

// Frontier computes the whole efficient frontier, served from the cache when possible.
func (s *Service) Frontier(ctx context.Context, sel Selection, allowShort bool) ([]FrontierPoint, error) {
	key := frontierKey(sel, allowShort, s.mad.cfg)
	if s.cache != nil {
		if data, ok := s.cache.GetOptimizer("frontier", key); ok {
			var points []FrontierPoint
			if err := msgpack.Unmarshal(data, &points); err == nil {
				s.log.Debug().Str("hash", key[:8]).Int("points", len(points)).Msg("Using cached frontier")
				return points, nil
			}
			s.log.Warn().Msg("Failed to unmarshal cached frontier, recalculating")
		}
	}

	// Concurrent identical requests share one sweep. It runs detached from any
	// single caller, and every caller stops waiting when its own context ends.
	ch := s.group.DoChan(key, func() (interface{}, error) {
		sctx := context.WithoutCancel(ctx)
		sweep, err := s.FrontierSweep(sctx, sel, allowShort)
		if err != nil {
			return nil, err
		}
		points, err := sweep.All(sctx)
		if err != nil {
			return nil, err
		}
		return points, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	points := res.Val.([]FrontierPoint)
	if res.Shared {
		s.log.Debug().Str("hash", key[:8]).Msg("Joined in-flight frontier sweep")
	}

	if s.cache != nil {
		if data, err := msgpack.Marshal(points); err == nil {
			if err := s.cache.SetOptimizer("frontier", key, data, s.cacheTTL); err != nil {
				s.log.Warn().Err(err).Msg("Failed to cache frontier")
			}
		}
	}
	return points, nil
}

// Rebalance moves old to a new allocation at minimum transaction cost.
func (s *Service) Rebalance(ctx context.Context, sel Selection, old *domain.Allocation, params RebalanceParams) (*domain.Allocation, error) {
	if old == nil {
		return nil, domain.NewDataError("old", "previous allocation is required")
	}
	prices, err := s.Prices(ctx, sel)
	if err != nil {
		return nil, err
	}
	return s.rebalancer.Rebalance(ctx, prices, OldHoldings(old, params.Amount), params)
}

// OldHoldings returns the dollar holdings of a previous allocation. Allocations
// that only carry weights are scaled to amount.
func OldHoldings(old *domain.Allocation, amount float64) map[string]float64 {
	if len(old.Holdings) > 0 {
		return old.Holdings
	}
	out := make(map[string]float64, len(old.Long)+len(old.Short))
	for sym, w := range old.Weights() {
		out[sym] = w * amount
	}
	return out
}

// frontierKey hashes everything that determines a frontier, so equal requests
// share a cache entry. The optimizer settings are part of it because cached
// frontiers outlive a restart with a different configuration.
func frontierKey(sel Selection, allowShort bool, cfg Config) string {
	symbols := append([]string(nil), sel.Symbols...)
	sort.Strings(symbols)
	keyData := fmt.Sprintf("%s|%s|%s|%s|%t|%d|%g|%d|%d|%g",
		sel.Dataset,
		strings.Join(symbols, ","),
		formatDate(sel.From),
		formatDate(sel.To),
		allowShort,
		cfg.GridPoints,
		cfg.MaxShortWeight,
		cfg.Deviation,
		cfg.Grouping,
		cfg.PeriodsPerYear,
	)
	h := sha256.Sum256([]byte(keyData))
	return hex.EncodeToString(h[:16])
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(domain.DateLayout)
}
