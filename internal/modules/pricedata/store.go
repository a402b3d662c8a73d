package pricedata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/madfolio/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Built-in dataset names.
const (
	DatasetUniverse = "universe"
	DatasetStocks   = "stocks"
	DatasetETFs     = "etfs"
	DatasetBonds    = "bonds"
)

var (
	// ErrNotLoaded is returned by Series before Load has completed.
	ErrNotLoaded = errors.New("price store not loaded")
	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("price store closed")
)

// priceFile maps a built-in dataset to its file and the category of every
// instrument in it. The file of origin decides the category.
type priceFile struct {
	dataset  string
	name     string
	category domain.Category
}

var priceFiles = []priceFile{
	{DatasetStocks, "stocks.csv", domain.Equity},
	{DatasetETFs, "etfs.csv", domain.ETF},
	{DatasetBonds, "bonds.csv", domain.Bond},
}

// Store serves the built-in price history and client datasets. Built-in
// tables are read once by Load and never change afterwards.
type Store struct {
	source   Source
	datasets *DatasetRepository
	log      zerolog.Logger

	mu     sync.RWMutex
	tables map[string]domain.PriceSeries
	loaded bool
	closed bool
}

// NewStore creates a store. source may be nil when only submitted datasets are
// served; datasets may be nil when submissions are disabled.
func NewStore(source Source, datasets *DatasetRepository, log zerolog.Logger) *Store {
	return &Store{
		source:   source,
		datasets: datasets,
		log:      log.With().Str("component", "pricedata").Logger(),
	}
}

// Load reads the price files concurrently. It may be called once.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.loaded {
		return fmt.Errorf("price store already loaded")
	}

	tables := make(map[string]domain.PriceSeries)
	if s.source == nil {
		s.log.Warn().Msg("No price source configured, only submitted datasets are available")
		s.tables, s.loaded = tables, true
		return nil
	}

	start := time.Now()
	results := make([]domain.PriceSeries, len(priceFiles))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range priceFiles {
		g.Go(func() error {
			ps, err := s.readFile(gctx, f)
			if err != nil {
				return err
			}
			results[i] = ps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, f := range priceFiles {
		tables[f.dataset] = results[i]
	}
	universe := merge(results...)
	if err := universe.Validate(); err != nil {
		return fmt.Errorf("invalid price universe from %s: %w", s.source, err)
	}
	tables[DatasetUniverse] = universe

	s.tables, s.loaded = tables, true
	s.log.Info().
		Str("source", s.source.String()).
		Int("instruments", universe.Width()).
		Int("rows", universe.Len()).
		Dur("duration", time.Since(start)).
		Msg("Price data loaded")
	return nil
}

func (s *Store) readFile(ctx context.Context, f priceFile) (domain.PriceSeries, error) {
	rc, err := s.source.Open(ctx, f.name)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	defer rc.Close()

	ps, err := ReadCSV(rc, func(string) domain.Category { return f.category })
	if err != nil {
		return domain.PriceSeries{}, fmt.Errorf("failed to parse %s: %w", f.name, err)
	}
	if err := ps.Validate(); err != nil {
		return domain.PriceSeries{}, fmt.Errorf("invalid prices in %s: %w", f.name, err)
	}
	if odd := prefixMismatches(ps, f.category); len(odd) > 0 {
		s.log.Warn().
			Str("file", f.name).
			Str("category", f.category.String()).
			Strs("symbols", odd).
			Msg("Symbol prefix disagrees with file category, keeping file category")
	}
	s.log.Debug().Str("file", f.name).Int("instruments", ps.Width()).Int("rows", ps.Len()).Msg("Price file parsed")
	return ps, nil
}

// prefixMismatches lists the symbols whose ETF or BND prefix names a category
// other than the one their file assigns. Unprefixed symbols never mismatch.
func prefixMismatches(ps domain.PriceSeries, category domain.Category) []string {
	var odd []string
	for _, inst := range ps.Instruments {
		if c := domain.CategoryFromSymbol(inst.Symbol); c != domain.Equity && c != category {
			odd = append(odd, inst.Symbol)
		}
	}
	return odd
}

// Close releases the loaded tables. The store cannot be reused.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = nil
	s.closed = true
	return nil
}

// Series resolves a dataset name: "" or "universe" for all instruments,
// "stocks", "etfs", "bonds", or the id of a submitted dataset.
func (s *Store) Series(ctx context.Context, dataset string) (domain.PriceSeries, error) {
	if dataset == "" {
		dataset = DatasetUniverse
	}

	s.mu.RLock()
	closed, loaded := s.closed, s.loaded
	ps, ok := s.tables[dataset]
	s.mu.RUnlock()

	switch {
	case closed:
		return domain.PriceSeries{}, ErrClosed
	case !loaded:
		return domain.PriceSeries{}, ErrNotLoaded
	case ok:
		return ps, nil
	}

	id, err := uuid.Parse(dataset)
	if err != nil {
		if isBuiltin(dataset) {
			return domain.PriceSeries{}, domain.NewDataError("dataset", "no price data loaded for %s", dataset)
		}
		return domain.PriceSeries{}, domain.NewDataError("dataset", "unknown dataset %q", dataset)
	}
	if s.datasets == nil {
		return domain.PriceSeries{}, domain.NewDataError("dataset", "submitted datasets are disabled")
	}
	ps, err = s.datasets.Get(ctx, id)
	if errors.Is(err, ErrDatasetNotFound) {
		return domain.PriceSeries{}, domain.NewDataError("dataset", "%v", err)
	}
	return ps, err
}

// Submit parses and stores a client dataset.
func (s *Store) Submit(ctx context.Context, data []byte) (DatasetInfo, error) {
	if s.datasets == nil {
		return DatasetInfo{}, domain.NewDataError("dataset", "submitted datasets are disabled")
	}
	ps, err := ParseSubmission(data)
	if err != nil {
		return DatasetInfo{}, err
	}
	return s.datasets.Save(ctx, ps)
}

// Info describes a built-in or submitted dataset.
func (s *Store) Info(ctx context.Context, dataset string) (DatasetInfo, error) {
	if id, err := uuid.Parse(dataset); err == nil && s.datasets != nil {
		info, err := s.datasets.Info(ctx, id)
		if errors.Is(err, ErrDatasetNotFound) {
			return DatasetInfo{}, domain.NewDataError("dataset", "%v", err)
		}
		return info, err
	}
	ps, err := s.Series(ctx, dataset)
	if err != nil {
		return DatasetInfo{}, err
	}
	if dataset == "" {
		dataset = DatasetUniverse
	}
	return summary(dataset, ps), nil
}

func isBuiltin(name string) bool {
	for _, f := range priceFiles {
		if f.dataset == name {
			return true
		}
	}
	return name == DatasetUniverse
}
