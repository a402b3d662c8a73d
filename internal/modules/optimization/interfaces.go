package optimization

import (
	"context"
	"time"

	"github.com/aristath/madfolio/internal/domain"
)

// PriceProvider resolves a dataset name to its price table.
// Implemented by pricedata.Store.
type PriceProvider interface {
	Series(ctx context.Context, dataset string) (domain.PriceSeries, error)
}

// ResultCache stores serialized optimizer results.
// Implemented by calculations.Cache.
type ResultCache interface {
	GetOptimizer(kind, key string) ([]byte, bool)
	SetOptimizer(kind, key string, data []byte, ttl time.Duration) error
}
