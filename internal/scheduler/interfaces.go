package scheduler

import "context"

// Expirer removes entries whose lifetime has passed.
// Implemented by pricedata.DatasetRepository and calculations.Cache.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}
