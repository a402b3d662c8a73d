// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/madfolio/internal/database"
	"github.com/aristath/madfolio/internal/modules/calculations"
	"github.com/aristath/madfolio/internal/modules/optimization"
	"github.com/aristath/madfolio/internal/modules/pricedata"
	"github.com/aristath/madfolio/internal/modules/valuation"
	"github.com/aristath/madfolio/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire and released with Close.
type Container struct {
	// Databases
	DatasetsDB *database.DB // submitted datasets (standard profile)
	CacheDB    *database.DB // optimizer results (cache profile)

	// Repositories
	Datasets *pricedata.DatasetRepository
	Cache    *calculations.Cache

	// Services
	Prices       *pricedata.Store
	Optimization *optimization.Service
	Valuation    *valuation.Service

	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered background jobs, so they can be run on demand.
type JobInstances struct {
	CleanupExpired     *scheduler.CleanupExpiredJob
	CheckWALCheckpoint *scheduler.CheckWALCheckpointsJob
}

// Databases lists the open databases, for status reporting.
func (c *Container) Databases() []*database.DB {
	return []*database.DB{c.DatasetsDB, c.CacheDB}
}

// Close stops the scheduler and releases the store and databases.
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	var firstErr error
	if c.Prices != nil {
		if err := c.Prices.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, db := range c.Databases() {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
