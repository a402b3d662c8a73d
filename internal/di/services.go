package di

import (
	"context"
	"fmt"

	"github.com/aristath/madfolio/internal/config"
	"github.com/aristath/madfolio/internal/modules/calculations"
	"github.com/aristath/madfolio/internal/modules/optimization"
	"github.com/aristath/madfolio/internal/modules/pricedata"
	"github.com/aristath/madfolio/internal/modules/statistics"
	"github.com/aristath/madfolio/internal/modules/valuation"
	"github.com/aristath/madfolio/internal/solver"
	"github.com/aristath/madfolio/pkg/logger"
	"github.com/rs/zerolog"
)

// InitializeServices builds the repositories, loads the price store and creates the services
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Datasets = pricedata.NewDatasetRepository(container.DatasetsDB.Conn(), cfg.DatasetTTL, log)
	container.Cache = calculations.NewCache(container.CacheDB.Conn(), log)

	source, err := priceSource(ctx, cfg.PriceData)
	if err != nil {
		return err
	}
	container.Prices = pricedata.NewStore(source, container.Datasets, log)
	if err := container.Prices.Load(ctx); err != nil {
		return fmt.Errorf("failed to load price data: %w", err)
	}

	optCfg := OptimizerConfig(cfg.Optimizer, log)
	container.Optimization = optimization.NewService(container.Prices, container.Cache, cfg.CacheTTL, optCfg, log)
	container.Valuation = valuation.NewService(
		container.Prices,
		valuation.NewEngine(optCfg.PeriodsPerYear, valuation.DefaultRollingWindow, log),
	)

	log.Info().
		Bool("one_sided", optCfg.Deviation == optimization.OneSided).
		Int("max_nodes", optCfg.Solver.MaxNodes).
		Msg("Services initialized")
	return nil
}

// priceSource picks the bucket when one is configured, then the directory.
// Neither means only submitted datasets are served.
func priceSource(ctx context.Context, cfg config.PriceDataConfig) (pricedata.Source, error) {
	switch {
	case cfg.S3Bucket != "":
		src, err := pricedata.NewS3Source(ctx, pricedata.S3Config{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 price source: %w", err)
		}
		return src, nil
	case cfg.Dir != "":
		return pricedata.DirSource{Dir: cfg.Dir}, nil
	default:
		return nil, nil
	}
}

// OptimizerConfig maps the environment settings onto the optimizer configuration.
func OptimizerConfig(cfg config.OptimizerConfig, log zerolog.Logger) optimization.Config {
	out := optimization.DefaultConfig()
	out.Solver.MaxNodes = cfg.SolverMaxNodes
	out.Solver.Tolerance = cfg.SolverTolerance
	out.Solver.Logger = logger.Component(log, "solver")
	out.Grouping = statistics.ParseGrouping(cfg.Grouping)
	if cfg.MADOneSided {
		out.Deviation = optimization.OneSided
	}
	out.PeriodsPerYear = cfg.PeriodsPerYear
	out.FlatFeePerUnit = cfg.FlatFeePerUnit
	out.GridPoints = cfg.FrontierGridPoints
	if out.Solver.MaxNodes <= 0 {
		out.Solver.MaxNodes = solver.DefaultOptions().MaxNodes
	}
	return out
}
