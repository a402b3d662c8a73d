package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/madfolio/internal/config"
	"github.com/aristath/madfolio/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens and migrates the datasets and cache databases
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// datasets.db - client-submitted price datasets
	datasetsDB, err := openDatabase(cfg.DataDir, database.NameDatasets, database.ProfileStandard)
	if err != nil {
		return nil, err
	}
	container.DatasetsDB = datasetsDB

	// cache.db - optimizer results, safe to lose
	cacheDB, err := openDatabase(cfg.DataDir, database.NameCache, database.ProfileCache)
	if err != nil {
		datasetsDB.Close()
		return nil, err
	}
	container.CacheDB = cacheDB

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return container, nil
}

func openDatabase(dataDir, name string, profile database.DatabaseProfile) (*database.DB, error) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(dataDir, name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s database: %w", name, err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s database: %w", name, err)
	}
	return db, nil
}
