package pricedata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/madfolio/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrDatasetNotFound is returned for unknown or expired dataset ids.
var ErrDatasetNotFound = errors.New("dataset not found")

// storedDataset is the msgpack payload of a dataset row.
type storedDataset struct {
	Dates       []string            `msgpack:"dates"`
	Instruments []domain.Instrument `msgpack:"instruments"`
	Prices      [][]float64         `msgpack:"prices"`
}

// DatasetRepository persists client-submitted datasets in SQLite.
type DatasetRepository struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
	log zerolog.Logger
}

// NewDatasetRepository creates a repository over a database migrated with the
// datasets schema. Datasets older than ttl are invisible and removed by DeleteExpired.
func NewDatasetRepository(db *sql.DB, ttl time.Duration, log zerolog.Logger) *DatasetRepository {
	return &DatasetRepository{
		db:  db,
		ttl: ttl,
		now: time.Now,
		log: log.With().Str("repo", "datasets").Logger(),
	}
}

// Save stores ps under a fresh id.
func (r *DatasetRepository) Save(ctx context.Context, ps domain.PriceSeries) (DatasetInfo, error) {
	if err := ps.Validate(); err != nil {
		return DatasetInfo{}, err
	}

	stored := storedDataset{
		Dates:       make([]string, ps.Len()),
		Instruments: ps.Instruments,
		Prices:      ps.Prices,
	}
	for i, d := range ps.Dates {
		stored.Dates[i] = d.Format(domain.DateLayout)
	}
	payload, err := msgpack.Marshal(stored)
	if err != nil {
		return DatasetInfo{}, fmt.Errorf("failed to encode dataset: %w", err)
	}

	info := summary(uuid.NewString(), ps)
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO datasets (id, symbols, row_count, first_date, last_date, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, info.ID, strings.Join(info.Symbols, ","), info.Rows, info.From, info.To, payload, r.now().Unix())
	if err != nil {
		return DatasetInfo{}, fmt.Errorf("failed to insert dataset: %w", err)
	}

	r.log.Info().Str("id", info.ID).Int("symbols", len(info.Symbols)).Int("rows", info.Rows).Msg("Dataset stored")
	return info, nil
}

// Get loads a dataset by id.
func (r *DatasetRepository) Get(ctx context.Context, id uuid.UUID) (domain.PriceSeries, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx,
		"SELECT payload FROM datasets WHERE id = ? AND created_at > ?",
		id.String(), r.cutoff(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PriceSeries{}, fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	if err != nil {
		return domain.PriceSeries{}, fmt.Errorf("failed to query dataset %s: %w", id, err)
	}

	var stored storedDataset
	if err := msgpack.Unmarshal(payload, &stored); err != nil {
		return domain.PriceSeries{}, fmt.Errorf("failed to decode dataset %s: %w", id, err)
	}
	ps := domain.PriceSeries{
		Dates:       make([]time.Time, len(stored.Dates)),
		Instruments: stored.Instruments,
		Prices:      stored.Prices,
	}
	for i, d := range stored.Dates {
		if ps.Dates[i], err = time.Parse(domain.DateLayout, d); err != nil {
			return domain.PriceSeries{}, fmt.Errorf("failed to decode dataset %s: %w", id, err)
		}
	}
	return ps, nil
}

// Info describes a dataset without loading its prices.
func (r *DatasetRepository) Info(ctx context.Context, id uuid.UUID) (DatasetInfo, error) {
	info := DatasetInfo{ID: id.String()}
	var symbols string
	err := r.db.QueryRowContext(ctx,
		"SELECT symbols, row_count, first_date, last_date FROM datasets WHERE id = ? AND created_at > ?",
		id.String(), r.cutoff(),
	).Scan(&symbols, &info.Rows, &info.From, &info.To)
	if errors.Is(err, sql.ErrNoRows) {
		return DatasetInfo{}, fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	if err != nil {
		return DatasetInfo{}, fmt.Errorf("failed to query dataset %s: %w", id, err)
	}
	info.Symbols = strings.Split(symbols, ",")
	return info, nil
}

// DeleteExpired removes datasets older than the repository ttl.
func (r *DatasetRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM datasets WHERE created_at <= ?", r.cutoff())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired datasets: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted datasets: %w", err)
	}
	return n, nil
}

func (r *DatasetRepository) cutoff() int64 {
	return r.now().Add(-r.ttl).Unix()
}
