package pricedata

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aristath/madfolio/internal/database"
	"github.com/aristath/madfolio/internal/domain"
	testingpkg "github.com/aristath/madfolio/internal/testing"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFiles = map[string]string{
	"stocks.csv": "date,STK1,STK2\n2016-01-04,10,20\n2016-01-05,11,21\n2016-01-06,12,22\n",
	"etfs.csv":   "date,ETF1\n2016-01-04,50\n2016-01-05,51\n2016-01-06,52\n",
	// AGG has no prefix; the file decides its category
	"bonds.csv": "date,AGG\n2016-01-05,100\n2016-01-06,101\n",
}

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func writeTestFiles(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range testFiles {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func newTestRepository(t *testing.T) *DatasetRepository {
	t.Helper()
	db := testingpkg.NewTestDB(t, database.NameDatasets)
	return NewDatasetRepository(db.Conn(), time.Hour, testLogger())
}

func assertUniverse(t *testing.T, store *Store) {
	t.Helper()
	ps, err := store.Series(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"STK1", "STK2", "ETF1", "AGG"}, ps.Symbols())
	assert.Equal(t, domain.Bond, ps.Instruments[3].Category)
	assert.Equal(t, domain.ETF, ps.Instruments[2].Category)
	assert.Equal(t, 3, ps.Len())
	assert.Equal(t, []float64{100, 100, 101}, ps.Column(3))
}

func TestStore_LoadFromDir(t *testing.T) {
	store := NewStore(DirSource{Dir: writeTestFiles(t)}, nil, testLogger())

	_, err := store.Series(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotLoaded)

	require.NoError(t, store.Load(context.Background()))
	assertUniverse(t, store)

	bonds, err := store.Series(context.Background(), DatasetBonds)
	require.NoError(t, err)
	assert.Equal(t, []string{"AGG"}, bonds.Symbols())
	assert.Equal(t, 2, bonds.Len())

	_, err = store.Series(context.Background(), "crypto")
	assert.True(t, domain.IsDataError(err))

	_, err = store.Series(context.Background(), uuid.NewString())
	assert.True(t, domain.IsDataError(err), "submissions disabled")

	assert.Error(t, store.Load(context.Background()), "second load")

	require.NoError(t, store.Close())
	_, err = store.Series(context.Background(), "")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStore_WarnsOnPrefixMismatch(t *testing.T) {
	dir := writeTestFiles(t)
	stocks := "date,STK1,ETF9\n2016-01-04,10,20\n2016-01-05,11,21\n2016-01-06,12,22\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stocks.csv"), []byte(stocks), 0644))

	var buf bytes.Buffer
	store := NewStore(DirSource{Dir: dir}, nil, zerolog.New(&buf).Level(zerolog.WarnLevel))
	require.NoError(t, store.Load(context.Background()))

	ps, err := store.Series(context.Background(), DatasetStocks)
	require.NoError(t, err)
	assert.Equal(t, domain.Equity, ps.Instruments[1].Category, "the file decides")

	out := buf.String()
	assert.Contains(t, out, "Symbol prefix disagrees with file category")
	assert.Contains(t, out, "ETF9")
	assert.Contains(t, out, "stocks.csv")
	assert.NotContains(t, out, "AGG", "unprefixed symbols follow their file silently")
	assert.Equal(t, 1, strings.Count(out, "Symbol prefix disagrees"))
}

func TestPrefixMismatches(t *testing.T) {
	ps := testingpkg.SyntheticPrices(3, "STK1", "ETF1", "BND1", "AGG")
	assert.Equal(t, []string{"ETF1", "BND1"}, prefixMismatches(ps, domain.Equity))
	assert.Equal(t, []string{"BND1"}, prefixMismatches(ps, domain.ETF))
	assert.Equal(t, []string{"ETF1"}, prefixMismatches(ps, domain.Bond))
}

func TestStore_LoadMissingFile(t *testing.T) {
	dir := writeTestFiles(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "etfs.csv")))

	store := NewStore(DirSource{Dir: dir}, nil, testLogger())
	err := store.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etfs.csv")
}

func TestStore_LoadFromS3(t *testing.T) {
	var mu sync.Mutex
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// path-style: /<bucket>/<prefix>/<file>
		name := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		content, ok := testFiles[name]
		if !ok || !strings.HasPrefix(r.URL.Path, "/prices/daily/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		mu.Lock()
		requested = append(requested, name)
		mu.Unlock()
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(content))
	}))
	defer srv.Close()

	source, err := NewS3Source(context.Background(), S3Config{
		Bucket:          "prices",
		Prefix:          "daily",
		Region:          "eu-central-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://prices/daily", source.String())

	store := NewStore(source, nil, testLogger())
	require.NoError(t, store.Load(context.Background()))
	assertUniverse(t, store)
	assert.Len(t, requested, 3)
}

func TestNewS3Source_RequiresBucket(t *testing.T) {
	_, err := NewS3Source(context.Background(), S3Config{})
	assert.Error(t, err)
}

func TestStore_WithoutSource(t *testing.T) {
	store := NewStore(nil, newTestRepository(t), testLogger())
	require.NoError(t, store.Load(context.Background()))

	_, err := store.Series(context.Background(), "")
	assert.True(t, domain.IsDataError(err))
}

func TestStore_SubmitAndResolve(t *testing.T) {
	store := NewStore(DirSource{Dir: writeTestFiles(t)}, newTestRepository(t), testLogger())
	require.NoError(t, store.Load(context.Background()))

	body := `{"AAPL": [{"date": "2016-01-04", "value": 105}, {"date": "2016-01-05", "value": 102}],
	          "BND2": [{"date": "2016-01-04", "value": 80}, {"date": "2016-01-05", "value": 81}]}`
	info, err := store.Submit(context.Background(), []byte(body))
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "BND2"}, info.Symbols)
	assert.Equal(t, 2, info.Rows)
	assert.Equal(t, "2016-01-04", info.From)
	assert.Equal(t, "2016-01-05", info.To)

	ps, err := store.Series(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, []float64{105, 102}, ps.Column(0))
	assert.Equal(t, domain.Bond, ps.Instruments[1].Category)

	got, err := store.Info(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	universe, err := store.Info(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, DatasetUniverse, universe.ID)
	assert.Len(t, universe.Symbols, 4)

	_, err = store.Series(context.Background(), uuid.NewString())
	assert.True(t, domain.IsDataError(err))

	_, err = store.Submit(context.Background(), []byte(`{"AAPL": []}`))
	assert.True(t, domain.IsDataError(err))
}

func TestDatasetRepository_Expiry(t *testing.T) {
	repo := newTestRepository(t)
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	ps := testingpkg.SyntheticPrices(5, "STK1", "ETF1")
	info, err := repo.Save(context.Background(), ps)
	require.NoError(t, err)
	id := uuid.MustParse(info.ID)

	got, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, ps.Symbols(), got.Symbols())
	assert.Equal(t, ps.Prices, got.Prices)
	assert.True(t, ps.Dates[4].Equal(got.Dates[4]))

	n, err := repo.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	now = now.Add(2 * time.Hour)
	_, err = repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrDatasetNotFound)

	n, err = repo.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
