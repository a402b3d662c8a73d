package scheduler

import (
	"fmt"
	"testing"

	"github.com/aristath/madfolio/internal/database"
	testingpkg "github.com/aristath/madfolio/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckWALCheckpointsJob_Name(t *testing.T) {
	job := NewCheckWALCheckpointsJob(zerolog.Nop())
	assert.Equal(t, "check_wal_checkpoints", job.Name())
}

func TestCheckWALCheckpointsJob_Run_NoDatabases(t *testing.T) {
	job := NewCheckWALCheckpointsJob(zerolog.New(nil).Level(zerolog.Disabled), nil, nil)
	assert.NoError(t, job.Run()) // Should handle nil databases gracefully
}

func TestCheckWALCheckpointsJob_Run(t *testing.T) {
	datasets := testingpkg.NewTestDB(t, database.NameDatasets)
	cache := testingpkg.NewTestDB(t, database.NameCache)

	job := NewCheckWALCheckpointsJob(zerolog.New(nil).Level(zerolog.Disabled), datasets, cache)
	assert.NoError(t, job.Run())
}

func TestCheckWALCheckpointsJob_ReclaimsDeletedDatasets(t *testing.T) {
	datasets := testingpkg.NewTestDB(t, database.NameDatasets)

	payload := make([]byte, 32*1024)
	for i := 0; i < 10; i++ {
		_, err := datasets.Conn().Exec(
			`INSERT INTO datasets (id, symbols, row_count, first_date, last_date, payload, created_at)
			 VALUES (?, '[]', 0, '', '', ?, 0)`, fmt.Sprintf("ds-%d", i), payload)
		require.NoError(t, err)
	}
	_, err := datasets.Conn().Exec("DELETE FROM datasets")
	require.NoError(t, err)
	before, err := datasets.GetStats()
	require.NoError(t, err)

	job := NewCheckWALCheckpointsJob(zerolog.New(nil).Level(zerolog.Disabled), datasets)
	require.NoError(t, job.Run())

	after, err := datasets.GetStats()
	require.NoError(t, err)
	assert.LessOrEqual(t, after.FreelistCount, before.FreelistCount)
}
