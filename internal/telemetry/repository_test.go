package telemetry

import (
	"context"
	"database/sql"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/amaresga/simtemp/internal/errors"
	"github.com/amaresga/simtemp/internal/logger"
	"github.com/amaresga/simtemp/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()

	return Config{
		DBPath:       filepath.Join(t.TempDir(), "history.db"),
		BatchSize:    3,
		BatchTimeout: time.Hour,
		Enabled:      true,
	}
}

func samples(n int) []record.Sample {
	out := make([]record.Sample, n)
	for i := range out {
		out[i] = record.Sample{
			TimestampNs: uint64(i+1) * 1_000_000,
			TempMC:      int32(40000 + i),
			Flags:       record.FlagNewSample,
		}
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = ""
	assert.True(t, errors.HasCode(cfg.Validate(), ErrInvalidDBPath))

	cfg = DefaultConfig()
	cfg.BatchSize = -1
	assert.True(t, errors.HasCode(cfg.Validate(), ErrInvalidConfig))
}

func TestDisabledServiceIsNoop(t *testing.T) {
	store, err := NewService(DefaultConfig(), logger.Default())
	require.NoError(t, err)

	require.NoError(t, store.Record(context.Background(), samples(1)[0]))
	entries, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, store.Close())
}

func TestRecordAndRecent(t *testing.T) {
	cfg := testConfig(t)
	store, err := NewService(cfg, logger.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	in := samples(5)
	for _, s := range in {
		require.NoError(t, store.Record(ctx, s))
	}

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i, e := range entries {
		assert.Equal(t, in[i], e.Sample)
		assert.False(t, e.RecordedAt.IsZero())
	}

	last, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, in[3], last[0].Sample)
	assert.Equal(t, in[4], last[1].Sample)

	none, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBatchFlushesAtSize(t *testing.T) {
	cfg := testConfig(t)
	store, err := NewRepository(cfg, logger.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for _, s := range samples(3) {
		require.NoError(t, store.Record(context.Background(), s))
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&count))
	assert.Equal(t, 3, count)
}

func TestExtremeValuesSurvive(t *testing.T) {
	store, err := NewRepository(testConfig(t), logger.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	in := []record.Sample{
		{TimestampNs: math.MaxUint64, TempMC: math.MinInt32, Flags: 0xFFFFFFFF},
		{TimestampNs: 0, TempMC: math.MaxInt32, Flags: record.FlagThresholdCrossed},
	}
	for _, s := range in {
		require.NoError(t, store.Record(context.Background(), s))
	}

	entries, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, in[0], entries[0].Sample)
	assert.Equal(t, in[1], entries[1].Sample)
}

func TestCloseFlushesPending(t *testing.T) {
	cfg := testConfig(t)
	store, err := NewRepository(cfg, logger.Default())
	require.NoError(t, err)

	in := samples(2)
	for _, s := range in {
		require.NoError(t, store.Record(context.Background(), s))
	}
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	err = store.Record(context.Background(), in[0])
	assert.True(t, errors.HasCode(err, ErrStoreClosed))

	reopened, err := NewRepository(cfg, logger.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	entries, err := reopened.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, in[1], entries[1].Sample)
}

func TestRecordHonorsContext(t *testing.T) {
	store, err := NewRepository(testConfig(t), logger.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = store.Record(ctx, samples(1)[0])
	assert.True(t, errors.HasCode(err, ErrOperationTimeout))
}

func TestSchemaMismatchBacksUpAndRecreates(t *testing.T) {
	cfg := testConfig(t)

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));
		CREATE TABLE samples (legacy TEXT);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store, err := NewRepository(cfg, logger.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	backups, err := os.ReadDir(filepath.Join(filepath.Dir(cfg.DBPath), "backups"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Name(), "history_v99_")

	require.NoError(t, store.Record(context.Background(), samples(1)[0]))
	entries, err := store.Recent(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPeriodicFlush(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 100
	cfg.BatchTimeout = 20 * time.Millisecond

	store, err := NewRepository(cfg, logger.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Record(context.Background(), samples(1)[0]))

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	assert.Eventually(t, func() bool {
		var count int
		return db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&count) == nil && count == 1
	}, 2*time.Second, 10*time.Millisecond)
}
