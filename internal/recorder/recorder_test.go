package recorder

import (
	"context"
	"database/sql"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/tomography/internal/cpu"
	"codeberg.org/mutker/tomography/internal/errors"
	"codeberg.org/mutker/tomography/internal/logger"
	"codeberg.org/mutker/tomography/internal/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Enabled:   true,
		DBPath:    filepath.Join(t.TempDir(), "data", "samples.db"),
		BatchSize: 2,
	}
}

func sample(ts int64) *Sample {
	return &Sample{
		Timestamp: time.UnixMilli(ts),
		Interval:  time.Second,
		Cores:     []cpu.Core{{System: 1, User: 2, Idle: 97}, {System: 3, User: 4, Idle: 93}},
		Interfaces: []network.Interface{
			{Name: "eth0", Sent: 1500, Recv: math.MaxUint64},
		},
	}
}

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestRecorderWritesBatches(t *testing.T) {
	cfg := testConfig(t)
	rec, err := New(cfg, logger.Default())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, rec.Record(ctx, sample(1000)))
	require.NoError(t, rec.Record(ctx, sample(2000)))
	require.NoError(t, rec.Record(ctx, sample(3000)))
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	db := openDB(t, cfg.DBPath)
	assert.Equal(t, 3, count(t, db, "samples"))
	assert.Equal(t, 6, count(t, db, "cpu_rates"))
	assert.Equal(t, 3, count(t, db, "net_rates"))

	var (
		ts       int64
		interval int64
	)
	require.NoError(t, db.QueryRow("SELECT timestamp, interval_ms FROM samples ORDER BY id LIMIT 1").Scan(&ts, &interval))
	assert.Equal(t, int64(1000), ts)
	assert.Equal(t, int64(1000), interval)

	var recv int64
	require.NoError(t, db.QueryRow("SELECT recv FROM net_rates LIMIT 1").Scan(&recv))
	assert.Equal(t, int64(math.MaxInt64), recv)

	var idle int64
	require.NoError(t, db.QueryRow("SELECT idle FROM cpu_rates WHERE core = 1 LIMIT 1").Scan(&idle))
	assert.Equal(t, int64(93), idle)
}

func TestRecorderPeriodicFlush(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 100
	cfg.BatchTimeout = 10 * time.Millisecond

	rec, err := New(cfg, nil)
	require.NoError(t, err)
	defer rec.Close()

	require.NoError(t, rec.Record(context.Background(), sample(1000)))

	db := openDB(t, cfg.DBPath)
	require.Eventually(t, func() bool {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&n); err != nil {
			return false
		}
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecorderRejectsInvalidSamples(t *testing.T) {
	rec, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer rec.Close()

	err = rec.Record(context.Background(), nil)
	assert.True(t, errors.HasCode(err, ErrInvalidSample))

	err = rec.Record(context.Background(), &Sample{Timestamp: time.Now()})
	assert.True(t, errors.HasCode(err, ErrInvalidSample))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = rec.Record(ctx, sample(1))
	assert.True(t, errors.HasCode(err, ErrOperationTimeout))
}

func TestRecorderDisabled(t *testing.T) {
	rec, err := New(Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &noopRecorder{}, rec)

	assert.NoError(t, rec.Record(context.Background(), nil))
	assert.NoError(t, rec.Close())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	_, err := New(Config{Enabled: true, BatchSize: 1}, nil)
	assert.True(t, errors.HasCode(err, ErrInvalidDBPath))

	err = Config{Enabled: true, DBPath: "x.db"}.Validate()
	assert.True(t, errors.HasCode(err, ErrInvalidConfig))
}

func TestSchemaMigrationBacksUpOldVersion(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755))

	old := openDB(t, cfg.DBPath)
	_, err := old.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));
		CREATE TABLE samples (legacy TEXT);`)
	require.NoError(t, err)
	require.NoError(t, old.Close())

	rec, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	db := openDB(t, cfg.DBPath)
	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)

	exists, err := TableExists(db, "cpu_rates")
	require.NoError(t, err)
	assert.True(t, exists)

	backups, err := filepath.Glob(filepath.Join(filepath.Dir(cfg.DBPath), "backups", "samples_v99_*.db"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestReopenKeepsCurrentSchema(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 1

	rec, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, rec.Record(context.Background(), sample(1)))
	require.NoError(t, rec.Close())

	rec, err = New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	db := openDB(t, cfg.DBPath)
	assert.Equal(t, 1, count(t, db, "samples"))
}
