package metrics_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/fan"
	"codeberg.org/mutker/handheldctl/internal/logger"
	"codeberg.org/mutker/handheldctl/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func count(t *testing.T, path, table string) int {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestDisabledIsNoop(t *testing.T) {
	c, err := metrics.NewService(metrics.Config{}, logger.Default())
	require.NoError(t, err)
	assert.NoError(t, c.Record(context.Background(), &metrics.Snapshot{}))
	assert.NoError(t, c.Close())
}

func TestEnabledRequiresPath(t *testing.T) {
	_, err := metrics.NewService(metrics.Config{Enabled: true}, logger.Default())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidDBPath))
}

func TestRecordFlushesBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	c, err := metrics.NewService(metrics.Config{
		Enabled:      true,
		DBPath:       path,
		BatchSize:    2,
		BatchTimeout: 60,
	}, logger.Default())
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Now()
	samples := []fan.Sample{
		{Index: 0, Mode: fan.ModeAuto, Temperature: 55, Average: 54, RPM: 3000, Target: 42, Applied: 42, Actuated: true},
		{Index: 1, Skipped: true},
	}

	require.NoError(t, c.Record(ctx, metrics.SnapshotFromSamples(now, samples)))
	require.NoError(t, c.Record(ctx, metrics.SnapshotFromSamples(now.Add(time.Second), samples)))
	require.NoError(t, c.Record(ctx, metrics.SnapshotFromSamples(now.Add(2*time.Second), samples)))
	require.NoError(t, c.RecordPower(ctx, &metrics.PowerEvent{Timestamp: now, TDPWatts: 12, Success: true}))

	assert.Equal(t, 2, count(t, path, "fan_metrics"))
	assert.Equal(t, 1, count(t, path, "power_events"))

	require.NoError(t, c.Close())
	assert.Equal(t, 3, count(t, path, "fan_metrics"), "close flushes the remaining batch")
}

func TestRecordNilSnapshot(t *testing.T) {
	c, err := metrics.NewService(metrics.Config{
		Enabled: true,
		DBPath:  filepath.Join(t.TempDir(), "metrics.db"),
	}, logger.Default())
	require.NoError(t, err)
	defer c.Close()

	err = c.Record(context.Background(), nil)
	assert.Equal(t, metrics.ErrInvalidMetrics, errors.CodeOf(err))
}

func TestSnapshotFromSamples(t *testing.T) {
	s := metrics.SnapshotFromSamples(time.Unix(10, 0), []fan.Sample{
		{Index: 0, Mode: fan.ModeManual, Target: 70, Applied: 70},
		{Index: 1, Skipped: true},
	})

	require.Len(t, s.Fans, 1)
	assert.False(t, s.Fans[0].Auto)
	assert.Equal(t, 70, s.Fans[0].Speed.Applied)
}
