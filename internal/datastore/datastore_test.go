package datastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-scout/internal/conf"
	"github.com/tphakala/birdnet-scout/internal/detection"
	"github.com/tphakala/birdnet-scout/internal/errors"
)

func newTestSettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := &conf.Settings{}
	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = filepath.Join(t.TempDir(), "data", "scout.db")
	s.Detection = conf.DetectionSettings{
		MinAudioConfidence:    70,
		MinLocationConfidence: 1,
		MinSampleThreshold:    2,
		Timezone:              "US/Pacific",
	}
	return s
}

// setupTestDB opens a fresh SQLite store in a temp directory.
func setupTestDB(t *testing.T) Interface {
	t.Helper()

	store, err := New(newTestSettings(t))
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleDetection(start time.Time, audio float64, loc *detection.Location) detection.Detection {
	return detection.Detection{
		RecordingStart:     start,
		RecordingEnd:       start.Add(60 * time.Second),
		IntervalStart:      0,
		IntervalEnd:        3,
		Taxon:              detection.Taxon{Scientific: "Turdus migratorius", Common: "American Robin"},
		AudioConfidence:    audio,
		LocationConfidence: 0.42,
		Location:           loc,
		CreatedAt:          start.Add(2 * time.Minute),
	}
}

func TestSaveAndListDetections(t *testing.T) {
	t.Parallel()
	store := setupTestDB(t)
	ctx := t.Context()

	start := time.Unix(1700000000, 0).UTC()
	loc := &detection.Location{Lat: 45.52, Lon: -122.68}
	batch := []detection.Detection{
		sampleDetection(start.Add(time.Hour), 0.91, loc),
		sampleDetection(start, 0.88, nil),
	}

	require.NoError(t, store.SaveDetections(ctx, batch))

	got, err := store.Detections(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// oldest first
	assert.True(t, got[0].RecordingStart.Equal(start))
	assert.Nil(t, got[0].Location)
	assert.InDelta(t, 0.88, got[0].AudioConfidence, 1e-9)
	assert.Equal(t, "American Robin", got[0].Common)

	assert.True(t, got[1].RecordingEnd.Equal(start.Add(time.Hour+time.Minute)))
	require.NotNil(t, got[1].Location)
	assert.Equal(t, *loc, *got[1].Location)

	n, err := store.CountDetections(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSaveDetectionsIsAllOrNothing(t *testing.T) {
	t.Parallel()
	store := setupTestDB(t)
	ctx := t.Context()

	start := time.Unix(1700000000, 0).UTC()
	batch := []detection.Detection{
		sampleDetection(start, 0.9, nil),
		sampleDetection(start, 1.5, nil), // violates the confidence check
	}

	err := store.SaveDetections(ctx, batch)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))

	n, err := store.CountDetections(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "first row must be rolled back")
}

func TestSaveDetectionsEmptyBatch(t *testing.T) {
	t.Parallel()
	store := setupTestDB(t)

	require.NoError(t, store.SaveDetections(t.Context(), nil))
	got, err := store.Detections(t.Context())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestConfigGetOrCreate(t *testing.T) {
	t.Parallel()
	store := setupTestDB(t)
	ctx := t.Context()

	cfg, err := store.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, detection.PercentConfig{
		MinAudioConfidence:    70,
		MinLocationConfidence: 1,
		MinSampleThreshold:    2,
		Timezone:              "US/Pacific",
	}, cfg.PercentConfig())

	cfg.Apply(detection.PercentConfig{
		Location:              &detection.Location{Lat: 40.1, Lon: -105.2},
		MinAudioConfidence:    80,
		MinLocationConfidence: 5,
		MinSampleThreshold:    3,
		Timezone:              "America/Denver",
	})
	cfg.LastIP = "203.0.113.7"
	require.NoError(t, store.SaveConfig(ctx, cfg))

	again, err := store.GetConfig(ctx)
	require.NoError(t, err)
	p := again.PercentConfig()
	require.NotNil(t, p.Location)
	assert.InDelta(t, 40.1, p.Location.Lat, 1e-9)
	assert.Equal(t, 80, p.MinAudioConfidence)
	assert.Equal(t, "America/Denver", p.Timezone)
	assert.Equal(t, "203.0.113.7", again.LastIP)

	again.SetLocation(nil)
	require.NoError(t, store.SaveConfig(ctx, again))
	cleared, err := store.GetConfig(ctx)
	require.NoError(t, err)
	assert.Nil(t, cleared.PercentConfig().Location)
}

func TestStoreNotOpen(t *testing.T) {
	t.Parallel()

	store, err := New(newTestSettings(t))
	require.NoError(t, err)

	require.ErrorIs(t, store.SaveDetections(t.Context(), []detection.Detection{{}}), ErrNotOpen)
	_, err = store.Detections(t.Context())
	require.ErrorIs(t, err, ErrNotOpen)
	_, err = store.GetConfig(t.Context())
	require.ErrorIs(t, err, ErrNotOpen)
	require.ErrorIs(t, store.Close(), ErrNotOpen)
}

func TestNewWithoutBackend(t *testing.T) {
	t.Parallel()

	_, err := New(&conf.Settings{})
	require.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	t.Parallel()

	dsn := mysqlDSN(&conf.MySQLSettings{
		Username: "scout", Password: "secret", Host: "db", Port: "3306", Database: "birds",
	})
	assert.Equal(t, "scout:secret@tcp(db:3306)/birds?charset=utf8mb4&parseTime=True&loc=Local", dsn)
}

func TestFromRecordBadLocation(t *testing.T) {
	t.Parallel()

	d := fromRecord(&DetectionRecord{ScientificName: "a", CommonName: "b", Location: "nowhere"})
	assert.Nil(t, d.Location)
}
