package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/particle.sizing/internal/calibration"
	"github.com/banshee-data/particle.sizing/internal/mie"
	"github.com/banshee-data/particle.sizing/internal/sizing"
	"github.com/banshee-data/particle.sizing/internal/timeutil"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sizing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func fitCurve(t *testing.T, label string, at time.Time) *calibration.Curve {
	t.Helper()
	var beads []calibration.Bead
	for _, d := range []float64{100, 200, 400, 800} {
		beads = append(beads, calibration.Bead{DiameterNM: d, Scatter: 2e-3 * d * d * d})
	}
	c, err := calibration.Fit(beads, calibration.Options{
		Label:   label,
		Channel: "FSC-A",
		Optics:  mie.Optics{WavelengthNM: 488, ParticleIndex: complex(1.59, 0), MediumIndex: 1.33},
		Clock:   timeutil.NewMockClock(at),
	})
	require.NoError(t, err)
	return c
}

func TestOpenMigratesToLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sizing.db")
	db, err := Open(path)
	require.NoError(t, err)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
	require.NoError(t, db.Close())

	// Reopening an up-to-date database is a no-op.
	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.MigrateDown())
	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	_, err = db.Exec(`SELECT count(*) FROM sizing_runs`)
	assert.Error(t, err)

	require.NoError(t, db.MigrateUp())
	_, err = db.Exec(`SELECT count(*) FROM sizing_runs`)
	assert.NoError(t, err)
}

func TestOpenInMemory(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	c := fitCurve(t, "beads", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, db.Calibrations().Insert(c))
	got, err := db.Calibrations().Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}

func TestCalibrationStoreRoundTrip(t *testing.T) {
	store := openTestDB(t).Calibrations()
	c := fitCurve(t, "PS 100/200/400/800", time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC))

	require.NoError(t, store.Insert(c))
	got, err := store.Get(c.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(c, got); diff != "" {
		t.Fatalf("stored curve mismatch (-want +got):\n%s", diff)
	}

	// The stored curve predicts like the original.
	d, ok := got.Predict(2e-3 * 300 * 300 * 300)
	assert.True(t, ok)
	assert.InDelta(t, 300, d, 1e-6)

	err = store.Insert(c)
	assert.Error(t, err, "duplicate id must be rejected")
}

func TestCalibrationStoreNotFound(t *testing.T) {
	store := openTestDB(t).Calibrations()

	_, err := store.Get("missing")
	assert.ErrorIs(t, err, ErrCalibrationNotFound)

	_, err = store.Latest()
	assert.ErrorIs(t, err, ErrCalibrationNotFound)

	assert.ErrorIs(t, store.Delete("missing"), ErrCalibrationNotFound)
}

func TestCalibrationStoreRejectsInvalidCurve(t *testing.T) {
	store := openTestDB(t).Calibrations()
	err := store.Insert(&calibration.Curve{})
	assert.Error(t, err)
}

func TestCalibrationStoreLatestAndList(t *testing.T) {
	store := openTestDB(t).Calibrations()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	older := fitCurve(t, "monday", base)
	newer := fitCurve(t, "tuesday", base.Add(24*time.Hour))
	require.NoError(t, store.Insert(newer))
	require.NoError(t, store.Insert(older))

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "tuesday", list[0].Label)
	assert.Equal(t, "monday", list[1].Label)
	assert.Equal(t, "power", list[0].FitType)
	assert.Equal(t, "FSC-A", list[0].Channel)
	assert.Equal(t, newer.ProxyModel, list[0].ProxyModel)
	assert.InDelta(t, 1, list[0].RSquared, 1e-9)
	assert.Equal(t, base.Add(24*time.Hour).UnixNano(), list[0].CreatedAt)

	require.NoError(t, store.Delete(newer.ID))
	latest, err = store.Latest()
	require.NoError(t, err)
	assert.Equal(t, older.ID, latest.ID)
}

func TestRunStore(t *testing.T) {
	db := openTestDB(t)
	curve := fitCurve(t, "beads", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, db.Calibrations().Insert(curve))

	stats := &sizing.Statistics{N: 2, D50: 150, Peaks: []sizing.Peak{{DiameterNM: 150, Density: 0.02, Prominence: 1}}, Modality: 1}
	results := []sizing.FileResult{
		{Path: "a.fcs", Analysis: &sizing.Analysis{Strategy: "calibration:" + curve.ID, Counts: sizing.Counts{Total: 3, Valid: 2, NonPhysical: 1}, Stats: stats}},
		{Path: "b.fcs", Err: errors.New("bad signature"), Reason: sizing.ReasonParse},
	}
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	first := &RunSummary{
		Strategy:      "calibration:" + curve.ID,
		CalibrationID: curve.ID,
		StartedAt:     start,
		FinishedAt:    start.Add(3 * time.Second),
		Config:        []byte(`{"workers":2}`),
		Files:         SummarizeFiles(results),
	}
	runs := db.Runs()
	require.NoError(t, runs.InsertRun(first))
	assert.NotEmpty(t, first.RunID)

	second := &RunSummary{RunID: "run-2", Strategy: "inversion", StartedAt: start.Add(time.Hour), FinishedAt: start.Add(time.Hour)}
	require.NoError(t, runs.InsertRun(second))

	all, err := runs.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "run-2", all[0].RunID)
	if diff := cmp.Diff(first, all[1]); diff != "" {
		t.Errorf("stored run mismatch (-want +got):\n%s", diff)
	}

	failed, events := all[1].Totals()
	assert.Equal(t, 1, failed)
	assert.Equal(t, 3, events.Total)
	assert.Equal(t, 2, events.Valid)

	one, err := runs.ListRuns(1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "run-2", one[0].RunID)

	var filesTotal, filesFailed, eventsValid int
	require.NoError(t, db.QueryRow(`SELECT files_total, files_failed, events_valid FROM sizing_runs WHERE run_id = ?`, first.RunID).
		Scan(&filesTotal, &filesFailed, &eventsValid))
	assert.Equal(t, []int{2, 1, 2}, []int{filesTotal, filesFailed, eventsValid})

	// Deleting the curve keeps the run and clears the reference.
	require.NoError(t, db.Calibrations().Delete(curve.ID))
	all, err = runs.ListRuns(0)
	require.NoError(t, err)
	assert.Empty(t, all[1].CalibrationID)
}

func TestRunStoreRejectsUnknownCalibration(t *testing.T) {
	runs := openTestDB(t).Runs()
	err := runs.InsertRun(&RunSummary{Strategy: "calibration:x", CalibrationID: "x"})
	assert.Error(t, err)
}
