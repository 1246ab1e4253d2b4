package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/spectrum.report/internal/lbt"
)

// newTestDB opens a migrated database in a temp dir.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	return db
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("query busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", busyTimeout)
	}
}

func TestCreateAndEndRun(t *testing.T) {
	db := newTestDB(t)

	runID, err := db.CreateRun("LBE", "bench rig")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if runID == "" {
		t.Fatal("empty run ID")
	}

	runs, err := db.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].RunID != runID || runs[0].Mode != "LBE" || runs[0].Notes != "bench rig" {
		t.Errorf("run = %+v", runs[0])
	}
	if runs[0].EndedAt != nil {
		t.Error("new run should have no end time")
	}

	if err := db.EndRun(runID); err != nil {
		t.Fatalf("EndRun: %v", err)
	}
	runs, _ = db.Runs()
	if runs[0].EndedAt == nil {
		t.Error("ended run should have an end time")
	}
}

func TestInsertAndQuerySensingEvents(t *testing.T) {
	db := newTestDB(t)
	runID, err := db.CreateRun("LBE", "")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	base := time.Unix(1_000_000, 0)
	events := []lbt.SensingEvent{
		{Time: base, EnergyDbm: -91, ThresholdDbm: -82, Free: true, Mode: lbt.ModeLBE},
		{Time: base.Add(100 * time.Microsecond), EnergyDbm: -70, ThresholdDbm: -82, Free: false, Mode: lbt.ModeLBE},
		{Time: base.Add(200 * time.Microsecond), EnergyDbm: -89, ThresholdDbm: -82, Free: true, Mode: lbt.ModeLBE},
	}
	if err := db.InsertSensingEvents(runID, events); err != nil {
		t.Fatalf("InsertSensingEvents: %v", err)
	}

	got, err := db.SensingEvents(runID, 0)
	if err != nil {
		t.Fatalf("SensingEvents: %v", err)
	}
	want := []StoredEvent{
		{RunID: runID, TimestampUs: base.UnixMicro(), EnergyDbm: -91, ThresholdDbm: -82, Free: true, Mode: "LBE"},
		{RunID: runID, TimestampUs: base.Add(100 * time.Microsecond).UnixMicro(), EnergyDbm: -70, ThresholdDbm: -82, Free: false, Mode: "LBE"},
		{RunID: runID, TimestampUs: base.Add(200 * time.Microsecond).UnixMicro(), EnergyDbm: -89, ThresholdDbm: -82, Free: true, Mode: "LBE"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	limited, err := db.SensingEvents(runID, 2)
	if err != nil {
		t.Fatalf("SensingEvents limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("got %d events with limit 2", len(limited))
	}
}

func TestInsertEmptyBatchIsNoop(t *testing.T) {
	db := newTestDB(t)
	if err := db.InsertSensingEvents("no-such-run", nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestSummariseRun(t *testing.T) {
	db := newTestDB(t)
	runID, _ := db.CreateRun("FBE", "")

	base := time.Unix(1_000_000, 0)
	events := []lbt.SensingEvent{
		{Time: base, EnergyDbm: -90, ThresholdDbm: -82, Free: true, Mode: lbt.ModeFBE},
		{Time: base.Add(time.Millisecond), EnergyDbm: -60, ThresholdDbm: -82, Free: false, Mode: lbt.ModeFBE},
		{Time: base.Add(2 * time.Millisecond), EnergyDbm: -75, ThresholdDbm: -82, Free: false, Mode: lbt.ModeFBE},
		{Time: base.Add(3 * time.Millisecond), EnergyDbm: -87, ThresholdDbm: -82, Free: true, Mode: lbt.ModeFBE},
	}
	if err := db.InsertSensingEvents(runID, events); err != nil {
		t.Fatalf("InsertSensingEvents: %v", err)
	}

	s, err := db.SummariseRun(runID)
	if err != nil {
		t.Fatalf("SummariseRun: %v", err)
	}
	if s.EventCount != 4 || s.BusyCount != 2 {
		t.Errorf("summary = %+v", s)
	}
	if s.BusyRatio != 0.5 {
		t.Errorf("busy ratio = %f, want 0.5", s.BusyRatio)
	}
	if s.MinEnergyDbm != -90 || s.MaxEnergyDbm != -60 {
		t.Errorf("energy range = [%f, %f], want [-90, -60]", s.MinEnergyDbm, s.MaxEnergyDbm)
	}
	if s.AvgEnergyDbm != -78 {
		t.Errorf("avg energy = %f, want -78", s.AvgEnergyDbm)
	}
}

func TestSummariseEmptyRun(t *testing.T) {
	db := newTestDB(t)
	runID, _ := db.CreateRun("LBE", "")

	s, err := db.SummariseRun(runID)
	if err != nil {
		t.Fatalf("SummariseRun: %v", err)
	}
	if s.EventCount != 0 || s.BusyRatio != 0 {
		t.Errorf("summary = %+v, want zeroes", s)
	}
}
