// Package db persists channel-access runs and their sensing events in
// sqlite. One row per sensing verdict keeps post-hoc analysis of
// occupancy and threshold behaviour possible without replaying I/Q.
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/spectrum.report/internal/lbt"
)

type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the sqlite database at path and applies the
// connection pragmas. Schema setup is the caller's job via MigrateUp.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL keeps the event writer from blocking report readers; the busy
	// timeout covers the occasional checkpoint.
	_, err = db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		PRAGMA synchronous = NORMAL;
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &DB{db}, nil
}

// Run is one engine session, from process start (or reconfiguration) to
// shutdown.
type Run struct {
	RunID     string     `json:"run_id"`
	Mode      string     `json:"mode"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// CreateRun inserts a new run row and returns its generated ID.
func (db *DB) CreateRun(mode, notes string) (string, error) {
	runID := uuid.New().String()
	_, err := db.Exec(
		`INSERT INTO lbt_runs (run_id, mode, notes) VALUES (?, ?, ?)`,
		runID, mode, notes,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return runID, nil
}

// EndRun stamps the run's end time.
func (db *DB) EndRun(runID string) error {
	_, err := db.Exec(
		`UPDATE lbt_runs SET ended_at = CURRENT_TIMESTAMP WHERE run_id = ?`,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to end run %s: %w", runID, err)
	}
	return nil
}

// Runs returns all runs, most recent first.
func (db *DB) Runs() ([]Run, error) {
	rows, err := db.Query(
		`SELECT run_id, mode, started_at, ended_at, COALESCE(notes, '')
		 FROM lbt_runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.Mode, &r.StartedAt, &r.EndedAt, &r.Notes); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// StoredEvent is one persisted sensing verdict.
type StoredEvent struct {
	RunID        string  `json:"run_id"`
	TimestampUs  int64   `json:"timestamp_us"`
	EnergyDbm    float64 `json:"energy_dbm"`
	ThresholdDbm float64 `json:"threshold_dbm"`
	Free         bool    `json:"free"`
	Mode         string  `json:"mode"`
}

// InsertSensingEvents writes a batch of events in one transaction.
func (db *DB) InsertSensingEvents(runID string, events []lbt.SensingEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO lbt_sensing_events (run_id, timestamp_us, energy_dbm, threshold_dbm, free, mode)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.Exec(
			runID, ev.Time.UnixMicro(), ev.EnergyDbm, ev.ThresholdDbm, ev.Free, ev.Mode.String(),
		); err != nil {
			return fmt.Errorf("failed to insert sensing event: %w", err)
		}
	}
	return tx.Commit()
}

// SensingEvents returns up to limit events for a run in time order.
// A non-positive limit returns everything.
func (db *DB) SensingEvents(runID string, limit int) ([]StoredEvent, error) {
	q := `SELECT run_id, timestamp_us, energy_dbm, threshold_dbm, free, mode
	      FROM lbt_sensing_events WHERE run_id = ? ORDER BY timestamp_us`
	args := []interface{}{runID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		if err := rows.Scan(&ev.RunID, &ev.TimestampUs, &ev.EnergyDbm, &ev.ThresholdDbm, &ev.Free, &ev.Mode); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// RunSummary aggregates a run's sensing events for reporting.
type RunSummary struct {
	RunID        string  `json:"run_id"`
	EventCount   int64   `json:"event_count"`
	BusyCount    int64   `json:"busy_count"`
	BusyRatio    float64 `json:"busy_ratio"`
	MinEnergyDbm float64 `json:"min_energy_dbm"`
	MaxEnergyDbm float64 `json:"max_energy_dbm"`
	AvgEnergyDbm float64 `json:"avg_energy_dbm"`
}

// SummariseRun computes occupancy and energy aggregates for one run.
func (db *DB) SummariseRun(runID string) (*RunSummary, error) {
	s := &RunSummary{RunID: runID}
	err := db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN free THEN 0 ELSE 1 END), 0),
		        COALESCE(MIN(energy_dbm), 0),
		        COALESCE(MAX(energy_dbm), 0),
		        COALESCE(AVG(energy_dbm), 0)
		 FROM lbt_sensing_events WHERE run_id = ?`,
		runID,
	).Scan(&s.EventCount, &s.BusyCount, &s.MinEnergyDbm, &s.MaxEnergyDbm, &s.AvgEnergyDbm)
	if err != nil {
		return nil, fmt.Errorf("failed to summarise run %s: %w", runID, err)
	}
	if s.EventCount > 0 {
		s.BusyRatio = float64(s.BusyCount) / float64(s.EventCount)
	}
	return s, nil
}
