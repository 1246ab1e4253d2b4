package lbt

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/banshee-data/spectrum.report/internal/monitoring"
)

// SensingEvent is one free/busy verdict produced by a sensing check.
type SensingEvent struct {
	Time         time.Time
	EnergyDbm    float64
	ThresholdDbm float64
	Free         bool
	Mode         Mode
}

// Status returns the record status column value.
func (ev SensingEvent) Status() string {
	if ev.Free {
		return "FREE"
	}
	return "BUSY"
}

// EventSink receives sensing events for diagnostics. Implementations
// must not block the sensing path; slow consumers should buffer or drop.
type EventSink interface {
	RecordSensing(ev SensingEvent)
}

// CSVLog appends sensing events to a line-oriented CSV file, writing a
// header row on creation. A failed open disables the log for the run
// rather than failing the engine.
type CSVLog struct {
	mu sync.Mutex
	f  *os.File
}

// NewCSVLog opens (or creates) the log file at path. It never returns
// an error: on failure the returned log silently discards events.
func NewCSVLog(path string) *CSVLog {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		monitoring.Logf("lbt: sensing log disabled: %v", err)
		return &CSVLog{}
	}
	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		fmt.Fprintln(f, "timestamp_us,energy_dbm,threshold_dbm,status,mode")
	}
	return &CSVLog{f: f}
}

// RecordSensing appends one event row.
func (l *CSVLog) RecordSensing(ev SensingEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return
	}
	fmt.Fprintf(l.f, "%d,%.2f,%.2f,%s,%s\n",
		ev.Time.UnixMicro(), ev.EnergyDbm, ev.ThresholdDbm, ev.Status(), ev.Mode)
}

// Close flushes and closes the underlying file.
func (l *CSVLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
