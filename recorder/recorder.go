// Package recorder writes published snapshots to SQLite for offline
// diagnostics without slowing the broadcast path. The database is write-only
// from the service's point of view: nothing is read back at startup.
package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"enginewatch/broadcast"
	"enginewatch/internal/ratelimit"
	"enginewatch/metrics"
	"enginewatch/sensor"

	_ "modernc.org/sqlite"
)

const queueDepth = 64

type job struct {
	at          time.Time
	fingerprint uint64
	snap        sensor.Snapshot
}

// Recorder persists a bounded number of readings per sensor into SQLite.
// It is a broadcast subscriber; Deliver never blocks.
type Recorder struct {
	db             *sql.DB
	perSensorLimit int
	perSensorCount map[string]int // owned by the writer goroutine

	mu     sync.RWMutex
	closed bool
	queue  chan job

	lastFingerprint uint64
	haveLast        bool
	fpMu            sync.Mutex

	wg      sync.WaitGroup
	drops   *ratelimit.Counter
	metrics *metrics.Metrics
}

// Open preflights, opens (or creates) the database at path and starts the
// writer goroutine.
func Open(path string, perSensorLimit int, m *metrics.Metrics) (*Recorder, error) {
	if perSensorLimit <= 0 {
		return nil, errors.New("recorder: per-sensor limit must be > 0")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("recorder: ensure dir: %w", err)
	}
	if _, err := Preflight(path, 2*time.Second); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: schema: %w", err)
	}
	r := &Recorder{
		db:             db,
		perSensorLimit: perSensorLimit,
		perSensorCount: make(map[string]int),
		queue:          make(chan job, queueDepth),
		drops:          ratelimit.NewCounter(time.Minute),
		metrics:        m,
	}
	r.wg.Add(1)
	go r.writer()
	return r, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS snapshot_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    fingerprint TEXT NOT NULL,
    recorded_at INTEGER NOT NULL,
    sensor_id TEXT,
    sensor_type TEXT,
    value_kind INTEGER,
    value_num REAL,
    value_text TEXT,
    min REAL,
    max REAL,
    unit TEXT,
    severity TEXT,
    critical INTEGER,
    risk_probability REAL
);
CREATE INDEX IF NOT EXISTS snapshot_records_sensor ON snapshot_records(sensor_id, recorded_at);`
	_, err := db.Exec(schema)
	return err
}

// Deliver queues a published snapshot. Consecutive identical snapshots are
// skipped; a full queue drops the snapshot and leaves the last recorded
// fingerprint untouched so a repeat of the dropped content is still queued.
func (r *Recorder) Deliver(msg broadcast.Message) {
	if r == nil {
		return
	}
	fp := sensor.Fingerprint(msg.Snapshot)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	r.fpMu.Lock()
	defer r.fpMu.Unlock()
	if r.haveLast && r.lastFingerprint == fp {
		return
	}
	select {
	case r.queue <- job{at: time.Now().UTC(), fingerprint: fp, snap: msg.Snapshot}:
		r.lastFingerprint = fp
		r.haveLast = true
	default:
		r.metrics.ObserveDrop("recorder")
		if total, ok := r.drops.Inc(); ok {
			log.Printf("Recorder: queue full, dropping snapshot %016x (total recorder drops=%d)", fp, total)
		}
	}
}

// Close drains queued snapshots and closes the database.
func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
	return r.db.Close()
}

func (r *Recorder) writer() {
	defer r.wg.Done()
	for j := range r.queue {
		if err := r.insert(j); err != nil {
			log.Printf("Recorder: failed to insert snapshot %016x: %v", j.fingerprint, err)
		}
	}
}

func (r *Recorder) insert(j job) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
INSERT INTO snapshot_records (
    fingerprint, recorded_at, sensor_id, sensor_type, value_kind, value_num, value_text,
    min, max, unit, severity, critical, risk_probability
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	fp := strconv.FormatUint(j.fingerprint, 16)
	for _, reading := range j.snap {
		key := reading.Key()
		if key == "" {
			key = "unknown"
		}
		if r.perSensorCount[key] >= r.perSensorLimit {
			continue
		}
		r.perSensorCount[key]++
		var num sql.NullFloat64
		var text sql.NullString
		switch reading.Value.Kind {
		case sensor.KindNumeric:
			num = sql.NullFloat64{Float64: reading.Value.Num, Valid: true}
		case sensor.KindBoolean, sensor.KindText:
			text = sql.NullString{String: reading.Value.String(), Valid: true}
		}
		if _, err := stmt.Exec(
			fp,
			j.at.Unix(),
			reading.ID,
			reading.Type,
			int(reading.Value.Kind),
			num,
			text,
			nullFloat(reading.Min),
			nullFloat(reading.Max),
			reading.Unit,
			reading.EffectiveSeverity().String(),
			boolToInt(reading.Critical),
			nullFloat(reading.RiskProbability),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
