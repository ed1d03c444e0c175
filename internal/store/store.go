// Package store provides SQLite-backed persistence for daily snapshot series
// and disk retention of raw downloaded spreadsheets.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"oispurts/internal/models"
)

// Store wraps a SQLite database plus a raw-file directory. The scheduler
// goroutine is the only writer; WAL mode allows readers to run concurrently.
type Store struct {
	db           *sql.DB
	rawDir       string
	maxRawPerDay int
}

// New opens or creates the database at dbPath and ensures rawDir exists.
func New(dbPath, rawDir string, maxRawPerDay int) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create raw directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db, rawDir: rawDir, maxRawPerDay: maxRawPerDay}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id          TEXT PRIMARY KEY,
			day         TEXT NOT NULL,
			captured_at INTEGER NOT NULL,
			source_file TEXT,
			UNIQUE(day, captured_at)
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
			symbol      TEXT NOT NULL,
			rank        INTEGER NOT NULL,
			metrics     TEXT NOT NULL,
			PRIMARY KEY (snapshot_id, symbol)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_day ON snapshots(day, captured_at)`,
		`CREATE INDEX IF NOT EXISTS idx_records_symbol ON records(symbol)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AppendSnapshot persists one snapshot and its records atomically. A failed
// insert leaves previously stored snapshots untouched.
func (s *Store) AppendSnapshot(day string, snap models.Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	snapID := uuid.New().String()
	if _, err := tx.Exec(
		`INSERT INTO snapshots (id, day, captured_at, source_file) VALUES (?,?,?,?)`,
		snapID, day, snap.CapturedAt.UnixNano(), snap.SourceFile,
	); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	for i := range snap.Records {
		rec := &snap.Records[i]
		metricsJSON, err := json.Marshal(rec.Metrics)
		if err != nil {
			return fmt.Errorf("failed to marshal metrics for %s: %w", rec.Symbol, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO records (snapshot_id, symbol, rank, metrics) VALUES (?,?,?,?)`,
			snapID, rec.Symbol, rec.Rank, string(metricsJSON),
		); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.Symbol, err)
		}
	}

	return tx.Commit()
}

// LoadDay reads the full series for one trading day, ordered by capture time.
// Returns an empty series when nothing was stored for that day.
func (s *Store) LoadDay(day string) (*models.DailyTimeSeries, error) {
	rows, err := s.db.Query(
		`SELECT id, captured_at, source_file FROM snapshots WHERE day = ? ORDER BY captured_at ASC`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	type snapMeta struct {
		id         string
		capturedAt int64
		sourceFile string
	}
	var metas []snapMeta
	for rows.Next() {
		var m snapMeta
		if err := rows.Scan(&m.id, &m.capturedAt, &m.sourceFile); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	series := &models.DailyTimeSeries{Day: day}
	for _, m := range metas {
		capturedAt := time.Unix(0, m.capturedAt)
		recs, err := s.loadRecords(m.id, capturedAt)
		if err != nil {
			return nil, err
		}
		series.Snapshots = append(series.Snapshots, models.Snapshot{
			CapturedAt: capturedAt,
			SourceFile: m.sourceFile,
			Records:    recs,
		})
	}
	return series, nil
}

func (s *Store) loadRecords(snapshotID string, capturedAt time.Time) ([]models.InstrumentRecord, error) {
	rows, err := s.db.Query(
		`SELECT symbol, rank, metrics FROM records WHERE snapshot_id = ? ORDER BY rank ASC`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var recs []models.InstrumentRecord
	for rows.Next() {
		var rec models.InstrumentRecord
		var metricsJSON string
		if err := rows.Scan(&rec.Symbol, &rec.Rank, &metricsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(metricsJSON), &rec.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics for %s: %w", rec.Symbol, err)
		}
		rec.CapturedAt = capturedAt
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Days lists trading days with stored data, newest first.
func (s *Store) Days() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT day FROM snapshots ORDER BY day DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query days: %w", err)
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}
