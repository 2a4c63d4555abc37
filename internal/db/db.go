// Package db persists calibration curves and batch run summaries in SQLite.
// The sizing engine never reads from here directly; callers load a curve and
// pass it in.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/particle.sizing/internal/monitoring"
)

var logf = monitoring.Component("db")

// pragmas are applied to every connection opened by Open.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// DB wraps a SQLite handle with the sizing schema applied.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema. Use ":memory:" for a throwaway database.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// PRAGMAs are per connection, and an in-memory database exists only on
	// the connection that created it.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	version, _, err := db.MigrateVersion()
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	logf("opened %s at schema version %d", path, version)
	return db, nil
}

// Calibrations returns the calibration store backed by db.
func (db *DB) Calibrations() *CalibrationStore {
	return NewCalibrationStore(db.DB)
}

// Runs returns the run store backed by db.
func (db *DB) Runs() *RunStore {
	return NewRunStore(db.DB)
}
