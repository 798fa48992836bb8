package data

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open initializes the SQLite database at the given path and runs
// migrations. Foreign keys are enabled per-connection through the DSN
// so snapshots, stats and recommendations cascade on instance deletion.
func Open(dbPath string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; serializing access avoids
	// SQLITE_BUSY between the scheduler and API handlers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func runMigrations(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS instances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		host TEXT NOT NULL,
		port INTEGER NOT NULL DEFAULT 5432,
		dbname TEXT NOT NULL,
		user TEXT NOT NULL,
		password_enc TEXT NOT NULL,
		ssl_mode TEXT NOT NULL DEFAULT 'prefer',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS setup_states (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instance_id INTEGER NOT NULL UNIQUE,
		pg_version_num INTEGER DEFAULT 0,
		preload_ok INTEGER DEFAULT 0,
		ext_created INTEGER DEFAULT 0,
		ready INTEGER DEFAULT 0,
		last_checked_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(instance_id) REFERENCES instances(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instance_id INTEGER NOT NULL,
		captured_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(instance_id) REFERENCES instances(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS query_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot_id INTEGER NOT NULL,
		queryid TEXT NOT NULL,
		query_norm TEXT NOT NULL,
		calls INTEGER DEFAULT 0,
		total_time_ms REAL DEFAULT 0,
		mean_time_ms REAL DEFAULT 0,
		row_count INTEGER DEFAULT 0,
		shared_blks_read INTEGER DEFAULT 0,
		shared_blks_hit INTEGER DEFAULT 0,
		temp_blks_written INTEGER DEFAULT 0,
		wal_bytes INTEGER DEFAULT 0,
		FOREIGN KEY(snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS recommendations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instance_id INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		remediation_sql TEXT NOT NULL DEFAULT '',
		confidence TEXT NOT NULL,
		score REAL DEFAULT 0,
		fingerprint TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		UNIQUE(instance_id, fingerprint),
		FOREIGN KEY(instance_id) REFERENCES instances(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}
