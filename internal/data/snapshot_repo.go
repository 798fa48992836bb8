package data

import (
	"database/sql"
	"time"

	"pgscope/internal/core"
)

type SnapshotRepo struct {
	db *sql.DB
}

func NewSnapshotRepo(db *sql.DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// Create persists the snapshot and all of its query stats in one
// transaction. A failed harvest never leaves partial rows behind.
func (r *SnapshotRepo) Create(snap *core.Snapshot, stats []core.QueryStat) error {
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO snapshots (instance_id, captured_at) VALUES (?, ?)`,
		snap.InstanceID, snap.CapturedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	snap.ID = id

	stmt, err := tx.Prepare(
		`INSERT INTO query_stats (snapshot_id, queryid, query_norm, calls, total_time_ms, mean_time_ms,
			row_count, shared_blks_read, shared_blks_hit, temp_blks_written, wal_bytes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range stats {
		stats[i].SnapshotID = id
		s := &stats[i]
		res, err := stmt.Exec(id, s.QueryID, s.QueryNorm, s.Calls, s.TotalTimeMs, s.MeanTimeMs,
			s.Rows, s.SharedBlksRead, s.SharedBlksHit, s.TempBlksWritten, s.WALBytes)
		if err != nil {
			return err
		}
		if sid, err := res.LastInsertId(); err == nil {
			s.ID = sid
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	snap.QueryStats = stats
	return nil
}

func (r *SnapshotRepo) GetAll() ([]core.Snapshot, error) {
	rows, err := r.db.Query(`SELECT id, instance_id, captured_at FROM snapshots ORDER BY captured_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []core.Snapshot
	for rows.Next() {
		var s core.Snapshot
		if err := rows.Scan(&s.ID, &s.InstanceID, &s.CapturedAt); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// GetByID returns the snapshot with its stats loaded.
func (r *SnapshotRepo) GetByID(id int64) (*core.Snapshot, error) {
	var s core.Snapshot
	err := r.db.QueryRow(`SELECT id, instance_id, captured_at FROM snapshots WHERE id = ?`, id).
		Scan(&s.ID, &s.InstanceID, &s.CapturedAt)
	if err != nil {
		return nil, err
	}
	s.QueryStats, err = r.GetStats(id)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetStats returns the stat rows of one snapshot in harvest order
// (descending total time, the order they were inserted).
func (r *SnapshotRepo) GetStats(snapshotID int64) ([]core.QueryStat, error) {
	rows, err := r.db.Query(
		`SELECT id, snapshot_id, queryid, query_norm, calls, total_time_ms, mean_time_ms,
			row_count, shared_blks_read, shared_blks_hit, temp_blks_written, wal_bytes
		 FROM query_stats WHERE snapshot_id = ? ORDER BY id`, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []core.QueryStat
	for rows.Next() {
		var s core.QueryStat
		if err := rows.Scan(&s.ID, &s.SnapshotID, &s.QueryID, &s.QueryNorm, &s.Calls,
			&s.TotalTimeMs, &s.MeanTimeMs, &s.Rows, &s.SharedBlksRead, &s.SharedBlksHit,
			&s.TempBlksWritten, &s.WALBytes); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
