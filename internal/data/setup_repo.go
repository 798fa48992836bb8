package data

import (
	"database/sql"
	"time"

	"pgscope/internal/core"
)

type SetupStateRepo struct {
	db *sql.DB
}

func NewSetupStateRepo(db *sql.DB) *SetupStateRepo {
	return &SetupStateRepo{db: db}
}

// Upsert writes the probe outcome for an instance, replacing any
// previous state. One row per instance.
func (r *SetupStateRepo) Upsert(state *core.SetupState) error {
	if state.LastCheckedAt.IsZero() {
		state.LastCheckedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(
		`INSERT INTO setup_states (instance_id, pg_version_num, preload_ok, ext_created, ready, last_checked_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(instance_id) DO UPDATE SET
			pg_version_num=excluded.pg_version_num,
			preload_ok=excluded.preload_ok,
			ext_created=excluded.ext_created,
			ready=excluded.ready,
			last_checked_at=excluded.last_checked_at`,
		state.InstanceID, state.PgVersionNum, boolToInt(state.PreloadOK),
		boolToInt(state.ExtCreated), boolToInt(state.Ready), state.LastCheckedAt)
	return err
}

func (r *SetupStateRepo) GetByInstance(instanceID int64) (*core.SetupState, error) {
	row := r.db.QueryRow(
		`SELECT id, instance_id, pg_version_num, preload_ok, ext_created, ready, last_checked_at
		 FROM setup_states WHERE instance_id = ?`, instanceID)
	return scanSetupState(row)
}

func (r *SetupStateRepo) GetAll() ([]core.SetupState, error) {
	return r.list(`SELECT id, instance_id, pg_version_num, preload_ok, ext_created, ready, last_checked_at
		 FROM setup_states ORDER BY last_checked_at DESC`)
}

// ListReady returns the states whose instances the scheduler should
// collect from this tick.
func (r *SetupStateRepo) ListReady() ([]core.SetupState, error) {
	return r.list(`SELECT id, instance_id, pg_version_num, preload_ok, ext_created, ready, last_checked_at
		 FROM setup_states WHERE ready = 1 ORDER BY instance_id`)
}

// TouchLastChecked stamps the instance as visited by the scheduler,
// whether or not its harvest succeeded.
func (r *SetupStateRepo) TouchLastChecked(instanceID int64, t time.Time) error {
	_, err := r.db.Exec(`UPDATE setup_states SET last_checked_at=? WHERE instance_id=?`, t, instanceID)
	return err
}

func (r *SetupStateRepo) list(query string) ([]core.SetupState, error) {
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []core.SetupState
	for rows.Next() {
		var s core.SetupState
		var preload, created, ready int
		if err := rows.Scan(&s.ID, &s.InstanceID, &s.PgVersionNum, &preload, &created, &ready, &s.LastCheckedAt); err != nil {
			return nil, err
		}
		s.PreloadOK = preload == 1
		s.ExtCreated = created == 1
		s.Ready = ready == 1
		states = append(states, s)
	}
	return states, rows.Err()
}

func scanSetupState(row *sql.Row) (*core.SetupState, error) {
	var s core.SetupState
	var preload, created, ready int
	if err := row.Scan(&s.ID, &s.InstanceID, &s.PgVersionNum, &preload, &created, &ready, &s.LastCheckedAt); err != nil {
		return nil, err
	}
	s.PreloadOK = preload == 1
	s.ExtCreated = created == 1
	s.Ready = ready == 1
	return &s, nil
}

// SQLite stores booleans as integers (0 or 1)
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
