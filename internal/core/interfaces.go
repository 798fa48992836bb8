package core

import "time"

// InstanceRepository defines storage operations for monitored instances
type InstanceRepository interface {
	Create(inst *Instance) error
	GetAll() ([]Instance, error)
	GetByID(id int64) (*Instance, error)
	Update(inst *Instance) error
	Delete(id int64) error
}

// SetupStateRepository defines storage operations for readiness state
type SetupStateRepository interface {
	Upsert(state *SetupState) error
	GetByInstance(instanceID int64) (*SetupState, error)
	GetAll() ([]SetupState, error)
	ListReady() ([]SetupState, error)
	TouchLastChecked(instanceID int64, t time.Time) error
}

// SnapshotRepository defines storage operations for snapshots and their
// query stats. Create persists the snapshot together with all of its
// rows in a single transaction.
type SnapshotRepository interface {
	Create(snap *Snapshot, stats []QueryStat) error
	GetAll() ([]Snapshot, error)
	GetByID(id int64) (*Snapshot, error)
	GetStats(snapshotID int64) ([]QueryStat, error)
}

// RecommendationRepository defines storage operations for
// recommendations. Upsert matches on (instance_id, fingerprint) and
// overwrites type, title, details, sql, confidence and score of an
// existing row; status and created_at are left untouched.
type RecommendationRepository interface {
	Upsert(rec *Recommendation) error
	GetAll() ([]Recommendation, error)
	GetByInstance(instanceID int64) ([]Recommendation, error)
	UpdateStatus(id int64, status string) error
}
