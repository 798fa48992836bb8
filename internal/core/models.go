package core

import (
	"time"
)

// Instance is a monitored PostgreSQL server/database. The password is
// never stored or serialized in the clear.
type Instance struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	DBName      string    `json:"dbname"`
	User        string    `json:"user"`
	PasswordEnc string    `json:"-"` // Encrypted (vault ciphertext)
	SSLMode     string    `json:"ssl_mode"`
	CreatedAt   time.Time `json:"created_at"`
}

// SetupState is the last known pg_stat_statements readiness of one
// instance. Ready gates whether the scheduler collects from it.
type SetupState struct {
	ID            int64     `json:"id"`
	InstanceID    int64     `json:"instance_id"`
	PgVersionNum  int       `json:"pg_version_num"`
	PreloadOK     bool      `json:"preload_ok"`
	ExtCreated    bool      `json:"ext_created"`
	Ready         bool      `json:"ready"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// Snapshot is one harvested batch of top-query statistics for one
// instance. Immutable once created.
type Snapshot struct {
	ID         int64       `json:"id"`
	InstanceID int64       `json:"instance_id"`
	CapturedAt time.Time   `json:"captured_at"`
	QueryStats []QueryStat `json:"query_stats,omitempty"`
}

// QueryStat is one pg_stat_statements row captured in a snapshot.
type QueryStat struct {
	ID              int64   `json:"id"`
	SnapshotID      int64   `json:"snapshot_id"`
	QueryID         string  `json:"queryid"`
	QueryNorm       string  `json:"query_norm"`
	Calls           int64   `json:"calls"`
	TotalTimeMs     float64 `json:"total_time_ms"`
	MeanTimeMs      float64 `json:"mean_time_ms"`
	Rows            int64   `json:"rows"`
	SharedBlksRead  int64   `json:"shared_blks_read"`
	SharedBlksHit   int64   `json:"shared_blks_hit"`
	TempBlksWritten int64   `json:"temp_blks_written"`
	WALBytes        int64   `json:"wal_bytes"`
}

// Recommendation types.
const (
	RecTypeReadReplica = "read_replica"
	RecTypeIndex       = "index"
)

// Confidence levels.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// RecStatusOpen is the initial lifecycle status of a recommendation.
// Later transitions belong to API consumers, not to the engine.
const RecStatusOpen = "open"

// Recommendation is one optimization suggestion for an instance. At most
// one live row exists per (instance, fingerprint) pair; regeneration
// overwrites the mutable fields in place.
type Recommendation struct {
	ID          int64     `json:"id"`
	InstanceID  int64     `json:"instance_id"`
	CreatedAt   time.Time `json:"created_at"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Details     string    `json:"details"`
	SQL         string    `json:"sql"`
	Confidence  string    `json:"confidence"`
	Score       float64   `json:"score"`
	Fingerprint string    `json:"fingerprint"`
	Status      string    `json:"status"`
}
