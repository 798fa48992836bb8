package data

import (
	"database/sql"
	"time"

	"pgscope/internal/core"
)

type RecommendationRepo struct {
	db *sql.DB
}

func NewRecommendationRepo(db *sql.DB) *RecommendationRepo {
	return &RecommendationRepo{db: db}
}

// Upsert creates or overwrites the recommendation identified by
// (instance_id, fingerprint). On conflict only the mutable fields are
// replaced; status and created_at keep their original values so a
// dismissed recommendation stays dismissed across regeneration runs.
func (r *RecommendationRepo) Upsert(rec *core.Recommendation) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = core.RecStatusOpen
	}
	_, err := r.db.Exec(
		`INSERT INTO recommendations (instance_id, created_at, type, title, details, remediation_sql, confidence, score, fingerprint, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(instance_id, fingerprint) DO UPDATE SET
			type=excluded.type,
			title=excluded.title,
			details=excluded.details,
			remediation_sql=excluded.remediation_sql,
			confidence=excluded.confidence,
			score=excluded.score`,
		rec.InstanceID, rec.CreatedAt, rec.Type, rec.Title, rec.Details, rec.SQL,
		rec.Confidence, rec.Score, rec.Fingerprint, rec.Status)
	return err
}

func (r *RecommendationRepo) GetAll() ([]core.Recommendation, error) {
	return r.list(`SELECT id, instance_id, created_at, type, title, details, remediation_sql, confidence, score, fingerprint, status
		 FROM recommendations ORDER BY created_at DESC, id DESC`)
}

func (r *RecommendationRepo) GetByInstance(instanceID int64) ([]core.Recommendation, error) {
	return r.list(`SELECT id, instance_id, created_at, type, title, details, remediation_sql, confidence, score, fingerprint, status
		 FROM recommendations WHERE instance_id = ? ORDER BY created_at DESC, id DESC`, instanceID)
}

// UpdateStatus transitions the lifecycle status of one recommendation.
// The generation engine never calls this; API consumers own it.
func (r *RecommendationRepo) UpdateStatus(id int64, status string) error {
	_, err := r.db.Exec(`UPDATE recommendations SET status=? WHERE id=?`, status, id)
	return err
}

func (r *RecommendationRepo) list(query string, args ...any) ([]core.Recommendation, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []core.Recommendation
	for rows.Next() {
		var rec core.Recommendation
		if err := rows.Scan(&rec.ID, &rec.InstanceID, &rec.CreatedAt, &rec.Type, &rec.Title,
			&rec.Details, &rec.SQL, &rec.Confidence, &rec.Score, &rec.Fingerprint, &rec.Status); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
