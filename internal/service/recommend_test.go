package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgscope/internal/core"
)

// memRecRepo mimics the conflict behavior of the real store: one row per
// (instance, fingerprint), with status and created_at preserved on update.
type memRecRepo struct {
	recs   map[string]*core.Recommendation
	nextID int64
}

func newMemRecRepo() *memRecRepo {
	return &memRecRepo{recs: make(map[string]*core.Recommendation), nextID: 1}
}

func recKey(instanceID int64, fingerprint string) string {
	return fmt.Sprintf("%d:%s", instanceID, fingerprint)
}

func (r *memRecRepo) Upsert(rec *core.Recommendation) error {
	key := recKey(rec.InstanceID, rec.Fingerprint)
	if existing, ok := r.recs[key]; ok {
		existing.Type = rec.Type
		existing.Title = rec.Title
		existing.Details = rec.Details
		existing.SQL = rec.SQL
		existing.Confidence = rec.Confidence
		existing.Score = rec.Score
		return nil
	}
	stored := *rec
	stored.ID = r.nextID
	r.nextID++
	stored.CreatedAt = time.Now().UTC()
	r.recs[key] = &stored
	return nil
}

func (r *memRecRepo) GetAll() ([]core.Recommendation, error) {
	var out []core.Recommendation
	for _, rec := range r.recs {
		out = append(out, *rec)
	}
	return out, nil
}

func (r *memRecRepo) GetByInstance(instanceID int64) ([]core.Recommendation, error) {
	var out []core.Recommendation
	for _, rec := range r.recs {
		if rec.InstanceID == instanceID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *memRecRepo) UpdateStatus(id int64, status string) error {
	for _, rec := range r.recs {
		if rec.ID == id {
			rec.Status = status
			return nil
		}
	}
	return nil
}

func snap(instanceID int64) *core.Snapshot {
	return &core.Snapshot{ID: 1, InstanceID: instanceID}
}

func TestGenerateEmptySnapshot(t *testing.T) {
	repo := newMemRecRepo()
	engine := NewRecommendationEngine(repo)

	require.NoError(t, engine.Generate(snap(1), nil))
	assert.Empty(t, repo.recs)
}

func TestGenerateReadReplica(t *testing.T) {
	repo := newMemRecRepo()
	engine := NewRecommendationEngine(repo)

	stats := []core.QueryStat{
		{QueryID: "1", QueryNorm: "SELECT * FROM orders WHERE id = ?", Calls: 10, TotalTimeMs: 12000, MeanTimeMs: 1200},
		{QueryID: "2", QueryNorm: "select count(*) from events", Calls: 10, TotalTimeMs: 8000, MeanTimeMs: 800},
	}
	require.NoError(t, engine.Generate(snap(1), stats))

	recs, err := repo.GetByInstance(1)
	require.NoError(t, err)

	var replica *core.Recommendation
	for i := range recs {
		if recs[i].Type == core.RecTypeReadReplica {
			replica = &recs[i]
		}
	}
	require.NotNil(t, replica, "expected a read_replica recommendation")
	assert.Equal(t, core.ConfidenceMedium, replica.Confidence)
	assert.Equal(t, 100.0, replica.Score)
	assert.Equal(t, core.RecStatusOpen, replica.Status)
	assert.Contains(t, replica.Details, "100% of total query time")
}

func TestGenerateReadReplicaBelowRatio(t *testing.T) {
	repo := newMemRecRepo()
	engine := NewRecommendationEngine(repo)

	// 50% SELECT time: well above the total threshold, below the ratio.
	stats := []core.QueryStat{
		{QueryID: "1", QueryNorm: "SELECT * FROM a", Calls: 10, TotalTimeMs: 10000, MeanTimeMs: 1000},
		{QueryID: "2", QueryNorm: "UPDATE a SET x = ?", Calls: 10, TotalTimeMs: 10000, MeanTimeMs: 1000},
	}
	require.NoError(t, engine.Generate(snap(1), stats))

	for _, rec := range repo.recs {
		assert.NotEqual(t, core.RecTypeReadReplica, rec.Type)
	}
}

func TestGenerateRegenerationKeepsSingleRow(t *testing.T) {
	repo := newMemRecRepo()
	engine := NewRecommendationEngine(repo)

	stats := []core.QueryStat{
		{QueryID: "1", QueryNorm: "SELECT * FROM t WHERE x = ?", Calls: 40, TotalTimeMs: 20000, MeanTimeMs: 500},
	}
	require.NoError(t, engine.Generate(snap(1), stats))

	recs, err := repo.GetByInstance(1)
	require.NoError(t, err)
	require.Len(t, recs, 2) // read replica + index for query 1
	dismissedID := recs[0].ID
	created := recs[0].CreatedAt

	// Dismiss one, then regenerate: status and created_at survive.
	require.NoError(t, repo.UpdateStatus(dismissedID, "dismissed"))
	require.NoError(t, engine.Generate(snap(1), stats))

	recs, err = repo.GetByInstance(1)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		if rec.ID == dismissedID {
			assert.Equal(t, "dismissed", rec.Status)
			assert.Equal(t, created, rec.CreatedAt)
		}
	}
}

func TestGenerateIndexRecommendations(t *testing.T) {
	repo := newMemRecRepo()
	engine := NewRecommendationEngine(repo)

	// Keep select time at half of total so the replica rule stays quiet.
	stats := []core.QueryStat{
		{QueryID: "10", QueryNorm: "SELECT * FROM big WHERE col = ?", Calls: 30, TotalTimeMs: 6000, MeanTimeMs: 200},
		{QueryID: "20", QueryNorm: "UPDATE big SET col = ?", Calls: 30, TotalTimeMs: 6000, MeanTimeMs: 200},
	}
	require.NoError(t, engine.Generate(snap(1), stats))

	recs, err := repo.GetByInstance(1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, core.RecTypeIndex, rec.Type)
	assert.Equal(t, core.ConfidenceMedium, rec.Confidence) // mean 200 >= 100
	assert.Equal(t, 50.0, rec.Score)
	assert.Contains(t, rec.Title, "10")
	assert.Contains(t, rec.Details, "Mean time 200.0 ms across 30 calls")
}

func TestGenerateIndexConfidence(t *testing.T) {
	tests := []struct {
		name string
		mean float64
		want string
	}{
		{"low below medium threshold", 60, core.ConfidenceLow},
		{"medium at threshold", 100, core.ConfidenceMedium},
		{"medium above threshold", 150, core.ConfidenceMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRecRepo()
			engine := NewRecommendationEngine(repo)

			stats := []core.QueryStat{
				{QueryID: "10", QueryNorm: "SELECT * FROM t WHERE x = ?", Calls: 30, TotalTimeMs: 4000, MeanTimeMs: tt.mean},
				{QueryID: "20", QueryNorm: "DELETE FROM t WHERE x = ?", Calls: 30, TotalTimeMs: 4000, MeanTimeMs: 400},
			}
			require.NoError(t, engine.Generate(snap(1), stats))

			recs, err := repo.GetByInstance(1)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, tt.want, recs[0].Confidence)
		})
	}
}

func TestGenerateIndexExclusions(t *testing.T) {
	repo := newMemRecRepo()
	engine := NewRecommendationEngine(repo)

	stats := []core.QueryStat{
		// Too few calls.
		{QueryID: "1", QueryNorm: "SELECT * FROM a", Calls: 10, TotalTimeMs: 3000, MeanTimeMs: 300},
		// Mean below threshold.
		{QueryID: "2", QueryNorm: "SELECT * FROM b", Calls: 100, TotalTimeMs: 3000, MeanTimeMs: 30},
		// Not a SELECT.
		{QueryID: "3", QueryNorm: "INSERT INTO c VALUES (?)", Calls: 100, TotalTimeMs: 3000, MeanTimeMs: 300},
	}
	require.NoError(t, engine.Generate(snap(1), stats))

	for _, rec := range repo.recs {
		assert.NotEqual(t, core.RecTypeIndex, rec.Type)
	}
}

func TestGenerateIndexTopNOnly(t *testing.T) {
	repo := newMemRecRepo()
	engine := NewRecommendationEngine(repo)

	// Eight eligible SELECTs plus one heavy UPDATE; only the five with
	// the highest total time may produce index suggestions.
	var stats []core.QueryStat
	for i := 0; i < 8; i++ {
		stats = append(stats, core.QueryStat{
			QueryID:     fmt.Sprintf("q%d", i),
			QueryNorm:   "SELECT * FROM t WHERE x = ?",
			Calls:       100,
			TotalTimeMs: float64(1000 * (i + 1)),
			MeanTimeMs:  120,
		})
	}
	stats = append(stats, core.QueryStat{
		QueryID: "w", QueryNorm: "UPDATE t SET x = ?", Calls: 100, TotalTimeMs: 50000, MeanTimeMs: 500,
	})
	require.NoError(t, engine.Generate(snap(1), stats))

	var indexCount int
	for _, rec := range repo.recs {
		if rec.Type == core.RecTypeIndex {
			indexCount++
			// The three cheapest SELECTs are outside the top five.
			for _, excluded := range []string{"q0", "q1", "q2"} {
				assert.NotEqual(t, "Index opportunity for query "+excluded, rec.Title)
			}
		}
	}
	assert.Equal(t, 4, indexCount) // top 5 minus the UPDATE
}

func TestIsSelect(t *testing.T) {
	assert.True(t, isSelect("SELECT 1"))
	assert.True(t, isSelect("  select * from t"))
	assert.True(t, isSelect("Select\t1")) // leading keyword only
	assert.False(t, isSelect("UPDATE t SET x = 1"))
	assert.False(t, isSelect("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.False(t, isSelect(""))
}

func TestTopByTotalTime(t *testing.T) {
	stats := []core.QueryStat{
		{QueryID: "a", TotalTimeMs: 10},
		{QueryID: "b", TotalTimeMs: 30},
		{QueryID: "c", TotalTimeMs: 20},
	}
	top := topByTotalTime(stats, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].QueryID)
	assert.Equal(t, "c", top[1].QueryID)
	// Input order untouched.
	assert.Equal(t, "a", stats[0].QueryID)
}
