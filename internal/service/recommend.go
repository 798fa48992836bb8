package service

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"pgscope/internal/core"
	"pgscope/internal/postgres"
)

// Thresholds for the recommendation heuristics.
const (
	readReplicaMinTotalTimeMs = 10000
	readReplicaMinSelectRatio = 0.8

	indexTopN          = 5
	indexMinCalls      = 25
	indexMinMeanTimeMs = 50
	// At or above this mean the index suggestion is upgraded from low
	// to medium confidence.
	indexMediumMeanTimeMs = 100
)

// RecommendationEngine turns one snapshot's stats into zero or more
// recommendation upserts. It is rule-based: a read-replica suggestion
// for SELECT-dominated workloads and index suggestions for the most
// expensive frequently-run SELECTs.
type RecommendationEngine struct {
	recs core.RecommendationRepository
}

func NewRecommendationEngine(recs core.RecommendationRepository) *RecommendationEngine {
	return &RecommendationEngine{recs: recs}
}

// Generate evaluates the heuristics over the snapshot's stats. An empty
// snapshot produces nothing, not even a "no issues" record.
func (e *RecommendationEngine) Generate(snap *core.Snapshot, stats []core.QueryStat) error {
	if len(stats) == 0 {
		return nil
	}

	var totalTime, selectTime float64
	for _, s := range stats {
		totalTime += s.TotalTimeMs
		if isSelect(s.QueryNorm) {
			selectTime += s.TotalTimeMs
		}
	}
	selectRatio := 0.0
	if totalTime > 0 {
		selectRatio = selectTime / totalTime
	}

	if totalTime >= readReplicaMinTotalTimeMs && selectRatio >= readReplicaMinSelectRatio {
		err := e.recs.Upsert(&core.Recommendation{
			InstanceID: snap.InstanceID,
			Type:       core.RecTypeReadReplica,
			Title:      "Read-heavy workload detected",
			Details: fmt.Sprintf("%.0f%% of total query time comes from SELECT statements. "+
				"A read replica can absorb reporting/analytics workloads.", selectRatio*100),
			SQL:         "",
			Confidence:  core.ConfidenceMedium,
			Score:       round1(selectRatio * 100),
			Fingerprint: postgres.ReadReplicaFingerprint(snap.InstanceID),
			Status:      core.RecStatusOpen,
		})
		if err != nil {
			return err
		}
	}

	for _, s := range topByTotalTime(stats, indexTopN) {
		if !isSelect(s.QueryNorm) || s.Calls < indexMinCalls || s.MeanTimeMs < indexMinMeanTimeMs {
			continue
		}
		confidence := core.ConfidenceLow
		if s.MeanTimeMs >= indexMediumMeanTimeMs {
			confidence = core.ConfidenceMedium
		}
		score := 0.0
		if totalTime > 0 {
			score = math.Min(100, round1(s.TotalTimeMs/totalTime*100))
		}
		err := e.recs.Upsert(&core.Recommendation{
			InstanceID: snap.InstanceID,
			Type:       core.RecTypeIndex,
			Title:      fmt.Sprintf("Index opportunity for query %s", s.QueryID),
			Details: fmt.Sprintf("Mean time %.1f ms across %d calls. "+
				"Consider EXPLAIN (ANALYZE, BUFFERS) and indexing filter/join columns.", s.MeanTimeMs, s.Calls),
			SQL:         "",
			Confidence:  confidence,
			Score:       score,
			Fingerprint: postgres.Fingerprint(s.QueryID, snap.InstanceID),
			Status:      core.RecStatusOpen,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// isSelect matches the workload-shape predicate: trimmed, lowercased
// text starting with "select".
func isSelect(queryNorm string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(queryNorm)), "select")
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

func topByTotalTime(stats []core.QueryStat, n int) []core.QueryStat {
	top := make([]core.QueryStat, len(stats))
	copy(top, stats)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].TotalTimeMs > top[j].TotalTimeMs
	})
	if len(top) > n {
		top = top[:n]
	}
	return top
}
