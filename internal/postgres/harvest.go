package postgres

import (
	"context"

	"pgscope/internal/core"
)

// Default harvest thresholds.
const (
	DefaultLimit          = 200
	DefaultMinCalls       = 5
	DefaultMinTotalTimeMs = 50
)

// HarvestOptions tune what the harvester keeps. Zero values fall back
// to the defaults above. KeepRawQuery is a caller policy: when set the
// original query text is stored instead of the normalized form.
type HarvestOptions struct {
	Limit          int
	MinCalls       int64
	MinTotalTimeMs float64
	KeepRawQuery   bool
}

func (o HarvestOptions) withDefaults() HarvestOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.MinCalls <= 0 {
		o.MinCalls = DefaultMinCalls
	}
	if o.MinTotalTimeMs <= 0 {
		o.MinTotalTimeMs = DefaultMinTotalTimeMs
	}
	return o
}

// Scoped to the current database's OID so shared clusters don't leak
// other databases' workloads into the snapshot.
const topQueriesSQL = `
SELECT queryid::text, query, calls, total_time, mean_time, rows,
       COALESCE(shared_blks_read, 0),
       COALESCE(shared_blks_hit, 0),
       COALESCE(temp_blks_written, 0),
       COALESCE(wal_bytes, 0)
FROM pg_stat_statements
WHERE dbid = (SELECT oid FROM pg_database WHERE datname = current_database())
ORDER BY total_time DESC
LIMIT $1`

// CollectTopQueries reads the most expensive statements from
// pg_stat_statements, drops rows below the call/time thresholds and
// normalizes the query text. Row order (descending total time) is
// preserved. The threshold filter runs client-side, after the query.
func CollectTopQueries(ctx context.Context, q Querier, opts HarvestOptions) ([]core.QueryStat, error) {
	opts = opts.withDefaults()

	rows, err := q.Query(ctx, topQueriesSQL, opts.Limit)
	if err != nil {
		return nil, &core.HarvestError{Err: err}
	}
	defer rows.Close()

	var stats []core.QueryStat
	for rows.Next() {
		var s core.QueryStat
		var raw string
		if err := rows.Scan(&s.QueryID, &raw, &s.Calls, &s.TotalTimeMs, &s.MeanTimeMs, &s.Rows,
			&s.SharedBlksRead, &s.SharedBlksHit, &s.TempBlksWritten, &s.WALBytes); err != nil {
			return nil, &core.HarvestError{Err: err}
		}
		if !aboveThresholds(s, opts) {
			continue
		}
		if opts.KeepRawQuery {
			s.QueryNorm = raw
		} else {
			s.QueryNorm = NormalizeQuery(raw)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.HarvestError{Err: err}
	}
	return stats, nil
}

// aboveThresholds keeps a row only when both the call count and the
// accumulated time clear their minimums.
func aboveThresholds(s core.QueryStat, opts HarvestOptions) bool {
	return s.Calls >= opts.MinCalls && s.TotalTimeMs >= opts.MinTotalTimeMs
}
