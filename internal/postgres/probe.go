package postgres

import (
	"context"
	"strconv"
	"strings"

	"pgscope/internal/core"
)

// SetupStatus classifies how far an instance is from being collectable.
type SetupStatus string

const (
	StatusReady                SetupStatus = "READY"
	StatusBlocked              SetupStatus = "BLOCKED"
	StatusNeedsPreload         SetupStatus = "NEEDS_PRELOAD"
	StatusNeedsCreateExtension SetupStatus = "NEEDS_CREATE_EXTENSION"
)

// SetupChecks holds the results of the six mandatory readiness queries.
// A fixed struct instead of a map so every check is always present.
type SetupChecks struct {
	ServerVersion          string `json:"server_version"`
	ServerVersionNum       int    `json:"server_version_num"`
	SharedPreloadLibraries string `json:"shared_preload_libraries"`
	Available              bool   `json:"available"`
	Created                bool   `json:"created"`
	HasView                bool   `json:"has_view"`
}

// SetupInfo is the full probe result returned to callers.
//
// Status is derived from the availability, preload and created checks
// only. Ready additionally requires the catalog view to be visible, so
// the two can disagree when to_regclass comes back null while the first
// three checks pass. Both are exposed on purpose.
type SetupInfo struct {
	Status       SetupStatus       `json:"status"`
	Ready        bool              `json:"ready"`
	PgVersionNum int               `json:"pg_version_num"`
	PreloadOK    bool              `json:"preload_ok"`
	ExtCreated   bool              `json:"ext_created"`
	Checks       SetupChecks       `json:"checks"`
	Params       map[string]string `json:"params"`
}

// paramChecks are best-effort: a failure omits the parameter from the
// result instead of failing the probe.
var paramChecks = []string{
	"pg_stat_statements.track",
	"pg_stat_statements.max",
	"pg_stat_statements.save",
	"pg_stat_statements.track_utility",
}

// CheckSetup runs the readiness battery against one open connection.
// Any error in the six mandatory queries aborts the probe; the four
// auxiliary SHOW queries are each allowed to fail individually.
func CheckSetup(ctx context.Context, q Querier) (*SetupInfo, error) {
	var checks SetupChecks
	var versionNum string

	steps := []struct {
		name string
		sql  string
		dst  any
	}{
		{"server_version", `SHOW server_version`, &checks.ServerVersion},
		{"server_version_num", `SHOW server_version_num`, &versionNum},
		{"shared_preload_libraries", `SHOW shared_preload_libraries`, &checks.SharedPreloadLibraries},
		{"available", `SELECT EXISTS (SELECT 1 FROM pg_available_extensions WHERE name='pg_stat_statements')`, &checks.Available},
		{"created", `SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname='pg_stat_statements')`, &checks.Created},
		{"has_view", `SELECT to_regclass('public.pg_stat_statements') IS NOT NULL`, &checks.HasView},
	}
	for _, step := range steps {
		if err := q.QueryRow(ctx, step.sql).Scan(step.dst); err != nil {
			return nil, &core.ProbeError{Check: step.name, Err: err}
		}
	}

	num, err := strconv.Atoi(strings.TrimSpace(versionNum))
	if err != nil {
		return nil, &core.ProbeError{Check: "server_version_num", Err: err}
	}
	checks.ServerVersionNum = num

	preloadOK := preloadContains(checks.SharedPreloadLibraries)
	status, ready := classify(checks, preloadOK)

	info := &SetupInfo{
		Status:       status,
		Ready:        ready,
		PgVersionNum: checks.ServerVersionNum,
		PreloadOK:    preloadOK,
		ExtCreated:   checks.Created,
		Checks:       checks,
		Params:       make(map[string]string, len(paramChecks)),
	}

	for _, name := range paramChecks {
		var val string
		if err := q.QueryRow(ctx, "SHOW "+name).Scan(&val); err != nil {
			// Keep the session usable for the remaining checks.
			_, _ = q.Exec(ctx, "ROLLBACK")
			continue
		}
		info.Params[name] = val
	}

	return info, nil
}

// classify applies the status priority order. ready is the stricter
// four-check conjunction, tracked separately from the discrete status.
func classify(c SetupChecks, preloadOK bool) (SetupStatus, bool) {
	ready := c.Available && preloadOK && c.Created && c.HasView
	switch {
	case !c.Available:
		return StatusBlocked, ready
	case !preloadOK:
		return StatusNeedsPreload, ready
	case !c.Created:
		return StatusNeedsCreateExtension, ready
	}
	return StatusReady, ready
}

// preloadContains reports whether pg_stat_statements appears in the
// comma-separated shared_preload_libraries value, ignoring case and
// surrounding whitespace.
func preloadContains(libs string) bool {
	for _, lib := range strings.Split(libs, ",") {
		if strings.EqualFold(strings.TrimSpace(lib), "pg_stat_statements") {
			return true
		}
	}
	return false
}
