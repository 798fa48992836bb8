// Package postgres talks to the monitored instances themselves: it
// opens connections, probes pg_stat_statements readiness and harvests
// top-query statistics.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pgscope/internal/core"
)

// Querier is the subset of *pgx.Conn used by the probe and harvester.
// Tests substitute a fake; production code passes the live connection.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Connect opens a single connection to the target instance using the
// already-decrypted password. The password is set on the parsed config
// rather than interpolated into the DSN so special characters survive.
func Connect(ctx context.Context, inst *core.Instance, password string) (*pgx.Conn, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s sslmode=%s",
		inst.Host, inst.Port, inst.DBName, inst.User, inst.SSLMode)

	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, &core.ConnectionError{Host: inst.Host, Err: err}
	}
	cfg.Password = password

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, &core.ConnectionError{Host: inst.Host, Err: err}
	}
	return conn, nil
}
