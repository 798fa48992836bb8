package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pgscope/internal/core"
	"pgscope/internal/postgres"
)

// DefaultCollectTimeout bounds one probe or harvest round-trip. A hung
// target instance must not stall the scheduler tick behind it forever.
const DefaultCollectTimeout = 30 * time.Second

// Collector runs the per-instance pipelines that need a live connection
// to the target: the readiness probe and the harvest
// (decrypt -> connect -> collect -> persist -> recommend).
type Collector struct {
	vault     *Vault
	snapshots core.SnapshotRepository
	engine    *RecommendationEngine
	opts      postgres.HarvestOptions
	timeout   time.Duration
	log       *zap.Logger
}

func NewCollector(vault *Vault, snapshots core.SnapshotRepository, engine *RecommendationEngine,
	opts postgres.HarvestOptions, timeout time.Duration, log *zap.Logger) *Collector {
	if timeout <= 0 {
		timeout = DefaultCollectTimeout
	}
	return &Collector{
		vault:     vault,
		snapshots: snapshots,
		engine:    engine,
		opts:      opts,
		timeout:   timeout,
		log:       log,
	}
}

// Probe connects to the instance and runs the readiness battery. The
// caller decides what to do with the result; nothing is persisted here.
func (c *Collector) Probe(ctx context.Context, inst *core.Instance) (*postgres.SetupInfo, error) {
	password, err := c.vault.Decrypt(inst.PasswordEnc)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := postgres.Connect(ctx, inst, password)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)

	return postgres.CheckSetup(ctx, conn)
}

// Collect harvests top-query statistics from the instance, persists a
// snapshot with its stat rows atomically and derives recommendations
// from it. Returns the snapshot and the number of stat rows kept.
func (c *Collector) Collect(ctx context.Context, inst *core.Instance) (*core.Snapshot, int, error) {
	password, err := c.vault.Decrypt(inst.PasswordEnc)
	if err != nil {
		return nil, 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := postgres.Connect(ctx, inst, password)
	if err != nil {
		return nil, 0, err
	}
	defer conn.Close(ctx)

	stats, err := postgres.CollectTopQueries(ctx, conn, c.opts)
	if err != nil {
		return nil, 0, err
	}

	snap := &core.Snapshot{InstanceID: inst.ID, CapturedAt: time.Now().UTC()}
	if err := c.snapshots.Create(snap, stats); err != nil {
		return nil, 0, err
	}

	if err := c.engine.Generate(snap, stats); err != nil {
		return nil, 0, err
	}

	c.log.Debug("snapshot collected",
		zap.Int64("instance_id", inst.ID),
		zap.Int64("snapshot_id", snap.ID),
		zap.Int("rows", len(stats)))
	return snap, len(stats), nil
}
