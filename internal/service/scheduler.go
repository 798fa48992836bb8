package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"pgscope/internal/core"
)

// MinCollectorInterval is the floor on the polling interval, preventing
// runaway polling when the configured value is too aggressive.
const MinCollectorInterval = 10 * time.Second

// InstanceCollector is what the scheduler drives once per ready
// instance per tick. *Collector implements it.
type InstanceCollector interface {
	Collect(ctx context.Context, inst *core.Instance) (*core.Snapshot, int, error)
}

// Scheduler owns the background collection loop. It is a handle object
// with its own started state rather than a package-level flag: the
// process constructs one, starts it once and can stop it on shutdown.
type Scheduler struct {
	states    core.SetupStateRepository
	instances core.InstanceRepository
	collector InstanceCollector
	interval  time.Duration
	log       *zap.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewScheduler(states core.SetupStateRepository, instances core.InstanceRepository,
	collector InstanceCollector, interval time.Duration, log *zap.Logger) *Scheduler {
	if interval < MinCollectorInterval {
		interval = MinCollectorInterval
	}
	return &Scheduler{
		states:    states,
		instances: instances,
		collector: collector,
		interval:  interval,
		log:       log,
	}
}

// Start launches the background loop. Calling Start while the loop is
// already running is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
	s.log.Info("collection scheduler started", zap.Duration("interval", s.interval))
}

// Stop cancels the loop and waits for the current tick to finish.
// Stopping a scheduler that is not running is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.started = false
	s.mu.Unlock()

	cancel()
	<-done
	s.log.Info("collection scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			return
		}
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}
}

// tick makes one full pass over all ready instances. Per-instance
// failures are logged and must never terminate the pass or the loop;
// last_checked_at is stamped whether or not the harvest succeeded.
func (s *Scheduler) tick(ctx context.Context) {
	states, err := s.states.ListReady()
	if err != nil {
		s.log.Error("list ready instances", zap.Error(err))
		return
	}

	for _, state := range states {
		if ctx.Err() != nil {
			return
		}
		s.collectOne(ctx, state.InstanceID)
		if err := s.states.TouchLastChecked(state.InstanceID, time.Now().UTC()); err != nil {
			s.log.Error("touch last_checked_at",
				zap.Int64("instance_id", state.InstanceID), zap.Error(err))
		}
	}
}

func (s *Scheduler) collectOne(ctx context.Context, instanceID int64) {
	inst, err := s.instances.GetByID(instanceID)
	if err != nil {
		s.log.Error("load instance", zap.Int64("instance_id", instanceID), zap.Error(err))
		return
	}

	_, n, err := s.collector.Collect(ctx, inst)
	switch {
	case errors.Is(err, core.ErrInvalidCredential):
		s.log.Warn("collection skipped: invalid credentials", zap.Int64("instance_id", inst.ID))
	case err != nil:
		s.log.Error("collection failed", zap.Int64("instance_id", inst.ID), zap.Error(err))
	default:
		s.log.Debug("collection complete", zap.Int64("instance_id", inst.ID), zap.Int("rows", n))
	}
}
