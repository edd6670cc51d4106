// Package keeper runs the unattended maintenance loops: periodic rebalancing
// toward the target LTV, activation of matured parameter changes, and reward
// compounding.
package keeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"leverager/internal/alert"
	"leverager/internal/core"
	"leverager/internal/engine"
	"leverager/internal/rewards"
	"leverager/pkg/concurrency"
	"leverager/pkg/logging"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/sync/errgroup"
)

// Config parameterizes the maintenance loops.
type Config struct {
	Interval         time.Duration
	CompoundInterval time.Duration
	MaxRetries       int
	PoolSize         int
	PoolBuffer       int
}

// Status is a point-in-time view of the keeper for operators.
type Status struct {
	Running       bool
	LastRun       time.Time
	LastError     string
	Runs          int64
	Failures      int64
	Compounded    int64
	PendingChange int
}

// Keeper owns the background maintenance of one engine.
type Keeper struct {
	cfg        Config
	engine     *engine.Engine
	compounder *rewards.Compounder
	alerts     *alert.Manager
	pool       *concurrency.WorkerPool
	logger     core.ILogger
	retrier    failsafe.Executor[any]

	cancel context.CancelFunc
	group  *errgroup.Group

	mu         sync.Mutex
	running    bool
	lastRun    time.Time
	lastErr    error
	runs       int64
	failures   int64
	compounded int64
}

// New creates a keeper. The compounder may be nil when reward compounding is
// disabled, and the alert manager may be nil when no channels are configured.
func New(cfg Config, eng *engine.Engine, compounder *rewards.Compounder, alerts *alert.Manager) *Keeper {
	logger := logging.GetGlobalLogger().WithField("component", "keeper")

	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.CompoundInterval <= 0 {
		cfg.CompoundInterval = time.Hour
	}

	retryPolicy := retrypolicy.NewBuilder[any]().
		WithBackoff(500*time.Millisecond, 10*time.Second).
		WithMaxRetries(cfg.MaxRetries).
		Build()

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "keeper",
		MaxWorkers:  cfg.PoolSize,
		MaxCapacity: cfg.PoolBuffer,
		NonBlocking: true,
	}, logger)

	return &Keeper{
		cfg:        cfg,
		engine:     eng,
		compounder: compounder,
		alerts:     alerts,
		pool:       pool,
		logger:     logger,
		retrier:    failsafe.With[any](retryPolicy),
	}
}

// Start launches the maintenance loops. It returns immediately.
func (k *Keeper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)

	k.mu.Lock()
	k.cancel = cancel
	k.group = group
	k.running = true
	k.mu.Unlock()

	group.Go(func() error {
		k.rebalanceLoop(ctx)
		return nil
	})
	if k.compounder != nil {
		group.Go(func() error {
			k.compoundLoop(ctx)
			return nil
		})
	}

	k.logger.Info("Keeper started",
		"interval", k.cfg.Interval.String(),
		"compound_interval", k.cfg.CompoundInterval.String())
}

// Stop halts the loops and drains the worker pool.
func (k *Keeper) Stop() {
	k.mu.Lock()
	cancel := k.cancel
	group := k.group
	k.running = false
	k.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if group != nil {
		_ = group.Wait()
	}
	k.pool.Stop()
	k.logger.Info("Keeper stopped")
}

// TriggerRebalance queues an immediate maintenance pass without waiting for
// the next tick. It fails when the pool is saturated.
func (k *Keeper) TriggerRebalance(ctx context.Context) error {
	return k.pool.Submit(func() {
		k.runMaintenance(ctx)
	})
}

// GetStatus reports loop health.
func (k *Keeper) GetStatus() Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	status := Status{
		Running:       k.running,
		LastRun:       k.lastRun,
		Runs:          k.runs,
		Failures:      k.failures,
		Compounded:    k.compounded,
		PendingChange: len(k.engine.PendingChanges()),
	}
	if k.lastErr != nil {
		status.LastError = k.lastErr.Error()
	}
	return status
}

func (k *Keeper) rebalanceLoop(ctx context.Context) {
	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.runMaintenance(ctx)
		}
	}
}

func (k *Keeper) compoundLoop(ctx context.Context) {
	ticker := time.NewTicker(k.cfg.CompoundInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			amount, err := k.compounder.CompoundOnce(ctx)
			if err != nil {
				k.logger.Error("Compound pass failed", "error", err)
				continue
			}
			if amount.IsPositive() {
				k.mu.Lock()
				k.compounded++
				k.mu.Unlock()
			}
		}
	}
}

// runMaintenance applies matured parameter changes, then steers the position
// back to target. Transient failures are retried with backoff; a pass that
// exhausts its retries is recorded and left for the next tick.
func (k *Keeper) runMaintenance(ctx context.Context) {
	if !k.engine.IsActive() {
		return
	}

	if applied, err := k.engine.ApplyPendingChanges(); err != nil {
		k.logger.Error("Failed to apply pending parameter changes", "error", err)
	} else if applied > 0 {
		k.logger.Info("Applied pending parameter changes", "count", applied)
		k.notify(ctx, "Parameter change applied", fmt.Sprintf("%d matured change(s) took effect", applied), alert.Info, nil)
	}

	err := k.retrier.Run(func() error {
		return k.engine.Rebalance(ctx)
	})

	k.mu.Lock()
	k.lastRun = time.Now()
	k.lastErr = err
	k.runs++
	if err != nil {
		k.failures++
	}
	k.mu.Unlock()

	if err != nil {
		k.logger.Error("Rebalance pass failed", "error", err)
		k.notify(ctx, "Rebalance pass failed", err.Error(), alert.Error, map[string]string{
			"venue": k.engine.VenueName(),
		})
	}
}

func (k *Keeper) notify(ctx context.Context, title, message string, level alert.Level, fields map[string]string) {
	if k.alerts == nil {
		return
	}
	k.alerts.Alert(ctx, title, message, level, fields)
}
