package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tour-inventory/internal/clock"
	"tour-inventory/internal/models"
	"tour-inventory/internal/util"

	"go.uber.org/zap"
)

// SweepLockName is the lock that keeps one replica sweeping at a time.
const SweepLockName = "reservation-sweep"

// Sweeper expires lapsed holds.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) ([]models.Reservation, error)
}

// Locker is a lease-based distributed mutex.
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, name, token string) error
	ExtendLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error)
}

// SweepWorkerConfig contains configuration for the sweep worker
type SweepWorkerConfig struct {
	// Interval between sweeps
	Interval time.Duration
	// LockTTL bounds how long a crashed replica can block the others
	LockTTL time.Duration
	// HeartbeatInterval is how often a running sweep renews its lease.
	// Defaults to a third of LockTTL.
	HeartbeatInterval time.Duration
}

// DefaultSweepWorkerConfig returns default configuration
func DefaultSweepWorkerConfig() *SweepWorkerConfig {
	return &SweepWorkerConfig{
		Interval:          time.Minute,
		LockTTL:           2 * time.Minute,
		HeartbeatInterval: 40 * time.Second,
	}
}

// withDefaults fills non-positive durations so the ticker and lease are always valid.
func (c SweepWorkerConfig) withDefaults() *SweepWorkerConfig {
	defaults := DefaultSweepWorkerConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatInterval >= c.LockTTL {
		c.HeartbeatInterval = c.LockTTL / 3
	}
	return &c
}

// SweepWorkerStats is a snapshot of the worker's progress.
type SweepWorkerStats struct {
	IsRunning        bool      `json:"is_running"`
	Runs             int64     `json:"runs"`
	SkippedRuns      int64     `json:"skipped_runs"`
	TotalExpired     int64     `json:"total_expired"`
	LastRunTime      time.Time `json:"last_run_time"`
	LastExpiredCount int       `json:"last_expired_count"`
	LastError        string    `json:"last_error,omitempty"`
}

// SweepWorker periodically expires lapsed reservations. With a Locker only
// the replica holding the sweep lock runs a given tick.
type SweepWorker struct {
	sweeper Sweeper
	locker  Locker
	clock   clock.Clock
	config  *SweepWorkerConfig
	logger  *zap.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	runs             int64
	skippedRuns      int64
	totalExpired     int64
	lastRunTime      time.Time
	lastExpiredCount int
	lastError        string
}

// NewSweepWorker creates a new sweep worker. locker may be nil for a single replica.
func NewSweepWorker(sweeper Sweeper, locker Locker, clk clock.Clock, config *SweepWorkerConfig) *SweepWorker {
	if config == nil {
		config = DefaultSweepWorkerConfig()
	}
	return &SweepWorker{
		sweeper: sweeper,
		locker:  locker,
		clock:   clk,
		config:  config.withDefaults(),
		logger:  util.GetLogger(),
		stopCh:  make(chan struct{}),
	}
}

// Start starts the sweep loop
func (w *SweepWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sweep worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("Starting sweep worker", zap.Duration("interval", w.config.Interval))

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop stops the sweep loop and waits for an in-flight sweep
func (w *SweepWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.logger.Info("Stopping sweep worker")
	close(w.stopCh)
	w.wg.Wait()
	w.logger.Info("Sweep worker stopped")
}

func (w *SweepWorker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep if this replica wins the lock. It reports how
// many reservations were expired and whether the sweep ran at all.
func (w *SweepWorker) RunOnce(ctx context.Context) (int, bool) {
	if w.locker != nil {
		token, ok, err := w.locker.AcquireLock(ctx, SweepLockName, w.config.LockTTL)
		if err != nil {
			w.logger.Warn("Failed to acquire sweep lock", zap.Error(err))
			w.recordSkip()
			return 0, false
		}
		if !ok {
			w.recordSkip()
			return 0, false
		}
		defer func() {
			if err := w.locker.ReleaseLock(context.Background(), SweepLockName, token); err != nil {
				w.logger.Warn("Failed to release sweep lock", zap.Error(err))
			}
		}()

		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		done := make(chan struct{})
		go w.heartbeat(ctx, cancel, token, done)
		defer func() {
			cancel()
			<-done
		}()
	}

	expired, err := w.sweeper.Sweep(ctx, w.clock.Now())

	w.mu.Lock()
	defer w.mu.Unlock()
	w.runs++
	w.lastRunTime = w.clock.Now()
	w.lastExpiredCount = len(expired)
	w.totalExpired += int64(len(expired))
	w.lastError = ""
	if err != nil {
		util.SweepErrorsTotal.Inc()
		w.lastError = err.Error()
		w.logger.Error("Sweep failed", zap.Int("expired", len(expired)), zap.Error(err))
	}
	return len(expired), true
}

// heartbeat renews the sweep lease until ctx ends. Losing the lease cancels
// the sweep so two replicas never sweep at once.
func (w *SweepWorker) heartbeat(ctx context.Context, cancel context.CancelFunc, token string, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := w.locker.ExtendLock(ctx, SweepLockName, token, w.config.LockTTL)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Warn("Failed to extend sweep lock", zap.Error(err))
				continue
			}
			if !ok {
				w.logger.Warn("Sweep lock lost, cancelling sweep")
				cancel()
				return
			}
		}
	}
}

func (w *SweepWorker) recordSkip() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.skippedRuns++
}

// GetStats returns worker statistics
func (w *SweepWorker) GetStats() *SweepWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &SweepWorkerStats{
		IsRunning:        w.running,
		Runs:             w.runs,
		SkippedRuns:      w.skippedRuns,
		TotalExpired:     w.totalExpired,
		LastRunTime:      w.lastRunTime,
		LastExpiredCount: w.lastExpiredCount,
		LastError:        w.lastError,
	}
}
