package grid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Tracker feeds live observations into a Controller. Rebuilds are rate
// limited; observations arriving faster than the limit mark the grid dirty
// and are picked up by the next flush.
type Tracker struct {
	mu    sync.Mutex
	store Store
	dirty bool

	ctrl     *Controller
	obsLog   *ObservationLog
	limiter  *rate.Limiter
	interval time.Duration
	logger   *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// NewTracker returns a tracker driving ctrl. obsLog may be nil to disable
// persistence. minInterval <= 0 rebuilds on every Add.
func NewTracker(ctrl *Controller, obsLog *ObservationLog, minInterval time.Duration, logger *zap.Logger) *Tracker {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Tracker{
		ctrl:     ctrl,
		obsLog:   obsLog,
		limiter:  rate.NewLimiter(limit, 1),
		interval: minInterval,
		logger:   orNop(logger),
	}
}

// Controller returns the controller this tracker drives.
func (t *Tracker) Controller() *Controller { return t.ctrl }

// Add validates and appends observations. The batch is all or nothing:
// if any observation is invalid, or the grown store would not build at the
// current resolution, neither the store nor the log changes.
func (t *Tracker) Add(ctx context.Context, obs ...Observation) error {
	if len(obs) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for i, o := range obs {
		if err := o.Validate(len(t.store) + i); err != nil {
			return err
		}
	}
	n := len(t.store)
	candidate := append(t.store[:n:n], obs...)
	if err := t.ctrl.Check(candidate); err != nil {
		return err
	}
	if t.obsLog != nil {
		if err := t.obsLog.Append(ctx, obs...); err != nil {
			return fmt.Errorf("persisting observations: %w", err)
		}
	}
	t.store = candidate
	t.dirty = true
	t.logger.Debug("observations added", zap.Int("count", len(obs)), zap.Int("total", len(t.store)))

	if t.limiter.Allow() {
		return t.rebuildLocked()
	}
	return nil
}

// Flush rebuilds the grid if observations arrived since the last rebuild.
func (t *Tracker) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return nil
	}
	return t.rebuildLocked()
}

func (t *Tracker) rebuildLocked() error {
	if err := t.ctrl.Load(t.store); err != nil {
		return fmt.Errorf("rebuilding grid: %w", err)
	}
	t.dirty = false
	return nil
}

// Dirty reports whether observations are waiting for a rebuild.
func (t *Tracker) Dirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty
}

// Len returns the number of tracked observations.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.store)
}

// Restore loads the persisted log and rebuilds from it.
func (t *Tracker) Restore(ctx context.Context) error {
	if t.obsLog == nil {
		return nil
	}
	store, err := t.obsLog.All(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.store = store
	t.logger.Info("observations restored", zap.Int("count", len(store)))
	if len(store) == 0 {
		return nil
	}
	return t.rebuildLocked()
}

// Reset drops all observations, including the persisted log.
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.obsLog != nil {
		if err := t.obsLog.Clear(ctx); err != nil {
			return err
		}
	}
	t.store = nil
	t.dirty = false
	t.ctrl.Reset()
	return nil
}

// Start runs a background flush every minimum interval until Stop.
// It does nothing when rebuilds are not rate limited.
func (t *Tracker) Start() {
	if t.interval <= 0 || t.stop != nil {
		return
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := t.Flush(); err != nil {
					t.logger.Warn("flush failed", zap.Error(err))
				}
			case <-t.stop:
				return
			}
		}
	}()
}

// Stop halts the flush loop and performs a final flush.
func (t *Tracker) Stop() error {
	if t.stop != nil {
		close(t.stop)
		<-t.done
		t.stop = nil
	}
	return t.Flush()
}
