package gameserver

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TickManager runs named periodic jobs on one shared interval.
// Jobs run one after another on the manager's goroutine in name order.
//
// Invariant: each registered job runs at most once per tick.
type TickManager struct {
	interval time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	jobs map[string]func(context.Context)
}

// NewTickManager returns a manager that fires every interval.
//
// Precondition: interval must be > 0; logger must be non-nil.
func NewTickManager(interval time.Duration, logger *zap.Logger) *TickManager {
	if interval <= 0 {
		panic("gameserver.NewTickManager: interval must be > 0")
	}
	if logger == nil {
		panic("gameserver.NewTickManager: logger must not be nil")
	}
	return &TickManager{
		interval: interval,
		logger:   logger,
		jobs:     make(map[string]func(context.Context)),
	}
}

// Register installs fn under name, replacing any job already there.
func (m *TickManager) Register(name string, fn func(context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[name] = fn
}

// Unregister removes the job registered under name.
func (m *TickManager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, name)
}

// Run fires the registered jobs every interval until ctx is cancelled.
//
// Postcondition: returns ctx.Err() once ctx is done.
func (m *TickManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *TickManager) tick(ctx context.Context) {
	m.mu.Lock()
	names := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	jobs := make([]func(context.Context), len(names))
	for i, name := range names {
		jobs[i] = m.jobs[name]
	}
	m.mu.Unlock()

	for i, fn := range jobs {
		start := time.Now()
		fn(ctx)
		m.logger.Debug("tick job finished",
			zap.String("job", names[i]),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// Watchdog returns a manager that sweeps idle sessions every
// WatchdogInterval of the world configuration.
func (w *World) Watchdog() *TickManager {
	m := NewTickManager(w.cfg.WatchdogInterval, w.logger)
	m.Register("idle_sweep", func(context.Context) {
		if n := w.SweepIdle(time.Now()); n > 0 {
			w.logger.Info("idle sessions disconnected", zap.Int("count", n))
		}
	})
	return m
}
