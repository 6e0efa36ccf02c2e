// Package server runs the world server's long-lived services (acceptors,
// relay, tick managers) and shuts them down in reverse order on signal.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultStopTimeout bounds how long one service may take to stop.
const DefaultStopTimeout = 10 * time.Second

// Service is a long-running part of a world channel.
type Service interface {
	// Start blocks until the service stops or fails.
	Start() error
	// Stop makes a running Start return.
	Stop()
}

// FuncService builds a Service from a start/stop pair.
type FuncService struct {
	StartFn func() error
	StopFn  func()
}

// Start calls StartFn.
func (f *FuncService) Start() error { return f.StartFn() }

// Stop calls StopFn.
func (f *FuncService) Stop() { f.StopFn() }

// ContextService runs a function that returns once its context is cancelled.
type ContextService struct {
	run    func(ctx context.Context) error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewContextService wraps run.
//
// Precondition: run must be non-nil.
func NewContextService(run func(ctx context.Context) error) *ContextService {
	if run == nil {
		panic("server.NewContextService: run must not be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ContextService{run: run, ctx: ctx, cancel: cancel}
}

// Start runs the wrapped function until it returns or Stop is called.
//
// Postcondition: a return caused by Stop is reported as nil.
func (c *ContextService) Start() error {
	err := c.run(c.ctx)
	if errors.Is(err, context.Canceled) && c.ctx.Err() != nil {
		return nil
	}
	return err
}

// Stop cancels the wrapped function's context.
func (c *ContextService) Stop() { c.cancel() }

type entry struct {
	name string
	svc  Service
}

type hook struct {
	name string
	fn   func(ctx context.Context)
}

// Lifecycle starts services together and stops them last-in first-out.
// Shutdown hooks run after every service has stopped.
type Lifecycle struct {
	logger      *zap.Logger
	stopTimeout time.Duration

	mu       sync.Mutex
	services []entry
	hooks    []hook
}

// NewLifecycle returns an empty Lifecycle.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	if logger == nil {
		panic("server.NewLifecycle: logger must not be nil")
	}
	return &Lifecycle{logger: logger, stopTimeout: DefaultStopTimeout}
}

// SetStopTimeout changes the per-service stop bound. Non-positive values are ignored.
func (l *Lifecycle) SetStopTimeout(d time.Duration) {
	if d > 0 {
		l.stopTimeout = d
	}
}

// Add registers a service. Services stop in the reverse of Add order.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	if name == "" || svc == nil {
		panic("server.Lifecycle.Add: name and service are required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, entry{name: name, svc: svc})
}

// OnShutdown registers fn to run once services have stopped, in Add order.
func (l *Lifecycle) OnShutdown(name string, fn func(ctx context.Context)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, hook{name: name, fn: fn})
}

// Run starts every service and blocks until SIGINT/SIGTERM, ctx ends or a
// service fails.
//
// Postcondition: every service has been asked to stop and every hook has
// run. The error of the first failed service is returned.
func (l *Lifecycle) Run(ctx context.Context) error {
	l.mu.Lock()
	services := append([]entry(nil), l.services...)
	hooks := append([]hook(nil), l.hooks...)
	l.mu.Unlock()

	began := time.Now()
	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	failed := make(chan error, len(services))
	for _, e := range services {
		go func() {
			l.logger.Debug("service starting", zap.String("service", e.name))
			if err := e.svc.Start(); err != nil {
				failed <- fmt.Errorf("service %s: %w", e.name, err)
			}
		}()
	}
	l.logger.Info("services running", zap.Int("count", len(services)))

	var runErr error
	select {
	case runErr = <-failed:
		l.logger.Error("service failed, shutting down", zap.Error(runErr))
	case <-ctx.Done():
		l.logger.Info("shutting down", zap.NamedError("cause", context.Cause(ctx)))
	}

	for i := len(services) - 1; i >= 0; i-- {
		l.stop(services[i])
	}

	hookCtx, cancel := context.WithTimeout(context.Background(), l.stopTimeout)
	defer cancel()
	for _, h := range hooks {
		l.logger.Debug("running shutdown hook", zap.String("hook", h.name))
		h.fn(hookCtx)
	}

	l.logger.Info("shutdown complete", zap.Duration("uptime", time.Since(began)))
	return runErr
}

func (l *Lifecycle) stop(e entry) {
	done := make(chan struct{})
	began := time.Now()
	go func() {
		defer close(done)
		e.svc.Stop()
	}()
	select {
	case <-done:
		l.logger.Debug("service stopped",
			zap.String("service", e.name),
			zap.Duration("elapsed", time.Since(began)),
		)
	case <-time.After(l.stopTimeout):
		l.logger.Warn("service stop timed out",
			zap.String("service", e.name),
			zap.Duration("timeout", l.stopTimeout),
		)
	}
}
