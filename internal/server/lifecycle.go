// Package server runs the process's long-lived services and shuts them down
// in reverse order on SIGINT, SIGTERM, context cancellation, or the first
// service failure.
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

// DefaultStopTimeout bounds how long shutdown waits for one service.
const DefaultStopTimeout = 10 * time.Second

// Service is a long-running component.
type Service interface {
	// Run blocks until ctx is cancelled or the service fails. Returning nil
	// after cancellation is a clean stop.
	Run(ctx context.Context) error
}

// ServiceFunc adapts a function to the Service interface.
type ServiceFunc func(ctx context.Context) error

// Run calls f.
func (f ServiceFunc) Run(ctx context.Context) error { return f(ctx) }

// StartStop adapts a blocking Start and an asynchronous Stop, such as a
// network server's Serve and Shutdown pair, into a Service.
type StartStop struct {
	StartFn func() error
	StopFn  func()
}

// Run calls StartFn and calls StopFn when ctx is cancelled.
//
// Postcondition: StopFn has been called at most once when Run returns.
func (s *StartStop) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.StartFn() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.StopFn()
		return <-errCh
	}
}

// Lifecycle starts named services in order and stops them in reverse order.
type Lifecycle struct {
	logger      *zap.Logger
	stopTimeout time.Duration
	signals     []os.Signal

	mu       sync.Mutex
	services []*namedService
}

type namedService struct {
	name    string
	service Service
	cancel  context.CancelFunc
	done    chan error
}

// NewLifecycle creates a Lifecycle that reacts to SIGINT and SIGTERM.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		logger:      logger,
		stopTimeout: DefaultStopTimeout,
		signals:     []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// SetStopTimeout overrides DefaultStopTimeout.
//
// Precondition: d > 0.
func (l *Lifecycle) SetStopTimeout(d time.Duration) {
	l.stopTimeout = d
}

// Add registers a named service. Services start in the order they are added.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, &namedService{name: name, service: svc})
}

// Run starts all services and blocks until a signal arrives, ctx is
// cancelled, or a service fails.
//
// Postcondition: Every service has been cancelled and either returned or
// exceeded the stop timeout. Returns the first service failure, if any.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	l.mu.Lock()
	services := append([]*namedService(nil), l.services...)
	l.mu.Unlock()

	failed := make(chan error, len(services))
	for _, ns := range services {
		svcCtx, cancel := context.WithCancel(ctx)
		ns.cancel = cancel
		ns.done = make(chan error, 1)
		l.logger.Info("starting service", zap.String("service", ns.name))
		go func(ns *namedService) {
			svcStart := time.Now()
			err := ns.service.Run(svcCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				l.logger.Error("service failed",
					zap.String("service", ns.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(svcStart)),
				)
				failed <- fmt.Errorf("service %s: %w", ns.name, err)
			}
			ns.done <- err
		}(ns)
	}

	l.logger.Info("all services started",
		zap.Int("count", len(services)),
		zap.Duration("startup", time.Since(start)),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, l.signals...)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		l.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case runErr = <-failed:
		l.logger.Error("service error, shutting down", zap.Error(runErr))
	case <-ctx.Done():
		l.logger.Info("context cancelled, shutting down")
	}

	l.shutdown(services)

	l.logger.Info("shutdown complete", zap.Duration("total_uptime", time.Since(start)))
	return runErr
}

func (l *Lifecycle) shutdown(services []*namedService) {
	shutdownStart := time.Now()
	for i := len(services) - 1; i >= 0; i-- {
		ns := services[i]
		svcStart := time.Now()
		l.logger.Info("stopping service", zap.String("service", ns.name))
		ns.cancel()
		select {
		case <-ns.done:
			l.logger.Info("service stopped",
				zap.String("service", ns.name),
				zap.Duration("elapsed", time.Since(svcStart)),
			)
		case <-time.After(l.stopTimeout):
			l.logger.Warn("service did not stop in time",
				zap.String("service", ns.name),
				zap.Duration("timeout", l.stopTimeout),
			)
		}
	}
	l.logger.Info("all services stopped", zap.Duration("shutdown_elapsed", time.Since(shutdownStart)))
}
