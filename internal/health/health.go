// Package health serves the gRPC health protocol for the bridge's two sessions.
package health

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Service names reported by the health server.
const (
	ServiceWorld = "world"
	ServiceChat  = "chat"
)

// Reporter tracks session status and serves it over gRPC health v1.
// The overall ("") status is SERVING only while both sessions are up.
type Reporter struct {
	logger *zap.Logger
	health *grpchealth.Server

	mu    sync.Mutex
	world bool
	chat  bool

	listener   net.Listener
	grpcServer *grpc.Server
}

// NewReporter creates a Reporter with every service NOT_SERVING.
//
// Precondition: logger must be non-nil.
func NewReporter(logger *zap.Logger) *Reporter {
	r := &Reporter{
		logger: logger,
		health: grpchealth.NewServer(),
	}
	r.publish()
	return r
}

// SetWorldServing records whether the world session is logged in.
func (r *Reporter) SetWorldServing(up bool) {
	r.mu.Lock()
	r.world = up
	r.mu.Unlock()
	r.publish()
}

// SetChatServing records whether the chat session is ready.
func (r *Reporter) SetChatServing(up bool) {
	r.mu.Lock()
	r.chat = up
	r.mu.Unlock()
	r.publish()
}

// HealthServer exposes the underlying grpc health server.
func (r *Reporter) HealthServer() grpc_health_v1.HealthServer {
	return r.health
}

func (r *Reporter) publish() {
	r.mu.Lock()
	world, chat := r.world, r.chat
	r.mu.Unlock()
	r.health.SetServingStatus(ServiceWorld, status(world))
	r.health.SetServingStatus(ServiceChat, status(chat))
	r.health.SetServingStatus("", status(world && chat))
}

func status(up bool) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if up {
		return grpc_health_v1.HealthCheckResponse_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_NOT_SERVING
}

// Listen binds addr and registers the health service on a new gRPC server.
//
// Postcondition: Returns nil and Addr is non-empty, or a non-nil error.
func (r *Reporter) Listen(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	r.listener = lis
	r.grpcServer = grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(r.grpcServer, r.health)
	return nil
}

// Addr returns the bound listen address, or "" before Listen.
func (r *Reporter) Addr() string {
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

// Start serves until Stop is called.
//
// Precondition: Listen must have succeeded.
func (r *Reporter) Start() error {
	if r.grpcServer == nil {
		return errors.New("health server not listening")
	}
	r.logger.Info("health server listening", zap.String("addr", r.Addr()))
	if err := r.grpcServer.Serve(r.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve health: %w", err)
	}
	return nil
}

// Stop marks every service NOT_SERVING and stops the gRPC server gracefully.
func (r *Reporter) Stop() {
	r.health.Shutdown()
	if r.grpcServer != nil {
		r.grpcServer.GracefulStop()
	}
}
