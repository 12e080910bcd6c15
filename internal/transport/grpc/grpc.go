// Package grpc implements the gRPC transport for speechviz.
//
// The transport serves the standard grpc.health.v1.Health service, with a
// serving status that follows the daemon's readiness, plus server
// reflection so tools like grpcurl can discover it. Orchestrators that
// probe over gRPC see the same state as /readyz.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the overall
// ("") status.
const ServiceName = "speechviz.Studio"

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port   int
	health *health.Server
	server *grpc.Server
	log    *slog.Logger
}

// New creates a new gRPC transport on the given port. It reports
// NOT_SERVING until SetReady(true).
func New(port int) *Transport {
	t := &Transport{
		port:   port,
		health: health.NewServer(),
		server: grpc.NewServer(),
		log:    slog.Default().With("transport", "grpc"),
	}
	healthpb.RegisterHealthServer(t.server, t.health)
	reflection.Register(t.server)
	t.SetReady(false)
	return t
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// SetReady mirrors daemon readiness into the health service.
func (t *Transport) SetReady(ready bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	t.health.SetServingStatus("", status)
	t.health.SetServingStatus(ServiceName, status)
}

// Listen starts the gRPC server. It blocks until the context is cancelled.
func (t *Transport) Listen(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return t.Serve(ctx, lis)
}

// Serve serves on lis until the context is cancelled.
func (t *Transport) Serve(ctx context.Context, lis net.Listener) error {
	t.log.Info("grpc transport listening", "addr", lis.Addr().String())

	go func() {
		<-ctx.Done()
		t.log.Info("grpc transport shutting down")
		_ = t.Close()
	}()

	if err := t.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Close marks every service NOT_SERVING and gracefully stops the server.
func (t *Transport) Close() error {
	t.health.Shutdown()
	t.server.GracefulStop()
	return nil
}
