package health

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for the checker.
const ServiceName = "certcheck"

type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	grpc   *health.Server
}

func NewService(parent context.Context) *Service {
	ctx, cancel := context.WithCancel(parent)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return &Service{
		ctx:    ctx,
		cancel: cancel,
		grpc:   hs,
	}
}

// Shutdown marks the service as going away on both HTTP and gRPC.
func (s *Service) Shutdown() {
	s.cancel()
	s.grpc.Shutdown()
}

func (s *Service) IsShuttingDown() bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}

// Context returns the service context for use in operations
func (s *Service) Context() context.Context {
	return s.ctx
}

// RegisterGRPC exposes the standard grpc.health.v1 service.
func (s *Service) RegisterGRPC(server *grpc.Server) {
	healthpb.RegisterHealthServer(server, s.grpc)
}
