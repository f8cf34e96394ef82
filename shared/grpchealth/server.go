// Package grpchealth exposes the service health over the standard gRPC health
// protocol for orchestrators that health-check over gRPC instead of HTTP.
package grpchealth

import (
	"fmt"
	"net"

	"chat-risk-analysis/backend/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the service reported next to the overall ("") status.
const ServiceName = "chat_risk_analysis.Analysis"

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener
	log    *logger.Logger
}

// New listens on port. Every service starts as NOT_SERVING until SetServing is called.
func New(port string, log *logger.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", port, err)
	}
	return newServer(lis, log), nil
}

func newServer(lis net.Listener, log *logger.Logger) *Server {
	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		lis:    lis,
		log:    log.WithComponent("grpc-health"),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.SetServing(false)
	return s
}

// SetServing flips both the overall and the named service status. It matches
// the health.Checker OnUpdate hook signature.
func (s *Server) SetServing(healthy bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if healthy {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.lis.Addr()
}

// Serve blocks until Stop is called.
func (s *Server) Serve() error {
	s.log.Info("gRPC health server listening", "addr", s.lis.Addr().String())
	if err := s.grpc.Serve(s.lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Stop marks every service NOT_SERVING and drains open streams.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
