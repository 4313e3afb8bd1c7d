package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// ServiceName is the health service name of the package manager.
const ServiceName = "pkgmgr.PackageManager"

// Server serves the standard gRPC health protocol for the package manager.
type Server struct {
	server *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewServer creates a health server. Both the overall ("") and the
// package manager service start NOT_SERVING until SetServing is called.
func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    60 * time.Second,
			Timeout: 20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(loggingInterceptor(logger)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{server: srv, health: hs, logger: logger}
	s.SetServing(false)
	return s
}

// SetServing flips the reported status of both services.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc health server listening", zap.String("addr", lis.Addr().String()))
	if err := s.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Stop marks the services NOT_SERVING and drains connections.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)))
		return resp, err
	}
}
