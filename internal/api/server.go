package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/miradorstack/mirador-activity/internal/config"
)

// HealthServiceName is the gRPC health service name reported alongside the overall status.
const HealthServiceName = "mirador.activity.Trainer"

// Server owns the HTTP API listener and the gRPC listener serving health and reflection.
type Server struct {
	cfg          config.ServerConfig
	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener
	health       *health.Server
}

// NewServer binds both listeners. handler serves the HTTP API.
func NewServer(cfg config.ServerConfig, handler http.Handler, opts ...grpc.ServerOption) (*Server, error) {
	httpLis, err := net.Listen("tcp", cfg.HTTPAddress)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddress, err)
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		httpLis.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.GRPCAddress, err)
	}

	grpc_prometheus.EnableHandlingTimeHistogram()
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
	serverOpts = append(serverOpts, opts...)
	grpcServer := grpc.NewServer(serverOpts...)

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)
	grpc_prometheus.Register(grpcServer)

	s := &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		httpListener: httpLis,
		grpcServer:   grpcServer,
		grpcListener: grpcLis,
		health:       healthSrv,
	}
	s.SetServing(true)
	return s, nil
}

// Start serves both listeners until Shutdown and returns the first serving error.
func (s *Server) Start() error {
	if s.grpcServer == nil || s.httpServer == nil {
		return fmt.Errorf("server not initialised")
	}

	errs := make(chan error, 2)
	go func() {
		errs <- s.grpcServer.Serve(s.grpcListener)
	}()
	go func() {
		err := s.httpServer.Serve(s.httpListener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errs <- err
	}()

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			return err
		}
	}
	return nil
}

// SetServing flips the reported health of both the overall server and the trainer service.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(HealthServiceName, status)
}

// WatchHealth calls check every interval and reports the result through the health service
// until ctx is done.
func (s *Server) WatchHealth(ctx context.Context, logger *slog.Logger, interval time.Duration, check func(context.Context) error) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	healthy := true
	for {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		err := check(checkCtx)
		cancel()
		if (err == nil) != healthy {
			healthy = err == nil
			if healthy {
				logger.Info("store reachable again")
			} else {
				logger.Warn("store health check failed", slog.Any("error", err))
			}
		}
		s.SetServing(healthy)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown attempts a graceful shutdown, falling back to Stop after timeout.
func (s *Server) Shutdown(ctx context.Context) {
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.httpServer.Close()
		}
	}
	if s.grpcServer == nil {
		return
	}

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.grpcServer.Stop()
	case <-stopped:
	}
}

// HTTPAddress exposes the bound HTTP listener address (useful for tests).
func (s *Server) HTTPAddress() string {
	if s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// GRPCAddress exposes the bound gRPC listener address (useful for tests).
func (s *Server) GRPCAddress() string {
	if s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// GracefulTimeout returns the configured graceful timeout duration.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}
