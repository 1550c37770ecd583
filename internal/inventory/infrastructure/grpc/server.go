package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server exposes the standard gRPC health service for a process. The named
// service and the empty "overall" service share one status.
type Server struct {
	log     *slog.Logger
	gs      *grpc.Server
	health  *health.Server
	service string
}

func NewServer(log *slog.Logger, service string) *Server {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	s := &Server{log: log, gs: gs, health: hs, service: service}
	s.SetServing(true)
	return s
}

func (s *Server) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.service, status)
}

// Watch runs check every interval and reports the result as the serving status.
func (s *Server) Watch(ctx context.Context, interval time.Duration, check func(ctx context.Context) error) {
	t := time.NewTicker(interval)
	defer t.Stop()
	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cctx, cancel := context.WithTimeout(ctx, interval)
			err := check(cctx)
			cancel()
			if ok := err == nil; ok != healthy {
				healthy = ok
				s.SetServing(ok)
				s.log.Warn("health changed", "service", s.service, "serving", ok, "err", err)
			}
		}
	}
}

func (s *Server) Serve(lis net.Listener) error {
	return s.gs.Serve(lis)
}

func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.gs.GracefulStop()
}

func Run(addr string, srv *Server) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := srv.Serve(lis); err != nil {
			srv.log.Error("grpc serve stopped", "err", err)
		}
	}()
	return srv, nil
}
