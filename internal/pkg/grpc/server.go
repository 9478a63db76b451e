package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	logger "github.com/Gopher0727/ProfDash/middleware/log"
)

// ServiceName is the health-check service name reported for the dashboard API.
const ServiceName = "profdash.Dashboard"

// Probe checks one dependency, e.g. a database ping.
type Probe func(ctx context.Context) error

type Server struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	address  string
	probes   map[string]Probe
	interval time.Duration
	log      *logger.Logger
}

// NewServer listens on address and registers the standard health service.
// Each probe is polled every interval; any failure marks ServiceName NOT_SERVING.
func NewServer(address string, probes map[string]Probe, interval time.Duration, log *logger.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	s := &Server{
		health:   health.NewServer(),
		listener: listener,
		address:  listener.Addr().String(),
		probes:   probes,
		interval: interval,
		log:      log,
	}
	s.server = grpc.NewServer(grpc.UnaryInterceptor(s.unaryLoggingInterceptor))
	healthpb.RegisterHealthServer(s.server, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s, nil
}

func (s *Server) unaryLoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := codes.OK
	if err != nil {
		if st, ok := status.FromError(err); ok {
			code = st.Code()
		}
	}
	s.log.DebugContext(ctx, "grpc call",
		zap.String("method", info.FullMethod),
		zap.Duration("duration", time.Since(start)),
		zap.String("code", code.String()),
	)
	return resp, err
}

// Address is the bound listen address.
func (s *Server) Address() string {
	return s.address
}

// Start serves until Stop and polls the probes until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.check(ctx)
	go s.watch(ctx)

	s.log.InfoContext(ctx, "grpc health server started", zap.String("address", s.address))
	return s.server.Serve(s.listener)
}

func (s *Server) watch(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

// check runs every probe and updates the serving status.
func (s *Server) check(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	for name, probe := range s.probes {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := probe(pctx)
		cancel()
		if err != nil {
			s.log.WarnContext(ctx, "health probe failed", zap.String("probe", name), zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus(ServiceName, st)
	s.health.SetServingStatus("", st)
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
