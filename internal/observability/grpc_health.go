package observability

import (
	"net"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer serves grpc.health.v1.Health for the service.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
}

// NewHealthServer builds a gRPC server with tracing and metrics interceptors.
// It reports NOT_SERVING until MarkServing is called.
func NewHealthServer() *HealthServer {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(GRPCServerMetricsUnaryInterceptor()),
	)
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, h)
	return &HealthServer{server: srv, health: h}
}

func (s *HealthServer) MarkServing() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

// Serve blocks until the listener fails or Stop is called.
func (s *HealthServer) Serve(lis net.Listener) error {
	logrus.WithField("addr", lis.Addr().String()).Info("grpc health server listening")
	return s.server.Serve(lis)
}

func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
