package server

import (
	"log/slog"
	"net"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// RelayService is the name probes can ask about besides the server-wide "" entry.
const RelayService = "chat.relay.v1.Relay"

// HealthServer exposes grpc.health.v1 for load balancers and orchestrators.
// It starts NOT_SERVING; the relay flips it once its storage is open.
type HealthServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(sdkgrpc.UnaryLoggingInterceptor(log)))
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	hs := &HealthServer{log: log, server: s, health: h}
	hs.SetServing(false)
	return hs
}

func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(RelayService, status)
	s.log.Debug("Health status changed", "status", status.String())
}

// Serve blocks until the listener fails or GracefulStop is called.
func (s *HealthServer) Serve(listener net.Listener) error {
	return s.server.Serve(listener)
}

// GracefulStop reports NOT_SERVING to watchers, then drains in-flight calls.
func (s *HealthServer) GracefulStop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
