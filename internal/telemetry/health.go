package telemetry

import (
	"fmt"
	"net"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/helios-sim/helios/internal/logging"
)

// HealthServer exposes the standard grpc.health.v1.Health service so an
// orchestrator supervising the simulator process has a liveness/readiness
// probe for the core, the same way a production service would.
type HealthServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
}

// NewHealthServer builds a gRPC server carrying only the health service.
func NewHealthServer() *HealthServer {
	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{grpcServer: grpcServer, health: healthSrv}
}

// Start listens on addr and begins serving in the background.
func (h *HealthServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("health server listen: %w", err)
	}
	h.listener = lis

	go func() {
		if err := h.grpcServer.Serve(lis); err != nil {
			logging.Op().Error("health server stopped", "error", err)
		}
	}()
	return nil
}

// SetServing flips the health service to SERVING once the core has run
// InitScheduler and the driver's event loop is about to start.
func (h *HealthServer) SetServing() {
	h.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
}

// SetNotServing flips the health service back to NOT_SERVING, e.g. while
// SimulationComplete is still draining VMs.
func (h *HealthServer) SetNotServing() {
	h.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

// Stop gracefully shuts the health server down.
func (h *HealthServer) Stop() {
	if h.grpcServer != nil {
		h.grpcServer.GracefulStop()
	}
}

// MetricsServer serves the Prometheus registry over plain HTTP at /metrics.
type MetricsServer struct {
	srv *http.Server
}

// NewMetricsServer builds (but does not start) an HTTP server for m.
func NewMetricsServer(addr string, m *Metrics) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &MetricsServer{srv: &http.Server{Addr: addr, Handler: mux}}
}

// Start begins serving in the background.
func (s *MetricsServer) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("metrics server stopped", "error", err)
		}
	}()
}

// Stop shuts the metrics server down.
func (s *MetricsServer) Stop() error {
	return s.srv.Close()
}
