package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"gestio.app/internal/obs"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// HealthReporter serves the standard gRPC health service, driven by the
// same readiness probe as /readyz.
type HealthReporter struct {
	srv       *health.Server
	readiness readinessChecker
}

func NewHealthReporter(r readinessChecker) *HealthReporter {
	return &HealthReporter{srv: health.NewServer(), readiness: r}
}

// Register adds the health service to s.
func (h *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Refresh runs the probe once and publishes the result for the overall
// server ("") and for the console service name.
func (h *HealthReporter) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := h.readiness.Check(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		obs.Logger().Warn("readiness probe failed", zap.Error(err))
		obs.SetReady(false)
	} else {
		obs.SetReady(true)
	}
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(serviceName, status)
	return status
}

// Run refreshes every interval until ctx ends.
func (h *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	h.Refresh(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Refresh(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING.
func (h *HealthReporter) Shutdown() {
	h.srv.Shutdown()
}
