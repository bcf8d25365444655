// Package navserver exposes navigation state to other processes: the
// standard gRPC health service and a small HTTP JSON API.
package navserver

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/navfusion/internal/monitoring"
	"github.com/banshee-data/navfusion/internal/navigation"
	"github.com/banshee-data/navfusion/internal/timeutil"
)

// ServiceName is the health service name reported alongside the overall
// ("") status.
const ServiceName = "navfusion.Navigation"

// HealthReporter is satisfied by *navigation.Navigator.
type HealthReporter interface {
	Health() navigation.Health
}

// HealthStatus maps navigator health to a gRPC serving status: SERVING once
// both estimators have fused, NOT_SERVING before that or while dead
// reckoning.
func HealthStatus(h navigation.Health) healthpb.HealthCheckResponse_ServingStatus {
	if !h.Ready || h.DeadReckoning {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// HealthService keeps a grpc health server in step with a navigator.
type HealthService struct {
	*health.Server
	reporter HealthReporter
	last     healthpb.HealthCheckResponse_ServingStatus
}

// NewHealthService returns a HealthService reporting NOT_SERVING until the
// first Update.
func NewHealthService(reporter HealthReporter) *HealthService {
	hs := &HealthService{
		Server:   health.NewServer(),
		reporter: reporter,
		last:     healthpb.HealthCheckResponse_NOT_SERVING,
	}
	hs.set(hs.last)
	return hs
}

// Update re-evaluates navigator health and publishes any change.
func (hs *HealthService) Update() healthpb.HealthCheckResponse_ServingStatus {
	status := HealthStatus(hs.reporter.Health())
	if status != hs.last {
		monitoring.Logf("[navserver] health %s -> %s", hs.last, status)
		hs.last = status
	}
	hs.set(status)
	return status
}

func (hs *HealthService) set(status healthpb.HealthCheckResponse_ServingStatus) {
	hs.SetServingStatus("", status)
	hs.SetServingStatus(ServiceName, status)
}

// Run calls Update every interval until ctx is cancelled, then marks the
// services as shutting down.
func (hs *HealthService) Run(ctx context.Context, clock timeutil.Clock, interval time.Duration) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	hs.Update()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C():
			hs.Update()
		}
	}
}
