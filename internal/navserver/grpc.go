package navserver

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/navfusion/internal/monitoring"
)

// GRPCServer serves the health service.
type GRPCServer struct {
	server  *grpc.Server
	health  *HealthService
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewGRPCServer registers hs on a new grpc server.
func NewGRPCServer(hs *HealthService) *GRPCServer {
	s := &GRPCServer{
		server: grpc.NewServer(),
		health: hs,
	}
	healthpb.RegisterHealthServer(s.server, hs)
	return s
}

// Listen binds addr and serves in the background.
func (s *GRPCServer) Listen(addr string) (net.Addr, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	s.Serve(lis)
	return lis.Addr(), nil
}

// Serve serves on lis in the background until Stop.
func (s *GRPCServer) Serve(lis net.Listener) {
	s.running.Store(true)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		monitoring.Logf("[navserver] gRPC health listening on %s", lis.Addr())
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			monitoring.Logf("[navserver] gRPC server error: %v", err)
		}
	}()
}

// StopTimeout bounds the graceful stop. Open Watch streams never finish on
// their own, so the server is stopped hard once it expires.
const StopTimeout = 2 * time.Second

// Stop marks the services NOT_SERVING and stops the server.
func (s *GRPCServer) Stop() {
	if !s.running.Swap(false) {
		return
	}
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(StopTimeout):
		s.server.Stop()
		<-done
	}
	s.wg.Wait()
	monitoring.Logf("[navserver] gRPC server stopped")
}
