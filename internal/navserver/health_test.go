package navserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/testing/protocmp"

	"github.com/banshee-data/navfusion/internal/navigation"
	"github.com/banshee-data/navfusion/internal/timeutil"
)

func TestHealthStatus(t *testing.T) {
	tests := []struct {
		name string
		h    navigation.Health
		want healthpb.HealthCheckResponse_ServingStatus
	}{
		{"not started", navigation.Health{}, healthpb.HealthCheckResponse_NOT_SERVING},
		{"velocity only", navigation.Health{VelocityFusions: 1}, healthpb.HealthCheckResponse_NOT_SERVING},
		{"ready", navigation.Health{VelocityFusions: 1, PositionFusions: 1, Ready: true}, healthpb.HealthCheckResponse_SERVING},
		{"dead reckoning", navigation.Health{VelocityFusions: 9, PositionFusions: 9, Ready: true, DeadReckoning: true}, healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HealthStatus(tt.h))
		})
	}
}

// dialBufconn serves srv on an in-memory listener and returns a health
// client connected to it.
func dialBufconn(t *testing.T, srv *GRPCServer) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthServiceFollowsNavigator(t *testing.T) {
	nav := newTestNav(t)
	hs := NewHealthService(nav)
	client := dialBufconn(t, NewGRPCServer(hs))

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ServiceName))

	nav.cycle()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, hs.Update())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ServiceName))

	// no aided fusion for longer than the dead-reckoning timeout
	nav.clock.Advance(navigation.DefaultConfig().DeadReckoningTimeout + time.Second)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, hs.Update())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ServiceName))
}

func TestHealthWatchStream(t *testing.T) {
	nav := newTestNav(t)
	hs := NewHealthService(nav)
	client := dialBufconn(t, NewGRPCServer(hs))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stream, err := client.Watch(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)

	resp, err := stream.Recv()
	require.NoError(t, err)
	want := &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}
	if diff := cmp.Diff(want, resp, protocmp.Transform()); diff != "" {
		t.Errorf("initial status mismatch (-want +got):\n%s", diff)
	}

	nav.cycle()
	hs.Update()
	resp, err = stream.Recv()
	require.NoError(t, err)
	want = &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}
	if diff := cmp.Diff(want, resp, protocmp.Transform()); diff != "" {
		t.Errorf("status after fusion mismatch (-want +got):\n%s", diff)
	}
}

func TestHealthServiceUnknownService(t *testing.T) {
	client := dialBufconn(t, NewGRPCServer(NewHealthService(newTestNav(t))))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "nope"})
	require.Error(t, err)
}

func TestHealthServiceWatch(t *testing.T) {
	nav := newTestNav(t)
	hs := NewHealthService(nav)
	clock := timeutil.NewMockClock(testEpoch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hs.Run(ctx, clock, 100*time.Millisecond)
		close(done)
	}()

	nav.cycle()
	require.Eventually(t, func() bool {
		clock.Advance(100 * time.Millisecond)
		resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return")
	}
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus(), "shutdown should mark NOT_SERVING")
}

func TestGRPCServerListen(t *testing.T) {
	srv := NewGRPCServer(NewHealthService(newTestNav(t)))
	addr, err := srv.Listen("127.0.0.1:0")
	require.NoError(t, err)
	assert.NotEmpty(t, addr.String())
	srv.Stop()
	srv.Stop()
}

func TestGRPCServerStopWithOpenWatch(t *testing.T) {
	srv := NewGRPCServer(NewHealthService(newTestNav(t)))
	client := dialBufconn(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := client.Watch(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	_, err = stream.Recv()
	require.NoError(t, err)

	stopped := make(chan struct{})
	go func() {
		srv.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(StopTimeout + 3*time.Second):
		t.Fatal("Stop blocked on an open Watch stream")
	}
}
