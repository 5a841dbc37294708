package apiclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startHealthServer(t *testing.T, status healthpb.HealthCheckResponse_ServingStatus) string {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", status)
	healthpb.RegisterHealthServer(server, healthServer)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	return lis.Addr().String()
}

func TestDialGRPCReachesRunningServer(t *testing.T) {
	address := startHealthServer(t, healthpb.HealthCheckResponse_SERVING)

	conn, err := DialGRPC(context.Background(), address, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()
}

func TestDialGRPCFailsFastOnUnreachableAddress(t *testing.T) {
	_, err := DialGRPC(context.Background(), "127.0.0.1:1", 300*time.Millisecond)
	require.Error(t, err)
}

func TestGRPCHealthReportsServing(t *testing.T) {
	address := startHealthServer(t, healthpb.HealthCheckResponse_SERVING)
	conn, err := DialGRPC(context.Background(), address, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	status, err := GRPCHealth(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)
}

func TestGRPCHealthReportsNotServing(t *testing.T) {
	address := startHealthServer(t, healthpb.HealthCheckResponse_NOT_SERVING)
	conn, err := DialGRPC(context.Background(), address, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	status, err := GRPCHealth(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)
}
