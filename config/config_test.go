package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	s, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8001", s.HTTPBaseURL())
	assert.Equal(t, "localhost:9001", s.GRPCAddress())
	assert.Equal(t, "nats://localhost:4222", s.BusURL)
	assert.Equal(t, 30*time.Second, s.StartupTimeout)
	assert.Equal(t, time.Second, s.ProbeInterval)
	assert.Equal(t, 2*time.Second, s.SettleWindow)
	assert.Equal(t, 5*time.Second, s.CollectTimeout)
	assert.Equal(t, 4, s.Workers)
	assert.True(t, s.CleanupAfterTest)
	assert.Contains(t, s.DatabaseDSN(), "port=5433")
	assert.Contains(t, s.DatabaseDSN(), "dbname=driver_service_test")
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SERVICE_HOST", "driver-svc")
	t.Setenv("SERVICE_HTTP_PORT", "8080")
	t.Setenv("SERVICE_GRPC_PORT", "9090")
	t.Setenv("TEST_TIMEOUT", "60")
	t.Setenv("CLEANUP_AFTER_TEST", "false")

	s, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://driver-svc:8080", s.HTTPBaseURL())
	assert.Equal(t, "driver-svc:9090", s.GRPCAddress())
	assert.Equal(t, "ws://driver-svc:8080/ws/tracking/d1", s.SocketURL("/ws/tracking/d1"))
	assert.Equal(t, 60*time.Second, s.StartupTimeout)
	assert.False(t, s.CleanupAfterTest)
}

func TestFromEnvRejectsMalformedInteger(t *testing.T) {
	t.Setenv("SERVICE_HTTP_PORT", "eight-thousand")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERVICE_HTTP_PORT")
}

func TestFromEnvRejectsMalformedBoolean(t *testing.T) {
	t.Setenv("CLEANUP_AFTER_TEST", "maybe")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLEANUP_AFTER_TEST")
}

func TestEndpointsCoverEveryChannel(t *testing.T) {
	s, err := FromEnv()
	require.NoError(t, err)

	endpoints := s.Endpoints()
	require.Len(t, endpoints, 4)
	kinds := map[EndpointKind]bool{}
	for _, e := range endpoints {
		kinds[e.Kind] = true
		assert.NotEmpty(t, e.Address)
	}
	assert.True(t, kinds[EndpointHTTP])
	assert.True(t, kinds[EndpointGRPC])
	assert.True(t, kinds[EndpointBus])
	assert.True(t, kinds[EndpointSocket])
}
