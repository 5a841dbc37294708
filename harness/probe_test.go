package harness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetops/driver-contract-tests/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitReadySucceedsOnceProbeSucceeds(t *testing.T) {
	attempts := 0
	probe := func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("attempt %d: connection refused", attempts)
		}
		return nil
	}

	start := time.Now()
	err := WaitReady(context.Background(), logging.NullLogger(), "thing",
		time.Second, 50*time.Millisecond, probe)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond,
		"two failed attempts mean two full intervals were waited out")
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestWaitReadyProbesImmediately(t *testing.T) {
	probe := func(ctx context.Context) error { return nil }

	start := time.Now()
	err := WaitReady(context.Background(), logging.NullLogger(), "thing",
		time.Second, 200*time.Millisecond, probe)

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond,
		"the first attempt must not wait for an interval")
}

func TestWaitReadySurfacesLastProbeError(t *testing.T) {
	lastErr := errors.New("dial tcp: connection refused")
	probe := func(ctx context.Context) error { return lastErr }

	err := WaitReady(context.Background(), logging.NullLogger(), "driver service",
		150*time.Millisecond, 50*time.Millisecond, probe)

	require.Error(t, err)
	assert.ErrorIs(t, err, lastErr)
	assert.Contains(t, err.Error(), "driver service")
}

func TestWaitReadyStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	probe := func(ctx context.Context) error {
		cancel()
		return errors.New("not yet")
	}

	err := WaitReady(ctx, logging.NullLogger(), "thing",
		time.Minute, 50*time.Millisecond, probe)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPProbeAcceptsOnly2xx(t *testing.T) {
	status := http.StatusServiceUnavailable
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	probe := HTTPProbe(nil, server.URL+"/health")
	require.Error(t, probe(context.Background()))

	status = http.StatusOK
	require.NoError(t, probe(context.Background()))
}

func TestHTTPProbeReportsConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	probe := HTTPProbe(nil, server.URL+"/health")
	require.Error(t, probe(context.Background()))
}
